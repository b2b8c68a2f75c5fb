// Package decode implements zero-copy protocol decoders over buffer
// views. Every decoder validates its minimum header length (and magic
// bits where the protocol has them) at construction, so the plain
// accessors never go out of bounds afterwards.
package decode

import "firestige.xyz/upflow/internal/netbuf"

// window slices a borrowed view for ranges already validated at
// decoder construction.
func window(v netbuf.View, off, n int) netbuf.View {
	w, err := v.Window(off, n)
	if err != nil {
		// Unreachable after construction-time validation.
		panic(err)
	}
	return w
}
