// Package s1aptest builds aligned-PER encoded InitialContextSetup
// messages and the NAS payloads they embed, for use in tests.
package s1aptest

import "firestige.xyz/upflow/internal/core"

// perWriter emits an aligned-PER bit stream.
type perWriter struct {
	buf []byte
	bit int // bits used in the last byte, 0..7
}

func (w *perWriter) bits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.bit == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 != 0 {
			w.buf[len(w.buf)-1] |= 1 << (7 - w.bit)
		}
		w.bit = (w.bit + 1) % 8
	}
}

func (w *perWriter) align() { w.bit = 0 }

func (w *perWriter) octets(b []byte) {
	w.align()
	w.buf = append(w.buf, b...)
}

func (w *perWriter) uint8Aligned(v uint8)   { w.octets([]byte{v}) }
func (w *perWriter) uint16Aligned(v uint16) { w.octets([]byte{byte(v >> 8), byte(v)}) }

// largeInt emits a constrained whole number with range beyond 64K:
// octet count bit field, then aligned value octets.
func (w *perWriter) largeInt(v uint64, maxOctets int) {
	count := 1
	for v>>(8*count) != 0 {
		count++
	}
	lenBits := 1
	for 1<<lenBits < maxOctets {
		lenBits++
	}
	w.bits(uint32(count-1), lenBits)
	b := make([]byte, count)
	for i := count - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	w.octets(b)
}

func (w *perWriter) lengthDeterminant(n int) {
	if n < 0x80 {
		w.uint8Aligned(uint8(n))
		return
	}
	w.octets([]byte{0x80 | byte(n>>8), byte(n)})
}

func (w *perWriter) openType(content []byte) {
	w.lengthDeterminant(len(content))
	w.octets(content)
}

func (w *perWriter) ie(id uint16, content []byte) {
	w.uint16Aligned(id)
	w.bits(0, 2) // criticality: reject
	w.openType(content)
}

func (w *perWriter) transportLayerAddress(addr core.IPv4Address) {
	w.bits(0, 1)  // no size extension
	w.bits(31, 8) // 32 bits
	w.octets(addr[:])
}

func ueS1APID(id uint32, maxOctets int) []byte {
	var w perWriter
	w.largeInt(uint64(id), maxOctets)
	return w.buf
}

// RequestERAB parameterizes one E-RAB of a request.
type RequestERAB struct {
	ERABID uint8
	Addr   core.IPv4Address
	TEID   core.TEID
	NAS    []byte // omitted when nil
}

// ResponseERAB parameterizes one E-RAB of a response.
type ResponseERAB struct {
	ERABID uint8
	Addr   core.IPv4Address
	TEID   core.TEID
}

// InitialContextSetupRequest encodes a complete S1AP-PDU carrying an
// InitialContextSetupRequest.
func InitialContextSetupRequest(mme, enb uint32, erabs ...RequestERAB) []byte {
	var list perWriter
	list.uint8Aligned(uint8(len(erabs) - 1))
	for _, e := range erabs {
		list.ie(52, requestItem(e))
	}

	var body perWriter
	body.bits(0, 1) // no message extension
	body.uint16Aligned(3)
	body.ie(0, ueS1APID(mme, 4))
	body.ie(8, ueS1APID(enb, 3))
	body.ie(24, list.buf)

	return pdu(0, body.buf)
}

// InitialContextSetupResponse encodes a complete S1AP-PDU carrying an
// InitialContextSetupResponse.
func InitialContextSetupResponse(mme, enb uint32, erabs ...ResponseERAB) []byte {
	var list perWriter
	list.uint8Aligned(uint8(len(erabs) - 1))
	for _, e := range erabs {
		list.ie(50, responseItem(e))
	}

	var body perWriter
	body.bits(0, 1)
	body.uint16Aligned(3)
	body.ie(0, ueS1APID(mme, 4))
	body.ie(8, ueS1APID(enb, 3))
	body.ie(51, list.buf)

	return pdu(1, body.buf)
}

func pdu(choice uint32, body []byte) []byte {
	var w perWriter
	w.bits(0, 1)      // no choice extension
	w.bits(choice, 2) // initiating message or successful outcome
	w.uint8Aligned(9) // InitialContextSetup
	w.bits(0, 2)      // criticality: reject
	w.openType(body)
	return w.buf
}

func requestItem(e RequestERAB) []byte {
	var w perWriter
	w.bits(0, 1) // no extension
	if e.NAS != nil {
		w.bits(1, 1)
	} else {
		w.bits(0, 1)
	}
	w.bits(0, 1) // no iE-Extensions
	w.bits(0, 1) // E-RAB id not extended
	w.bits(uint32(e.ERABID), 4)
	qosParameters(&w)
	w.transportLayerAddress(e.Addr)
	w.octets([]byte{byte(e.TEID >> 24), byte(e.TEID >> 16), byte(e.TEID >> 8), byte(e.TEID)})
	if e.NAS != nil {
		w.openType(e.NAS)
	}
	return w.buf
}

func responseItem(e ResponseERAB) []byte {
	var w perWriter
	w.bits(0, 1) // no extension
	w.bits(0, 1) // no iE-Extensions
	w.bits(0, 1) // E-RAB id not extended
	w.bits(uint32(e.ERABID), 4)
	w.transportLayerAddress(e.Addr)
	w.octets([]byte{byte(e.TEID >> 24), byte(e.TEID >> 16), byte(e.TEID >> 8), byte(e.TEID)})
	return w.buf
}

// qosParameters emits a minimal E-RABLevelQoSParameters: QCI 9,
// priority 1, no GBR, no extensions.
func qosParameters(w *perWriter) {
	w.bits(0, 1) // no extension
	w.bits(0, 1) // no gbrQosInformation
	w.bits(0, 1) // no iE-Extensions
	w.uint8Aligned(9)
	w.bits(0, 1) // ARP not extended
	w.bits(0, 1) // no ARP iE-Extensions
	w.bits(1, 4) // priority level
	w.bits(0, 2) // may not pre-empt, not pre-emptable
}

// AttachAcceptNAS builds a plain EMM Attach Accept whose ESM
// container activates a default bearer with the given UE address.
func AttachAcceptNAS(ue core.IPv4Address) []byte {
	esm := []byte{
		0x52,       // bearer id 5, ESM
		0x01,       // procedure transaction id
		0xC1,       // Activate Default EPS Bearer Context Request
		0x01, 0x09, // EPS QoS: QCI 9
		0x04, 0x74, 0x65, 0x73, 0x74, // APN "test"
		0x05, 0x01, ue[0], ue[1], ue[2], ue[3], // PDN address, IPv4
	}
	b := []byte{
		0x07, // plain, EPS mobility management
		0x42, // Attach Accept
		0x02, // attach result: combined
		0x21, // T3412
		0x06, 0x00, 0x00, 0xF1, 0x10, 0x00, 0x01, // TAI list
		byte(len(esm) >> 8), byte(len(esm)),
	}
	return append(b, esm...)
}

// IntegrityProtectedNAS wraps a plain NAS message in an
// integrity-protected (not ciphered) security header.
func IntegrityProtectedNAS(inner []byte) []byte {
	hdr := []byte{0x17, 0xDE, 0xAD, 0xBE, 0xEF, 0x01}
	return append(hdr, inner...)
}

// CipheredNAS wraps a NAS message in an integrity-protected and
// ciphered security header; the payload is unreadable.
func CipheredNAS(inner []byte) []byte {
	hdr := []byte{0x27, 0xDE, 0xAD, 0xBE, 0xEF, 0x02}
	return append(hdr, inner...)
}
