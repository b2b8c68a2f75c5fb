package s1ap

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// NAS constants, per TS 24.301.
const (
	nasPDEPSMobility = 0x07 // EPS mobility management
	nasPDEPSSession  = 0x02 // EPS session management

	nasSecurityHeaderLen = 6

	nasSecHdrPlain              = 0x0
	nasSecHdrIntegrity          = 0x1
	nasSecHdrIntegrityCipher    = 0x2
	nasSecHdrIntegrityNew       = 0x3
	nasSecHdrIntegrityCipherNew = 0x4

	nasMsgAttachAccept             = 0x42
	nasMsgActivateDefaultBearerReq = 0xC1

	nasPDNTypeIPv4 = 0x1
)

// DecodeNASUEAddress walks the NAS message embedded in a bearer-setup
// request down to the PDN address of the default EPS bearer and
// returns the UE's IPv4 address.
//
// Path: (security header) -> EMM Attach Accept -> ESM container ->
// Activate Default EPS Bearer Context Request -> PDN address. Any
// message or address type off this path is unsupported; ciphered NAS
// cannot be read at all.
func DecodeNASUEAddress(v netbuf.View) (core.IPv4Address, error) {
	var zero core.IPv4Address

	b0, err := v.Uint8At(0)
	if err != nil {
		return zero, err
	}
	if b0&0x0F != nasPDEPSMobility {
		return zero, fmt.Errorf("%w: NAS protocol discriminator %d",
			core.ErrUnsupportedProto, b0&0x0F)
	}

	switch b0 >> 4 {
	case nasSecHdrPlain:
	case nasSecHdrIntegrity, nasSecHdrIntegrityNew:
		// Integrity protected, plain inner message after the 6-byte
		// security header.
		if v, err = v.Window(nasSecurityHeaderLen, v.Len()-nasSecurityHeaderLen); err != nil {
			return zero, err
		}
	case nasSecHdrIntegrityCipher, nasSecHdrIntegrityCipherNew:
		return zero, fmt.Errorf("%w: ciphered NAS message", core.ErrUnsupportedProto)
	default:
		return zero, fmt.Errorf("%w: NAS security header type %d",
			core.ErrUnsupportedProto, b0>>4)
	}

	return decodeAttachAccept(v)
}

// decodeAttachAccept walks a plain EMM Attach Accept to its ESM
// container.
func decodeAttachAccept(v netbuf.View) (core.IPv4Address, error) {
	var zero core.IPv4Address

	hdr, err := v.Uint8At(0)
	if err != nil {
		return zero, err
	}
	if hdr&0x0F != nasPDEPSMobility || hdr>>4 != nasSecHdrPlain {
		return zero, fmt.Errorf("%w: nested NAS security header", core.ErrUnsupportedProto)
	}
	msgType, err := v.Uint8At(1)
	if err != nil {
		return zero, err
	}
	if msgType != nasMsgAttachAccept {
		return zero, fmt.Errorf("%w: EMM message type 0x%02x",
			core.ErrUnsupportedProto, msgType)
	}

	// Attach result and T3412 value, then the TAI list as LV.
	off := 4
	taiLen, err := v.Uint8At(off)
	if err != nil {
		return zero, err
	}
	off += 1 + int(taiLen)

	// ESM message container, LV-E.
	esmLen, err := v.Uint16At(off)
	if err != nil {
		return zero, err
	}
	esm, err := v.Window(off+2, int(esmLen))
	if err != nil {
		return zero, err
	}
	return decodeActivateDefaultBearer(esm)
}

// decodeActivateDefaultBearer walks an ESM Activate Default EPS
// Bearer Context Request to its PDN address.
func decodeActivateDefaultBearer(v netbuf.View) (core.IPv4Address, error) {
	var zero core.IPv4Address

	hdr, err := v.Uint8At(0)
	if err != nil {
		return zero, err
	}
	if hdr&0x0F != nasPDEPSSession {
		return zero, fmt.Errorf("%w: ESM protocol discriminator %d",
			core.ErrUnsupportedProto, hdr&0x0F)
	}
	msgType, err := v.Uint8At(2)
	if err != nil {
		return zero, err
	}
	if msgType != nasMsgActivateDefaultBearerReq {
		return zero, fmt.Errorf("%w: ESM message type 0x%02x",
			core.ErrUnsupportedProto, msgType)
	}

	// EPS QoS, then APN, both LV.
	off := 3
	for i := 0; i < 2; i++ {
		n, err := v.Uint8At(off)
		if err != nil {
			return zero, err
		}
		off += 1 + int(n)
	}

	// PDN address, LV: one type octet, then the address.
	n, err := v.Uint8At(off)
	if err != nil {
		return zero, err
	}
	pdn, err := v.Window(off+1, int(n))
	if err != nil {
		return zero, err
	}
	typ, err := pdn.Uint8At(0)
	if err != nil {
		return zero, err
	}
	if typ&0x07 != nasPDNTypeIPv4 {
		return zero, fmt.Errorf("%w: PDN address type %d",
			core.ErrUnsupportedProto, typ&0x07)
	}
	return pdn.IPv4AddressAt(1)
}
