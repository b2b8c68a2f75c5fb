// Package s1ap extracts session-setup parameters from S1AP
// signalling. Only the InitialContextSetup exchange is dissected;
// every other PDU is classified and left opaque.
package s1ap

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// PDUType is the top-level S1AP-PDU choice alternative.
type PDUType uint8

const (
	PDUInitiatingMessage PDUType = iota
	PDUSuccessfulOutcome
	PDUUnsuccessfulOutcome
)

func (t PDUType) String() string {
	switch t {
	case PDUInitiatingMessage:
		return "initiating-message"
	case PDUSuccessfulOutcome:
		return "successful-outcome"
	case PDUUnsuccessfulOutcome:
		return "unsuccessful-outcome"
	}
	return fmt.Sprintf("pdu-type-%d", uint8(t))
}

// ProcedureInitialContextSetup is the elementary procedure code of
// the InitialContextSetup exchange.
const ProcedureInitialContextSetup = 9

// Protocol IE ids used by the InitialContextSetup messages.
const (
	ieIDMMEUES1APID              = 0
	ieIDENBUES1APID              = 8
	ieIDERABToBeSetupListCtxtReq = 24
	ieIDERABSetupListCtxtRes     = 51
	ieIDERABToBeSetupItemCtxtReq = 52
	ieIDERABSetupItemCtxtRes     = 50
)

// PDU is the decoded S1AP-PDU envelope. Value borrows the input view
// and holds the procedure-specific message body.
type PDU struct {
	Type          PDUType
	ProcedureCode uint8
	Criticality   uint8
	Value         netbuf.View
}

// DecodePDU decodes the S1AP-PDU envelope without dissecting the
// carried message.
func DecodePDU(v netbuf.View) (*PDU, error) {
	r := newPERReader(v)

	ext, err := r.bit1()
	if err != nil {
		return nil, err
	}
	if ext {
		return nil, fmt.Errorf("%w: extended S1AP-PDU choice", core.ErrUnsupportedProto)
	}
	idx, err := r.bits(2)
	if err != nil {
		return nil, err
	}
	if idx > uint32(PDUUnsuccessfulOutcome) {
		return nil, fmt.Errorf("%w: S1AP-PDU choice %d", core.ErrMalformedPacket, idx)
	}

	code, err := r.uint8Aligned()
	if err != nil {
		return nil, err
	}
	crit, err := r.bits(2)
	if err != nil {
		return nil, err
	}
	value, err := r.openType()
	if err != nil {
		return nil, err
	}

	return &PDU{
		Type:          PDUType(idx),
		ProcedureCode: code,
		Criticality:   uint8(crit),
		Value:         value,
	}, nil
}

// IsInitialContextSetupRequest reports whether the PDU carries an
// InitialContextSetupRequest.
func (p *PDU) IsInitialContextSetupRequest() bool {
	return p.Type == PDUInitiatingMessage && p.ProcedureCode == ProcedureInitialContextSetup
}

// IsInitialContextSetupResponse reports whether the PDU carries an
// InitialContextSetupResponse.
func (p *PDU) IsInitialContextSetupResponse() bool {
	return p.Type == PDUSuccessfulOutcome && p.ProcedureCode == ProcedureInitialContextSetup
}

// protocolIE is one entry of a ProtocolIE-Container.
type protocolIE struct {
	id    uint16
	crit  uint8
	value netbuf.View
}

// readIEContainer reads a ProtocolIE-Container preceded by the
// enclosing message's extension preamble.
func readIEContainer(r *perReader) ([]protocolIE, error) {
	ext, err := r.bit1()
	if err != nil {
		return nil, err
	}
	if ext {
		return nil, fmt.Errorf("%w: extended message sequence", core.ErrUnsupportedProto)
	}
	count, err := r.uint16Aligned()
	if err != nil {
		return nil, err
	}
	ies := make([]protocolIE, 0, count)
	for i := 0; i < int(count); i++ {
		ie, err := readIE(r)
		if err != nil {
			return nil, err
		}
		ies = append(ies, ie)
	}
	return ies, nil
}

func readIE(r *perReader) (protocolIE, error) {
	id, err := r.uint16Aligned()
	if err != nil {
		return protocolIE{}, err
	}
	crit, err := r.bits(2)
	if err != nil {
		return protocolIE{}, err
	}
	value, err := r.openType()
	if err != nil {
		return protocolIE{}, err
	}
	return protocolIE{id: id, crit: uint8(crit), value: value}, nil
}

// skipExtensionContainer consumes a ProtocolExtensionContainer. The
// extension fields are open types, so the contents can be skipped
// without knowing them.
func skipExtensionContainer(r *perReader) error {
	count, err := r.uint16Aligned()
	if err != nil {
		return err
	}
	for i := 0; i < int(count); i++ {
		if _, err := readIE(r); err != nil {
			return err
		}
	}
	return nil
}

// readTransportLayerAddress reads a TransportLayerAddress bit string.
// Only the 32-bit IPv4 form is supported.
func readTransportLayerAddress(r *perReader) (core.IPv4Address, error) {
	ext, err := r.bit1()
	if err != nil {
		return core.IPv4Address{}, err
	}
	if ext {
		return core.IPv4Address{}, fmt.Errorf("%w: extended transport address size",
			core.ErrUnsupportedProto)
	}
	n, err := r.bits(8)
	if err != nil {
		return core.IPv4Address{}, err
	}
	bits := int(n) + 1
	w, err := r.octets((bits + 7) / 8)
	if err != nil {
		return core.IPv4Address{}, err
	}
	if bits != 32 {
		return core.IPv4Address{}, fmt.Errorf("%w: %d-bit transport address",
			core.ErrUnsupportedProto, bits)
	}
	return w.IPv4Address(0), nil
}

// readGTPTEID reads a fixed 4-octet GTP-TEID octet string.
func readGTPTEID(r *perReader) (core.TEID, error) {
	w, err := r.octets(4)
	if err != nil {
		return 0, err
	}
	return core.TEID(w.Uint32(0)), nil
}

// readERABID reads an E-RAB-ID, INTEGER (0..15) with an extension
// marker.
func readERABID(r *perReader) (uint8, error) {
	ext, err := r.bit1()
	if err != nil {
		return 0, err
	}
	if ext {
		return 0, fmt.Errorf("%w: extended E-RAB id", core.ErrUnsupportedProto)
	}
	id, err := r.bits(4)
	return uint8(id), err
}

// readUES1APID reads an MME or eNB UE S1AP id; both ranges exceed
// 64K, so the value comes as octet count plus octets.
func readUES1APID(r *perReader, maxOctets int) (uint32, error) {
	v, err := r.largeInt(maxOctets)
	return uint32(v), err
}
