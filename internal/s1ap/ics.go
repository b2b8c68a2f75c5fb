package s1ap

import (
	"fmt"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/netbuf"
)

// ERABToBeSetup is one E-RAB of an InitialContextSetupRequest: the
// EPC-side tunnel endpoint for the bearer, plus the UE address
// recovered from the embedded NAS message when one is present.
type ERABToBeSetup struct {
	ERABID        uint8
	TransportAddr core.IPv4Address
	TEID          core.TEID
	HasUEAddress  bool
	UEAddress     core.IPv4Address
}

// InitialContextSetupRequest carries the MME's side of the bearer
// setup.
type InitialContextSetupRequest struct {
	MMEUES1APID uint32
	ENBUES1APID uint32
	ERABs       []ERABToBeSetup
}

// ERABSetup is one E-RAB of an InitialContextSetupResponse: the
// eNB-side tunnel endpoint.
type ERABSetup struct {
	ERABID        uint8
	TransportAddr core.IPv4Address
	TEID          core.TEID
}

// InitialContextSetupResponse carries the eNB's answer.
type InitialContextSetupResponse struct {
	MMEUES1APID uint32
	ENBUES1APID uint32
	ERABs       []ERABSetup
}

// DecodeInitialContextSetupRequest dissects the message body of a PDU
// for which IsInitialContextSetupRequest holds.
func DecodeInitialContextSetupRequest(v netbuf.View) (*InitialContextSetupRequest, error) {
	ies, err := readIEContainer(newPERReader(v))
	if err != nil {
		return nil, err
	}

	var (
		req     InitialContextSetupRequest
		haveMME bool
		haveENB bool
	)
	for _, ie := range ies {
		r := newPERReader(ie.value)
		switch ie.id {
		case ieIDMMEUES1APID:
			req.MMEUES1APID, err = readUES1APID(r, 4)
			haveMME = err == nil
		case ieIDENBUES1APID:
			req.ENBUES1APID, err = readUES1APID(r, 3)
			haveENB = err == nil
		case ieIDERABToBeSetupListCtxtReq:
			req.ERABs, err = readERABToBeSetupList(r)
		default:
			// Unknown IEs were consumed as open types; ignore.
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if !haveMME || !haveENB || req.ERABs == nil {
		return nil, fmt.Errorf("%w: InitialContextSetupRequest missing mandatory IEs",
			core.ErrMalformedPacket)
	}
	return &req, nil
}

// DecodeInitialContextSetupResponse dissects the message body of a
// PDU for which IsInitialContextSetupResponse holds.
func DecodeInitialContextSetupResponse(v netbuf.View) (*InitialContextSetupResponse, error) {
	ies, err := readIEContainer(newPERReader(v))
	if err != nil {
		return nil, err
	}

	var (
		res     InitialContextSetupResponse
		haveMME bool
		haveENB bool
	)
	for _, ie := range ies {
		r := newPERReader(ie.value)
		switch ie.id {
		case ieIDMMEUES1APID:
			res.MMEUES1APID, err = readUES1APID(r, 4)
			haveMME = err == nil
		case ieIDENBUES1APID:
			res.ENBUES1APID, err = readUES1APID(r, 3)
			haveENB = err == nil
		case ieIDERABSetupListCtxtRes:
			res.ERABs, err = readERABSetupList(r)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if !haveMME || !haveENB || res.ERABs == nil {
		return nil, fmt.Errorf("%w: InitialContextSetupResponse missing mandatory IEs",
			core.ErrMalformedPacket)
	}
	return &res, nil
}

// readERABToBeSetupList reads an E-RABToBeSetupListCtxtSUReq: a
// one-octet item count followed by single-IE containers.
func readERABToBeSetupList(r *perReader) ([]ERABToBeSetup, error) {
	count, err := r.uint8Aligned()
	if err != nil {
		return nil, err
	}
	items := make([]ERABToBeSetup, 0, int(count)+1)
	for i := 0; i < int(count)+1; i++ {
		ie, err := readIE(r)
		if err != nil {
			return nil, err
		}
		if ie.id != ieIDERABToBeSetupItemCtxtReq {
			return nil, fmt.Errorf("%w: unexpected IE %d in E-RAB setup list",
				core.ErrMalformedPacket, ie.id)
		}
		item, err := readERABToBeSetupItem(newPERReader(ie.value))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// readERABToBeSetupItem reads an E-RABToBeSetupItemCtxtSUReq.
func readERABToBeSetupItem(r *perReader) (ERABToBeSetup, error) {
	var item ERABToBeSetup

	// Extension additions live past the fields we read and the open
	// type bounds the item, so an extended item is still safe to
	// parse.
	if _, err := r.bit1(); err != nil {
		return item, err
	}
	hasNAS, err := r.bit1()
	if err != nil {
		return item, err
	}
	hasExt, err := r.bit1()
	if err != nil {
		return item, err
	}

	if item.ERABID, err = readERABID(r); err != nil {
		return item, err
	}
	if err = skipERABLevelQoSParameters(r); err != nil {
		return item, err
	}
	if item.TransportAddr, err = readTransportLayerAddress(r); err != nil {
		return item, err
	}
	if item.TEID, err = readGTPTEID(r); err != nil {
		return item, err
	}
	if hasNAS {
		nas, err := r.openType()
		if err != nil {
			return item, err
		}
		addr, err := DecodeNASUEAddress(nas)
		if err != nil {
			return item, err
		}
		item.HasUEAddress = true
		item.UEAddress = addr
	}
	if hasExt {
		if err := skipExtensionContainer(r); err != nil {
			return item, err
		}
	}
	return item, nil
}

// readERABSetupList reads an E-RABSetupListCtxtSURes.
func readERABSetupList(r *perReader) ([]ERABSetup, error) {
	count, err := r.uint8Aligned()
	if err != nil {
		return nil, err
	}
	items := make([]ERABSetup, 0, int(count)+1)
	for i := 0; i < int(count)+1; i++ {
		ie, err := readIE(r)
		if err != nil {
			return nil, err
		}
		if ie.id != ieIDERABSetupItemCtxtRes {
			return nil, fmt.Errorf("%w: unexpected IE %d in E-RAB setup list",
				core.ErrMalformedPacket, ie.id)
		}
		item, err := readERABSetupItem(newPERReader(ie.value))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// readERABSetupItem reads an E-RABSetupItemCtxtSURes.
func readERABSetupItem(r *perReader) (ERABSetup, error) {
	var item ERABSetup

	if _, err := r.bit1(); err != nil {
		return item, err
	}
	hasExt, err := r.bit1()
	if err != nil {
		return item, err
	}

	if item.ERABID, err = readERABID(r); err != nil {
		return item, err
	}
	if item.TransportAddr, err = readTransportLayerAddress(r); err != nil {
		return item, err
	}
	if item.TEID, err = readGTPTEID(r); err != nil {
		return item, err
	}
	if hasExt {
		if err := skipExtensionContainer(r); err != nil {
			return item, err
		}
	}
	return item, nil
}

// skipERABLevelQoSParameters consumes an E-RABLevelQoSParameters
// without retaining it.
func skipERABLevelQoSParameters(r *perReader) error {
	if _, err := r.bit1(); err != nil { // extension marker
		return err
	}
	hasGBR, err := r.bit1()
	if err != nil {
		return err
	}
	hasExt, err := r.bit1()
	if err != nil {
		return err
	}
	if _, err := r.uint8Aligned(); err != nil { // qCI
		return err
	}
	if err := skipAllocationRetentionPriority(r); err != nil {
		return err
	}
	if hasGBR {
		if err := skipGBRQosInformation(r); err != nil {
			return err
		}
	}
	if hasExt {
		if err := skipExtensionContainer(r); err != nil {
			return err
		}
	}
	return nil
}

func skipAllocationRetentionPriority(r *perReader) error {
	if _, err := r.bit1(); err != nil { // extension marker
		return err
	}
	hasExt, err := r.bit1()
	if err != nil {
		return err
	}
	if _, err := r.bits(4); err != nil { // priority level
		return err
	}
	if _, err := r.bits(2); err != nil { // pre-emption capability and vulnerability
		return err
	}
	if hasExt {
		return skipExtensionContainer(r)
	}
	return nil
}

func skipGBRQosInformation(r *perReader) error {
	if _, err := r.bit1(); err != nil { // extension marker
		return err
	}
	hasExt, err := r.bit1()
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ { // four BitRate fields
		if _, err := r.largeInt(5); err != nil {
			return err
		}
	}
	if hasExt {
		return skipExtensionContainer(r)
	}
	return nil
}
