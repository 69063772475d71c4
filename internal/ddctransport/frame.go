// Package ddctransport implements the transport strategies:
// I2C and USB dispatch behind one capability interface, plus the DDC/CI
// wire framing shared by both. The I2C strategy is grounded
// directly in the teacher's brightness/ddc.go (probeDDCDevice,
// getVCPFeature, setVCPFeature, ddcciChecksum), generalized from a single
// hardcoded VCP feature to arbitrary nontable codes plus capabilities reads
// and save-settings.
package ddctransport

import (
	"fmt"

	"github.com/rockowitz/ddcutil-sub004/internal/ddcerrs"
)

// Wire constants.
const (
	hostVirtualAddr    = 0x51
	replyVirtualAddr   = 0x6E
	checksumSeed       = 0x50
	opcodeGetVCP       = 0x01
	opcodeGetVCPReply  = 0x02
	opcodeSetVCP       = 0x03
	opcodeCapsRequest  = 0xF3
	opcodeCapsReply    = 0xE3
	opcodeSaveSettings = 0x0C
)

// NonTableReply is the 5-tuple a nontable VCP value decomposes into (spec
// GLOSSARY "Nontable value").
type NonTableReply struct {
	ResultCode byte // 0 = supported, 1 = unsupported (MCCS "VCP Result Code")
	Type       byte
	MaxValue   uint16
	CurValue   uint16
}

func (r NonTableReply) AllZero() bool {
	return r.Type == 0 && r.MaxValue == 0 && r.CurValue == 0
}

func xorChecksum(seed byte, payload []byte) byte {
	sum := seed
	for _, b := range payload {
		sum ^= b
	}
	return sum
}

// EncodeNontableGetRequest builds the "get VCP feature" request frame:
// source address 0x51, length byte with high bit set, command byte 0x01,
// the feature code, and an XOR checksum seeded with the virtual 0x50.
func EncodeNontableGetRequest(code byte) []byte {
	payload := []byte{hostVirtualAddr, 0x80 | 0x02, opcodeGetVCP, code}
	chk := xorChecksum(checksumSeed, payload)
	return append(payload, chk)
}

// EncodeNontableGetReply builds a reply frame for the given feature/result,
// primarily so tests and the mock transport can script wire-accurate
// fixtures and exercise the encode(decode(x))==x round-trip law.
func EncodeNontableGetReply(code byte, reply NonTableReply) []byte {
	payload := []byte{
		replyVirtualAddr,
		0x80 | 0x08,
		opcodeGetVCPReply,
		reply.ResultCode,
		code,
		reply.Type,
		byte(reply.MaxValue >> 8),
		byte(reply.MaxValue),
		byte(reply.CurValue >> 8),
		byte(reply.CurValue),
	}
	chk := xorChecksum(checksumSeed, payload)
	return append(payload, chk)
}

// DecodeNontableGetReply parses and validates a "get VCP feature" reply
// frame, checking structure, opcode, feature-code match, and checksum.
func DecodeNontableGetReply(wantCode byte, raw []byte) (NonTableReply, error) {
	if len(raw) < 11 {
		return NonTableReply{}, &ddcerrs.BadDataError{Message: fmt.Sprintf("short reply: %d bytes", len(raw))}
	}

	payload := raw[:10]
	gotChk := raw[10]
	wantChk := xorChecksum(checksumSeed, payload)
	if gotChk != wantChk {
		return NonTableReply{}, &ddcerrs.BadDataError{Message: "checksum mismatch"}
	}

	if payload[0] != replyVirtualAddr {
		return NonTableReply{}, &ddcerrs.InvalidProtocolError{Message: "unexpected source address in reply"}
	}
	if payload[2] != opcodeGetVCPReply {
		return NonTableReply{}, &ddcerrs.InvalidProtocolError{Message: "unexpected opcode in reply"}
	}
	gotCode := payload[4]
	if gotCode != wantCode {
		return NonTableReply{}, &ddcerrs.InvalidProtocolError{
			Message: fmt.Sprintf("vcp mismatch: wanted 0x%02x, got 0x%02x", wantCode, gotCode),
		}
	}

	reply := NonTableReply{
		ResultCode: payload[3],
		Type:       payload[5],
		MaxValue:   uint16(payload[6])<<8 | uint16(payload[7]),
		CurValue:   uint16(payload[8])<<8 | uint16(payload[9]),
	}
	return reply, nil
}

// EncodeNontableSetRequest builds the "set VCP feature" request frame.
func EncodeNontableSetRequest(code byte, value uint16) []byte {
	payload := []byte{
		hostVirtualAddr,
		0x80 | 0x04,
		opcodeSetVCP,
		code,
		byte(value >> 8),
		byte(value),
	}
	chk := xorChecksum(checksumSeed, payload)
	return append(payload, chk)
}

// EncodeCapabilitiesRequest builds a capabilities-string fragment request
// at the given byte offset into the monitor's capabilities string.
func EncodeCapabilitiesRequest(offset uint16) []byte {
	payload := []byte{
		hostVirtualAddr,
		0x80 | 0x03,
		opcodeCapsRequest,
		byte(offset >> 8),
		byte(offset),
	}
	chk := xorChecksum(checksumSeed, payload)
	return append(payload, chk)
}

// DecodeCapabilitiesReply parses a capabilities fragment reply, returning
// the offset it was sent for (for a sanity check against the request) and
// the fragment payload — an empty payload signals end of string.
func DecodeCapabilitiesReply(raw []byte) (offset uint16, fragment []byte, err error) {
	if len(raw) < 4 {
		return 0, nil, &ddcerrs.BadDataError{Message: fmt.Sprintf("short capabilities reply: %d bytes", len(raw))}
	}

	lengthByte := raw[1]
	dataLen := int(lengthByte &^ 0x80)
	if len(raw) < 2+dataLen+1 {
		return 0, nil, &ddcerrs.BadDataError{Message: "capabilities reply shorter than declared length"}
	}

	payload := raw[:2+dataLen]
	gotChk := raw[2+dataLen]
	wantChk := xorChecksum(checksumSeed, payload)
	if gotChk != wantChk {
		return 0, nil, &ddcerrs.BadDataError{Message: "checksum mismatch"}
	}

	if payload[0] != replyVirtualAddr || payload[2] != opcodeCapsReply {
		return 0, nil, &ddcerrs.InvalidProtocolError{Message: "unexpected capabilities reply header"}
	}

	offset = uint16(payload[3])<<8 | uint16(payload[4])
	fragment = append([]byte(nil), payload[5:]...)
	return offset, fragment, nil
}

// EncodeSaveSettingsRequest builds the "save current settings" request.
func EncodeSaveSettingsRequest() []byte {
	payload := []byte{hostVirtualAddr, 0x80 | 0x01, opcodeSaveSettings}
	chk := xorChecksum(checksumSeed, payload)
	return append(payload, chk)
}
