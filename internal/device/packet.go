// Package device implements a small UDP broadcast discovery protocol for
// locating a TSMF head-end on the local network: a box that announces a
// device ID and a dialable source address (the "tcp://host:port" a
// demultiplexer should connect to for its raw byte stream).
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

/*
 * Discovery packet format (adapted from the HDHomeRun LAN discovery wire
 * protocol): all values big-endian except the trailing CRC, which is
 * little-endian.
 *
 * uint16_t  Packet type
 * uint16_t  Payload length (bytes)
 * uint8_t[] Payload: a sequence of TLV items
 * uint32_t  CRC (IEEE 802.3 32-bit CRC) over everything preceding it
 */

// Packet types.
const (
	TypeDiscoverReq = 0x0002
	TypeDiscoverRpy = 0x0003
)

// TLV tags carried in a discovery packet's payload.
const (
	TagDeviceID     = 0x02
	TagFriendlyName = 0x03
	TagSourceAddr   = 0x04
	TagErrorMessage = 0x05
)

// DeviceIDWildcard matches any device ID in a discovery request.
const DeviceIDWildcard = 0xFFFFFFFF

var crc32Table = crc32.MakeTable(crc32.IEEE)

// Packet is a complete discovery-protocol packet.
type Packet struct {
	Type    uint16
	Payload []byte
}

// Marshal serializes the packet, appending its CRC.
func (p *Packet) Marshal() []byte {
	buf := make([]byte, 4+len(p.Payload)+4)
	binary.BigEndian.PutUint16(buf[0:2], p.Type)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(p.Payload)))
	copy(buf[4:4+len(p.Payload)], p.Payload)

	crc := crc32.Checksum(buf[:4+len(p.Payload)], crc32Table)
	binary.LittleEndian.PutUint32(buf[4+len(p.Payload):], crc)
	return buf
}

// Unmarshal parses and CRC-validates a packet from the wire.
func Unmarshal(data []byte) (*Packet, error) {
	if len(data) < 8 {
		return nil, errors.New("packet too short")
	}
	packetType := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])
	if len(data) < 4+int(length)+4 {
		return nil, fmt.Errorf("packet truncated: need %d, got %d", 4+int(length)+4, len(data))
	}

	payload := make([]byte, length)
	copy(payload, data[4:4+length])

	receivedCRC := binary.LittleEndian.Uint32(data[4+length:])
	calculatedCRC := crc32.Checksum(data[:4+length], crc32Table)
	if receivedCRC != calculatedCRC {
		return nil, fmt.Errorf("CRC mismatch: got 0x%08x, expected 0x%08x", receivedCRC, calculatedCRC)
	}

	return &Packet{Type: packetType, Payload: payload}, nil
}

// TLV is one Tag-Length-Value item within a packet's payload.
type TLV struct {
	Tag   uint8
	Value []byte
}

// UnmarshalTLVs parses the TLV sequence carried in a payload. Lengths above
// 127 use the two-byte continuation encoding (high bit set on the first
// length byte).
func UnmarshalTLVs(payload []byte) ([]TLV, error) {
	var tlvs []TLV
	pos := 0
	for pos < len(payload) {
		if pos+2 > len(payload) {
			return nil, errors.New("truncated TLV")
		}
		tag := payload[pos]
		pos++

		length := uint16(payload[pos] & 0x7F)
		hasExt := payload[pos]&0x80 != 0
		pos++
		if hasExt {
			if pos >= len(payload) {
				return nil, errors.New("truncated TLV length")
			}
			length = (length << 7) | uint16(payload[pos])
			pos++
		}

		if pos+int(length) > len(payload) {
			return nil, fmt.Errorf("truncated TLV value: need %d, have %d", length, len(payload)-pos)
		}
		value := make([]byte, length)
		copy(value, payload[pos:pos+int(length)])
		pos += int(length)

		tlvs = append(tlvs, TLV{Tag: tag, Value: value})
	}
	return tlvs, nil
}

// MarshalTLVs serializes a TLV sequence.
func MarshalTLVs(tlvs []TLV) []byte {
	size := 0
	for _, tlv := range tlvs {
		size += 2 + len(tlv.Value)
		if len(tlv.Value) >= 128 {
			size++
		}
	}
	buf := make([]byte, 0, size)
	for _, tlv := range tlvs {
		buf = append(buf, tlv.Tag)
		if len(tlv.Value) < 128 {
			buf = append(buf, uint8(len(tlv.Value)))
		} else {
			buf = append(buf, uint8(0x80|((len(tlv.Value)>>7)&0x7F)))
			buf = append(buf, uint8(len(tlv.Value)&0x7F))
		}
		buf = append(buf, tlv.Value...)
	}
	return buf
}

// FindTLV returns the first TLV with the given tag, or nil.
func FindTLV(tlvs []TLV, tag uint8) *TLV {
	for i := range tlvs {
		if tlvs[i].Tag == tag {
			return &tlvs[i]
		}
	}
	return nil
}

func newDiscoverReq(deviceID uint32) *Packet {
	return &Packet{
		Type:    TypeDiscoverReq,
		Payload: MarshalTLVs([]TLV{{Tag: TagDeviceID, Value: uint32ToBytes(deviceID)}}),
	}
}

func newDiscoverRpy(h Head) *Packet {
	tlvs := []TLV{
		{Tag: TagDeviceID, Value: uint32ToBytes(h.DeviceID)},
		{Tag: TagSourceAddr, Value: append([]byte(h.SourceAddr), 0)},
	}
	if h.FriendlyName != "" {
		tlvs = append(tlvs, TLV{Tag: TagFriendlyName, Value: append([]byte(h.FriendlyName), 0)})
	}
	return &Packet{Type: TypeDiscoverRpy, Payload: MarshalTLVs(tlvs)}
}

func uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func bytesToUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
