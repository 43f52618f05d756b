// Package ping decodes the Blue Robotics ping protocol messages carried as
// record payloads in a sensor log.
//
// A message on the wire is
//
//	['B']['R'][PayloadLength u16][MessageID u16][SrcID u8][DstID u8][Payload][Checksum u16]
//
// with little-endian integers. The checksum is the byte sum of everything
// before it, truncated to 16 bits.
package ping

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderLength covers the start bytes, length, id, src and dst fields
	HeaderLength = 8

	// ChecksumLength is the size of the trailing checksum
	ChecksumLength = 2

	// MaxMessageLength bounds a whole message, framing included
	MaxMessageLength = 10240

	// MaxPayloadLength is the largest payload that fits in MaxMessageLength
	MaxPayloadLength = MaxMessageLength - HeaderLength - ChecksumLength
)

// Well-known message ids
const (
	IDProfile        uint16 = 1300 // Ping1D profile
	IDDeviceData     uint16 = 2300 // Ping360 device data
	IDAutoDeviceData uint16 = 2301 // Ping360 auto-transmit device data
)

// DefaultIDs are the ids a MessageIterator yields when none are given
var DefaultIDs = []uint16{IDProfile, IDDeviceData, IDAutoDeviceData}

var (
	ErrChecksum        = errors.New("ping: checksum mismatch")
	ErrPayloadTooLarge = errors.New("ping: payload too large")
	ErrShortPayload    = errors.New("ping: payload too short")
	ErrNoMessage       = errors.New("ping: no complete message")
	ErrUnexpectedID    = errors.New("ping: unexpected message id")
)

// Message is one framed ping protocol message
type Message struct {
	ID          uint16
	SrcDeviceID uint8
	DstDeviceID uint8
	Payload     []byte
	Checksum    uint16
}

// Compose builds a message and fills in its checksum
func Compose(id uint16, src, dst uint8, payload []byte) (*Message, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	m := &Message{
		ID:          id,
		SrcDeviceID: src,
		DstDeviceID: dst,
		Payload:     payload,
	}
	m.Checksum = m.ComputeChecksum()
	return m, nil
}

// Size returns the length of the packed message
func (m *Message) Size() int {
	return HeaderLength + len(m.Payload) + ChecksumLength
}

// Pack serializes the message back into wire bytes, using the stored checksum
func (m *Message) Pack() []byte {
	buf := m.appendBody(make([]byte, 0, m.Size()))
	return binary.LittleEndian.AppendUint16(buf, m.Checksum)
}

// ComputeChecksum sums the framing and payload bytes
func (m *Message) ComputeChecksum() uint16 {
	var sum uint16
	for _, b := range m.appendBody(make([]byte, 0, m.Size())) {
		sum += uint16(b)
	}
	return sum
}

// VerifyChecksum reports whether the stored checksum matches the contents
func (m *Message) VerifyChecksum() bool {
	return m.Checksum == m.ComputeChecksum()
}

func (m *Message) appendBody(buf []byte) []byte {
	buf = append(buf, 'B', 'R')
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Payload)))
	buf = binary.LittleEndian.AppendUint16(buf, m.ID)
	buf = append(buf, m.SrcDeviceID, m.DstDeviceID)
	return append(buf, m.Payload...)
}

func (m *Message) String() string {
	return fmt.Sprintf("message %d (%d -> %d, %d payload bytes)",
		m.ID, m.SrcDeviceID, m.DstDeviceID, len(m.Payload))
}

// Unpack parses the first complete message in data
func Unpack(data []byte) (*Message, error) {
	p := NewParser()
	for _, b := range data {
		switch p.ParseByte(b) {
		case NewMessage:
			return p.Message(), nil
		case Error:
			return nil, p.Err()
		}
	}
	return nil, ErrNoMessage
}
