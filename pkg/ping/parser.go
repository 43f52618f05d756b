package ping

import (
	"fmt"
)

// ParseState is the position of a Parser inside a message
type ParseState int

const (
	WaitStart ParseState = iota
	WaitHeader
	WaitLengthL
	WaitLengthH
	WaitMsgIDL
	WaitMsgIDH
	WaitSrcID
	WaitDstID
	WaitPayload
	WaitChecksumL
	WaitChecksumH
	NewMessage // a message was completed by the last byte
	Error      // the last byte ended a malformed message
)

var stateNames = [...]string{
	WaitStart:     "wait_start",
	WaitHeader:    "wait_header",
	WaitLengthL:   "wait_length_l",
	WaitLengthH:   "wait_length_h",
	WaitMsgIDL:    "wait_msg_id_l",
	WaitMsgIDH:    "wait_msg_id_h",
	WaitSrcID:     "wait_src_id",
	WaitDstID:     "wait_dst_id",
	WaitPayload:   "wait_payload",
	WaitChecksumL: "wait_checksum_l",
	WaitChecksumH: "wait_checksum_h",
	NewMessage:    "new_message",
	Error:         "error",
}

func (s ParseState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Parser recognizes messages in a byte stream, one byte at a time.
// State carries over between calls, so a message may span several buffers.
type Parser struct {
	state     ParseState
	payload   []byte
	remaining uint16
	msg       Message
	last      *Message
	err       error

	Parsed uint32 // messages completed with a valid checksum
	Errors uint32 // messages dropped for a bad checksum or length
}

// NewParser creates a parser waiting for a start byte
func NewParser() *Parser {
	return &Parser{}
}

// ParseByte consumes one byte and returns the resulting state.
// NewMessage and Error are reported once; the parser is then waiting for
// the next start byte.
func (p *Parser) ParseByte(b byte) ParseState {
	switch p.state {
	case WaitStart:
		if b == 'B' {
			p.msg = Message{}
			p.state = WaitHeader
		}
	case WaitHeader:
		if b == 'R' {
			p.state = WaitLengthL
		} else {
			p.state = WaitStart
		}
	case WaitLengthL:
		p.remaining = uint16(b)
		p.state = WaitLengthH
	case WaitLengthH:
		p.remaining |= uint16(b) << 8
		if p.remaining > MaxPayloadLength {
			return p.fail(fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, p.remaining))
		}
		p.payload = make([]byte, 0, p.remaining)
		p.state = WaitMsgIDL
	case WaitMsgIDL:
		p.msg.ID = uint16(b)
		p.state = WaitMsgIDH
	case WaitMsgIDH:
		p.msg.ID |= uint16(b) << 8
		p.state = WaitSrcID
	case WaitSrcID:
		p.msg.SrcDeviceID = b
		p.state = WaitDstID
	case WaitDstID:
		p.msg.DstDeviceID = b
		if p.remaining == 0 {
			p.state = WaitChecksumL
		} else {
			p.state = WaitPayload
		}
	case WaitPayload:
		p.payload = append(p.payload, b)
		p.remaining--
		if p.remaining == 0 {
			p.state = WaitChecksumL
		}
	case WaitChecksumL:
		p.msg.Checksum = uint16(b)
		p.state = WaitChecksumH
	case WaitChecksumH:
		p.msg.Checksum |= uint16(b) << 8
		p.msg.Payload = p.payload
		p.payload = nil
		if !p.msg.VerifyChecksum() {
			return p.fail(fmt.Errorf("%w: message %d", ErrChecksum, p.msg.ID))
		}
		msg := p.msg
		p.last = &msg
		p.err = nil
		p.Parsed++
		p.state = WaitStart
		return NewMessage
	}
	return p.state
}

func (p *Parser) fail(err error) ParseState {
	p.err = err
	p.payload = nil
	p.Errors++
	p.state = WaitStart
	return Error
}

// Message returns the last completed message
func (p *Parser) Message() *Message {
	return p.last
}

// Err returns why the last message was dropped
func (p *Parser) Err() error {
	return p.err
}

// Reset discards any partial message
func (p *Parser) Reset() {
	p.state = WaitStart
	p.payload = nil
	p.msg = Message{}
}
