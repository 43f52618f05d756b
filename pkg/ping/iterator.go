package ping

import (
	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

// MessageIterator parses record payloads into ping messages.
//
// A single parser runs across all records. Each record contributes at most
// one message: the first completed one whose id is wanted. The rest of that
// record is skipped. Records without a wanted message are dropped.
//
// MessageIterator is itself a store.RecordIterator whose records hold the
// packed message, so it can feed a LogWriter directly.
type MessageIterator struct {
	records   store.RecordIterator
	parser    *Parser
	wanted    map[uint16]struct{}
	timestamp string
	msg       *Message
}

// NewMessageIterator yields messages with the given ids (DefaultIDs if none)
func NewMessageIterator(records store.RecordIterator, ids ...uint16) *MessageIterator {
	if len(ids) == 0 {
		ids = DefaultIDs
	}
	wanted := make(map[uint16]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return &MessageIterator{
		records: records,
		parser:  NewParser(),
		wanted:  wanted,
	}
}

// Next advances to the next wanted message
func (it *MessageIterator) Next() bool {
	it.msg = nil
	for it.records.Next() {
		record := it.records.Record()
		for _, b := range record.Payload {
			if it.parser.ParseByte(b) != NewMessage {
				continue
			}
			msg := it.parser.Message()
			if _, ok := it.wanted[msg.ID]; ok {
				it.timestamp = record.Timestamp
				it.msg = msg
				return true
			}
		}
	}
	return false
}

// Message returns the current message
func (it *MessageIterator) Message() *Message {
	return it.msg
}

// Timestamp returns the timestamp of the record holding the current message
func (it *MessageIterator) Timestamp() string {
	return it.timestamp
}

// Record returns the current message repacked as a log record
func (it *MessageIterator) Record() *codec.Record {
	if it.msg == nil {
		return nil
	}
	return codec.NewRecord(it.timestamp, it.msg.Pack())
}

// Parser exposes the parse counters
func (it *MessageIterator) Parser() *Parser {
	return it.parser
}

// Err returns the error of the underlying records
func (it *MessageIterator) Err() error {
	return it.records.Err()
}

// Close closes the underlying records
func (it *MessageIterator) Close() error {
	return it.records.Close()
}
