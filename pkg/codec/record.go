package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Record is one timestamped entry of a sensor log
type Record struct {
	Timestamp string // Receive time as written, "HH:MM:SS.mmm" with optional null bytes
	Payload   []byte // Raw protocol message bytes
}

// RecordCodec handles serialization and deserialization of records
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// NewRecord creates a record from a timestamp and payload
func NewRecord(timestamp string, payload []byte) *Record {
	return &Record{
		Timestamp: timestamp,
		Payload:   payload,
	}
}

// Encode serializes a record into its frame layout
// Format: [TimestampLength(4)][Timestamp][PayloadLength(4)][Payload]
func (c *RecordCodec) Encode(timestamp string, payload []byte) ([]byte, error) {
	r := NewRecord(timestamp, payload)

	var buf bytes.Buffer
	buf.Grow(r.Size())
	if err := r.WriteTo(NewWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes exactly one record frame
func (c *RecordCodec) Decode(data []byte) (*Record, error) {
	br := bytes.NewReader(data)
	r := NewReader(br)

	timestamp, err := r.ReadString()
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", noEOF(err))
	}
	payload, err := r.ReadArray()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", noEOF(err))
	}
	if br.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after record", br.Len())
	}

	return NewRecord(timestamp, payload), nil
}

// WriteTo encodes the record through a frame writer
func (r *Record) WriteTo(w *Writer) error {
	if err := w.WriteString(r.Timestamp); err != nil {
		return err
	}
	return w.WriteArray(r.Payload)
}

// Size returns the total size of the record when encoded
func (r *Record) Size() int {
	return ArraySize(len(r.Timestamp)) + ArraySize(len(r.Payload))
}

// Clock returns the timestamp with null artifacts removed
func (r *Record) Clock() string {
	return NormalizeTimestamp(r.Timestamp)
}

// noEOF reports a clean EOF inside an in-memory frame as a truncation.
func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
