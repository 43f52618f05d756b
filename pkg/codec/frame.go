package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

const (
	// MaxArrayLength is the largest array a valid log contains: twice the
	// longest known ping message, to allow for UTF-16 artifacts.
	MaxArrayLength = 1220 * 2

	// LengthSize is the size of every length prefix.
	LengthSize = 4

	// IntSize is the size of an encoded int32.
	IntSize = 4
)

var (
	ErrInvalidLength = errors.New("codec: invalid array length")
	ErrInvalidUTF8   = errors.New("codec: invalid UTF-8 string")
	ErrArrayTooLarge = errors.New("codec: array too large to encode")
)

// LengthError reports an array whose declared length exceeds MaxArrayLength.
type LengthError struct {
	Length uint32
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("codec: array length %d exceeds maximum %d", e.Length, MaxArrayLength)
}

// Is makes errors.Is(err, ErrInvalidLength) true for a *LengthError.
func (e *LengthError) Is(target error) bool {
	return target == ErrInvalidLength
}

// Reader decodes frame primitives from a stream.
type Reader struct {
	r   io.Reader
	buf [4]byte
}

// NewReader creates a frame reader on top of r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadUint32 reads a big-endian uint32. It returns io.EOF only when no
// bytes were available and io.ErrUnexpectedEOF on a partial value.
func (r *Reader) ReadUint32() (uint32, error) {
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.buf[:]), nil
}

// ReadInt32 reads a big-endian int32
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadArray reads a length-prefixed byte array. A length above
// MaxArrayLength yields a *LengthError and nothing past the prefix is read.
func (r *Reader) ReadArray() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > MaxArrayLength {
		return nil, &LengthError{Length: n}
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r.r, data); err != nil {
		// The prefix was consumed, so running out here is always a truncation.
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}

// ReadString reads a length-prefixed UTF-8 string
func (r *Reader) ReadString() (string, error) {
	data, err := r.ReadArray()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUTF8, data)
	}
	return string(data), nil
}

// Writer encodes frame primitives to a stream, mirroring Reader.
type Writer struct {
	w   io.Writer
	buf [4]byte
}

// NewWriter creates a frame writer on top of w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteUint32 writes a big-endian uint32
func (w *Writer) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(w.buf[:], v)
	_, err := w.w.Write(w.buf[:])
	return err
}

// WriteInt32 writes a big-endian int32
func (w *Writer) WriteInt32(v int32) error {
	return w.WriteUint32(uint32(v))
}

// WriteArray writes a length prefix followed by data.
//
// Lengths above MaxArrayLength are written as given; the caller is
// responsible for supplying arrays a reader will accept.
func (w *Writer) WriteArray(data []byte) error {
	if uint64(len(data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrArrayTooLarge, len(data))
	}
	if err := w.WriteUint32(uint32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.w.Write(data)
	return err
}

// WriteString writes s as a length-prefixed UTF-8 array
func (w *Writer) WriteString(s string) error {
	return w.WriteArray([]byte(s))
}

// ArraySize returns the encoded size of an array holding n bytes
func ArraySize(n int) int {
	return LengthSize + n
}
