package store

import (
	"bufio"
	"io"
)

// cursor is a buffered reader that knows its absolute offset and can seek.
type cursor struct {
	src    io.ReadSeeker
	reader *bufio.Reader
	offset int64
}

func newCursor(src io.ReadSeeker) (*cursor, error) {
	offset, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &cursor{
		src:    src,
		reader: bufio.NewReaderSize(src, DefaultBufferSize),
		offset: offset,
	}, nil
}

func (c *cursor) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.offset += int64(n)
	return n, err
}

// Seek moves to an absolute offset, discarding buffered data
func (c *cursor) Seek(offset int64) error {
	if _, err := c.src.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	c.reader.Reset(c.src) // Recreate reader to clear buffer
	c.offset = offset
	return nil
}

// Offset returns the offset of the next unread byte
func (c *cursor) Offset() int64 {
	return c.offset
}

// streamSize returns the total length of the underlying stream and restores the position.
func streamSize(src io.Seeker) (int64, error) {
	current, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := src.Seek(current, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}
