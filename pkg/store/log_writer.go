package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ssargent/pinglog/pkg/codec"
)

// LogWriter creates a sensor log: the header first, then records in order
type LogWriter struct {
	file   *os.File
	writer *bufio.Writer
	frames *codec.Writer
	config LogWriterConfig
	logger zerolog.Logger
	offset int64 // Current write offset
	closed bool
}

// NewLogWriter creates (or truncates) the log at config.FilePath and writes header
func NewLogWriter(config LogWriterConfig, header *codec.Header) (*LogWriter, error) {
	if config.FilePath == "" {
		return nil, ErrInvalidPath
	}
	if header == nil {
		return nil, ErrNilHeader
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}

	buffered := bufio.NewWriterSize(file, config.BufferSize)
	w := &LogWriter{
		file:   file,
		writer: buffered,
		frames: codec.NewWriter(buffered),
		config: config,
		logger: loggerOrNop(config.Logger).With().Str("log", config.FilePath).Logger(),
	}

	if err := header.WriteTo(w.frames); err != nil {
		file.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.offset = int64(header.Size())

	w.logger.Debug().
		Str("sensor", header.Sensor.Type.String()).
		Int32("version", header.Version).
		Msg("log created")
	return w, nil
}

// NewLogWriterFromReference creates a log that carries the header of the log at refPath
func NewLogWriterFromReference(config LogWriterConfig, refPath string) (*LogWriter, error) {
	reader, err := NewLogReader(LogReaderConfig{FilePath: refPath, Logger: config.Logger})
	if err != nil {
		return nil, err
	}
	header, err := reader.Header()
	if err != nil {
		return nil, fmt.Errorf("reference header: %w", err)
	}
	return NewLogWriter(config, header)
}

// Append writes one record and returns the offset it starts at.
// Payloads are written as given, even above codec.MaxArrayLength.
func (w *LogWriter) Append(timestamp string, payload []byte) (int64, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	record := codec.NewRecord(timestamp, payload)
	if err := record.WriteTo(w.frames); err != nil {
		return 0, err
	}

	recordOffset := w.offset
	w.offset += int64(record.Size())
	return recordOffset, nil
}

// WriteAll appends every record from it and returns how many were written.
// The iterator is closed before returning.
func (w *LogWriter) WriteAll(it RecordIterator) (int64, error) {
	defer it.Close()

	var written int64
	for it.Next() {
		record := it.Record()
		if _, err := w.Append(record.Timestamp, record.Payload); err != nil {
			return written, err
		}
		written++
	}
	return written, it.Err()
}

// Sync flushes buffered records and fsyncs the file
func (w *LogWriter) Sync() error {
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close flushes and closes the log. It is safe to call more than once.
func (w *LogWriter) Close() error {
	if w.closed {
		return nil
	}
	err := w.Sync()
	w.closed = true
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	w.logger.Debug().Int64("size", w.offset).Msg("log closed")
	return err
}

// Size returns the number of bytes written, header included
func (w *LogWriter) Size() int64 {
	return w.offset
}

// Path returns the file path
func (w *LogWriter) Path() string {
	return w.config.FilePath
}

// WriteLog writes a complete log in one call
func WriteLog(path string, header *codec.Header, records []*codec.Record) error {
	w, err := NewLogWriter(LogWriterConfig{FilePath: path}, header)
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := w.Append(r.Timestamp, r.Payload); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
