package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ssargent/pinglog/pkg/codec"
)

// LogReader provides sequential access to the records of a sensor log.
// Each pass opens the file, decodes the header and owns the handle until
// the pass ends; the reader itself holds no open resources.
type LogReader struct {
	config LogReaderConfig
	logger zerolog.Logger
}

// NewLogReader creates a new log reader for the specified file
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	if config.FilePath == "" {
		return nil, ErrInvalidPath
	}

	info, err := os.Stat(config.FilePath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidPath, config.FilePath)
	}

	if config.MaxRecoveryAttempts <= 0 {
		config.MaxRecoveryAttempts = DefaultMaxRecoveryAttempts
	}

	return &LogReader{
		config: config,
		logger: loggerOrNop(config.Logger).With().Str("log", config.FilePath).Logger(),
	}, nil
}

// Path returns the file path
func (r *LogReader) Path() string {
	return r.config.FilePath
}

// Header decodes only the header of the log
func (r *LogReader) Header() (*codec.Header, error) {
	it, err := r.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	return it.Header(), nil
}

// Iterator starts a new read pass. The caller must Close the iterator
// unless it has been drained by Next returning false.
func (r *LogReader) Iterator() (*LogIterator, error) {
	file, err := os.Open(r.config.FilePath)
	if err != nil {
		return nil, err
	}

	it, err := newLogIterator(file, file, r.config, r.logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	return it, nil
}

// ReadAll decodes every record of the log in a single pass
func (r *LogReader) ReadAll() (*codec.Header, []*codec.Record, PassStats, error) {
	it, err := r.Iterator()
	if err != nil {
		return nil, nil, PassStats{}, err
	}
	defer it.Close()

	var records []*codec.Record
	for it.Next() {
		records = append(records, it.Record())
	}
	return it.Header(), records, it.Stats(), it.Err()
}

// NewStreamIterator runs a read pass over an already open log.
// FilePath in config is only used for logging; src is not closed.
func NewStreamIterator(src io.ReadSeeker, config LogReaderConfig) (*LogIterator, error) {
	if config.MaxRecoveryAttempts <= 0 {
		config.MaxRecoveryAttempts = DefaultMaxRecoveryAttempts
	}
	return newLogIterator(src, nil, config, loggerOrNop(config.Logger))
}

// LogIterator implements RecordIterator for one pass over a log
type LogIterator struct {
	pass   *pass
	closer io.Closer
	record *codec.Record
	err    error
	done   bool
}

func newLogIterator(src io.ReadSeeker, closer io.Closer, config LogReaderConfig, logger zerolog.Logger) (*LogIterator, error) {
	size, err := streamSize(src)
	if err != nil {
		return nil, err
	}
	cur, err := newCursor(src)
	if err != nil {
		return nil, err
	}

	header, err := codec.DecodeHeader(cur)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		if config.StrictHeader {
			return nil, err
		}
		logger.Warn().Err(err).Msg("unrecognized log header, decoding anyway")
	}

	return &LogIterator{
		pass:   newPass(cur, header, size, config.MaxRecoveryAttempts, logger),
		closer: closer,
	}, nil
}

// Next advances to the next record. It returns false at the end of the
// log or on a fatal error, and releases the file in both cases.
func (it *LogIterator) Next() bool {
	if it.done {
		return false
	}

	record, err := it.pass.next()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		it.finish()
		return false
	}

	it.record = record
	it.pass.stats.Records++
	return true
}

// Record returns the current record
func (it *LogIterator) Record() *codec.Record {
	return it.record
}

// Header returns the header decoded when the pass started
func (it *LogIterator) Header() *codec.Header {
	return it.pass.header
}

// Stats returns the statistics of the pass so far
func (it *LogIterator) Stats() PassStats {
	return it.pass.stats
}

// Err returns the error that ended the pass, if any.
// A *RecoveryError here means the rest of the log could not be resynchronized.
func (it *LogIterator) Err() error {
	return it.err
}

// Close ends the pass early and releases the file. It is safe to call more than once.
func (it *LogIterator) Close() error {
	if it.done {
		return nil
	}
	it.finish()
	return it.err
}

func (it *LogIterator) finish() {
	it.done = true
	it.record = nil
	if it.closer == nil {
		return
	}
	if err := it.closer.Close(); err != nil && it.err == nil {
		it.err = err
	}
	it.closer = nil
}

// pass decodes records from a positioned cursor.
type pass struct {
	cur         *cursor
	frames      *codec.Reader
	header      *codec.Header
	stats       PassStats
	maxAttempts int
	window      []byte
	logger      zerolog.Logger
}

func newPass(cur *cursor, header *codec.Header, size int64, maxAttempts int, logger zerolog.Logger) *pass {
	return &pass{
		cur:         cur,
		frames:      codec.NewReader(cur),
		header:      header,
		stats:       PassStats{FileSize: size},
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// next decodes one record, resynchronizing when a length field is garbage.
// It returns io.EOF when the log ends.
func (p *pass) next() (*codec.Record, error) {
	start := p.cur.Offset()

	timestamp, err := p.frames.ReadString()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		p.logger.Debug().Int64("offset", start).Msg("end of log")
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		p.truncated(start)
		return nil, io.EOF
	case errors.Is(err, codec.ErrInvalidLength), errors.Is(err, codec.ErrInvalidUTF8):
		return p.recover(start, err)
	default:
		return nil, err
	}

	payloadAt := p.cur.Offset()
	payload, err := p.frames.ReadArray()
	switch {
	case err == nil:
		return codec.NewRecord(timestamp, payload), nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		p.truncated(start)
		return nil, io.EOF
	case errors.Is(err, codec.ErrInvalidLength):
		return p.recover(payloadAt, err)
	default:
		return nil, err
	}
}

// truncated accounts for an incomplete record running into the end of the file.
func (p *pass) truncated(start int64) {
	dropped := p.stats.FileSize - start
	if dropped <= 0 {
		return
	}
	p.stats.TruncatedBytes += dropped
	p.logger.Warn().
		Int64("offset", start).
		Int64("truncated_bytes", dropped).
		Msg("log ends with an incomplete record")
}

func loggerOrNop(l *zerolog.Logger) zerolog.Logger {
	if l == nil {
		return zerolog.Nop()
	}
	return *l
}
