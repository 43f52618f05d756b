package store

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ssargent/pinglog/pkg/codec"
)

const (
	// DefaultMaxRecoveryAttempts bounds how many false-positive timestamps a
	// single recovery may step over before giving up.
	DefaultMaxRecoveryAttempts = 4096

	// DefaultBufferSize is the write buffer used when none is configured
	DefaultBufferSize = 64 * 1024
)

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath            string          // Path to the sensor log
	MaxRecoveryAttempts int             // Resync attempts per recovery (0 = default)
	StrictHeader        bool            // Fail on an unrecognized header instead of warning
	Logger              *zerolog.Logger // Optional logger (nil = discard)
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath   string          // Path of the log to create
	BufferSize int             // Write buffer size (0 = default)
	Logger     *zerolog.Logger // Optional logger (nil = discard)
}

// RecordIterator provides streaming access to records
type RecordIterator interface {
	Next() bool
	Record() *codec.Record
	Err() error
	Close() error
}

// PassStats describes one read pass over a log
type PassStats struct {
	FileSize       int64 `json:"file_size"`       // Size of the log in bytes
	Records        int64 `json:"records"`         // Records returned to the caller
	Recoveries     int64 `json:"recoveries"`      // Times the reader lost frame alignment
	LostBytes      int64 `json:"lost_bytes"`      // Bytes skipped while resynchronizing
	TruncatedBytes int64 `json:"truncated_bytes"` // Bytes of an incomplete trailing record
}

// LostFraction returns the share of the file skipped during recovery
func (s PassStats) LostFraction() float64 {
	if s.FileSize <= 0 {
		return 0
	}
	return float64(s.LostBytes) / float64(s.FileSize)
}

// Errors
var (
	ErrInvalidPath    = &LogError{"invalid log file path"}
	ErrNilHeader      = &LogError{"header is required"}
	ErrWriterClosed   = &LogError{"log writer is closed"}
	ErrRecoveryFailed = &LogError{"recovery failed"}
)

// LogError represents a sensor log error
type LogError struct {
	Message string
}

func (e *LogError) Error() string {
	return e.Message
}

// RecoveryError reports a recovery that could not find the next record.
// LostBytes is the running total for the pass, including this attempt.
type RecoveryError struct {
	Offset    int64  // Where the failing recovery started
	LostBytes int64  // Total bytes lost in the pass
	FileSize  int64  // Size of the log
	Attempts  int    // Resync attempts made by the failing recovery
	Reason    string // Why scanning stopped
}

func (e *RecoveryError) Error() string {
	fraction := 0.0
	if e.FileSize > 0 {
		fraction = float64(e.LostBytes) / float64(e.FileSize) * 100
	}
	return fmt.Sprintf("%s at offset %d: %s; %d bytes lost (%.2f%% of %d)",
		ErrRecoveryFailed.Message, e.Offset, e.Reason, e.LostBytes, fraction, e.FileSize)
}

func (e *RecoveryError) Unwrap() error {
	return ErrRecoveryFailed
}
