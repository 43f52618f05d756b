package api

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ssargent/pinglog/pkg/archive"
	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

// DefaultMaxRecords caps the records returned by a single records request
const DefaultMaxRecords = 10000

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind                string
	Port                int
	APIKey              string
	LogDir              string           // Directory the /logs routes serve from
	MaxRecoveryAttempts int              // Passed to every log reader
	StrictHeader        bool             // Passed to every log reader
	MaxRecords          int              // Records per response (0 = DefaultMaxRecords)
	Archive             *archive.Archive // Optional; enables the /archive routes
	Logger              *zerolog.Logger  // Optional logger (nil = discard)
}

// LogInfo describes one file in the log directory
type LogInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// HeaderResponse is returned by the header route
type HeaderResponse struct {
	Header codec.Header `json:"header"`
	Valid  bool         `json:"valid"`
	Reason string       `json:"reason,omitempty"`
}

// RecordView is the JSON form of a decoded record
type RecordView struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"` // raw bytes as stored
	Clock     string `json:"clock"`     // timestamp without null artifacts
	Payload   []byte `json:"payload"`
}

// RecordsResponse is returned by the records routes
type RecordsResponse struct {
	Records []RecordView     `json:"records"`
	More    bool             `json:"more"` // the selection was cut at MaxRecords
	Stats   *store.PassStats `json:"stats,omitempty"`
	Error   string           `json:"error,omitempty"` // recovery failure that ended the pass
}
