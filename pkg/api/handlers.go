package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinglog/pkg/archive"
	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

var errInvalidName = errors.New("invalid log name")

// Server holds the API server state
type Server struct {
	config   ServerConfig
	metrics  *Metrics
	registry *prometheus.Registry
	logger   zerolog.Logger
}

// NewServer creates a new API server. Metrics are registered with registry,
// which is also what /metrics serves.
func NewServer(config ServerConfig, registry *prometheus.Registry) *Server {
	if config.MaxRecords <= 0 {
		config.MaxRecords = DefaultMaxRecords
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Server{
		config:   config,
		metrics:  NewMetrics(registry),
		registry: registry,
		logger:   logger,
	}
}

// StatsResponse is returned by the stats route
type StatsResponse struct {
	Stats        store.PassStats `json:"stats"`
	LostFraction float64         `json:"lost_fraction"`
	Complete     bool            `json:"complete"`
	Error        string          `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.config.LogDir)
	if err != nil {
		s.logger.Error().Err(err).Str("log_dir", s.config.LogDir).Msg("list logs")
		sendError(w, "Failed to list log directory", http.StatusInternalServerError)
		return
	}

	logs := []LogInfo{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logs = append(logs, LogInfo{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	sendSuccess(w, logs)
}

func (s *Server) handleHeader(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.openLog(w, r)
	if !ok {
		return
	}

	header, err := reader.Header()
	if err != nil {
		s.sendReadError(w, err)
		return
	}

	resp := HeaderResponse{Header: *header, Valid: true}
	if err := header.Validate(); err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
	}
	sendSuccess(w, resp)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	reader, ok := s.openLog(w, r)
	if !ok {
		return
	}

	it, err := reader.Iterator()
	if err != nil {
		s.sendReadError(w, err)
		return
	}
	selected, err := store.Select(it, sel)
	if err != nil {
		it.Close()
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := s.collect(selected, sel)
	stats := it.Stats()
	s.metrics.RecordPass(stats, err)
	if err != nil && !isRecoveryError(err) {
		s.logger.Error().Err(err).Str("log", reader.Path()).Msg("read records")
		sendError(w, "Failed to read log", http.StatusInternalServerError)
		return
	}
	resp.Stats = &stats
	sendSuccess(w, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.openLog(w, r)
	if !ok {
		return
	}

	it, err := reader.Iterator()
	if err != nil {
		s.sendReadError(w, err)
		return
	}
	for it.Next() {
	}
	err = it.Err()
	stats := it.Stats()
	s.metrics.RecordPass(stats, err)

	if err != nil && !isRecoveryError(err) {
		s.logger.Error().Err(err).Str("log", reader.Path()).Msg("read stats")
		sendError(w, "Failed to read log", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Stats:        stats,
		LostFraction: stats.LostFraction(),
		Complete:     err == nil,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	sendSuccess(w, resp)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.config.Archive.Sources()
	if err != nil {
		s.logger.Error().Err(err).Msg("list sources")
		sendError(w, "Failed to list archive", http.StatusInternalServerError)
		return
	}
	if sources == nil {
		sources = []archive.Source{}
	}
	sendSuccess(w, sources)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, ok := parseSourceID(w, r)
	if !ok {
		return
	}
	src, err := s.config.Archive.Source(id)
	if err != nil {
		s.sendArchiveError(w, err)
		return
	}
	sendSuccess(w, src)
}

func (s *Server) handleSourceRecords(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelection(r)
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, ok := parseSourceID(w, r)
	if !ok {
		return
	}

	it, err := s.config.Archive.Records(id, sel)
	if err != nil {
		s.sendArchiveError(w, err)
		return
	}
	resp, err := s.collect(it, sel)
	if err != nil {
		s.logger.Error().Err(err).Str("source", id.String()).Msg("read archived records")
		sendError(w, "Failed to read archive", http.StatusInternalServerError)
		return
	}
	sendSuccess(w, resp)
}

// collect drains up to MaxRecords selected records. A recovery failure is
// reported in the response next to the records decoded before it.
func (s *Server) collect(it store.RecordIterator, sel store.Selection) (RecordsResponse, error) {
	defer it.Close()

	resp := RecordsResponse{Records: []RecordView{}}
	index := sel.Start
	for it.Next() {
		if len(resp.Records) == s.config.MaxRecords {
			resp.More = true
			return resp, nil
		}
		record := it.Record()
		resp.Records = append(resp.Records, RecordView{
			Index:     index,
			Timestamp: record.Timestamp,
			Clock:     record.Clock(),
			Payload:   record.Payload,
		})
		index += sel.Step
	}

	err := it.Err()
	if isRecoveryError(err) {
		resp.Error = err.Error()
	}
	return resp, err
}

// openLog resolves the {name} parameter inside the log directory
func (s *Server) openLog(w http.ResponseWriter, r *http.Request) (*store.LogReader, bool) {
	path, err := s.logPath(chi.URLParam(r, "name"))
	if err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	reader, err := store.NewLogReader(store.LogReaderConfig{
		FilePath:            path,
		MaxRecoveryAttempts: s.config.MaxRecoveryAttempts,
		StrictHeader:        s.config.StrictHeader,
		Logger:              &s.logger,
	})
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, store.ErrInvalidPath) {
		sendError(w, "Log not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("log", path).Msg("open log")
		sendError(w, "Failed to open log", http.StatusInternalServerError)
		return nil, false
	}
	return reader, true
}

// logPath joins name to the log directory, refusing anything that would leave it
func (s *Server) logPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return filepath.Join(s.config.LogDir, name), nil
}

func (s *Server) sendReadError(w http.ResponseWriter, err error) {
	if errors.Is(err, codec.ErrInvalidHeader) {
		sendError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.logger.Error().Err(err).Msg("start read pass")
	sendError(w, "Failed to read log", http.StatusInternalServerError)
}

func (s *Server) sendArchiveError(w http.ResponseWriter, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		sendError(w, "Source not found", http.StatusNotFound)
		return
	}
	s.logger.Error().Err(err).Msg("archive")
	sendError(w, "Failed to read archive", http.StatusInternalServerError)
}

func parseSourceID(w http.ResponseWriter, r *http.Request) (ksuid.KSUID, bool) {
	id, err := ksuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		sendError(w, "Invalid source id", http.StatusBadRequest)
		return ksuid.Nil, false
	}
	return id, true
}

// parseSelection reads start, stop and step from the query string
func parseSelection(r *http.Request) (store.Selection, error) {
	sel := store.All
	query := r.URL.Query()

	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"start", &sel.Start},
		{"stop", &sel.Stop},
		{"step", &sel.Step},
	} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return sel, fmt.Errorf("invalid %s: %q", p.name, raw)
		}
		*p.dst = v
	}
	return sel, sel.Validate()
}

func isRecoveryError(err error) bool {
	var recErr *store.RecoveryError
	return errors.As(err, &recErr)
}
