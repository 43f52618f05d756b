package api

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinglog/pkg/archive"
	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

const testAPIKey = "test-key"

func testHeader() *codec.Header {
	return codec.NewHeader(
		codec.BuildInfo{Hash: "abc123", Date: "2021-01-01", Tag: "v1", OSName: "linux", OSVersion: "5.4"},
		codec.Sensor{Family: codec.FamilyPing, Type: codec.DevicePing360},
	)
}

func testRecords(n int) []*codec.Record {
	records := make([]*codec.Record, n)
	for i := range records {
		records[i] = codec.NewRecord(fmt.Sprintf("08:15:%02d.%03d", i%60, i), []byte(fmt.Sprintf("ping-%d", i)))
	}
	return records
}

func encodeRecord(t *testing.T, ts, payload string) []byte {
	t.Helper()
	data, err := codec.NewRecordCodec().Encode(ts, []byte(payload))
	require.NoError(t, err)
	return data
}

// setupLogDir writes a clean log, a log with one corrupted length and a
// file that is not a sensor log
func setupLogDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, store.WriteLog(filepath.Join(dir, "clean.bin"), testHeader(), testRecords(10)))

	head, err := testHeader().Encode()
	require.NoError(t, err)
	r2 := encodeRecord(t, "08:16:00.100", "second")
	binary.BigEndian.PutUint32(r2[16:], 0xFFFFFFFF)
	corrupt := bytes.Join([][]byte{
		head,
		encodeRecord(t, "08:16:00.000", "first"),
		r2,
		encodeRecord(t, "08:16:00.200", "third"),
	}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.bin"), corrupt, 0600))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0750))
	return dir
}

// setupTestServer returns a test HTTP server over a populated log directory
func setupTestServer(t *testing.T, mutate func(*ServerConfig)) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	config := ServerConfig{
		APIKey: testAPIKey,
		LogDir: setupLogDir(t),
	}
	if mutate != nil {
		mutate(&config)
	}

	registry := prometheus.NewRegistry()
	ts := httptest.NewServer(NewServer(config, registry).Routes())
	t.Cleanup(ts.Close)
	return ts, registry
}

// getJSON performs an authenticated GET and decodes the data field into out
func getJSON(t *testing.T, ts *httptest.Server, path string, out interface{}) (int, APIResponse) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &envelope), string(body))
	if out != nil && envelope.Success {
		require.NoError(t, json.Unmarshal(envelope.Data, out))
	}
	return resp.StatusCode, APIResponse{Success: envelope.Success, Error: envelope.Error}
}

func TestHealth_RequiresAPIKey(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var health map[string]string
	status, _ := getJSON(t, ts, "/api/v1/health", &health)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", health["status"])
}

func TestListLogs(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	var logs []LogInfo
	status, _ := getJSON(t, ts, "/api/v1/logs", &logs)
	require.Equal(t, http.StatusOK, status)

	var names []string
	for _, l := range logs {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"clean.bin", "corrupt.bin", "notes.txt"}, names)
	assert.Positive(t, logs[0].Size)
}

func TestLogHeader(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	var resp HeaderResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/clean.bin/header", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Valid)
	assert.Equal(t, *testHeader(), resp.Header)

	status, apiResp := getJSON(t, ts, "/api/v1/logs/notes.txt/header", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, apiResp.Error, "invalid")

	status, _ = getJSON(t, ts, "/api/v1/logs/missing.bin/header", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = getJSON(t, ts, "/api/v1/logs/subdir/header", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLogRecords_Selection(t *testing.T) {
	ts, _ := setupTestServer(t, nil)
	records := testRecords(10)

	var resp RecordsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/clean.bin/records?start=1&stop=8&step=3", &resp)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, resp.Records, 3)
	for i, want := range []int{1, 4, 7} {
		got := resp.Records[i]
		assert.Equal(t, want, got.Index)
		assert.Equal(t, records[want].Timestamp, got.Timestamp)
		assert.Equal(t, records[want].Clock(), got.Clock)
		assert.Equal(t, records[want].Payload, got.Payload)
	}
	assert.False(t, resp.More)
	assert.Empty(t, resp.Error)
	require.NotNil(t, resp.Stats)
}

func TestLogRecords_BadSelection(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	for _, query := range []string{"step=0", "start=-2", "stop=abc"} {
		status, apiResp := getJSON(t, ts, "/api/v1/logs/clean.bin/records?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, status, query)
		assert.NotEmpty(t, apiResp.Error, query)
	}
}

func TestLogRecords_MaxRecords(t *testing.T) {
	ts, _ := setupTestServer(t, func(c *ServerConfig) { c.MaxRecords = 4 })

	var resp RecordsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/clean.bin/records", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, resp.Records, 4)
	assert.True(t, resp.More)
}

func TestLogRecords_RecoveredLog(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	var resp RecordsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/corrupt.bin/records", &resp)
	require.Equal(t, http.StatusOK, status)

	require.Len(t, resp.Records, 2)
	assert.Equal(t, "08:16:00.000", resp.Records[0].Timestamp)
	assert.Equal(t, "08:16:00.200", resp.Records[1].Timestamp)
	assert.Equal(t, int64(1), resp.Stats.Recoveries)
	assert.Equal(t, int64(4+len("second")+4), resp.Stats.LostBytes)
}

func TestLogStats(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	var resp StatsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/corrupt.bin/stats", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Complete)
	assert.Equal(t, int64(2), resp.Stats.Records)
	assert.Equal(t, int64(14), resp.Stats.LostBytes)
	assert.InDelta(t, float64(14)/float64(resp.Stats.FileSize), resp.LostFraction, 1e-9)
}

func TestLogStats_UnrecoverableTail(t *testing.T) {
	ts, _ := setupTestServer(t, func(c *ServerConfig) {
		f, err := os.OpenFile(filepath.Join(c.LogDir, "clean.bin"), os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.Write(append([]byte{0xff, 0xff, 0xff, 0xff}, bytes.Repeat([]byte{'#'}, 32)...))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	})

	var resp StatsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/clean.bin/stats", &resp)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, resp.Complete)
	assert.Equal(t, int64(10), resp.Stats.Records)
	assert.Equal(t, int64(36), resp.Stats.LostBytes)
	assert.Contains(t, resp.Error, "no timestamp before end of file")
}

func TestLogPath_StaysInLogDir(t *testing.T) {
	s := NewServer(ServerConfig{LogDir: "/data/logs"}, prometheus.NewRegistry())

	path, err := s.logPath("dive.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/logs", "dive.bin"), path)

	for _, name := range []string{"", ".", "..", "../etc/passwd", `..\boot.ini`, "a/b.bin"} {
		_, err := s.logPath(name)
		assert.ErrorIs(t, err, errInvalidName, name)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	var resp StatsResponse
	status, _ := getJSON(t, ts, "/api/v1/logs/corrupt.bin/stats", &resp)
	require.Equal(t, http.StatusOK, status)

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "pinglog_records_decoded_total 2")
	assert.Contains(t, text, "pinglog_recoveries_total 1")
	assert.Contains(t, text, "pinglog_lost_bytes_total 14")
	assert.Contains(t, text, `pinglog_read_passes_total{status="success"} 1`)
	assert.True(t, strings.Contains(text, `pinglog_http_requests_total{endpoint="/api/v1/logs/{name}/stats",method="GET",status_code="200"} 1`))
	assert.Contains(t, text, `pinglog_auth_requests_total{status="success"} 1`)
}

func TestArchiveRoutes(t *testing.T) {
	a, err := archive.Open(archive.Config{Dir: filepath.Join(t.TempDir(), "archive")})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ts, _ := setupTestServer(t, func(c *ServerConfig) { c.Archive = a })

	var sources []archive.Source
	status, _ := getJSON(t, ts, "/api/v1/archive/sources", &sources)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, sources)

	records := testRecords(6)
	src, err := a.Import(context.Background(), "dive", testHeader(), &sliceIterator{records: records})
	require.NoError(t, err)

	status, _ = getJSON(t, ts, "/api/v1/archive/sources", &sources)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, sources, 1)
	assert.Equal(t, src.ID, sources[0].ID)

	var got archive.Source
	status, _ = getJSON(t, ts, "/api/v1/archive/sources/"+src.ID.String(), &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dive", got.Name)
	assert.Equal(t, int64(6), got.Records)

	var resp RecordsResponse
	status, _ = getJSON(t, ts, "/api/v1/archive/sources/"+src.ID.String()+"/records?start=2&step=2", &resp)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, 2, resp.Records[0].Index)
	assert.Equal(t, records[4].Timestamp, resp.Records[1].Timestamp)
	assert.Nil(t, resp.Stats)

	status, _ = getJSON(t, ts, "/api/v1/archive/sources/not-a-ksuid", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = getJSON(t, ts, "/api/v1/archive/sources/"+strings.Repeat("0", 27), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestArchiveRoutes_DisabledWithoutArchive(t *testing.T) {
	ts, _ := setupTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/archive/sources", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartServer_RequiresAPIKey(t *testing.T) {
	err := StartServer(context.Background(), ServerConfig{LogDir: t.TempDir()})
	assert.Error(t, err)
}

type sliceIterator struct {
	records []*codec.Record
	pos     int
}

func (s *sliceIterator) Next() bool {
	if s.pos >= len(s.records) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceIterator) Record() *codec.Record { return s.records[s.pos-1] }
func (s *sliceIterator) Err() error            { return nil }
func (s *sliceIterator) Close() error          { return nil }
