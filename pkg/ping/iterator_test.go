package ping

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

func packed(t *testing.T, id uint16, payload string) []byte {
	t.Helper()
	m, err := Compose(id, 1, 0, []byte(payload))
	require.NoError(t, err)
	return m.Pack()
}

func writeMessages(t *testing.T, records []*codec.Record) *store.LogReader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.bin")
	header := codec.NewHeader(codec.BuildInfo{}, codec.Sensor{Family: codec.FamilyPing, Type: codec.DevicePing360})
	require.NoError(t, store.WriteLog(path, header, records))

	reader, err := store.NewLogReader(store.LogReaderConfig{FilePath: path})
	require.NoError(t, err)
	return reader
}

func TestMessageIterator(t *testing.T) {
	general := packed(t, 5, "ack")
	first := packed(t, IDDeviceData, "one")
	second := packed(t, IDProfile, "two")
	half := len(second) / 2

	reader := writeMessages(t, []*codec.Record{
		codec.NewRecord("12:00:00.000", append(append([]byte{}, general...), first...)),
		codec.NewRecord("12:00:00.100", general),
		codec.NewRecord("12:00:00.200", second[:half]),
		codec.NewRecord("12:00:00.300", second[half:]),
	})

	records, err := reader.Iterator()
	require.NoError(t, err)
	it := NewMessageIterator(records)
	defer it.Close()

	require.True(t, it.Next())
	assert.Equal(t, "12:00:00.000", it.Timestamp())
	assert.Equal(t, IDDeviceData, it.Message().ID)
	assert.Equal(t, []byte("one"), it.Message().Payload)

	// The parser carries state from one record into the next
	require.True(t, it.Next())
	assert.Equal(t, "12:00:00.300", it.Timestamp())
	assert.Equal(t, IDProfile, it.Message().ID)
	assert.Equal(t, codec.NewRecord("12:00:00.300", second), it.Record())

	assert.False(t, it.Next())
	assert.NoError(t, it.Err())
	assert.Nil(t, it.Record())
	assert.Equal(t, uint32(4), it.Parser().Parsed)
}

func TestMessageIterator_OneMessagePerRecord(t *testing.T) {
	a := packed(t, IDDeviceData, "a")
	b := packed(t, IDDeviceData, "b")
	reader := writeMessages(t, []*codec.Record{
		codec.NewRecord("01:00:00.000", append(append([]byte{}, a...), b...)),
	})

	records, err := reader.Iterator()
	require.NoError(t, err)
	it := NewMessageIterator(records)

	require.True(t, it.Next())
	assert.Equal(t, []byte("a"), it.Message().Payload)
	assert.False(t, it.Next())
}

func TestMessageIterator_CustomIDs(t *testing.T) {
	reader := writeMessages(t, []*codec.Record{
		codec.NewRecord("01:00:00.000", packed(t, 5, "ack")),
		codec.NewRecord("01:00:00.001", packed(t, IDDeviceData, "data")),
	})

	records, err := reader.Iterator()
	require.NoError(t, err)
	it := NewMessageIterator(records, 5)

	require.True(t, it.Next())
	assert.Equal(t, uint16(5), it.Message().ID)
	assert.False(t, it.Next())
}

func TestMessageIterator_Reprocess(t *testing.T) {
	var records []*codec.Record
	for i := 0; i < 6; i++ {
		records = append(records, codec.NewRecord(codec.FormatTimestamp(time.Duration(i)*time.Millisecond), packed(t, IDDeviceData, "x")))
	}
	reader := writeMessages(t, records)

	src, err := reader.Iterator()
	require.NoError(t, err)
	selected, err := store.Select(NewMessageIterator(src), store.Selection{Start: 1, Stop: -1, Step: 2})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "out.bin")
	w, err := store.NewLogWriterFromReference(store.LogWriterConfig{FilePath: out}, reader.Path())
	require.NoError(t, err)
	n, err := w.WriteAll(selected)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, int64(3), n)

	outReader, err := store.NewLogReader(store.LogReaderConfig{FilePath: out})
	require.NoError(t, err)
	_, got, _, err := outReader.ReadAll()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, records[1], got[0])
	assert.Equal(t, records[5], got[2])
}
