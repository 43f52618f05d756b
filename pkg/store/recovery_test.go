package store

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/pinglog/pkg/codec"
)

// corruptLength overwrites the big-endian length field at offset
func corruptLength(data []byte, offset int, value uint32) []byte {
	out := bytes.Clone(data)
	copy(out[offset:], u32(value))
	return out
}

func TestRecovery_CorruptPayloadLength(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, "12:00:00.100", []byte("second"))
	r3 := encodeRecord(t, "12:00:00.200", []byte("third"))

	// Payload length of r2 sits after its 4+12 byte timestamp
	path := writeRaw(t, head, r1, corruptLength(r2, 16, 0xFFFFFFFF), r3)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, codec.NewRecord("12:00:00.000", []byte("first")), records[0])
	assert.Equal(t, codec.NewRecord("12:00:00.200", []byte("third")), records[1])

	// garbage length + lost payload + length prefix of r3's timestamp
	assert.Equal(t, int64(4+len("second")+4), stats.LostBytes)
	assert.Equal(t, int64(1), stats.Recoveries)
	assert.Equal(t, int64(2), stats.Records)
}

func TestRecovery_CorruptTimestampLength(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, "12:00:00.100", []byte("second"))

	path := writeRaw(t, head, r1, corruptLength(r2, 0, 0xFFFFFFFF))

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)

	// Only the length prefix is lost; the timestamp itself is found again
	require.Len(t, records, 2)
	assert.Equal(t, "12:00:00.100", records[1].Timestamp)
	assert.Equal(t, []byte("second"), records[1].Payload)
	assert.Equal(t, int64(4), stats.LostBytes)
}

func TestRecovery_InvalidUTF8Timestamp(t *testing.T) {
	head := encodeHeader(t, testHeader())
	bad := append(u32(3), 0xff, 0xfe, 0xfd)
	r2 := encodeRecord(t, "12:00:00.100", []byte("second"))

	path := writeRaw(t, head, bad, r2)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "12:00:00.100", records[0].Timestamp)
	assert.Equal(t, int64(len(bad)+4), stats.LostBytes)
}

func TestRecovery_WideTimestamp(t *testing.T) {
	wide := "\x001\x002\x00:\x000\x000\x00:\x000\x000\x00.\x005\x000\x000"
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, wide, []byte("second"))

	path := writeRaw(t, head, corruptLength(r1, 16, 0xFFFFFFFF), r2)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	// The null artifacts are kept so the record re-encodes byte for byte
	assert.Equal(t, wide, records[0].Timestamp)
	assert.Equal(t, "12:00:00.500", records[0].Clock())
	assert.Equal(t, int64(4+len("first")+4), stats.LostBytes)
}

func TestRecovery_FalsePositive(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, "12:00:01.000", []byte("second"))

	// A timestamp look-alike followed by a garbage length
	garbage := bytes.Join([][]byte{
		u32(0xFFFFFFFF),
		[]byte("xx"),
		[]byte("12:34:56.789"),
		u32(0xFFFFFFFF),
	}, nil)

	path := writeRaw(t, head, r1, garbage, r2)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "12:00:01.000", records[1].Timestamp)
	assert.Equal(t, []byte("second"), records[1].Payload)

	// Everything between r1 and r2's timestamp, look-alike included
	assert.Equal(t, int64(len(garbage)+4), stats.LostBytes)
	assert.Equal(t, int64(1), stats.Recoveries)
}

func TestRecovery_AttemptLimit(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, "12:00:01.000", []byte("second"))
	garbage := bytes.Join([][]byte{
		u32(0xFFFFFFFF),
		[]byte("12:34:56.789"),
		u32(0xFFFFFFFF),
	}, nil)

	path := writeRaw(t, head, r1, garbage, r2)
	info, err := os.Stat(path)
	require.NoError(t, err)

	records, stats, err := decodeFile(t, path, LogReaderConfig{MaxRecoveryAttempts: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecoveryFailed)

	var recErr *RecoveryError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, 1, recErr.Attempts)

	recoveryStart := int64(len(head) + len(r1))
	assert.Equal(t, recoveryStart, recErr.Offset)
	assert.Equal(t, info.Size()-recoveryStart, recErr.LostBytes)
	assert.Equal(t, recErr.LostBytes, stats.LostBytes)

	// Records before the failure are still delivered
	require.Len(t, records, 1)
	assert.Equal(t, "12:00:00.000", records[0].Timestamp)
}

func TestRecovery_UnrecoverableTail(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	tail := append(u32(0xDEADBEEF), bytes.Repeat([]byte("no clock here "), 400)...)

	path := writeRaw(t, head, r1, tail)
	info, err := os.Stat(path)
	require.NoError(t, err)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.Len(t, records, 1)

	var recErr *RecoveryError
	require.True(t, errors.As(err, &recErr), "expected a RecoveryError, got %v", err)

	recoveryStart := int64(len(head) + len(r1))
	assert.Equal(t, info.Size()-recoveryStart, recErr.LostBytes)
	assert.Equal(t, info.Size(), recErr.FileSize)
	assert.InDelta(t, float64(recErr.LostBytes)/float64(info.Size()), stats.LostFraction(), 1e-9)
	assert.Contains(t, err.Error(), "no timestamp before end of file")
}

func TestRecovery_OversizedPayloadAcrossChunks(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r3 := encodeRecord(t, "12:00:00.200", []byte("third"))

	// One byte over the limit, written out in full
	oversized := bytes.Join([][]byte{
		u32(12), []byte("12:00:00.100"),
		u32(codec.MaxArrayLength + 1), bytes.Repeat([]byte{'z'}, codec.MaxArrayLength+1),
	}, nil)

	path := writeRaw(t, head, r1, oversized, r3)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "12:00:00.200", records[1].Timestamp)
	assert.Equal(t, int64(4+codec.MaxArrayLength+1+4), stats.LostBytes)
}

func TestRecovery_TimestampStraddlingChunks(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))
	r2 := encodeRecord(t, "12:00:00.100", []byte("second"))

	// r2's timestamp starts 5 bytes before the first scan chunk ends
	filler := codec.MaxArrayLength - 5 - 4 - 4
	garbage := append(u32(0xFFFFFFFF), bytes.Repeat([]byte{'z'}, filler)...)

	path := writeRaw(t, head, r1, garbage, r2)

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "12:00:00.100", records[1].Timestamp)
	assert.Equal(t, []byte("second"), records[1].Payload)
	assert.Equal(t, int64(len(garbage)+4), stats.LostBytes)
}

func TestRecovery_MatchRunsIntoEndOfFile(t *testing.T) {
	head := encodeHeader(t, testHeader())
	r1 := encodeRecord(t, "12:00:00.000", []byte("first"))

	path := writeRaw(t, head, r1, u32(0xFFFFFFFF), []byte("12:00:00.100"))

	records, stats, err := decodeFile(t, path, LogReaderConfig{})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int64(4), stats.LostBytes)
	assert.Equal(t, int64(12), stats.TruncatedBytes)
}

func TestRecovery_MultipleCorruptions(t *testing.T) {
	head := encodeHeader(t, testHeader())
	chunks := [][]byte{head}
	records := sampleRecords(20)
	for i, r := range records {
		data := encodeRecord(t, r.Timestamp, r.Payload)
		if i%5 == 2 {
			data = corruptLength(data, 16, 0xABCDEF01)
		}
		chunks = append(chunks, data)
	}

	got, stats, err := decodeFile(t, writeRaw(t, chunks...), LogReaderConfig{})
	require.NoError(t, err)
	assert.Len(t, got, 16)
	assert.Equal(t, int64(4), stats.Recoveries)

	var want int64
	for i, r := range records {
		if i%5 == 2 {
			want += int64(4 + len(r.Payload) + 4)
		}
	}
	assert.Equal(t, want, stats.LostBytes)
}
