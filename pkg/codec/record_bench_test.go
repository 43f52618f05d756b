//go:build bench
// +build bench

package codec

import (
	"bytes"
	"testing"
)

func BenchmarkRecordCodec_Encode(b *testing.B) {
	codec := NewRecordCodec()

	benchmarks := []struct {
		name    string
		payload []byte
	}{
		{name: "small", payload: []byte("AB")},
		{name: "medium", payload: bytes.Repeat([]byte("v"), 256)},
		{name: "max", payload: bytes.Repeat([]byte("v"), MaxArrayLength)},
	}

	for _, bm := range benchmarks {
		b.Run(bm.name, func(b *testing.B) {
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := codec.Encode("12:00:00.000", bm.payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkRecordCodec_Decode(b *testing.B) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode("12:00:00.000", bytes.Repeat([]byte("v"), 1200))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Decode(encoded); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFindTimestamp(b *testing.B) {
	// Worst case: a full recovery window with the match at the end
	window := append(bytes.Repeat([]byte{0x42}, 2*MaxArrayLength-TimestampChars), []byte("12:00:00.000")...)

	b.SetBytes(int64(len(window)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, ok := FindTimestamp(window, 0); !ok {
			b.Fatal("no match")
		}
	}
}
