package codec_test

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/ssargent/pinglog/pkg/codec"
)

// ExampleRecordCodec_basic demonstrates basic record encoding and decoding
func ExampleRecordCodec_basic() {
	// Create a new codec
	codec := codec.NewRecordCodec()

	encoded, err := codec.Encode("12:00:00.000", []byte("AB"))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Encoded %d bytes\n", len(encoded))

	// Decode the record
	record, err := codec.Decode(encoded)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Timestamp: %s\n", record.Timestamp)
	fmt.Printf("Payload: %s\n", record.Payload)

	// Output:
	// Encoded 22 bytes
	// Timestamp: 12:00:00.000
	// Payload: AB
}

// ExampleDecodeHeader demonstrates writing and reading a log header
func ExampleDecodeHeader() {
	header := codec.NewHeader(
		codec.BuildInfo{Hash: "abc123", Date: "2021-01-01", Tag: "v1", OSName: "linux", OSVersion: "5.4"},
		codec.Sensor{Family: codec.FamilyPing, Type: codec.DevicePing360},
	)

	encoded, err := header.Encode()
	if err != nil {
		log.Fatal(err)
	}

	decoded, err := codec.DecodeHeader(bytes.NewReader(encoded))
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("ID: %s\n", decoded.ID)
	fmt.Printf("Version: %d\n", decoded.Version)
	fmt.Printf("Sensor: %s/%s\n", decoded.Sensor.Family, decoded.Sensor.Type)
	fmt.Printf("Valid: %t\n", decoded.Validate() == nil)

	// Output:
	// ID: PingViewer sensor log file
	// Version: 1
	// Sensor: ping/ping360
	// Valid: true
}

// ExampleReader_ReadArray demonstrates the invalid length marker
func ExampleReader_ReadArray() {
	// A length prefix of 0xFFFFFFFF is garbage, not a real array
	r := codec.NewReader(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))

	_, err := r.ReadArray()

	var lengthErr *codec.LengthError
	if errors.As(err, &lengthErr) {
		fmt.Printf("Invalid length: %d\n", lengthErr.Length)
	}
	fmt.Printf("Matches ErrInvalidLength: %t\n", errors.Is(err, codec.ErrInvalidLength))

	// Output:
	// Invalid length: 4294967295
	// Matches ErrInvalidLength: true
}

// ExampleFindTimestamp demonstrates scanning for a timestamp in raw bytes
func ExampleFindTimestamp() {
	data := []byte("\x07\x01garbage\x00\x00\x00\x0c12:34:56.789")

	start, end, ok := codec.FindTimestamp(data, 0)
	fmt.Printf("Found: %t\n", ok)
	fmt.Printf("Span: %d-%d\n", start, end)
	fmt.Printf("Timestamp: %s\n", data[start:end])

	// Output:
	// Found: true
	// Span: 13-25
	// Timestamp: 12:34:56.789
}
