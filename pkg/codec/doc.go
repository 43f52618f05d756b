// Package codec provides the wire-level encoding for PingViewer sensor logs.
//
// A sensor log is a fixed header followed by an append-only sequence of
// records. Every variable-length field is framed by a length prefix, and every
// integer is big-endian. The big-endian byte order is part of the file format,
// not an implementation detail.
//
// # Frame Format
//
// The primitive wire types are:
//
//	int32:  [Value(4)]                signed, big-endian
//	uint32: [Value(4)]                unsigned, big-endian
//	array:  [Length(4)][Data]         Length is a uint32 byte count
//	string: [Length(4)][UTF-8 Data]   an array holding valid UTF-8
//
// A declared array length greater than MaxArrayLength is never read literally.
// Reader.ReadArray returns a *LengthError (matching ErrInvalidLength) instead,
// which the store package treats as a loss of frame alignment.
//
// # Header Format
//
//	[ID string][Version int32]
//	[Hash string][Date string][Tag string][OSName string][OSVersion string]
//	[SensorFamily int32][DeviceType int32]
//
// The header is decoded once per file in this fixed order. Any failure while
// decoding it is fatal and reported as ErrInvalidHeader.
//
// # Record Format
//
//	[TimestampLength(4)][Timestamp][PayloadLength(4)][Payload]
//
// The timestamp is text shaped like "HH:MM:SS.mmm". Logs written on Windows
// may carry a 0x00 byte before each character; FindTimestamp tolerates those
// bytes and NormalizeTimestamp removes them.
//
// # Usage
//
//	codec := codec.NewRecordCodec()
//
//	encoded, err := codec.Encode("12:00:00.000", payload)
//	if err != nil {
//	    return err
//	}
//
//	record, err := codec.Decode(encoded)
//	if err != nil {
//	    return err
//	}
//
// For streams use NewReader and NewWriter, which decode and encode one
// primitive at a time.
//
// # Thread Safety
//
// RecordCodec is stateless and safe for concurrent use. Reader and Writer are
// not; each wraps a single stream.
package codec
