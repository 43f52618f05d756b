package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderID identifies a PingViewer sensor log
	HeaderID = "PingViewer sensor log file"

	// CurrentVersion is the newest header version this package understands
	CurrentVersion int32 = 1
)

var ErrInvalidHeader = errors.New("codec: invalid header")

// SensorFamily groups devices that share a protocol
type SensorFamily int32

const (
	FamilyUnknown SensorFamily = iota
	FamilyPing
)

func (f SensorFamily) String() string {
	switch f {
	case FamilyUnknown:
		return "unknown"
	case FamilyPing:
		return "ping"
	default:
		return fmt.Sprintf("family(%d)", int32(f))
	}
}

// DeviceType identifies a device within a family
type DeviceType int32

const (
	DeviceUnknown DeviceType = iota
	DevicePing1D
	DevicePing360
)

func (t DeviceType) String() string {
	switch t {
	case DeviceUnknown:
		return "unknown"
	case DevicePing1D:
		return "ping1d"
	case DevicePing360:
		return "ping360"
	default:
		return fmt.Sprintf("device(%d)", int32(t))
	}
}

// BuildInfo describes the application build that wrote a log
type BuildInfo struct {
	Hash      string `json:"hash" yaml:"hash"`
	Date      string `json:"date" yaml:"date"`
	Tag       string `json:"tag" yaml:"tag"`
	OSName    string `json:"os_name" yaml:"os_name"`
	OSVersion string `json:"os_version" yaml:"os_version"`
}

// Sensor describes the device a log was recorded from
type Sensor struct {
	Family SensorFamily `json:"family" yaml:"family"`
	Type   DeviceType   `json:"type" yaml:"type"`
}

// Header is the fixed record at the start of every log.
// BuildInfo and Sensor are values, so every Header owns its own copy.
type Header struct {
	ID        string    `json:"id" yaml:"id"`
	Version   int32     `json:"version" yaml:"version"`
	BuildInfo BuildInfo `json:"build_info" yaml:"build_info"`
	Sensor    Sensor    `json:"sensor" yaml:"sensor"`
}

// NewHeader creates a current-version header for the given build and sensor
func NewHeader(build BuildInfo, sensor Sensor) *Header {
	return &Header{
		ID:        HeaderID,
		Version:   CurrentVersion,
		BuildInfo: build,
		Sensor:    sensor,
	}
}

// Validate checks the identification fields, the only ones stable across versions
func (h *Header) Validate() error {
	if h.ID != HeaderID {
		return fmt.Errorf("%w: unexpected id %q", ErrInvalidHeader, h.ID)
	}
	if h.Version <= 0 || h.Version > CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, h.Version)
	}
	return nil
}

// Size returns the encoded size of the header
func (h *Header) Size() int {
	return ArraySize(len(h.ID)) + IntSize +
		ArraySize(len(h.BuildInfo.Hash)) +
		ArraySize(len(h.BuildInfo.Date)) +
		ArraySize(len(h.BuildInfo.Tag)) +
		ArraySize(len(h.BuildInfo.OSName)) +
		ArraySize(len(h.BuildInfo.OSVersion)) +
		IntSize + IntSize
}

// Encode serializes the header into its wire layout
func (h *Header) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(h.Size())
	if err := h.WriteTo(NewWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo encodes the header through a frame writer
func (h *Header) WriteTo(w *Writer) error {
	if err := w.WriteString(h.ID); err != nil {
		return err
	}
	if err := w.WriteInt32(h.Version); err != nil {
		return err
	}

	for _, s := range []string{
		h.BuildInfo.Hash,
		h.BuildInfo.Date,
		h.BuildInfo.Tag,
		h.BuildInfo.OSName,
		h.BuildInfo.OSVersion,
	} {
		if err := w.WriteString(s); err != nil {
			return err
		}
	}

	if err := w.WriteInt32(int32(h.Sensor.Family)); err != nil {
		return err
	}
	return w.WriteInt32(int32(h.Sensor.Type))
}

// DecodeHeader reads a header from the start of a log.
// Headers are never recovered: any field failure is returned wrapped in ErrInvalidHeader.
func DecodeHeader(src io.Reader) (*Header, error) {
	r := NewReader(src)
	h := &Header{}

	var err error
	readString := func(field string, dst *string) {
		if err != nil {
			return
		}
		if *dst, err = r.ReadString(); err != nil {
			err = headerError(field, err)
		}
	}
	readInt := func(field string, dst *int32) {
		if err != nil {
			return
		}
		if *dst, err = r.ReadInt32(); err != nil {
			err = headerError(field, err)
		}
	}

	var family, device int32
	readString("id", &h.ID)
	readInt("version", &h.Version)
	readString("hash", &h.BuildInfo.Hash)
	readString("date", &h.BuildInfo.Date)
	readString("tag", &h.BuildInfo.Tag)
	readString("os_name", &h.BuildInfo.OSName)
	readString("os_version", &h.BuildInfo.OSVersion)
	readInt("sensor_family", &family)
	readInt("sensor_type", &device)
	if err != nil {
		return nil, err
	}

	h.Sensor = Sensor{Family: SensorFamily(family), Type: DeviceType(device)}
	return h, nil
}

func headerError(field string, err error) error {
	return fmt.Errorf("%w: field %s: %w", ErrInvalidHeader, field, noEOF(err))
}
