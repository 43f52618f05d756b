package ping

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// SamplePeriodTick is the unit of Ping360 sample periods
	SamplePeriodTick = 25 * time.Nanosecond

	// GradiansPerTurn is the Ping360 angular resolution
	GradiansPerTurn = 400

	// DefaultSpeedOfSound in m/s
	DefaultSpeedOfSound = 1500.0
)

// Profile is a Ping1D profile message (id 1300)
type Profile struct {
	Distance         uint32 `json:"distance"` // mm
	Confidence       uint16 `json:"confidence"`
	TransmitDuration uint16 `json:"transmit_duration"` // us
	PingNumber       uint32 `json:"ping_number"`
	ScanStart        uint32 `json:"scan_start"`  // mm
	ScanLength       uint32 `json:"scan_length"` // mm
	GainSetting      uint32 `json:"gain_setting"`
	ProfileData      []byte `json:"profile_data"`
}

// DeviceData is a Ping360 device data message (id 2300)
type DeviceData struct {
	Mode              uint8  `json:"mode"`
	GainSetting       uint8  `json:"gain_setting"`
	Angle             uint16 `json:"angle"`             // gradians
	TransmitDuration  uint16 `json:"transmit_duration"` // us
	SamplePeriod      uint16 `json:"sample_period"`     // 25ns ticks
	TransmitFrequency uint16 `json:"transmit_frequency"` // kHz
	NumberOfSamples   uint16 `json:"number_of_samples"`
	Data              []byte `json:"data"`
}

// AutoDeviceData is a Ping360 auto-transmit device data message (id 2301)
type AutoDeviceData struct {
	Mode              uint8  `json:"mode"`
	GainSetting       uint8  `json:"gain_setting"`
	Angle             uint16 `json:"angle"`
	TransmitDuration  uint16 `json:"transmit_duration"`
	SamplePeriod      uint16 `json:"sample_period"`
	TransmitFrequency uint16 `json:"transmit_frequency"`
	StartAngle        uint16 `json:"start_angle"`
	StopAngle         uint16 `json:"stop_angle"`
	NumSteps          uint8  `json:"num_steps"`
	Delay             uint8  `json:"delay"`
	NumberOfSamples   uint16 `json:"number_of_samples"`
	Data              []byte `json:"data"`
}

// fields reads little-endian values from a payload in order
type fields struct {
	buf []byte
	off int
	err error
}

func (f *fields) take(n int) []byte {
	if f.err != nil {
		return nil
	}
	if len(f.buf)-f.off < n {
		f.err = fmt.Errorf("%w: need %d bytes at %d, have %d", ErrShortPayload, n, f.off, len(f.buf))
		return nil
	}
	b := f.buf[f.off : f.off+n]
	f.off += n
	return b
}

func (f *fields) u8() uint8 {
	if b := f.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (f *fields) u16() uint16 {
	if b := f.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (f *fields) u32() uint32 {
	if b := f.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// bytes reads a u16 length followed by that many bytes
func (f *fields) bytes() []byte {
	n := f.u16()
	if b := f.take(int(n)); b != nil {
		return append([]byte(nil), b...)
	}
	return nil
}

func expectID(m *Message, id uint16) error {
	if m.ID != id {
		return fmt.Errorf("%w: got %d, want %d", ErrUnexpectedID, m.ID, id)
	}
	return nil
}

// DecodeProfile decodes a Ping1D profile message
func DecodeProfile(m *Message) (*Profile, error) {
	if err := expectID(m, IDProfile); err != nil {
		return nil, err
	}
	f := &fields{buf: m.Payload}
	p := &Profile{
		Distance:         f.u32(),
		Confidence:       f.u16(),
		TransmitDuration: f.u16(),
		PingNumber:       f.u32(),
		ScanStart:        f.u32(),
		ScanLength:       f.u32(),
		GainSetting:      f.u32(),
		ProfileData:      f.bytes(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return p, nil
}

// DecodeDeviceData decodes a Ping360 device data message
func DecodeDeviceData(m *Message) (*DeviceData, error) {
	if err := expectID(m, IDDeviceData); err != nil {
		return nil, err
	}
	f := &fields{buf: m.Payload}
	d := &DeviceData{
		Mode:              f.u8(),
		GainSetting:       f.u8(),
		Angle:             f.u16(),
		TransmitDuration:  f.u16(),
		SamplePeriod:      f.u16(),
		TransmitFrequency: f.u16(),
		NumberOfSamples:   f.u16(),
		Data:              f.bytes(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return d, nil
}

// DecodeAutoDeviceData decodes a Ping360 auto-transmit device data message
func DecodeAutoDeviceData(m *Message) (*AutoDeviceData, error) {
	if err := expectID(m, IDAutoDeviceData); err != nil {
		return nil, err
	}
	f := &fields{buf: m.Payload}
	d := &AutoDeviceData{
		Mode:              f.u8(),
		GainSetting:       f.u8(),
		Angle:             f.u16(),
		TransmitDuration:  f.u16(),
		SamplePeriod:      f.u16(),
		TransmitFrequency: f.u16(),
		StartAngle:        f.u16(),
		StopAngle:         f.u16(),
		NumSteps:          f.u8(),
		Delay:             f.u8(),
		NumberOfSamples:   f.u16(),
		Data:              f.bytes(),
	}
	if f.err != nil {
		return nil, f.err
	}
	return d, nil
}

// Encode packs the device data back into a message payload
func (d *DeviceData) Encode() []byte {
	buf := make([]byte, 0, 16+len(d.Data))
	buf = append(buf, d.Mode, d.GainSetting)
	for _, v := range []uint16{d.Angle, d.TransmitDuration, d.SamplePeriod, d.TransmitFrequency, d.NumberOfSamples, uint16(len(d.Data))} {
		buf = binary.LittleEndian.AppendUint16(buf, v)
	}
	return append(buf, d.Data...)
}

// Ping360Settings are the acquisition settings a Ping360 reports with each ping
type Ping360Settings struct {
	Mode              uint8  `json:"mode"`
	GainSetting       uint8  `json:"gain_setting"`
	Angle             uint16 `json:"angle"`
	TransmitDuration  uint16 `json:"transmit_duration"`
	SamplePeriod      uint16 `json:"sample_period"`
	TransmitFrequency uint16 `json:"transmit_frequency"`
	NumberOfSamples   uint16 `json:"number_of_samples"`
}

// SettingsFromDeviceData copies the settings carried by a device data message
func SettingsFromDeviceData(d *DeviceData) Ping360Settings {
	return Ping360Settings{
		Mode:              d.Mode,
		GainSetting:       d.GainSetting,
		Angle:             d.Angle,
		TransmitDuration:  d.TransmitDuration,
		SamplePeriod:      d.SamplePeriod,
		TransmitFrequency: d.TransmitFrequency,
		NumberOfSamples:   d.NumberOfSamples,
	}
}

// SettingsFromAutoDeviceData copies the settings carried by an auto-transmit message
func SettingsFromAutoDeviceData(d *AutoDeviceData) Ping360Settings {
	return Ping360Settings{
		Mode:              d.Mode,
		GainSetting:       d.GainSetting,
		Angle:             d.Angle,
		TransmitDuration:  d.TransmitDuration,
		SamplePeriod:      d.SamplePeriod,
		TransmitFrequency: d.TransmitFrequency,
		NumberOfSamples:   d.NumberOfSamples,
	}
}

// Settings extracts Ping360 settings from a 2300 or 2301 message
func Settings(m *Message) (Ping360Settings, error) {
	switch m.ID {
	case IDDeviceData:
		d, err := DecodeDeviceData(m)
		if err != nil {
			return Ping360Settings{}, err
		}
		return SettingsFromDeviceData(d), nil
	case IDAutoDeviceData:
		d, err := DecodeAutoDeviceData(m)
		if err != nil {
			return Ping360Settings{}, err
		}
		return SettingsFromAutoDeviceData(d), nil
	default:
		return Ping360Settings{}, fmt.Errorf("%w: %d has no Ping360 settings", ErrUnexpectedID, m.ID)
	}
}

// SamplePeriodDuration converts the sample period ticks to a duration
func (s Ping360Settings) SamplePeriodDuration() time.Duration {
	return time.Duration(s.SamplePeriod) * SamplePeriodTick
}

// Range returns the distance covered by the samples in meters
func (s Ping360Settings) Range(speedOfSound float64) float64 {
	return s.SamplePeriodDuration().Seconds() * float64(s.NumberOfSamples) * speedOfSound / 2
}

// AngleDegrees converts the head angle from gradians
func (s Ping360Settings) AngleDegrees() float64 {
	return math.Mod(float64(s.Angle), GradiansPerTurn) * 360 / GradiansPerTurn
}
