package codec

import (
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampChars is the number of characters in "HH:MM:SS.mmm"
	TimestampChars = 12

	// MaxTimestampWidth is the widest encoded timestamp, with a null byte
	// before every character.
	MaxTimestampWidth = TimestampChars * 2
)

type charClass uint8

const (
	classDigit charClass = iota
	classSixty           // first digit of minutes and seconds, 0-5
	classColon
	classDot
)

func (c charClass) accepts(b byte) bool {
	switch c {
	case classDigit:
		return b >= '0' && b <= '9'
	case classSixty:
		return b >= '0' && b <= '5'
	case classColon:
		return b == ':'
	case classDot:
		return b == '.'
	}
	return false
}

// HH:MM:SS.mmm
var timestampLayout = [TimestampChars]charClass{
	classDigit, classDigit, classColon,
	classSixty, classDigit, classColon,
	classSixty, classDigit, classDot,
	classDigit, classDigit, classDigit,
}

// matchTimestampAt returns the end of a timestamp starting exactly at i, or -1.
// A single 0x00 byte may precede each character.
func matchTimestampAt(b []byte, i int) int {
	for _, class := range timestampLayout {
		if i < len(b) && b[i] == 0 {
			i++
		}
		if i >= len(b) || !class.accepts(b[i]) {
			return -1
		}
		i++
	}
	return i
}

// FindTimestamp returns the span [start, end) of the leftmost timestamp in b
// that begins at or after from.
func FindTimestamp(b []byte, from int) (start, end int, ok bool) {
	for i := max(from, 0); i < len(b); i++ {
		if e := matchTimestampAt(b, i); e >= 0 {
			return i, e, true
		}
	}
	return -1, -1, false
}

// IsTimestamp reports whether s is exactly one timestamp, null artifacts included
func IsTimestamp(s string) bool {
	return matchTimestampAt([]byte(s), 0) == len(s)
}

// NormalizeTimestamp removes null bytes left by wide-character encoding
func NormalizeTimestamp(s string) string {
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ParseTimestamp converts a timestamp to the time elapsed since midnight
func ParseTimestamp(s string) (time.Duration, error) {
	clock := NormalizeTimestamp(s)
	if len(clock) != TimestampChars || !IsTimestamp(clock) {
		return 0, fmt.Errorf("codec: malformed timestamp %q", clock)
	}

	field := func(from, to int) time.Duration {
		var v time.Duration
		for _, c := range clock[from:to] {
			v = v*10 + time.Duration(c-'0')
		}
		return v
	}

	return field(0, 2)*time.Hour +
		field(3, 5)*time.Minute +
		field(6, 8)*time.Second +
		field(9, 12)*time.Millisecond, nil
}

// FormatTimestamp renders d as "HH:MM:SS.mmm"
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h%100, m, s, d/time.Millisecond)
}
