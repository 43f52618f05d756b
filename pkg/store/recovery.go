package store

import (
	"errors"
	"io"

	"github.com/ssargent/pinglog/pkg/codec"
)

// recover resynchronizes after a garbage length field found at offset from.
//
// Each attempt scans forward for the next timestamp and reads the payload
// that follows it. A payload with a garbage length means the timestamp was a
// false positive, and the next attempt starts right after it.
func (p *pass) recover(from int64, cause error) (*codec.Record, error) {
	p.stats.Recoveries++
	lostBefore := p.stats.LostBytes
	p.logger.Warn().
		Err(cause).
		Int64("offset", from).
		Msg("lost frame alignment, scanning for next timestamp")

	origin := from
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		record, retryAt, err := p.resync(from, attempt)
		if err != nil {
			return nil, err
		}
		if record != nil {
			p.logger.Warn().
				Int64("offset", origin).
				Int64("lost_bytes", p.stats.LostBytes-lostBefore).
				Int("attempts", attempt).
				Msg("resynchronized")
			return record, nil
		}
		from = retryAt
	}

	// Nothing after this point will be decoded
	p.stats.LostBytes += p.stats.FileSize - from
	return nil, p.failure(origin, p.maxAttempts, "too many false timestamp matches")
}

// resync runs one scan starting at from. It returns the recovered record,
// or the offset to retry from when the match was a false positive.
//
// The scan keeps two MaxArrayLength chunks: previous and next. After the
// first chunk, the search starts MaxTimestampWidth bytes before the end of
// previous so a match straddling the chunks is found without rescanning the
// rest of previous.
func (p *pass) resync(from int64, attempt int) (*codec.Record, int64, error) {
	if err := p.cur.Seek(from); err != nil {
		return nil, 0, err
	}
	if p.window == nil {
		p.window = make([]byte, 2*codec.MaxArrayLength)
	}

	var (
		prevLen, nextLen int
		searchFrom       int
		scanned          int64
	)
	for {
		roi := p.window[:prevLen+nextLen]
		if start, end, ok := codec.FindTimestamp(roi, searchFrom); ok {
			base := from + scanned - int64(len(roi))
			return p.accept(from, base+int64(start), base+int64(end), string(roi[start:end]))
		}

		// previous <- next
		copy(p.window, roi[prevLen:])
		prevLen = nextLen

		n, err := io.ReadFull(p.cur, p.window[prevLen:prevLen+codec.MaxArrayLength])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 0, err
		}
		if n == 0 {
			p.stats.LostBytes += scanned
			return nil, 0, p.failure(from, attempt, "no timestamp before end of file")
		}

		nextLen = n
		scanned += int64(n)
		searchFrom = max(prevLen-codec.MaxTimestampWidth, 0)
	}
}

// accept positions the cursor after a matched timestamp and reads its payload.
func (p *pass) accept(from, matchStart, matchEnd int64, timestamp string) (*codec.Record, int64, error) {
	p.stats.LostBytes += matchStart - from

	if err := p.cur.Seek(matchEnd); err != nil {
		return nil, 0, err
	}

	payload, err := p.frames.ReadArray()
	switch {
	case err == nil:
		return codec.NewRecord(timestamp, payload), 0, nil
	case errors.Is(err, codec.ErrInvalidLength):
		// The matched bytes were not a record boundary; they are lost too.
		p.stats.LostBytes += matchEnd - matchStart
		p.logger.Debug().
			Int64("offset", matchStart).
			Str("timestamp", codec.NormalizeTimestamp(timestamp)).
			Msg("false timestamp match")
		return nil, matchEnd, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		p.truncated(matchStart)
		return nil, 0, io.EOF
	default:
		return nil, 0, err
	}
}

func (p *pass) failure(offset int64, attempts int, reason string) error {
	err := &RecoveryError{
		Offset:    offset,
		LostBytes: p.stats.LostBytes,
		FileSize:  p.stats.FileSize,
		Attempts:  attempts,
		Reason:    reason,
	}
	p.logger.Error().
		Int64("offset", offset).
		Int64("lost_bytes", err.LostBytes).
		Float64("lost_fraction", p.stats.LostFraction()).
		Msg("recovery failed")
	return err
}
