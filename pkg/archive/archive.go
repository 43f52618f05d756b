// Package archive keeps decoded sensor logs in a pebble database so that
// records can be listed, paged and exported again without re-running recovery.
//
// Every imported log is a source identified by a KSUID. Keys are laid out as
//
//	src/<ksuid>/m             source metadata (JSON)
//	src/<ksuid>/r/<seq u64>   record frame, seq big-endian from 0
//
// KSUIDs sort by creation time, so sources list oldest first.
package archive

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

const (
	sourcePrefix = "src/"
	metaSuffix   = "/m"
	recordInfix  = "/r/"

	// importBatchSize is how many records are committed together
	importBatchSize = 1024
)

var (
	ErrNotFound    = errors.New("archive: source not found")
	ErrInvalidName = errors.New("archive: source name is required")
)

// Config holds configuration for the archive
type Config struct {
	Dir    string          // Pebble directory
	Logger *zerolog.Logger // Optional logger (nil = discard)
}

// Source describes one imported log
type Source struct {
	ID         ksuid.KSUID     `json:"id"`
	Name       string          `json:"name"`
	Header     codec.Header    `json:"header"`
	Records    int64           `json:"records"`
	Stats      store.PassStats `json:"stats"`
	Complete   bool            `json:"complete"` // false when the import stopped on a recovery failure
	ImportedAt time.Time       `json:"imported_at"`
}

// Archive is a pebble-backed store of decoded logs
type Archive struct {
	db     *pebble.DB
	logger zerolog.Logger
}

// Open opens (or creates) the archive in config.Dir
func Open(config Config) (*Archive, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("archive: directory is required")
	}
	db, err := pebble.Open(config.Dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}
	return &Archive{
		db:     db,
		logger: logger.With().Str("archive", config.Dir).Logger(),
	}, nil
}

// Close closes the underlying database
func (a *Archive) Close() error {
	return a.db.Close()
}

func sourceKey(id ksuid.KSUID) []byte {
	return []byte(sourcePrefix + id.String())
}

func metaKey(id ksuid.KSUID) []byte {
	return append(sourceKey(id), metaSuffix...)
}

func recordPrefix(id ksuid.KSUID) []byte {
	return append(sourceKey(id), recordInfix...)
}

func recordKey(id ksuid.KSUID, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(recordPrefix(id), seq)
}

// prefixEnd returns the smallest key greater than every key starting with prefix
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Import stores every record of records under a new source.
// Records decoded before a failed recovery are kept and the source is marked
// incomplete; the recovery error is returned alongside the source.
func (a *Archive) Import(ctx context.Context, name string, header *codec.Header, records store.RecordIterator) (*Source, error) {
	defer records.Close()

	if name == "" {
		return nil, ErrInvalidName
	}
	if header == nil {
		return nil, store.ErrNilHeader
	}

	src := &Source{
		ID:     ksuid.New(),
		Name:   name,
		Header: *header,
	}
	recordCodec := codec.NewRecordCodec()

	batch := a.db.NewBatch()
	defer func() { batch.Close() }()

	for records.Next() {
		if err := ctx.Err(); err != nil {
			a.discard(src.ID)
			return nil, err
		}

		record := records.Record()
		value, err := recordCodec.Encode(record.Timestamp, record.Payload)
		if err != nil {
			a.discard(src.ID)
			return nil, fmt.Errorf("encode record %d: %w", src.Records, err)
		}
		if err := batch.Set(recordKey(src.ID, uint64(src.Records)), value, nil); err != nil {
			a.discard(src.ID)
			return nil, err
		}
		src.Records++

		if batch.Count() >= importBatchSize {
			if err := batch.Commit(pebble.NoSync); err != nil {
				a.discard(src.ID)
				return nil, fmt.Errorf("commit records: %w", err)
			}
			batch.Close()
			batch = a.db.NewBatch()
		}
	}

	iterErr := records.Err()
	var recErr *store.RecoveryError
	if iterErr != nil && !errors.As(iterErr, &recErr) {
		a.discard(src.ID)
		return nil, iterErr
	}
	src.Complete = iterErr == nil

	if stats, ok := records.(interface{ Stats() store.PassStats }); ok {
		src.Stats = stats.Stats()
	}
	src.ImportedAt = time.Now().UTC()

	meta, err := json.Marshal(src)
	if err != nil {
		a.discard(src.ID)
		return nil, err
	}
	if err := batch.Set(metaKey(src.ID), meta, nil); err != nil {
		a.discard(src.ID)
		return nil, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		a.discard(src.ID)
		return nil, fmt.Errorf("commit source: %w", err)
	}

	a.logger.Info().
		Str("source", src.ID.String()).
		Str("name", name).
		Int64("records", src.Records).
		Int64("lost_bytes", src.Stats.LostBytes).
		Bool("complete", src.Complete).
		Msg("log imported")
	return src, iterErr
}

// ImportLog imports the log behind reader in a single pass
func (a *Archive) ImportLog(ctx context.Context, name string, reader *store.LogReader) (*Source, error) {
	it, err := reader.Iterator()
	if err != nil {
		return nil, err
	}
	return a.Import(ctx, name, it.Header(), it)
}

// discard removes whatever part of a source was committed
func (a *Archive) discard(id ksuid.KSUID) {
	prefix := sourceKey(id)
	if err := a.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync); err != nil {
		a.logger.Error().Err(err).Str("source", id.String()).Msg("discard partial import")
	}
}

// Source returns the metadata of one source
func (a *Archive) Source(id ksuid.KSUID) (*Source, error) {
	value, closer, err := a.db.Get(metaKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var src Source
	if err := json.Unmarshal(value, &src); err != nil {
		return nil, fmt.Errorf("decode source %s: %w", id, err)
	}
	return &src, nil
}

// Sources lists every imported source, oldest first
func (a *Archive) Sources() ([]Source, error) {
	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(sourcePrefix),
		UpperBound: prefixEnd([]byte(sourcePrefix)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var sources []Source
	for valid := iter.First(); valid; {
		key := iter.Key()
		raw := string(key[len(sourcePrefix):])
		if len(raw) < ksuidLength {
			valid = iter.Next()
			continue
		}

		id, err := ksuid.Parse(raw[:ksuidLength])
		if err != nil {
			return nil, fmt.Errorf("corrupt source key %q: %w", key, err)
		}
		if raw[ksuidLength:] == metaSuffix {
			var src Source
			if err := json.Unmarshal(iter.Value(), &src); err != nil {
				return nil, fmt.Errorf("decode source %s: %w", id, err)
			}
			sources = append(sources, src)
		}

		// Skip the records of this source
		valid = iter.SeekGE(prefixEnd(sourceKey(id)))
	}
	return sources, iter.Error()
}

// ksuidLength is the length of a KSUID in its string form
const ksuidLength = 27

// Delete removes a source and its records
func (a *Archive) Delete(id ksuid.KSUID) error {
	if _, err := a.Source(id); err != nil {
		return err
	}
	prefix := sourceKey(id)
	return a.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync)
}

// Export writes a source back out as a sensor log and returns the record count
func (a *Archive) Export(ctx context.Context, id ksuid.KSUID, config store.LogWriterConfig) (int64, error) {
	src, err := a.Source(id)
	if err != nil {
		return 0, err
	}

	records, err := a.Records(id, store.All)
	if err != nil {
		return 0, err
	}

	w, err := store.NewLogWriter(config, &src.Header)
	if err != nil {
		records.Close()
		return 0, err
	}

	n, err := w.WriteAll(&contextIterator{ctx: ctx, RecordIterator: records})
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

// contextIterator stops a record iterator once ctx is done
type contextIterator struct {
	store.RecordIterator
	ctx context.Context
	err error
}

func (c *contextIterator) Next() bool {
	if err := c.ctx.Err(); err != nil {
		c.err = err
		return false
	}
	return c.RecordIterator.Next()
}

func (c *contextIterator) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.RecordIterator.Err()
}
