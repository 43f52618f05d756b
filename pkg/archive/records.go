package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/pinglog/pkg/codec"
	"github.com/ssargent/pinglog/pkg/store"
)

// Records returns the selected records of a source in order.
// Start is resolved with a seek, so paging deep into a source is cheap.
func (a *Archive) Records(id ksuid.KSUID, sel store.Selection) (store.RecordIterator, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if _, err := a.Source(id); err != nil {
		return nil, err
	}

	prefix := recordPrefix(id)
	upper := prefixEnd(prefix)
	if sel.Stop >= 0 {
		upper = recordKey(id, uint64(sel.Stop))
	}

	iter, err := a.db.NewIter(&pebble.IterOptions{
		LowerBound: recordKey(id, uint64(sel.Start)),
		UpperBound: upper,
	})
	if err != nil {
		return nil, err
	}

	return &recordIterator{
		iter:   iter,
		prefix: prefix,
		codec:  codec.NewRecordCodec(),
		step:   uint64(sel.Step),
		next:   uint64(sel.Start),
	}, nil
}

// recordIterator walks the record keys of one source
type recordIterator struct {
	iter    *pebble.Iterator
	prefix  []byte
	codec   *codec.RecordCodec
	step    uint64
	next    uint64 // sequence number wanted next
	started bool
	record  *codec.Record
	err     error
	closed  bool
}

func (r *recordIterator) Next() bool {
	r.record = nil
	if r.closed || r.err != nil {
		return false
	}

	var valid bool
	if !r.started {
		r.started = true
		valid = r.iter.First()
	} else {
		valid = r.iter.SeekGE(binary.BigEndian.AppendUint64(bytes.Clone(r.prefix), r.next))
	}
	if !valid {
		r.err = r.iter.Error()
		return false
	}

	seq, err := r.seq(r.iter.Key())
	if err != nil {
		r.err = err
		return false
	}
	record, err := r.codec.Decode(r.iter.Value())
	if err != nil {
		r.err = fmt.Errorf("record %d: %w", seq, err)
		return false
	}

	r.record = record
	r.next = seq + r.step
	return true
}

func (r *recordIterator) seq(key []byte) (uint64, error) {
	if !bytes.HasPrefix(key, r.prefix) || len(key) != len(r.prefix)+8 {
		return 0, fmt.Errorf("archive: unexpected record key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(r.prefix):]), nil
}

func (r *recordIterator) Record() *codec.Record {
	return r.record
}

func (r *recordIterator) Err() error {
	return r.err
}

func (r *recordIterator) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.iter.Close()
}
