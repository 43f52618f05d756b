package store

import (
	"fmt"

	"github.com/ssargent/pinglog/pkg/codec"
)

// Selection picks records by position: every Step-th record from Start up to
// but excluding Stop. A negative Stop means the end of the log.
type Selection struct {
	Start int
	Stop  int
	Step  int
}

// All selects every record
var All = Selection{Start: 0, Stop: -1, Step: 1}

// Validate rejects selections that cannot be applied
func (s Selection) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("selection start must not be negative, got %d", s.Start)
	}
	if s.Step < 1 {
		return fmt.Errorf("selection step must be at least 1, got %d", s.Step)
	}
	return nil
}

// Select wraps it so that only the selected records are returned.
// The source is closed as soon as Stop is reached.
func Select(it RecordIterator, sel Selection) (RecordIterator, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return &selectIterator{src: it, sel: sel}, nil
}

type selectIterator struct {
	src  RecordIterator
	sel  Selection
	pos  int // index of the next source record
	done bool
}

func (s *selectIterator) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.sel.Stop >= 0 && s.pos >= s.sel.Stop {
			s.done = true
			s.src.Close()
			return false
		}
		if !s.src.Next() {
			s.done = true
			return false
		}
		i := s.pos
		s.pos++
		if i >= s.sel.Start && (i-s.sel.Start)%s.sel.Step == 0 {
			return true
		}
	}
}

func (s *selectIterator) Record() *codec.Record {
	return s.src.Record()
}

func (s *selectIterator) Err() error {
	return s.src.Err()
}

func (s *selectIterator) Close() error {
	return s.src.Close()
}
