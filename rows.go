package dynamodel

import (
	"database/sql/driver"
	"errors"
	"io"
	"iter"
	"sync"
)

// Rows is a lazy, forward-only stream of records. It must be closed unless it
// is drained; draining or a failed read closes it.
type Rows struct {
	src     driver.Rows
	columns []string
	buf     []driver.Value
	current *Record
	err     error

	once    sync.Once
	closeFn func() error
	cerr    error
}

// newRows streams src. release runs once after src is closed.
func newRows(src driver.Rows, release func() error) *Rows {
	columns := src.Columns()
	return &Rows{
		src:     src,
		columns: columns,
		buf:     make([]driver.Value, len(columns)),
		closeFn: func() error {
			err := src.Close()
			if release != nil {
				err = errors.Join(err, release())
			}
			return err
		},
	}
}

func (r *Rows) Columns() []string {
	return r.columns
}

// Next advances to the next record.
func (r *Rows) Next() bool {
	if r.src == nil {
		return false
	}
	if err := r.src.Next(r.buf); err != nil {
		if !errors.Is(err, io.EOF) {
			r.err = err
		}
		_ = r.Close()
		return false
	}
	rec := NewRecord()
	for i, column := range r.columns {
		v := r.buf[i]
		if b, ok := v.([]byte); ok {
			v = append([]byte(nil), b...)
		}
		rec.Set(column, v)
	}
	r.current = rec
	return true
}

// Record is the record read by the last successful Next.
func (r *Rows) Record() *Record {
	return r.current
}

func (r *Rows) Err() error {
	return r.err
}

// Close releases the stream and everything acquired for it. It is safe to call
// more than once.
func (r *Rows) Close() error {
	r.once.Do(func() {
		r.cerr = r.closeFn()
		r.src = nil
	})
	return r.cerr
}

// All iterates the remaining records. Breaking out of the loop closes the stream.
//
//	for rec, err := range rows.All() {
//		...
//	}
func (r *Rows) All() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.current, nil) {
				return
			}
		}
		if r.err != nil {
			yield(nil, r.err)
		}
	}
}

// Collect drains the stream.
func (r *Rows) Collect() ([]*Record, error) {
	var records []*Record
	for rec, err := range r.All() {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ResultSets is a sequence of row streams: the cursors returned by a routine,
// in parameter order, or the result sets of a multi-statement command.
type ResultSets struct {
	advance func() (*Rows, error)
	current *Rows
	open    []*Rows
	err     error

	once    sync.Once
	release func() error
	cerr    error
}

// cursorSets exposes already opened cursor streams.
func cursorSets(sets []*Rows, release func() error) *ResultSets {
	i := 0
	return &ResultSets{
		open: sets,
		advance: func() (*Rows, error) {
			if i >= len(sets) {
				return nil, nil
			}
			i++
			return sets[i-1], nil
		},
		release: release,
	}
}

// nextSetter is a driver.Rows holding successive result sets.
type nextSetter interface {
	driver.Rows
	NextSet() (bool, error)
}

// successiveSets walks the result sets of src one after the other.
func successiveSets(src nextSetter, release func() error) *ResultSets {
	started := false
	return &ResultSets{
		advance: func() (*Rows, error) {
			if started {
				more, err := src.NextSet()
				if err != nil || !more {
					return nil, err
				}
			}
			started = true
			return newRows(sharedRows{src}, nil), nil
		},
		release: func() error {
			return errors.Join(src.Close(), callRelease(release))
		},
	}
}

// sharedRows leaves closing to the owning ResultSets.
type sharedRows struct {
	driver.Rows
}

func (sharedRows) Close() error {
	return nil
}

// emptyRows stands in for a cursor the routine left NULL.
type emptyRows struct{}

func (emptyRows) Columns() []string { return nil }

func (emptyRows) Close() error { return nil }

func (emptyRows) Next([]driver.Value) error { return io.EOF }

func callRelease(release func() error) error {
	if release == nil {
		return nil
	}
	return release()
}

// Next moves to the next set. Unread records of the previous set are discarded.
func (s *ResultSets) Next() bool {
	if s.advance == nil {
		return false
	}
	if s.current != nil && !s.ownsAll() {
		_ = s.current.Close()
	}
	rows, err := s.advance()
	if err != nil || rows == nil {
		s.err = err
		s.current = nil
		s.advance = nil
		return false
	}
	s.current = rows
	return true
}

func (s *ResultSets) ownsAll() bool {
	return s.open != nil
}

// Rows is the current set.
func (s *ResultSets) Rows() *Rows {
	return s.current
}

// Sets returns every cursor stream at once, for reading them side by side.
// It is nil for successive driver result sets.
func (s *ResultSets) Sets() []*Rows {
	return s.open
}

func (s *ResultSets) Err() error {
	return s.err
}

func (s *ResultSets) Close() error {
	s.once.Do(func() {
		var errs []error
		for _, rows := range s.open {
			errs = append(errs, rows.Close())
		}
		if s.current != nil {
			errs = append(errs, s.current.Close())
		}
		errs = append(errs, callRelease(s.release))
		s.cerr = errors.Join(errs...)
		s.advance = nil
	})
	return s.cerr
}

// Collect drains every set.
func (s *ResultSets) Collect() ([][]*Record, error) {
	defer s.Close()
	var out [][]*Record
	for s.Next() {
		records, err := s.current.Collect()
		if err != nil {
			return out, err
		}
		out = append(out, records)
	}
	return out, s.err
}
