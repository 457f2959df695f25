// Package collection is the in-memory font table and its write-behind
// persistence.
package collection

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotFound         = errors.New("collection: font not found")
	ErrInvalidID        = errors.New("collection: invalid font id")
	ErrUnknownField     = errors.New("collection: unknown field")
	ErrChecksumMismatch = errors.New("collection: checksum mismatch")
)

// Change describes one committed transaction.
type Change struct {
	Updated []string
	Deleted []string
	// Loaded marks changes that came from the persister rather than from
	// a caller.
	Loaded bool
}

// Store is a table of font rows keyed by id, iterated in insertion order.
// It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	rows  map[string]map[string]string
	order []string

	lmu       sync.Mutex
	listeners map[int]func(Change)
	nextL     int
	// serialises commits so listeners see changes in commit order
	commitMu sync.Mutex
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		rows:      make(map[string]map[string]string),
		listeners: make(map[int]func(Change)),
	}
}

type opKind int

const (
	opSetCell opKind = iota
	opSetRow
	opDelete
)

type op struct {
	kind  opKind
	id    string
	field string
	value string
	cells map[string]string
}

// Tx stages mutations that are applied together on commit.
type Tx struct {
	s   *Store
	ops []op
}

// SetCell stages a single field write. The row is created if missing.
func (tx *Tx) SetCell(id, field, value string) error {
	if id == "" {
		return ErrInvalidID
	}
	if !knownField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	tx.ops = append(tx.ops, op{kind: opSetCell, id: id, field: field, value: value})
	return nil
}

// SetRow stages a full-row replacement.
func (tx *Tx) SetRow(id string, e Entry) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.ops = append(tx.ops, op{kind: opSetRow, id: id, cells: e.cells()})
	return nil
}

// DeleteRow stages the removal of a row.
func (tx *Tx) DeleteRow(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	tx.ops = append(tx.ops, op{kind: opDelete, id: id})
	return nil
}

// Transaction runs fn and commits its staged mutations atomically. If fn
// returns an error nothing is applied. Listeners are notified once per
// commit that changed something.
func (s *Store) Transaction(fn func(tx *Tx) error) error {
	tx := &Tx{s: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx.ops, false)
	return nil
}

func (s *Store) commit(ops []op, loaded bool) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	var ch Change
	ch.Loaded = loaded
	touched := make(map[string]bool)
	var seen []string
	touch := func(id string) {
		if !touched[id] {
			touched[id] = true
			seen = append(seen, id)
		}
	}
	for _, o := range ops {
		switch o.kind {
		case opSetCell:
			row, ok := s.rows[o.id]
			if !ok {
				row = make(map[string]string)
				s.rows[o.id] = row
				s.order = append(s.order, o.id)
			}
			row[o.field] = o.value
			touch(o.id)
		case opSetRow:
			if _, ok := s.rows[o.id]; !ok {
				s.order = append(s.order, o.id)
			}
			s.rows[o.id] = o.cells
			touch(o.id)
		case opDelete:
			if _, ok := s.rows[o.id]; !ok {
				continue
			}
			delete(s.rows, o.id)
			s.order = removeID(s.order, o.id)
			touch(o.id)
		}
	}
	for _, id := range seen {
		if _, ok := s.rows[id]; ok {
			ch.Updated = append(ch.Updated, id)
		} else {
			ch.Deleted = append(ch.Deleted, id)
		}
	}
	s.mu.Unlock()

	if len(ch.Updated) == 0 && len(ch.Deleted) == 0 {
		return
	}
	s.lmu.Lock()
	ls := make([]func(Change), 0, len(s.listeners))
	for i := 0; i < s.nextL; i++ {
		if l, ok := s.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	s.lmu.Unlock()
	for _, l := range ls {
		l(ch)
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Put writes every field of e under id in one transaction, replacing any
// existing row.
func (s *Store) Put(id string, e Entry) error {
	return s.Transaction(func(tx *Tx) error {
		return tx.SetRow(id, e)
	})
}

// Delete removes a row.
func (s *Store) Delete(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if !s.Has(id) {
		return ErrNotFound
	}
	return s.Transaction(func(tx *Tx) error {
		return tx.DeleteRow(id)
	})
}

// Load inserts rows that are not already present, in order. Existing rows
// win over loaded ones.
func (s *Store) Load(rows []Row) {
	ops := make([]op, 0, len(rows))
	s.mu.RLock()
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		if _, ok := s.rows[r.ID]; ok {
			continue
		}
		ops = append(ops, op{kind: opSetRow, id: r.ID, cells: r.Entry.cells()})
	}
	s.mu.RUnlock()
	s.commit(ops, true)
}

// IDs returns every row id in insertion order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Has reports whether id exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rows[id]
	return ok
}

// Field returns one cell of a row.
func (s *Store) Field(id, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return "", false
	}
	v, ok := row[field]
	return v, ok
}

// Entry returns a copy of a row.
func (s *Store) Entry(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return Entry{}, false
	}
	return entryFromCells(row), true
}

// Rows returns a copy of the requested rows, skipping missing ids. With no
// ids every row is returned.
func (s *Store) Rows(ids ...string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		ids = s.order
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			out = append(out, Row{ID: id, Entry: entryFromCells(row)})
		}
	}
	return out
}

// AddListener registers fn to be called after every committed change. The
// returned function removes it.
func (s *Store) AddListener(fn func(Change)) (remove func()) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	id := s.nextL
	s.nextL++
	s.listeners[id] = fn
	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		delete(s.listeners, id)
	}
}
