package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"study-planner/domain"
)

// ErrIndexOutOfRange is returned by RemoveAt for a position outside the collection.
var ErrIndexOutOfRange = errors.New("index out of range")

// RecordStore keeps one kind's records in memory and mirrors them to a
// Persister after every mutation. Mutations are serialized; each one
// finishes its rewrite before the next starts.
type RecordStore struct {
	kind      domain.Kind
	persister Persister
	logger    *log.Logger

	mu      sync.Mutex
	records []domain.Record
}

// Load reads the persisted records of one kind. Missing, empty and
// unreadable sources all yield an empty collection.
func Load(ctx context.Context, p Persister, kind domain.Kind, logger *log.Logger) []domain.Record {
	records, err := p.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotPersisted):
		return []domain.Record{}
	default:
		if logger != nil {
			logger.WithError(err).WithField("kind", kind).Warn("persisted records unreadable, starting empty")
		}
		return []domain.Record{}
	}
	if records == nil {
		records = []domain.Record{}
	}
	return records
}

// Open creates the store for kind and loads whatever p holds.
func Open(ctx context.Context, kind domain.Kind, p Persister, logger *log.Logger) *RecordStore {
	if p == nil {
		panic("storage.Open: persister is nil")
	}
	records := Load(ctx, p, kind, logger)
	if logger != nil {
		logger.WithFields(log.Fields{"kind": kind, "records": len(records)}).Debug("record store opened")
	}
	return &RecordStore{
		kind:      kind,
		persister: p,
		logger:    logger,
		records:   records,
	}
}

// Kind reports which list the store holds.
func (s *RecordStore) Kind() domain.Kind { return s.kind }

// Append adds r at the end and persists the collection. On a write failure
// the record is dropped again so memory matches the last saved state.
// CRLF line breaks in text fields are stored as LF, the form a reload
// returns.
func (s *RecordStore) Append(ctx context.Context, r domain.Record) error {
	_, _, err := s.appendRecord(ctx, r)
	return err
}

// appendRecord appends r and returns its position together with the
// collection as it stood right after the append.
func (s *RecordStore) appendRecord(ctx context.Context, r domain.Record) (int, []domain.Record, error) {
	r.Title = normalizeNewlines(r.Title)
	r.Description = normalizeNewlines(r.Description)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, r)
	if err := s.persister.Save(ctx, s.records); err != nil {
		s.records = s.records[:len(s.records)-1]
		return 0, nil, fmt.Errorf("persist %s: %w", s.kind, err)
	}
	return len(s.records) - 1, s.snapshotLocked(), nil
}

// RemoveAt deletes the record at position and persists the collection. It
// returns the removed record.
func (s *RecordStore) RemoveAt(ctx context.Context, position int) (domain.Record, error) {
	removed, _, err := s.removeAt(ctx, position)
	return removed, err
}

func (s *RecordStore) removeAt(ctx context.Context, position int) (domain.Record, []domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if position < 0 || position >= len(s.records) {
		return domain.Record{}, nil, fmt.Errorf("%w: position %d, length %d", ErrIndexOutOfRange, position, len(s.records))
	}

	removed := s.records[position]
	next := make([]domain.Record, 0, len(s.records)-1)
	next = append(next, s.records[:position]...)
	next = append(next, s.records[position+1:]...)
	if err := s.persister.Save(ctx, next); err != nil {
		return domain.Record{}, nil, fmt.Errorf("persist %s: %w", s.kind, err)
	}
	s.records = next
	return removed, s.snapshotLocked(), nil
}

func (s *RecordStore) snapshotLocked() []domain.Record {
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}

func normalizeNewlines(v string) string {
	return strings.ReplaceAll(v, "\r\n", "\n")
}

// Records returns a copy of the collection in insertion order.
func (s *RecordStore) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Groups returns the collection grouped by date, ascending.
func (s *RecordStore) Groups() []domain.Group {
	return domain.GroupByDate(s.Records())
}

// Len returns the number of records.
func (s *RecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
