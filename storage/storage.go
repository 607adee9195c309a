package storage

import (
	"context"
	"fmt"

	"github.com/go-git/go-billy/v5"
	log "github.com/sirupsen/logrus"

	"study-planner/domain"
)

// Backend builds the persister for a kind.
type Backend func(kind domain.Kind) Persister

// FileBackend persists every kind to its default CSV file on fs.
func FileBackend(fs billy.Filesystem) Backend {
	return func(kind domain.Kind) Persister {
		return NewFilePersister(fs, kind, "")
	}
}

// DiskBackend persists every kind to its default CSV file under dir and
// fsyncs after each save.
func DiskBackend(dir string) Backend {
	return func(kind domain.Kind) Persister {
		return NewDiskPersister(dir, kind)
	}
}

// TableBackend persists every kind to its own partition of one Azure table.
func TableBackend(client TableClient) Backend {
	return func(kind domain.Kind) Persister {
		return NewTablePersister(client, kind)
	}
}

// Storage owns the three record stores and announces their changes on an
// optional change feed.
type Storage struct {
	stores map[domain.Kind]*RecordStore
	feed   *ChangeFeed
}

// New opens one RecordStore per kind using backend.
func New(ctx context.Context, backend Backend, logger *log.Logger) (*Storage, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	s := &Storage{stores: make(map[domain.Kind]*RecordStore, len(domain.Kinds))}
	for _, kind := range domain.Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.stores[kind] = Open(ctx, kind, backend(kind), logger)
	}
	return s, nil
}

// WithChangeFeed makes successful mutations publish to feed.
func (s *Storage) WithChangeFeed(feed *ChangeFeed) *Storage {
	s.feed = feed
	return s
}

// Store returns the store for kind.
func (s *Storage) Store(kind domain.Kind) (*RecordStore, error) {
	st, ok := s.stores[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, kind)
	}
	return st, nil
}

// Records lists kind in insertion order.
func (s *Storage) Records(kind domain.Kind) ([]domain.Record, error) {
	st, err := s.Store(kind)
	if err != nil {
		return nil, err
	}
	return st.Records(), nil
}

// Groups lists kind grouped by date.
func (s *Storage) Groups(kind domain.Kind) ([]domain.Group, error) {
	st, err := s.Store(kind)
	if err != nil {
		return nil, err
	}
	return st.Groups(), nil
}

// Append adds r to kind and returns the collection afterwards.
func (s *Storage) Append(ctx context.Context, kind domain.Kind, r domain.Record) ([]domain.Record, error) {
	st, err := s.Store(kind)
	if err != nil {
		return nil, err
	}
	pos, records, err := st.appendRecord(ctx, r)
	if err != nil {
		return nil, err
	}
	s.feed.Publish(Change{Kind: kind, Op: OpAppended, Position: pos, Record: records[pos], Count: len(records)})
	return records, nil
}

// RemoveAt deletes position from kind and returns the removed record and the
// collection afterwards.
func (s *Storage) RemoveAt(ctx context.Context, kind domain.Kind, position int) (domain.Record, []domain.Record, error) {
	st, err := s.Store(kind)
	if err != nil {
		return domain.Record{}, nil, err
	}
	removed, records, err := st.removeAt(ctx, position)
	if err != nil {
		return domain.Record{}, nil, err
	}
	s.feed.Publish(Change{Kind: kind, Op: OpRemoved, Position: position, Record: removed, Count: len(records)})
	return removed, records, nil
}
