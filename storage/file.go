package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"study-planner/domain"
)

// Persister mirrors one record collection to durable storage.
type Persister interface {
	// Load returns the persisted records, or ErrNotPersisted when nothing
	// has been written yet.
	Load(ctx context.Context) ([]domain.Record, error)
	// Save replaces the persisted records with records.
	Save(ctx context.Context, records []domain.Record) error
}

// ErrNotPersisted is returned by Load when the collection has never been saved.
var ErrNotPersisted = errors.New("collection not persisted")

// FilePersister stores one kind as a CSV file on a billy filesystem.
type FilePersister struct {
	fs   billy.Filesystem
	kind domain.Kind
	name string

	// durable flushes the renamed file to stable storage. billy files
	// opened through osfs hide Sync, so disk-backed persisters set it.
	durable func(name string) error
}

// NewFilePersister stores kind in name, relative to the root of fs. An empty
// name uses the kind's default file name.
func NewFilePersister(fs billy.Filesystem, kind domain.Kind, name string) *FilePersister {
	if name == "" {
		name = kind.FileName()
	}
	return &FilePersister{fs: fs, kind: kind, name: name}
}

// NewDiskPersister stores kind under dir on the local disk. After every
// save the file and dir are fsynced.
func NewDiskPersister(dir string, kind domain.Kind) *FilePersister {
	p := NewFilePersister(osfs.New(dir), kind, "")
	p.durable = func(name string) error {
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := syncFile(full); err != nil {
			return err
		}
		return syncDir(filepath.Dir(full))
	}
	return p
}

// Path is the file name relative to the filesystem root.
func (p *FilePersister) Path() string { return p.name }

func (p *FilePersister) Load(ctx context.Context) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := util.ReadFile(p.fs, p.name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotPersisted
		}
		return nil, err
	}
	return decodeRecords(p.kind, data)
}

// Save writes the whole collection to a temp file next to the target and
// renames it into place, so readers never see a half-written file.
func (p *FilePersister) Save(ctx context.Context, records []domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeRecords(p.kind, records)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p.kind, err)
	}

	dir := path.Dir(p.name)
	if dir != "." {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := p.fs.TempFile(dir, "."+path.Base(p.name)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = p.fs.Remove(tmpName)
		return err
	}
	if s, ok := tmp.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			tmp.Close()
			_ = p.fs.Remove(tmpName)
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		_ = p.fs.Remove(tmpName)
		return err
	}
	if err := p.fs.Rename(tmpName, p.name); err != nil {
		_ = p.fs.Remove(tmpName)
		return err
	}
	if p.durable != nil {
		if err := p.durable(p.name); err != nil {
			return fmt.Errorf("sync %s: %w", p.name, err)
		}
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func syncDir(path string) error {
	dir, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}
