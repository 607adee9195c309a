package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"study-planner/domain"
)

func TestFilePersisterWritesHeaderForEmptyCollection(t *testing.T) {
	fs := memfs.New()
	p := NewFilePersister(fs, domain.KindExams, "")
	if err := p.Save(context.Background(), nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := util.ReadFile(fs, "exams.csv")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "title,exam_date,description\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestFilePersisterFormat(t *testing.T) {
	fs := memfs.New()
	p := NewFilePersister(fs, domain.KindTasks, "")
	records := []domain.Record{
		{Title: "Essay, draft", Date: domain.NewDate(2024, time.March, 1), Description: ""},
		{Title: "Undated", Description: "no date yet"},
	}
	if err := p.Save(context.Background(), records); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := util.ReadFile(fs, "tasks.csv")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "title,due_date,description\n" +
		"\"Essay, draft\",2024-03-01,\n" +
		"Undated,,no date yet\n"
	if string(data) != want {
		t.Fatalf("unexpected content:\n%s\nwant:\n%s", data, want)
	}
}

func TestFilePersisterLoadMissing(t *testing.T) {
	_, err := NewFilePersister(memfs.New(), domain.KindTasks, "").Load(context.Background())
	if !errors.Is(err, ErrNotPersisted) {
		t.Fatalf("expected ErrNotPersisted, got %v", err)
	}
}

func TestDecodeReorderedAndShortRows(t *testing.T) {
	data := "description,title,agenda_date\n" +
		"talk,Guest lecture,2024-05-02\n" +
		"only description\n"
	records, err := decodeRecords(domain.KindAgenda, []byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []domain.Record{
		{Title: "Guest lecture", Date: domain.NewDate(2024, time.May, 2), Description: "talk"},
		{Description: "only description"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("decoded %#v, want %#v", records, want)
	}
}

func TestDecodeMissingDateColumn(t *testing.T) {
	records, err := decodeRecords(domain.KindExams, []byte("title,description\nFinal,room 4\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || !records[0].Date.IsZero() || records[0].Title != "Final" {
		t.Fatalf("unexpected records %#v", records)
	}
}

func TestFilePersisterLeavesNoTempFiles(t *testing.T) {
	fs := memfs.New()
	p := NewFilePersister(fs, domain.KindTasks, "data/tasks.csv")
	for i := 0; i < 3; i++ {
		if err := p.Save(context.Background(), sampleRecords()[:i]); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	entries, err := fs.ReadDir("data")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "tasks.csv" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected files: %s", strings.Join(names, ", "))
	}
}

func TestFilePersisterOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := NewFilePersister(osfs.New(dir), domain.KindExams, "")
	if err := p.Save(ctx, sampleRecords()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := p.Save(ctx, sampleRecords()[:1]); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := NewFilePersister(osfs.New(dir), domain.KindExams, "").Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, sampleRecords()[:1]) {
		t.Fatalf("loaded %#v", got)
	}
}

func TestFilePersisterCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewFilePersister(memfs.New(), domain.KindTasks, "").Save(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDiskBackendSyncsAfterSave(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := DiskBackend(dir)(domain.KindTasks)
	if err := p.Save(ctx, sampleRecords()); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "tasks.csv"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.HasPrefix(string(data), "title,due_date,description\n") {
		t.Fatalf("unexpected content %q", data)
	}
	got, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, sampleRecords()) {
		t.Fatalf("loaded %#v", got)
	}
}

func TestFilePersisterSyncFailureIsReturned(t *testing.T) {
	p := NewDiskPersister(t.TempDir(), domain.KindExams)
	var synced []string
	boom := errors.New("fsync: input/output error")
	p.durable = func(name string) error {
		synced = append(synced, name)
		return boom
	}
	if err := p.Save(context.Background(), sampleRecords()); !errors.Is(err, boom) {
		t.Fatalf("expected sync error, got %v", err)
	}
	if len(synced) != 1 || synced[0] != "exams.csv" {
		t.Fatalf("unexpected sync calls %v", synced)
	}
}

func TestDecodeHeaderWithByteOrderMark(t *testing.T) {
	data := []byte("\ufefftitle,exam_date,description\nChemistry,2024-06-01,room 4\n")
	got, err := decodeRecords(domain.KindExams, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []domain.Record{{Title: "Chemistry", Date: domain.NewDate(2024, time.June, 1), Description: "room 4"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded %#v, want %#v", got, want)
	}
}
