package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"study-planner/domain"
)

// encodeRecords writes the header row followed by one row per record.
func encodeRecords(kind domain.Kind, records []domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(kind.Fields()); err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := w.Write([]string{r.Title, r.Date.String(), r.Description}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRecords parses data written by encodeRecords, or by older exports with
// the same column names in any order. Empty input and a lone header decode to
// an empty slice. Unparseable dates become absent dates.
func decodeRecords(kind domain.Kind, data []byte) ([]domain.Record, error) {
	records := []domain.Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	titleCol, dateCol, descCol := -1, -1, -1
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch name {
		case "title":
			titleCol = i
		case kind.DateField():
			dateCol = i
		case "description":
			descCol = i
		}
	}

	for line := 2; ; line++ {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		rec := domain.Record{
			Title:       cell(row, titleCol),
			Description: cell(row, descCol),
		}
		if d, err := domain.ParseDate(cell(row, dateCol)); err == nil {
			rec.Date = d
		}
		records = append(records, rec)
	}
	return records, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
