package domain

import (
	"errors"
	"strings"
)

// ErrUnknownKind is returned when a kind selector does not name one of the lists.
var ErrUnknownKind = errors.New("unknown record kind")

// Kind selects one of the independent record lists.
type Kind string

const (
	KindTasks  Kind = "tasks"
	KindExams  Kind = "exams"
	KindAgenda Kind = "agenda"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindTasks, KindExams, KindAgenda}

// ParseKind maps a selector such as "tasks" to its Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case KindTasks, KindExams, KindAgenda:
		return k, nil
	}
	return "", ErrUnknownKind
}

// DateField is the name of the kind's date column in persisted data.
func (k Kind) DateField() string {
	switch k {
	case KindTasks:
		return "due_date"
	case KindExams:
		return "exam_date"
	case KindAgenda:
		return "agenda_date"
	}
	return "date"
}

// FileName is the default file the kind is persisted to.
func (k Kind) FileName() string {
	return string(k) + ".csv"
}

// Fields returns the persisted column names in order.
func (k Kind) Fields() []string {
	return []string{"title", k.DateField(), "description"}
}

// Record is one task, exam or agenda entry.
type Record struct {
	Title       string `json:"title"`
	Date        Date   `json:"date"`
	Description string `json:"description"`
}
