package ingest

import (
	"fmt"
	"sort"
	"strings"
)

const (
	maxIDLength    = 512
	maxFields      = 1024
	maxValueLength = 1 << 20
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// Validate checks the envelope of a record event. Field names and terms are
// not restricted; only sizes that would let one message exhaust memory are.
func Validate(ev *RecordEvent, key string) error {
	errs := make(map[string]string)

	switch {
	case ev.ID == "":
		errs["id"] = "id is required"
	case len(ev.ID) > maxIDLength:
		errs["id"] = fmt.Sprintf("id must be at most %d bytes", maxIDLength)
	case key != "" && key != ev.ID:
		errs["id"] = fmt.Sprintf("id %q does not match message key %q", ev.ID, key)
	}
	if len(ev.Fields) > maxFields {
		errs["fields"] = fmt.Sprintf("at most %d fields allowed, got %d", maxFields, len(ev.Fields))
	}
	for name, v := range ev.Fields {
		if len(v.Text()) > maxValueLength {
			errs["fields."+name] = fmt.Sprintf("value must be at most %d bytes", maxValueLength)
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
