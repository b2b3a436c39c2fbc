package techstock

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/matthewjhunter/techstock/internal/storage"
)

// ValidationError reports malformed or incomplete input. Fields maps the JSON
// name of each offending field to a short description.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, "; "))
}

// ErrNoFieldsToUpdate is returned by UpdateArticle for an empty patch.
var ErrNoFieldsToUpdate = &ValidationError{Message: "No fields to update"}

// NotFoundError reports a missing article. It matches storage.ErrNotFound
// under errors.Is.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("article not found: %s", e.ID)
}

func (e *NotFoundError) Unwrap() error { return storage.ErrNotFound }

// ErrUnknownEvent is returned by HandleEvent for payloads it does not route.
var ErrUnknownEvent = errors.New("unknown event")

// notFound converts storage.ErrNotFound into a NotFoundError for id and
// passes other errors through.
func notFound(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return err
}
