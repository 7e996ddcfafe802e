package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel errors returned by the store.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")

	// ErrInvalidReference and ErrDuplicate refine ErrValidation.
	ErrInvalidReference = errors.New("invalid reference")
	ErrDuplicate        = errors.New("duplicate")

	// ErrInvalidPage refines ErrNotFound for a page past the last one.
	ErrInvalidPage = fmt.Errorf("%w: invalid page", ErrNotFound)
)

// ValidationError describes rejected input, keyed by field name.
type ValidationError struct {
	Fields map[string]string

	reason error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}

	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrValidation and the refining reason.
func (e *ValidationError) Unwrap() []error {
	if e.reason == nil {
		return []error{ErrValidation}
	}

	return []error{ErrValidation, e.reason}
}

// fieldError builds a single-field ValidationError.
func fieldError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Fields: map[string]string{field: fmt.Sprintf(format, args...)},
	}
}

// invalidReference reports related ids that do not exist.
func invalidReference(field string, ids ...string) *ValidationError {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}

	err := fieldError(field,
		"invalid pk %s - object does not exist", strings.Join(quoted, ", "))
	err.reason = ErrInvalidReference

	return err
}

// translate maps driver errors onto the store's sentinel errors. A unique
// constraint violation is reported against uniqueField.
func translate(err error, uniqueField string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isUniqueViolation(err):
		dup := fieldError(uniqueField, "a record with this %s already exists", uniqueField)
		dup.reason = ErrDuplicate

		return dup
	}

	return err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
