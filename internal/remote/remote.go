// Package remote defines the contract between the sync engine and the
// authoritative relational store.
//
// One Store exists per entity type (notes, folders, prompts, hidden-prompt
// markers, user settings). Adapters report failures as *Error values
// carrying a machine-readable code (SQLSTATE, SQLite result code, or a
// store-specific code) and a human message; the classifier maps codes to
// failure kinds.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/mschirtzinger/notesync/internal/classify"
	"github.com/mschirtzinger/notesync/internal/domain"
)

// Store is the per-entity remote adapter. All methods are scoped to one
// owner; an adapter never returns or touches another owner's rows.
type Store[T domain.Entity] interface {
	// Select returns the owner's entities, newest first.
	Select(ctx context.Context, ownerID string) ([]T, error)

	// Insert stores entity and returns the authoritative copy. Placeholder
	// ids are replaced by store-issued ids; any other id is kept.
	Insert(ctx context.Context, entity T) (T, error)

	// Update merges patch into the entity with id and returns the stored
	// result. Updating a missing entity fails with ErrNotFound.
	Update(ctx context.Context, id, ownerID string, patch domain.Patch) (T, error)

	// Delete removes the entity with id. Deleting a missing entity succeeds.
	Delete(ctx context.Context, id, ownerID string) error
}

// Cond restricts a batched update to rows whose Field is one of Values, or
// is null when IsNull is set.
type Cond struct {
	Field  string
	Values []any
	IsNull bool
}

// Eq returns a condition matching field == value.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Values: []any{value}}
}

// In returns a condition matching field IN (values...).
func In(field string, values ...string) Cond {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Cond{Field: field, Values: vs}
}

// IsNull returns a condition matching rows where field is null.
func IsNull(field string) Cond {
	return Cond{Field: field, IsNull: true}
}

// BatchUpdater is implemented by stores that can update many rows in one
// round trip.
type BatchUpdater interface {
	// UpdateWhere applies patch to every row of the owner matching all
	// conds and returns the number of rows changed.
	UpdateWhere(ctx context.Context, ownerID string, conds []Cond, patch domain.Patch) (int, error)
}

// FolderCascadeDeleter is implemented by folder stores that can delete a
// folder and unfile its notes in a single transaction.
type FolderCascadeDeleter interface {
	DeleteFolderCascade(ctx context.Context, folderID, ownerID string) (detached int, err error)
}

// Codes used by adapters that have no native code for a condition.
const (
	CodeNotFound  = "not_found"
	CodeDuplicate = "23505" // SQLSTATE unique_violation
)

// ErrNotFound is returned when an update targets a missing row. It is a
// validation failure: retrying cannot make the row appear.
var ErrNotFound = &Error{Code: CodeNotFound, Message: "row not found", Err: classify.ErrNotFound}

// Error is a failure reported by a remote adapter.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
	}
	return e.Message
}

// Unwrap returns the driver error, if any.
func (e *Error) Unwrap() error { return e.Err }

// ErrorCode implements classify.Coder.
func (e *Error) ErrorCode() string { return e.Code }

// Is matches errors with the same code, so errors.Is(err, remote.ErrNotFound)
// holds for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

// Wrap converts a driver error into an *Error, keeping its native code.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Code: classify.CodeOf(err), Message: err.Error(), Err: err}
}

// IsDuplicate reports whether err is a unique or primary key violation.
func IsDuplicate(err error) bool {
	switch classify.CodeOf(err) {
	case CodeDuplicate, "SQLITE_1555", "SQLITE_2067":
		return true
	}
	return false
}

// IsNotFound reports whether err is a missing-row error from an adapter.
func IsNotFound(err error) bool {
	return err != nil && (errors.Is(err, ErrNotFound) || classify.CodeOf(err) == CodeNotFound)
}
