// Package store defines the narrow table-store contract the ingestion and
// analytics code is written against. Implementations live in sub-packages.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Row is one table row keyed by column name.
type Row map[string]any

type Store interface {
	Fetch(ctx context.Context, table string, q Query) ([]Row, error)
	// FetchByID returns ErrNotFound when no row has the given id.
	FetchByID(ctx context.Context, table, id string) (Row, error)
	Insert(ctx context.Context, table string, rows ...Row) ([]Row, error)
	// Update applies a partial row and returns ErrNotFound when the id is absent.
	Update(ctx context.Context, table, id string, patch Row) (Row, error)
	Delete(ctx context.Context, table, id string) (bool, error)
	DeleteWhere(ctx context.Context, table string, filters ...Filter) (int64, error)
	// Upsert inserts rows, updating existing ones that collide on the conflict columns.
	Upsert(ctx context.Context, table string, conflict []string, rows ...Row) ([]Row, error)
	Call(ctx context.Context, function string, params Row) ([]Row, error)
	Count(ctx context.Context, table string, filters ...Filter) (int64, error)
}

var (
	ErrNotFound        = errors.New("store: not found")
	ErrConflict        = errors.New("store: conflict")
	ErrUnfilteredWrite = errors.New("store: delete requires at least one filter")
)

// ConflictError reports a uniqueness violation. errors.Is(err, ErrConflict) holds.
type ConflictError struct {
	Table      string
	Constraint string
	Message    string
}

func (e *ConflictError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("%s: duplicate key violates %s", e.Table, e.Constraint)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Table, e.Message)
	}
	return e.Table + ": duplicate key"
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// UpstreamError carries the status and message reported by the backing store.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("store error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("store error %d: %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
