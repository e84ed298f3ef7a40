// Package pgstore implements store.Store on PostgreSQL through database/sql
// backed by the pgx driver.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/courier-analytics/api/internal/store"
)

const DefaultTimeout = 30 * time.Second

type Store struct {
	db      *sql.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

func (s *Store) Fetch(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	query, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, mapError("fetch", table, err)
	}
	return rows, nil
}

func (s *Store) FetchByID(ctx context.Context, table, id string) (store.Row, error) {
	rows, err := s.Fetch(ctx, table, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Count(ctx context.Context, table string, filters ...store.Filter) (int64, error) {
	var args argList
	where, err := buildWhere(filters, &args)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM %s%s", ident(table), where)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapError("count", table, err)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, table string, rows ...store.Row) ([]store.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query, args := buildInsert(table, rows, nil)
	out, err := s.query(ctx, query, args)
	if err != nil {
		return nil, mapError("insert", table, err)
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, table string, conflict []string, rows ...store.Row) ([]store.Row, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query, args := buildInsert(table, rows, conflict)
	out, err := s.query(ctx, query, args)
	if err != nil {
		return nil, mapError("upsert", table, err)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, table, id string, patch store.Row) (store.Row, error) {
	delete(patch, "id")
	if len(patch) == 0 {
		return s.FetchByID(ctx, table, id)
	}
	query, args := buildUpdate(table, id, patch)
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, mapError("update", table, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Delete(ctx context.Context, table, id string) (bool, error) {
	n, err := s.DeleteWhere(ctx, table, store.Eq("id", id))
	return n > 0, err
}

func (s *Store) DeleteWhere(ctx context.Context, table string, filters ...store.Filter) (int64, error) {
	if len(filters) == 0 {
		return 0, store.ErrUnfilteredWrite
	}
	var args argList
	where, err := buildWhere(filters, &args)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", ident(table), where), args...)
	if err != nil {
		return 0, mapError("delete", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("delete", table, err)
	}
	return n, nil
}

func (s *Store) Call(ctx context.Context, function string, params store.Row) ([]store.Row, error) {
	query, args := buildCall(function, params)
	rows, err := s.query(ctx, query, args)
	if err != nil {
		return nil, mapError("call", function, err)
	}
	return rows, nil
}

func (s *Store) query(ctx context.Context, query string, args []any) ([]store.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ctx.Err()
	}
	return out, nil
}
