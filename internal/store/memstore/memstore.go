// Package memstore is an in-process store.Store used for local runs and tests.
// Values are normalized through their JSON form, so rows read back look like
// rows decoded from the PostgreSQL adapter.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courier-analytics/api/internal/store"
)

// Function is a server-side routine reachable through Call.
type Function func(ctx context.Context, s *Store, params store.Row) ([]store.Row, error)

// View computes rows on read. It must only use exported read methods of s.
type View func(ctx context.Context, s *Store) ([]store.Row, error)

// Unique declares a uniqueness constraint. Fold compares trimmed, lowercased strings.
type Unique struct {
	Name    string
	Columns []string
	Fold    bool
}

type table struct {
	rows    []store.Row
	uniques []Unique
}

type Store struct {
	mu        sync.RWMutex
	tables    map[string]*table
	functions map[string]Function
	views     map[string]View
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tables:    map[string]*table{},
		functions: map[string]Function{},
		views:     map[string]View{},
		now:       time.Now,
	}
}

func (s *Store) DefineTable(name string, uniques ...Unique) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(name)
	t.uniques = append(t.uniques, uniques...)
}

func (s *Store) RegisterFunction(name string, fn Function) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.functions[name] = fn
}

func (s *Store) RegisterView(name string, view View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[name] = view
}

func (s *Store) tableLocked(name string) *table {
	t, ok := s.tables[name]
	if !ok {
		t = &table{}
		s.tables[name] = t
	}
	return t
}

func (s *Store) Fetch(ctx context.Context, tableName string, q store.Query) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, upstream(err)
	}
	s.mu.RLock()
	view, isView := s.views[tableName]
	s.mu.RUnlock()

	var source []store.Row
	if isView {
		rows, err := view(ctx, s)
		if err != nil {
			return nil, err
		}
		source = make([]store.Row, 0, len(rows))
		for _, row := range rows {
			normalized, err := normalizeRow(row)
			if err != nil {
				return nil, err
			}
			source = append(source, normalized)
		}
	} else {
		source = s.Rows(tableName)
	}

	matched := make([]store.Row, 0, len(source))
	for _, row := range source {
		ok, err := matchAll(row, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, row)
		}
	}

	sortRows(matched, q.Order)

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = matched[:0]
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	if len(q.Columns) > 0 {
		projected := make([]store.Row, 0, len(matched))
		for _, row := range matched {
			out := store.Row{}
			for _, col := range q.Columns {
				out[col] = row[col]
			}
			projected = append(projected, out)
		}
		matched = projected
	}
	return matched, nil
}

// Rows returns a copy of every row of a base table.
func (s *Store) Rows(tableName string) []store.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]store.Row, 0, len(t.rows))
	for _, row := range t.rows {
		out = append(out, cloneRow(row))
	}
	return out
}

func (s *Store) FetchByID(ctx context.Context, tableName, id string) (store.Row, error) {
	rows, err := s.Fetch(ctx, tableName, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (s *Store) Count(ctx context.Context, tableName string, filters ...store.Filter) (int64, error) {
	rows, err := s.Fetch(ctx, tableName, store.Query{Filters: filters})
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (s *Store) Insert(ctx context.Context, tableName string, rows ...store.Row) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, upstream(err)
	}
	prepared, err := s.prepare(rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(tableName)

	pending := make([]store.Row, 0, len(prepared))
	for _, row := range prepared {
		if err := t.checkUnique(tableName, row, -1, pending); err != nil {
			return nil, err
		}
		pending = append(pending, row)
	}
	t.rows = append(t.rows, pending...)
	return cloneRows(pending), nil
}

func (s *Store) Upsert(ctx context.Context, tableName string, conflict []string, rows ...store.Row) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, upstream(err)
	}
	if len(conflict) == 0 {
		return s.Insert(ctx, tableName, rows...)
	}
	prepared, err := s.prepare(rows)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(tableName)

	// Work on a copy so a failing row leaves the table untouched.
	working := cloneRows(t.rows)
	touched := map[int]struct{}{}
	result := make([]store.Row, 0, len(prepared))
	for _, row := range prepared {
		idx := findByKey(working, conflict, row, false)
		if idx >= 0 {
			if _, dup := touched[idx]; dup {
				return nil, &store.UpstreamError{
					Status:  500,
					Code:    "21000",
					Message: "ON CONFLICT DO UPDATE command cannot affect row a second time",
				}
			}
			merged := cloneRow(working[idx])
			for k, v := range row {
				if k == "id" || k == "created_at" {
					continue
				}
				merged[k] = v
			}
			scratch := &table{rows: working, uniques: t.uniques}
			if err := scratch.checkUnique(tableName, merged, idx, nil); err != nil {
				return nil, err
			}
			working[idx] = merged
			touched[idx] = struct{}{}
			result = append(result, merged)
			continue
		}
		scratch := &table{rows: working, uniques: t.uniques}
		if err := scratch.checkUnique(tableName, row, -1, nil); err != nil {
			return nil, err
		}
		working = append(working, row)
		touched[len(working)-1] = struct{}{}
		result = append(result, row)
	}
	t.rows = working
	return cloneRows(result), nil
}

func (s *Store) Update(ctx context.Context, tableName, id string, patch store.Row) (store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, upstream(err)
	}
	normalized, err := normalizeRow(patch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(tableName)
	for i, row := range t.rows {
		if row["id"] != id {
			continue
		}
		merged := cloneRow(row)
		for k, v := range normalized {
			if k == "id" {
				continue
			}
			merged[k] = v
		}
		if _, ok := merged["updated_at"]; ok {
			merged["updated_at"] = s.timestamp()
		}
		if err := t.checkUnique(tableName, merged, i, nil); err != nil {
			return nil, err
		}
		t.rows[i] = merged
		return cloneRow(merged), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, tableName, id string) (bool, error) {
	n, err := s.DeleteWhere(ctx, tableName, store.Eq("id", id))
	return n > 0, err
}

func (s *Store) DeleteWhere(ctx context.Context, tableName string, filters ...store.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, upstream(err)
	}
	if len(filters) == 0 {
		return 0, store.ErrUnfilteredWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableLocked(tableName)
	kept := t.rows[:0:0]
	var removed int64
	for _, row := range t.rows {
		ok, err := matchAll(row, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return removed, nil
}

// Truncate removes every row of a table.
func (s *Store) Truncate(tableName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableLocked(tableName).rows = nil
}

func (s *Store) Call(ctx context.Context, function string, params store.Row) ([]store.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, upstream(err)
	}
	s.mu.RLock()
	fn, ok := s.functions[function]
	s.mu.RUnlock()
	if !ok {
		return nil, &store.UpstreamError{
			Status:  404,
			Code:    "42883",
			Message: fmt.Sprintf("function %s does not exist", function),
		}
	}
	normalized, err := normalizeRow(params)
	if err != nil {
		return nil, err
	}
	return fn(ctx, s, normalized)
}

func (s *Store) prepare(rows []store.Row) ([]store.Row, error) {
	ts := s.timestamp()
	out := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		normalized, err := normalizeRow(row)
		if err != nil {
			return nil, err
		}
		if id, _ := normalized["id"].(string); id == "" {
			normalized["id"] = uuid.NewString()
		}
		if _, ok := normalized["created_at"]; !ok {
			normalized["created_at"] = ts
		}
		if _, ok := normalized["updated_at"]; !ok {
			normalized["updated_at"] = ts
		}
		out = append(out, normalized)
	}
	return out, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (t *table) checkUnique(tableName string, row store.Row, self int, pending []store.Row) error {
	if findByKey(t.rows, []string{"id"}, row, false) >= 0 && self < 0 {
		return &store.ConflictError{Table: tableName, Constraint: tableName + "_pkey"}
	}
	for _, u := range t.uniques {
		if idx := findByKey(t.rows, u.Columns, row, u.Fold); idx >= 0 && idx != self {
			return &store.ConflictError{Table: tableName, Constraint: u.Name}
		}
		if findByKey(pending, u.Columns, row, u.Fold) >= 0 {
			return &store.ConflictError{Table: tableName, Constraint: u.Name}
		}
	}
	return nil
}

func findByKey(rows []store.Row, columns []string, row store.Row, fold bool) int {
	for i, candidate := range rows {
		match := true
		for _, col := range columns {
			a, b := candidate[col], row[col]
			if a == nil || b == nil {
				match = false
				break
			}
			if fold {
				as, aok := a.(string)
				bs, bok := b.(string)
				if aok && bok {
					if foldKey(as) != foldKey(bs) {
						match = false
						break
					}
					continue
				}
			}
			if cmp, ok := compare(a, b); !ok || cmp != 0 {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeRow(row store.Row) (store.Row, error) {
	if row == nil {
		return store.Row{}, nil
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("memstore: encode row: %w", err)
	}
	out := store.Row{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("memstore: decode row: %w", err)
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneRow(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func cloneRows(rows []store.Row) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, row := range rows {
		out = append(out, cloneRow(row))
	}
	return out
}

func upstream(err error) error {
	return &store.UpstreamError{Status: 502, Code: "store_unavailable", Message: err.Error(), Err: err}
}

func sortRows(rows []store.Row, order []store.Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			a, b := rows[i][o.Column], rows[j][o.Column]
			if a == nil && b == nil {
				continue
			}
			// NULLs sort last in both directions.
			if a == nil {
				return false
			}
			if b == nil {
				return true
			}
			cmp, ok := compare(a, b)
			if !ok || cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
