package pgstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/store"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

type argList []any

func (a *argList) add(v any) string {
	*a = append(*a, toArg(v))
	return fmt.Sprintf("$%d", len(*a))
}

// toArg converts domain values into something the pgx driver can encode.
func toArg(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case openapi_types.Date:
		return x.Time.Format(time.DateOnly)
	case *openapi_types.Date:
		if x == nil {
			return nil
		}
		return x.Time.Format(time.DateOnly)
	case driver.Valuer:
		val, err := x.Value()
		if err != nil {
			return v
		}
		return val
	case []byte, string, bool, time.Time, []string:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Map, reflect.Struct:
		encoded, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(encoded)
	}
	return v
}

func buildWhere(filters []store.Filter, args *argList) (string, error) {
	if len(filters) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		col := ident(f.Column)
		switch f.Op {
		case store.OpEq:
			parts = append(parts, col+" = "+args.add(f.Value))
		case store.OpNeq:
			parts = append(parts, col+" <> "+args.add(f.Value))
		case store.OpGt:
			parts = append(parts, col+" > "+args.add(f.Value))
		case store.OpGte:
			parts = append(parts, col+" >= "+args.add(f.Value))
		case store.OpLt:
			parts = append(parts, col+" < "+args.add(f.Value))
		case store.OpLte:
			parts = append(parts, col+" <= "+args.add(f.Value))
		case store.OpILike:
			parts = append(parts, col+" ILIKE "+args.add(f.Value))
		case store.OpIn:
			parts = append(parts, col+"::text = ANY("+args.add(f.Value)+")")
		case store.OpIsNull:
			parts = append(parts, col+" IS NULL")
		case store.OpNotNull:
			parts = append(parts, col+" IS NOT NULL")
		default:
			return "", fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func buildSelect(table string, q store.Query) (string, []any, error) {
	var args argList
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, 0, len(q.Columns))
		for _, c := range q.Columns {
			quoted = append(quoted, ident(c))
		}
		cols = strings.Join(quoted, ", ")
	}

	where, err := buildWhere(q.Filters, &args)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", cols, ident(table), where)
	if len(q.Order) > 0 {
		orders := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			orders = append(orders, fmt.Sprintf("%s %s NULLS LAST", ident(o.Column), dir))
		}
		b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", q.Offset)
	}
	return b.String(), args, nil
}

// columnSet returns the sorted union of keys across rows.
func columnSet(rows []store.Row) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// buildInsert renders a multi-row INSERT. Keys missing from a row use the column DEFAULT.
func buildInsert(table string, rows []store.Row, conflict []string) (string, []any) {
	cols := columnSet(rows)
	var args argList

	quotedCols := make([]string, 0, len(cols))
	for _, c := range cols {
		quotedCols = append(quotedCols, ident(c))
	}

	tuples := make([]string, 0, len(rows))
	for _, row := range rows {
		values := make([]string, 0, len(cols))
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				values = append(values, "DEFAULT")
				continue
			}
			values = append(values, args.add(v))
		}
		tuples = append(tuples, "("+strings.Join(values, ", ")+")")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES %s", ident(table), strings.Join(quotedCols, ", "), strings.Join(tuples, ", "))

	if len(conflict) > 0 {
		conflictCols := make([]string, 0, len(conflict))
		isKey := map[string]bool{}
		for _, c := range conflict {
			conflictCols = append(conflictCols, ident(c))
			isKey[c] = true
		}
		updates := make([]string, 0, len(cols))
		for _, c := range cols {
			if isKey[c] || c == "id" || c == "created_at" {
				continue
			}
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(conflictCols, ", "))
		if len(updates) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			b.WriteString(" DO UPDATE SET " + strings.Join(updates, ", "))
		}
	}
	b.WriteString(" RETURNING *")
	return b.String(), args
}

func buildUpdate(table, id string, patch store.Row) (string, []any) {
	var args argList
	cols := columnSet([]store.Row{patch})
	sets := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", ident(c), args.add(patch[c])))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s RETURNING *",
		ident(table), strings.Join(sets, ", "), ident("id"), args.add(id))
	return query, args
}

// buildCall renders a set-returning function call with named arguments.
func buildCall(function string, params store.Row) (string, []any) {
	var args argList
	names := columnSet([]store.Row{params})
	named := make([]string, 0, len(names))
	for _, n := range names {
		named = append(named, fmt.Sprintf("%s => %s", ident(n), args.add(params[n])))
	}
	return fmt.Sprintf("SELECT * FROM %s(%s)", ident(function), strings.Join(named, ", ")), args
}
