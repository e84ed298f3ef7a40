package pgstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/courier-analytics/api/internal/store"
)

func scanRows(rows *sql.Rows) ([]store.Row, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	out := []store.Row{}
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(store.Row, len(types))
		for i, ct := range types {
			row[ct.Name()] = normalize(ct.DatabaseTypeName(), values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize maps driver values onto the JSON-friendly shapes the domain decodes:
// dates as YYYY-MM-DD, times as HH:MM, numerics as float64, json as raw JSON.
func normalize(dbType string, v any) any {
	if v == nil {
		return nil
	}
	switch strings.ToUpper(dbType) {
	case "DATE":
		if t, ok := v.(time.Time); ok {
			return t.Format(time.DateOnly)
		}
	case "TIME", "TIMETZ":
		switch x := v.(type) {
		case time.Time:
			return x.Format("15:04")
		case string:
			if len(x) >= 5 {
				return x[:5]
			}
		}
	case "NUMERIC":
		switch x := v.(type) {
		case string:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return f
			}
		case []byte:
			if f, err := strconv.ParseFloat(string(x), 64); err == nil {
				return f
			}
		}
	case "UUID":
		switch x := v.(type) {
		case [16]byte:
			return uuid.UUID(x).String()
		case []byte:
			if len(x) == 16 {
				if id, err := uuid.FromBytes(x); err == nil {
					return id.String()
				}
			}
			return string(x)
		}
	case "JSON", "JSONB":
		switch x := v.(type) {
		case []byte:
			return json.RawMessage(append([]byte(nil), x...))
		case string:
			return json.RawMessage(x)
		}
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func mapError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return &store.ConflictError{Table: table, Constraint: pgErr.ConstraintName, Message: pgErr.Message}
		}
		status := http.StatusInternalServerError
		switch {
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			status = http.StatusBadRequest
		case pgErr.Code == "42P01", pgErr.Code == "42883":
			status = http.StatusNotFound
		}
		return &store.UpstreamError{Status: status, Code: pgErr.Code, Message: pgErr.Message, Err: err}
	}
	return &store.UpstreamError{
		Status:  http.StatusBadGateway,
		Code:    "store_unavailable",
		Message: fmt.Sprintf("%s %s: %v", op, table, err),
		Err:     err,
	}
}
