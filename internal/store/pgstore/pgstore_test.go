package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-analytics/api/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, time.Second), mock
}

func TestFetchBuildsFilteredQuery(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT "id", "full_name" FROM "couriers" WHERE "is_active" = $1 AND "full_name" ILIKE $2 ORDER BY "full_name" ASC NULLS LAST LIMIT 10 OFFSET 5`).
		WithArgs(true, "%ann%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name"}).AddRow("c1", "Anna"))

	rows, err := s.Fetch(context.Background(), "couriers", store.Query{
		Columns: []string{"id", "full_name"},
		Filters: []store.Filter{store.Eq("is_active", true), store.ILike("full_name", "%ann%")},
		Order:   []store.Order{store.Asc("full_name")},
		Limit:   10,
		Offset:  5,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Anna", rows[0]["full_name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchNormalizesDatesAndNumerics(t *testing.T) {
	s, mock := newMock(t)

	rows := mock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("delivery_date").OfType("DATE", time.Time{}),
		sqlmock.NewColumn("success_rate").OfType("NUMERIC", ""),
		sqlmock.NewColumn("errors").OfType("JSONB", []byte{}),
	).AddRow(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "87.50", []byte(`[{"message":"x"}]`))

	mock.ExpectQuery(`SELECT * FROM "daily_stats" WHERE "delivery_date" >= $1`).
		WithArgs("2024-02-01").
		WillReturnRows(rows)

	from := openapi_types.Date{Time: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	got, err := s.Fetch(context.Background(), "daily_stats", store.Query{
		Filters: []store.Filter{store.Gte("delivery_date", from)},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-02-29", got[0]["delivery_date"])
	assert.Equal(t, 87.5, got[0]["success_rate"])
	assert.Equal(t, json.RawMessage(`[{"message":"x"}]`), got[0]["errors"])
}

func TestUpsertRendersConflictClause(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO "deliveries" ("courier_id", "delivery_date", "loaded_count", "zone_id") VALUES ($1, $2, $3, $4) ON CONFLICT ("delivery_date", "courier_id", "zone_id") DO UPDATE SET "loaded_count" = EXCLUDED."loaded_count" RETURNING *`).
		WithArgs("c1", "2024-01-01", 10, "z1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("d1"))

	rows, err := s.Upsert(context.Background(), "deliveries", []string{"delivery_date", "courier_id", "zone_id"}, store.Row{
		"delivery_date": "2024-01-01",
		"courier_id":    "c1",
		"zone_id":       "z1",
		"loaded_count":  10,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUsesDefaultForMissingKeys(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO "zones" ("name", "note") VALUES ($1, DEFAULT), ($2, $3) RETURNING *`).
		WithArgs("North", "South", "new").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("z1", "North").AddRow("z2", "South"))

	rows, err := s.Insert(context.Background(), "zones", store.Row{"name": "North"}, store.Row{"name": "South", "note": "new"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestInsertMapsUniqueViolationToConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO "zones" ("name") VALUES ($1) RETURNING *`).
		WithArgs("North").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "zones_name_key", Message: "duplicate key value"})

	_, err := s.Insert(context.Background(), "zones", store.Row{"name": "North"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict))

	var conflict *store.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "zones_name_key", conflict.Constraint)
}

func TestUpstreamErrorsKeepStatusAndMessage(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO "deliveries" ("loaded_count") VALUES ($1) RETURNING *`).
		WithArgs(-1).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: "violates check constraint"})

	_, err := s.Insert(context.Background(), "deliveries", store.Row{"loaded_count": -1})
	var upstream *store.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadRequest, upstream.Status)
	assert.Equal(t, "23514", upstream.Code)
	assert.Equal(t, "violates check constraint", upstream.Message)
	assert.False(t, errors.Is(err, store.ErrConflict))
}

func TestCallUsesNamedArguments(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT * FROM "get_top_couriers"("end_date" => $1, "limit_count" => $2, "start_date" => $3)`).
		WithArgs("2024-01-31", 3, "2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"courier_id", "success_rate"}).AddRow("c1", 99.5))

	rows, err := s.Call(context.Background(), "get_top_couriers", store.Row{
		"start_date":  "2024-01-01",
		"end_date":    "2024-01-31",
		"limit_count": 3,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 99.5, rows[0]["success_rate"])
}

func TestUpdateReturnsNotFoundWhenNoRow(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`UPDATE "couriers" SET "is_active" = $1 WHERE "id" = $2 RETURNING *`).
		WithArgs(false, "missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.Update(context.Background(), "couriers", "missing", store.Row{"is_active": false})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteWhere(t *testing.T) {
	s, mock := newMock(t)

	_, err := s.DeleteWhere(context.Background(), "deliveries")
	assert.ErrorIs(t, err, store.ErrUnfilteredWrite)

	mock.ExpectExec(`DELETE FROM "courier_performance" WHERE "import_batch_id" = $1`).
		WithArgs("b1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.DeleteWhere(context.Background(), "courier_performance", store.Eq("import_batch_id", "b1"))
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestCount(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT count(*) FROM "deliveries" WHERE "courier_id" = $1`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := s.Count(context.Background(), "deliveries", store.Eq("courier_id", "c1"))
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestMapErrorTimeoutIsGenericFailure(t *testing.T) {
	err := mapError("fetch", "deliveries", context.DeadlineExceeded)
	var upstream *store.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "store_unavailable", upstream.Code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
