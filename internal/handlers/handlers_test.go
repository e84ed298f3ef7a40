package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/config"
	"github.com/courier-analytics/api/internal/db"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store/memstore"
)

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func parseTestDate(t *testing.T, s string) openapi_types.Date {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	require.NoError(t, err)
	return openapi_types.Date{Time: d}
}

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := db.NewMemoryStore()
	cfg := config.Config{StoreDriver: config.DriverMemory, ImportMaxFileBytes: 1 << 20}
	return NewServer(cfg, st, ingest.NewImporter(st, logger), analytics.New(st, logger), nil, logger), st
}

func call(t *testing.T, h http.HandlerFunc, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestDeleteCourierRefusedWhileReferenced(t *testing.T) {
	s, st := newTestServer(t)
	_, err := s.Importer.ImportDeliveries(t.Context(), "seed", []model.DeliveryImport{{
		DeliveryDate: parseTestDate(t, "2024-01-15"), CourierName: "Anna", ZoneName: "North", LoadedCount: 5, DeliveredCount: 5,
	}}, ingest.ModeAppend)
	require.NoError(t, err)
	courierID := st.Rows(model.TableCouriers)[0].String("id")
	zoneID := st.Rows(model.TableZones)[0].String("id")

	rec := call(t, func(w http.ResponseWriter, r *http.Request) { s.DeleteCourier(w, r, courierID) }, http.MethodDelete, "/couriers/"+courierID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, func(w http.ResponseWriter, r *http.Request) { s.DeleteZone(w, r, zoneID) }, http.MethodDelete, "/zones/"+zoneID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, func(w http.ResponseWriter, r *http.Request) { s.DeleteCourier(w, r, "missing") }, http.MethodDelete, "/couriers/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetDeliveriesJoinsNames(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.Importer.ImportDeliveries(t.Context(), "seed", []model.DeliveryImport{
		{DeliveryDate: parseTestDate(t, "2024-01-15"), CourierName: "Anna", ZoneName: "North", LoadedCount: 20, DeliveredCount: 18},
		{DeliveryDate: parseTestDate(t, "2024-01-16"), CourierName: "Boris", ZoneName: "South", LoadedCount: 0, DeliveredCount: 0},
	}, ingest.ModeAppend)
	require.NoError(t, err)

	rec := call(t, s.GetDeliveries, http.MethodGet, "/deliveries?start_date=2024-01-01&end_date=2024-01-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]model.DeliveryWithDetails](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, "Boris", rows[0].CourierName, "newest first")
	assert.Equal(t, float64(0), rows[0].SuccessRate)
	assert.Equal(t, "North", rows[1].ZoneName)
	assert.Equal(t, 90.0, rows[1].SuccessRate)

	rec = call(t, s.GetDeliveries, http.MethodGet, "/deliveries?start_date=15-01-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostDeliveryRejectsUnknownCourier(t *testing.T) {
	s, _ := newTestServer(t)
	rec := call(t, s.PostDeliveries, http.MethodPost, "/deliveries", map[string]any{
		"delivery_date":   "2024-01-15",
		"courier_id":      "8f1c2f0e-4a34-4a53-9d0e-0f2f1bb0d9a1",
		"zone_id":         "0d6b6a52-54c4-4e3f-9b0b-6f4d2b3a1c10",
		"loaded_count":    5,
		"delivered_count": 3,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPerformanceBulkAndImportLogDeletion(t *testing.T) {
	s, st := newTestServer(t)

	rec := call(t, s.PostPerformanceBulk, http.MethodPost, "/performance/bulk", map[string]any{
		"filename": "report.xlsx",
		"records": []map[string]any{
			{"report_date": "2024-01-15", "courier_name": "Anna", "loaded_parcels": 10, "delivered_parcels": 9, "delivery_success_rate": 90},
			{"report_date": "2024-01-15", "courier_name": "", "loaded_parcels": 1},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode[model.ImportSummary](t, rec)
	assert.Equal(t, 2, summary.TotalRecords)
	assert.Equal(t, 1, summary.Imported)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, model.ImportFailed, summary.Status)
	require.Len(t, st.Rows(model.TableCourierPerformance), 1)

	rec = call(t, s.GetImports, http.MethodGet, "/imports?file_type=delivery", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]model.ImportLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "report.xlsx", logs[0].Filename)

	rec = call(t, s.GetImports, http.MethodGet, "/imports?file_type=parcels", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	batchID := summary.BatchID
	rec = call(t, func(w http.ResponseWriter, r *http.Request) { s.GetImportErrorsCsv(w, r, batchID) }, http.MethodGet, "/imports/"+batchID+"/errors.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "row_number,message\n2,"), rec.Body.String())

	rec = call(t, func(w http.ResponseWriter, r *http.Request) { s.DeleteImport(w, r, batchID) }, http.MethodDelete, "/imports/"+batchID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, st.Rows(model.TableCourierPerformance))
	assert.Empty(t, st.Rows(model.TableImportLogs))
}

func TestPickupBulkAppliesDefaults(t *testing.T) {
	s, st := newTestServer(t)
	rec := call(t, s.PostPickupOrdersBulk, http.MethodPost, "/pickup-orders/bulk", map[string]any{
		"filename": "pickups.xlsx",
		"records": []map[string]any{
			{"shipment_number": "SH1", "recipient_country": "Poland", "actual_weight": 1.5},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := st.Rows(model.TablePickupOrders)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0]["shipments_in_doc"])
	assert.Equal(t, "UAH", rows[0]["delivery_currency"])

	rec = call(t, s.GetPickupByCountry, http.MethodGet, "/pickup-orders/stats/by-country?direction=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareRequiresAllBounds(t *testing.T) {
	s, _ := newTestServer(t)
	rec := call(t, s.GetAnalyticsCompare, http.MethodGet, "/analytics/compare?period1_start=2024-01-01&period1_end=2024-01-31", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = call(t, s.GetAnalyticsCompare, http.MethodGet,
		"/analytics/compare?period1_start=2024-01-01&period1_end=2024-01-31&period2_start=2024-02-01&period2_end=2024-02-29", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWritesInvalidateCache(t *testing.T) {
	s, _ := newTestServer(t)
	inv := &countingInvalidator{}
	s.Invalidator = inv

	rec := call(t, s.PostZones, http.MethodPost, "/zones", map[string]any{"name": "North"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Zero(t, inv.calls, "an unreferenced zone changes no statistics")
	zone := decode[model.Zone](t, rec)

	rec = call(t, func(w http.ResponseWriter, r *http.Request) { s.PatchZone(w, r, zone.ID) }, http.MethodPatch, "/zones/"+zone.ID, map[string]any{"name": "North-East"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, inv.calls)
}

func TestSplitRowError(t *testing.T) {
	row, msg := splitRowError(`Row 12: invalid loaded_count "x"`)
	assert.Equal(t, "12", row)
	assert.Equal(t, `invalid loaded_count "x"`, msg)

	row, msg = splitRowError("Batch insert error: timeout")
	assert.Empty(t, row)
	assert.Equal(t, "Batch insert error: timeout", msg)
}
