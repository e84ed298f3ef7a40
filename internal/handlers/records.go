package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

type bulkRequest[T any] struct {
	Filename string `json:"filename"`
	Records  []T    `json:"records"`
}

func dateRange(p *params, column string) (analytics.Range, []store.Filter) {
	rng := analytics.Range{From: p.date("date_from"), To: p.date("date_to")}
	var filters []store.Filter
	if rng.From != nil {
		filters = append(filters, store.Gte(column, *rng.From))
	}
	if rng.To != nil {
		filters = append(filters, store.Lte(column, *rng.To))
	}
	return rng, filters
}

func likeFilters(p *params, columns map[string]string) []store.Filter {
	var out []store.Filter
	for param, column := range columns {
		if v := p.raw(param); v != "" {
			out = append(out, store.ILike(column, contains(v)))
		}
	}
	return out
}

func (s *Server) GetPerformance(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	_, filters := dateRange(p, "report_date")
	filters = append(filters, likeFilters(p, map[string]string{
		"courier_name": "courier_name",
		"department":   "department",
	})...)
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}
	rows, err := s.Store.Fetch(r.Context(), model.TableCourierPerformance, store.Query{
		Filters: filters,
		Order:   []store.Order{store.Desc("report_date")},
		Limit:   limit,
		Offset:  offset,
	})
	writeRows[model.CourierPerformance](s, w, r, rows, err)
}

func (s *Server) GetPerformanceRecord(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.Store.FetchByID(r.Context(), model.TableCourierPerformance, id)
	writeRow[model.CourierPerformance](s, w, r, http.StatusOK, row, err)
}

func (s *Server) PostPerformance(w http.ResponseWriter, r *http.Request) {
	var in model.CourierPerformanceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.insertRecord(w, r, model.TableCourierPerformance, &in, decodePerformance)
}

func (s *Server) PutPerformanceRecord(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.CourierPerformancePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := model.Validate(patch); err != nil {
		s.fail(w, r, err)
		return
	}
	s.updateRecord(w, r, model.TableCourierPerformance, id, patch, decodePerformance)
}

func (s *Server) DeletePerformanceRecord(w http.ResponseWriter, r *http.Request, id string) {
	s.deleteRecord(w, r, model.TableCourierPerformance, id)
}

func (s *Server) PostPerformanceBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest[model.CourierPerformanceInput]
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.Importer.ImportPerformance(r.Context(), req.Filename, req.Records)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) DeletePerformanceBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	s.deleteBatch(w, r, model.TableCourierPerformance, batchID)
}

func (s *Server) GetPerformanceSummary(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	rng, _ := dateRange(p, "report_date")
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.PerformanceSummary(r.Context(), rng)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetPerformanceTopCouriers(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	rng, _ := dateRange(p, "report_date")
	limit := p.integer("limit", analytics.DefaultTopLimit, 1, analytics.MaxTopLimit)
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.PerformanceTopCouriers(r.Context(), rng, limit)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetPickupOrders(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	_, filters := dateRange(p, "execution_date")
	filters = append(filters, likeFilters(p, map[string]string{
		"sender_country":    "sender_country",
		"recipient_country": "recipient_country",
		"status":            "shipment_status",
		"courier_name":      "courier_name",
	})...)
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}
	rows, err := s.Store.Fetch(r.Context(), model.TablePickupOrders, store.Query{
		Filters: filters,
		Order:   []store.Order{store.Desc("execution_date")},
		Limit:   limit,
		Offset:  offset,
	})
	writeRows[model.PickupOrder](s, w, r, rows, err)
}

func (s *Server) GetPickupOrder(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.Store.FetchByID(r.Context(), model.TablePickupOrders, id)
	writeRow[model.PickupOrder](s, w, r, http.StatusOK, row, err)
}

func (s *Server) PostPickupOrders(w http.ResponseWriter, r *http.Request) {
	in := model.DefaultPickupOrder()
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	s.insertRecord(w, r, model.TablePickupOrders, &in, decodePickup)
}

func (s *Server) PutPickupOrder(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.PickupOrderPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := model.Validate(patch); err != nil {
		s.fail(w, r, err)
		return
	}
	s.updateRecord(w, r, model.TablePickupOrders, id, patch, decodePickup)
}

func (s *Server) DeletePickupOrder(w http.ResponseWriter, r *http.Request, id string) {
	s.deleteRecord(w, r, model.TablePickupOrders, id)
}

// PostPickupOrdersBulk applies record defaults before each record's own fields.
func (s *Server) PostPickupOrdersBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest[json.RawMessage]
	if err := httpx.DecodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	records := make([]model.PickupOrderInput, 0, len(req.Records))
	for i, raw := range req.Records {
		rec := model.DefaultPickupOrder()
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.fail(w, r, fmt.Errorf("%w: record %d: %v", httpx.ErrMalformedBody, i+1, err))
			return
		}
		records = append(records, rec)
	}
	summary, err := s.Importer.ImportPickupOrders(r.Context(), req.Filename, records)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) DeletePickupBatch(w http.ResponseWriter, r *http.Request, batchID string) {
	s.deleteBatch(w, r, model.TablePickupOrders, batchID)
}

func (s *Server) GetPickupSummary(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	rng, _ := dateRange(p, "execution_date")
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.PickupSummary(r.Context(), rng)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetPickupByCountry(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	rng, _ := dateRange(p, "execution_date")
	dir := analytics.Direction(p.raw("direction"))
	if dir == "" {
		dir = analytics.DirectionRecipient
	}
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.PickupByCountry(r.Context(), rng, dir)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetPickupByStatus(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	rng, _ := dateRange(p, "execution_date")
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.PickupByStatus(r.Context(), rng)
	writeResult(s, w, r, out, err)
}

func decodePerformance(row store.Row) (any, error) { return store.Decode[model.CourierPerformance](row) }
func decodePickup(row store.Row) (any, error)      { return store.Decode[model.PickupOrder](row) }

func (s *Server) insertRecord(w http.ResponseWriter, r *http.Request, table string, in any, decode func(store.Row) (any, error)) {
	row, err := store.Encode(in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.Store.Insert(r.Context(), table, row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context())
	out, err := decode(rows[0])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (s *Server) updateRecord(w http.ResponseWriter, r *http.Request, table, id string, patch any, decode func(store.Row) (any, error)) {
	changes, err := store.Encode(patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var row store.Row
	if len(changes) == 0 {
		row, err = s.Store.FetchByID(r.Context(), table, id)
	} else {
		row, err = s.Store.Update(r.Context(), table, id, changes)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(changes) > 0 {
		s.invalidate(r.Context())
	}
	out, err := decode(row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request, table, id string) {
	ok, err := s.Store.Delete(r.Context(), table, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, store.ErrNotFound)
		return
	}
	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteBatch(w http.ResponseWriter, r *http.Request, table, batchID string) {
	if _, err := s.Importer.DeleteBatch(r.Context(), table, batchID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func writeResult[T any](s *Server, w http.ResponseWriter, r *http.Request, out T, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
