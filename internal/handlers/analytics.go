package handlers

import (
	"net/http"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/model"
)

// window reads start_date and end_date, defaulting to month-to-date.
func (s *Server) window(w http.ResponseWriter, r *http.Request) (model.Window, *params, bool) {
	p := queryParams(r)
	start, end := p.date("start_date"), p.date("end_date")
	if !p.ok(s, w, r) {
		return model.Window{}, p, false
	}
	win, err := s.Analytics.Window(start, end)
	if err != nil {
		s.fail(w, r, err)
		return model.Window{}, p, false
	}
	return win, p, true
}

func (s *Server) GetAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	win, _, ok := s.window(w, r)
	if !ok {
		return
	}
	out, err := s.Analytics.PeriodSummary(r.Context(), win)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetAnalyticsTopCouriers(w http.ResponseWriter, r *http.Request) {
	win, p, ok := s.window(w, r)
	if !ok {
		return
	}
	limit := p.integer("limit", analytics.DefaultTopLimit, 1, analytics.MaxTopLimit)
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.TopCouriers(r.Context(), win, limit)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetAnalyticsDaily(w http.ResponseWriter, r *http.Request) {
	win, _, ok := s.window(w, r)
	if !ok {
		return
	}
	out, err := s.Analytics.DailyStats(r.Context(), win)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetAnalyticsCouriers(w http.ResponseWriter, r *http.Request) {
	win, p, ok := s.window(w, r)
	if !ok {
		return
	}
	minDeliveries := p.integer("min_deliveries", 0, 0, 1<<31-1)
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.CourierStats(r.Context(), win, minDeliveries)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetAnalyticsZones(w http.ResponseWriter, r *http.Request) {
	win, _, ok := s.window(w, r)
	if !ok {
		return
	}
	out, err := s.Analytics.ZoneStats(r.Context(), win)
	writeResult(s, w, r, out, err)
}

func (s *Server) GetAnalyticsFull(w http.ResponseWriter, r *http.Request) {
	win, _, ok := s.window(w, r)
	if !ok {
		return
	}
	out, err := s.Analytics.FullSummary(r.Context(), win)
	writeResult(s, w, r, out, err)
}

// GetAnalyticsCompare requires both bounds of both periods.
func (s *Server) GetAnalyticsCompare(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	bound := func(name string) openapi_types.Date {
		d := p.date(name)
		if d == nil {
			p.fail("%s is required", name)
			return openapi_types.Date{}
		}
		return *d
	}
	p1 := model.Window{Start: bound("period1_start"), End: bound("period1_end")}
	p2 := model.Window{Start: bound("period2_start"), End: bound("period2_end")}
	if !p.ok(s, w, r) {
		return
	}
	out, err := s.Analytics.Compare(r.Context(), p1, p2)
	writeResult(s, w, r, out, err)
}

func (s *Server) getView(view analytics.View) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.Analytics.ViewRows(r.Context(), view)
		writeResult(s, w, r, out, err)
	}
}

func (s *Server) GetDeliveryDailySummary() http.HandlerFunc { return s.getView(analytics.ViewDailyStats) }
func (s *Server) GetCourierDailyStats() http.HandlerFunc   { return s.getView(analytics.ViewCourierDailyStats) }
func (s *Server) GetFailureReasons() http.HandlerFunc      { return s.getView(analytics.ViewFailureReasons) }
func (s *Server) GetShipmentSummary() http.HandlerFunc     { return s.getView(analytics.ViewShipmentStats) }
