package analytics

import (
	"context"
	"fmt"
	"sort"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

// Range is an optional date filter; nil bounds are open.
type Range struct {
	From *openapi_types.Date
	To   *openapi_types.Date
}

func (r Range) filters(column string) []store.Filter {
	var out []store.Filter
	if r.From != nil {
		out = append(out, store.Gte(column, *r.From))
	}
	if r.To != nil {
		out = append(out, store.Lte(column, *r.To))
	}
	return out
}

func (r Range) key() string {
	from, to := "-", "-"
	if r.From != nil {
		from = isoDay(*r.From)
	}
	if r.To != nil {
		to = isoDay(*r.To)
	}
	return from + ":" + to
}

func (r Range) validate() error {
	if r.From != nil && r.To != nil && r.From.Time.After(r.To.Time) {
		return fmt.Errorf("%w: date_from is after date_to", ErrInvalidInput)
	}
	return nil
}

func (e *Engine) performanceRows(ctx context.Context, r Range) ([]store.Row, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return e.store.Fetch(ctx, model.TableCourierPerformance, store.Query{Filters: r.filters("report_date")})
}

// PerformanceSummary totals courier report rows in the range.
func (e *Engine) PerformanceSummary(ctx context.Context, r Range) (model.PerformanceSummary, error) {
	return cached(ctx, e, "perf-summary:"+r.key(), func() (model.PerformanceSummary, error) {
		rows, err := e.performanceRows(ctx, r)
		if err != nil {
			return model.PerformanceSummary{}, err
		}
		var out model.PerformanceSummary
		if len(rows) == 0 {
			return out, nil
		}
		names := map[string]struct{}{}
		var rateSum float64
		for _, row := range rows {
			names[row.String("courier_name")] = struct{}{}
			out.TotalDelivered += intOf(row["delivered_parcels"])
			out.TotalLoaded += intOf(row["loaded_parcels"])
			rateSum += floatOf(row["delivery_success_rate"])
		}
		out.TotalRecords = int64(len(rows))
		out.UniqueCouriers = int64(len(names))
		out.AvgSuccessRate = model.Round2(rateSum / float64(len(rows)))
		return out, nil
	})
}

// PerformanceTopCouriers ranks couriers by their average reported success rate.
func (e *Engine) PerformanceTopCouriers(ctx context.Context, r Range, limit int) ([]model.PerformanceCourier, error) {
	if limit < 1 || limit > MaxTopLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxTopLimit)
	}
	return cached(ctx, e, fmt.Sprintf("perf-top:%s:%d", r.key(), limit), func() ([]model.PerformanceCourier, error) {
		rows, err := e.performanceRows(ctx, r)
		if err != nil {
			return nil, err
		}
		type agg struct {
			model.PerformanceCourier
			records int
			rateSum float64
		}
		byName := map[string]*agg{}
		var order []*agg
		for _, row := range rows {
			name := row.String("courier_name")
			a, ok := byName[name]
			if !ok {
				a = &agg{PerformanceCourier: model.PerformanceCourier{CourierName: name}}
				byName[name] = a
				order = append(order, a)
			}
			a.TotalDelivered += intOf(row["delivered_parcels"])
			a.TotalLoaded += intOf(row["loaded_parcels"])
			a.records++
			a.rateSum += floatOf(row["delivery_success_rate"])
		}
		out := make([]model.PerformanceCourier, 0, len(order))
		for _, a := range order {
			a.AvgSuccessRate = model.Round2(a.rateSum / float64(a.records))
			out = append(out, a.PerformanceCourier)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].AvgSuccessRate > out[j].AvgSuccessRate })
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

func (e *Engine) pickupRows(ctx context.Context, r Range) ([]store.Row, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return e.store.Fetch(ctx, model.TablePickupOrders, store.Query{Filters: r.filters("execution_date")})
}

// shipmentsInDoc defaults a missing count to one shipment per order.
func shipmentsInDoc(row store.Row) int64 {
	if row["shipments_in_doc"] == nil {
		return 1
	}
	return intOf(row["shipments_in_doc"])
}

func (e *Engine) PickupSummary(ctx context.Context, r Range) (model.PickupSummary, error) {
	return cached(ctx, e, "pickup-summary:"+r.key(), func() (model.PickupSummary, error) {
		rows, err := e.pickupRows(ctx, r)
		if err != nil {
			return model.PickupSummary{}, err
		}
		var out model.PickupSummary
		countries := map[string]struct{}{}
		var weight, revenue float64
		for _, row := range rows {
			out.TotalShipments += shipmentsInDoc(row)
			weight += floatOf(row["actual_weight"])
			revenue += floatOf(row["delivery_cost"])
			for _, col := range []string{"sender_country", "recipient_country"} {
				if c := row.String(col); c != "" {
					countries[c] = struct{}{}
				}
			}
		}
		out.TotalOrders = int64(len(rows))
		out.TotalWeightKg = model.Round2(weight)
		out.TotalRevenue = model.Round2(revenue)
		out.UniqueCountries = int64(len(countries))
		return out, nil
	})
}

// Direction selects which country of a pickup order is grouped on.
type Direction string

const (
	DirectionSender    Direction = "sender"
	DirectionRecipient Direction = "recipient"
)

const unknownGroup = "Unknown"

// PickupByCountry groups orders by sender or recipient country, most orders first.
func (e *Engine) PickupByCountry(ctx context.Context, r Range, dir Direction) ([]model.CountryStats, error) {
	if dir != DirectionSender && dir != DirectionRecipient {
		return nil, fmt.Errorf("%w: direction must be sender or recipient", ErrInvalidInput)
	}
	return cached(ctx, e, fmt.Sprintf("pickup-country:%s:%s", r.key(), dir), func() ([]model.CountryStats, error) {
		rows, err := e.pickupRows(ctx, r)
		if err != nil {
			return nil, err
		}
		column := string(dir) + "_country"
		byCountry := map[string]*model.CountryStats{}
		var order []*model.CountryStats
		for _, row := range rows {
			country := row.String(column)
			if country == "" {
				country = unknownGroup
			}
			cs, ok := byCountry[country]
			if !ok {
				cs = &model.CountryStats{Country: country}
				byCountry[country] = cs
				order = append(order, cs)
			}
			cs.OrdersCount++
			cs.ShipmentsCount += shipmentsInDoc(row)
			cs.TotalWeight += floatOf(row["actual_weight"])
			cs.TotalRevenue += floatOf(row["delivery_cost"])
		}
		out := make([]model.CountryStats, 0, len(order))
		for _, cs := range order {
			cs.TotalWeight = model.Round2(cs.TotalWeight)
			cs.TotalRevenue = model.Round2(cs.TotalRevenue)
			out = append(out, *cs)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].OrdersCount > out[j].OrdersCount })
		return out, nil
	})
}

// PickupByStatus counts orders per shipment status in first-seen order.
func (e *Engine) PickupByStatus(ctx context.Context, r Range) ([]model.StatusStats, error) {
	return cached(ctx, e, "pickup-status:"+r.key(), func() ([]model.StatusStats, error) {
		rows, err := e.pickupRows(ctx, r)
		if err != nil {
			return nil, err
		}
		index := map[string]int{}
		out := []model.StatusStats{}
		for _, row := range rows {
			status := row.String("shipment_status")
			if status == "" {
				status = unknownGroup
			}
			i, ok := index[status]
			if !ok {
				i = len(out)
				index[status] = i
				out = append(out, model.StatusStats{Status: status})
			}
			out[i].Count++
		}
		for i := range out {
			out[i].Percentage = model.Round2(float64(out[i].Count) / float64(len(rows)) * 100)
		}
		return out, nil
	})
}

// View names a reporting view over the shipment and delivery report tables.
type View string

const (
	ViewDailyStats        View = "v2_daily_stats"
	ViewCourierDailyStats View = "v2_courier_daily_stats"
	ViewFailureReasons    View = "v2_failure_reasons"
	ViewShipmentStats     View = "v2_shipment_stats"
)

var viewOrder = map[View]store.Order{
	ViewDailyStats:        store.Desc("date"),
	ViewCourierDailyStats: store.Desc("report_date"),
	ViewFailureReasons:    store.Desc("count"),
	ViewShipmentStats:     store.Desc("pickup_execution_date"),
}

// ViewRows returns a reporting view in its default order.
func (e *Engine) ViewRows(ctx context.Context, view View) ([]store.Row, error) {
	order, ok := viewOrder[view]
	if !ok {
		return nil, fmt.Errorf("%w: unknown view %q", ErrInvalidInput, view)
	}
	return cached(ctx, e, "view:"+string(view), func() ([]store.Row, error) {
		return e.store.Fetch(ctx, string(view), store.Query{Order: []store.Order{order}})
	})
}
