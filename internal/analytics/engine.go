// Package analytics computes delivery statistics over date windows and
// derives dashboard insights from them.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jinzhu/now"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

// ErrInvalidInput wraps every rejected window, limit or grouping argument.
var ErrInvalidInput = errors.New("invalid analytics input")

const (
	DefaultTopLimit = 10
	MaxTopLimit     = 50

	lowZoneRate      = 90
	targetPeriodRate = 95
)

// Cache stores computed results. Get reports whether key was present.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

type Engine struct {
	store  store.Store
	cache  Cache
	logger *slog.Logger
	today  func() time.Time
}

type Option func(*Engine)

func WithCache(c Cache) Option { return func(e *Engine) { e.cache = c } }

// WithClock overrides the clock used for the default window.
func WithClock(today func() time.Time) Option { return func(e *Engine) { e.today = today } }

func New(st store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{store: st, logger: logger, today: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Window returns [start, end]. When either bound is missing the whole
// window defaults to the first of the current month through today.
func (e *Engine) Window(start, end *openapi_types.Date) (model.Window, error) {
	if start == nil || end == nil {
		today := e.today()
		return model.Window{
			Start: dateOnly(now.With(today).BeginningOfMonth()),
			End:   dateOnly(today),
		}, nil
	}
	w := model.Window{Start: dateOnly(start.Time), End: dateOnly(end.Time)}
	if w.Start.Time.After(w.End.Time) {
		return w, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidInput, isoDay(w.Start), isoDay(w.End))
	}
	return w, nil
}

func dateOnly(t time.Time) openapi_types.Date {
	return openapi_types.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func isoDay(d openapi_types.Date) string {
	return d.Time.Format(time.DateOnly)
}

func windowKey(prefix string, w model.Window, extra ...any) string {
	key := prefix + ":" + isoDay(w.Start) + ":" + isoDay(w.End)
	for _, x := range extra {
		key += ":" + fmt.Sprint(x)
	}
	return key
}

// cached serves key from the cache when possible. Cache failures only log.
func cached[T any](ctx context.Context, e *Engine, key string, load func() (T, error)) (T, error) {
	if e.cache != nil {
		var hit T
		ok, err := e.cache.Get(ctx, key, &hit)
		if err != nil {
			e.logger.Warn("analytics_cache_get_failed", "key", key, "error", err)
		} else if ok {
			return hit, nil
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if e.cache != nil {
		if err := e.cache.Set(ctx, key, v); err != nil {
			e.logger.Warn("analytics_cache_set_failed", "key", key, "error", err)
		}
	}
	return v, nil
}

func windowParams(w model.Window) store.Row {
	return store.Row{"start_date": w.Start, "end_date": w.End}
}

// PeriodSummary totals deliveries over the window.
func (e *Engine) PeriodSummary(ctx context.Context, w model.Window) (model.PeriodStats, error) {
	return cached(ctx, e, windowKey("period", w), func() (model.PeriodStats, error) {
		rows, err := e.store.Call(ctx, "get_period_stats", windowParams(w))
		if err != nil {
			return model.PeriodStats{}, err
		}
		if len(rows) == 0 {
			return model.PeriodStats{}, nil
		}
		row := rows[0]
		loaded := intOf(row["total_loaded"])
		delivered := intOf(row["total_delivered"])
		return model.PeriodStats{
			TotalLoaded:    loaded,
			TotalDelivered: delivered,
			SuccessRate:    model.SuccessRate(delivered, loaded),
			ActiveCouriers: intOf(row["active_couriers"]),
			DeliveryDays:   intOf(row["delivery_days"]),
			Undelivered:    max(loaded-delivered, 0),
		}, nil
	})
}

// TopCouriers ranks couriers by success rate. Equal rates keep the order the
// ranking returned them in.
func (e *Engine) TopCouriers(ctx context.Context, w model.Window, limit int) ([]model.TopCourier, error) {
	if limit < 1 || limit > MaxTopLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxTopLimit)
	}
	return cached(ctx, e, windowKey("top", w, limit), func() ([]model.TopCourier, error) {
		params := windowParams(w)
		params["limit_count"] = limit
		rows, err := e.store.Call(ctx, "get_top_couriers", params)
		if err != nil {
			return nil, err
		}
		out := make([]model.TopCourier, 0, len(rows))
		for _, row := range rows {
			tc := model.TopCourier{
				CourierID:      row.String("courier_id"),
				FullName:       row.String("full_name"),
				TotalLoaded:    intOf(row["total_loaded"]),
				TotalDelivered: intOf(row["total_delivered"]),
				SuccessRate:    model.Round2(floatOf(row["success_rate"])),
			}
			if v := row.String("vehicle_number"); v != "" {
				tc.VehicleNumber = &v
			}
			out = append(out, tc)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessRate > out[j].SuccessRate })
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	})
}

// DailyStats reads the daily rollup for the window, oldest first. The lower
// bound is filtered by the store and the upper bound here.
func (e *Engine) DailyStats(ctx context.Context, w model.Window) ([]model.DailyStats, error) {
	return cached(ctx, e, windowKey("daily", w), func() ([]model.DailyStats, error) {
		rows, err := e.store.Fetch(ctx, "daily_stats", store.Query{
			Filters: []store.Filter{store.Gte("delivery_date", w.Start)},
			Order:   []store.Order{store.Asc("delivery_date")},
		})
		if err != nil {
			return nil, err
		}
		end := isoDay(w.End)
		out := make([]model.DailyStats, 0, len(rows))
		for _, row := range rows {
			day := dateKey(row["delivery_date"])
			if day > end {
				continue
			}
			t, err := time.Parse(time.DateOnly, day)
			if err != nil {
				return nil, fmt.Errorf("daily_stats: bad delivery_date %q", day)
			}
			loaded, delivered := intOf(row["total_loaded"]), intOf(row["total_delivered"])
			out = append(out, model.DailyStats{
				DeliveryDate:   openapi_types.Date{Time: t},
				ActiveCouriers: intOf(row["active_couriers"]),
				TotalLoaded:    loaded,
				TotalDelivered: delivered,
				SuccessRate:    model.SuccessRate(delivered, loaded),
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].DeliveryDate.Time.Before(out[j].DeliveryDate.Time) })
		return out, nil
	})
}

func (e *Engine) deliveriesIn(ctx context.Context, w model.Window, columns ...string) ([]store.Row, error) {
	return e.store.Fetch(ctx, model.TableDeliveries, store.Query{
		Columns: columns,
		Filters: []store.Filter{store.Gte("delivery_date", w.Start), store.Lte("delivery_date", w.End)},
	})
}

// CourierStats groups the window's deliveries by courier, drops couriers
// with fewer than minDeliveries rows or no courier record, and sorts by
// success rate descending.
func (e *Engine) CourierStats(ctx context.Context, w model.Window, minDeliveries int) ([]model.CourierStats, error) {
	if minDeliveries < 0 {
		return nil, fmt.Errorf("%w: min_deliveries must not be negative", ErrInvalidInput)
	}
	return cached(ctx, e, windowKey("couriers", w, minDeliveries), func() ([]model.CourierStats, error) {
		rows, err := e.deliveriesIn(ctx, w, "courier_id", "loaded_count", "delivered_count", "delivery_date")
		if err != nil {
			return nil, err
		}
		couriers, err := e.store.Fetch(ctx, model.TableCouriers, store.Query{})
		if err != nil {
			return nil, err
		}
		byID := indexByID(couriers)

		ts := newTallies()
		for _, row := range rows {
			ts.add(row.String("courier_id"), intOf(row["loaded_count"]), intOf(row["delivered_count"]), dateKey(row["delivery_date"]))
		}
		out := make([]model.CourierStats, 0, len(ts.order))
		for _, t := range ts.order {
			if t.rows < int64(minDeliveries) {
				continue
			}
			c, ok := byID[t.key]
			if !ok {
				continue
			}
			cs := model.CourierStats{
				ID:              t.key,
				FullName:        c.String("full_name"),
				TotalDeliveries: t.rows,
				TotalLoaded:     t.loaded,
				TotalDelivered:  t.delivered,
				SuccessRate:     t.rate(),
				FirstDelivery:   parseDay(t.first),
				LastDelivery:    parseDay(t.last),
			}
			if v := c.String("vehicle_number"); v != "" {
				cs.VehicleNumber = &v
			}
			out = append(out, cs)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].SuccessRate > out[j].SuccessRate })
		return out, nil
	})
}

// ZoneStats groups the window's deliveries by zone, sorted by total loaded
// descending.
func (e *Engine) ZoneStats(ctx context.Context, w model.Window) ([]model.ZoneStats, error) {
	return cached(ctx, e, windowKey("zones", w), func() ([]model.ZoneStats, error) {
		rows, err := e.deliveriesIn(ctx, w, "zone_id", "loaded_count", "delivered_count")
		if err != nil {
			return nil, err
		}
		zones, err := e.store.Fetch(ctx, model.TableZones, store.Query{})
		if err != nil {
			return nil, err
		}
		byID := indexByID(zones)

		ts := newTallies()
		for _, row := range rows {
			ts.add(row.String("zone_id"), intOf(row["loaded_count"]), intOf(row["delivered_count"]), "")
		}
		out := make([]model.ZoneStats, 0, len(ts.order))
		for _, t := range ts.order {
			z, ok := byID[t.key]
			if !ok {
				continue
			}
			out = append(out, model.ZoneStats{
				ID:              t.key,
				Name:            z.String("name"),
				TotalDeliveries: t.rows,
				TotalLoaded:     t.loaded,
				TotalDelivered:  t.delivered,
				SuccessRate:     t.rate(),
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].TotalLoaded > out[j].TotalLoaded })
		return out, nil
	})
}

// FullSummary composes period, daily, ranking and zone statistics with
// derived insights.
func (e *Engine) FullSummary(ctx context.Context, w model.Window) (model.AnalyticsSummary, error) {
	period, err := e.PeriodSummary(ctx, w)
	if err != nil {
		return model.AnalyticsSummary{}, err
	}
	daily, err := e.DailyStats(ctx, w)
	if err != nil {
		return model.AnalyticsSummary{}, err
	}
	top, err := e.TopCouriers(ctx, w, DefaultTopLimit)
	if err != nil {
		return model.AnalyticsSummary{}, err
	}
	zones, err := e.ZoneStats(ctx, w)
	if err != nil {
		return model.AnalyticsSummary{}, err
	}

	summary := model.AnalyticsSummary{
		PeriodStats: period,
		DailyTrend:  daily,
		TopCouriers: top,
		ZoneStats:   zones,
		WorstZone:   worstZone(zones),
	}
	if len(top) > 0 {
		best := top[0]
		summary.BestCourier = &best
	}
	summary.Insights = Insights(period, summary.BestCourier, summary.WorstZone)
	return summary, nil
}

// worstZone returns the first zone with the lowest success rate.
func worstZone(zones []model.ZoneStats) *model.ZoneStats {
	if len(zones) == 0 {
		return nil
	}
	worst := zones[0]
	for _, z := range zones[1:] {
		if z.SuccessRate < worst.SuccessRate {
			worst = z
		}
	}
	return &worst
}

// Insights derives dashboard messages in a fixed order: best courier, weak
// zone, period below target, undelivered count.
func Insights(period model.PeriodStats, best *model.TopCourier, worst *model.ZoneStats) []string {
	insights := []string{}
	if best != nil {
		insights = append(insights, fmt.Sprintf("Top courier: %s with %s%% success rate", best.FullName, formatRate(best.SuccessRate)))
	}
	if worst != nil && worst.SuccessRate < lowZoneRate {
		insights = append(insights, fmt.Sprintf("Attention: %s has low success rate (%s%%)", worst.Name, formatRate(worst.SuccessRate)))
	}
	if period.SuccessRate < targetPeriodRate {
		insights = append(insights, fmt.Sprintf("Overall success rate (%s%%) is below target (%d%%)", formatRate(period.SuccessRate), targetPeriodRate))
	}
	if period.Undelivered > 0 {
		insights = append(insights, fmt.Sprintf("Undelivered packages: %d", period.Undelivered))
	}
	return insights
}

func formatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Compare reports both windows' statistics and the change between them.
func (e *Engine) Compare(ctx context.Context, p1, p2 model.Window) (model.PeriodComparison, error) {
	for _, w := range []model.Window{p1, p2} {
		if w.Start.Time.After(w.End.Time) {
			return model.PeriodComparison{}, fmt.Errorf("%w: start date %s is after end date %s", ErrInvalidInput, isoDay(w.Start), isoDay(w.End))
		}
	}
	s1, err := e.PeriodSummary(ctx, p1)
	if err != nil {
		return model.PeriodComparison{}, err
	}
	s2, err := e.PeriodSummary(ctx, p2)
	if err != nil {
		return model.PeriodComparison{}, err
	}
	return model.PeriodComparison{
		Period1: model.PeriodSnapshot{Start: p1.Start, End: p1.End, Stats: s1},
		Period2: model.PeriodSnapshot{Start: p2.Start, End: p2.End, Stats: s2},
		Changes: model.PeriodChanges{
			LoadedChange:      PercentChange(float64(s1.TotalLoaded), float64(s2.TotalLoaded)),
			DeliveredChange:   PercentChange(float64(s1.TotalDelivered), float64(s2.TotalDelivered)),
			SuccessRateChange: model.Round2(s2.SuccessRate - s1.SuccessRate),
			CouriersChange:    PercentChange(float64(s1.ActiveCouriers), float64(s2.ActiveCouriers)),
		},
	}, nil
}

// PercentChange is the relative change from old to new in percent. A zero
// baseline yields 100 when new is positive and 0 otherwise.
func PercentChange(old, new float64) float64 {
	if old == 0 {
		if new > 0 {
			return 100
		}
		return 0
	}
	return model.Round2((new - old) / old * 100)
}

func parseDay(s string) *openapi_types.Date {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return &openapi_types.Date{Time: t}
}
