package analytics

import (
	"context"
	"sort"

	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
	"github.com/courier-analytics/api/internal/store/memstore"
)

// InstallRollups registers in-process equivalents of the SQL views and
// functions created by the migrations.
func InstallRollups(s *memstore.Store) {
	s.RegisterFunction("get_period_stats", periodStatsFunc)
	s.RegisterFunction("get_top_couriers", topCouriersFunc)
	s.RegisterFunction("delete_all_deliveries", func(ctx context.Context, s *memstore.Store, _ store.Row) ([]store.Row, error) {
		s.Truncate(model.TableDeliveries)
		return nil, nil
	})
	s.RegisterView("daily_stats", dailyStatsView)
	s.RegisterView("v2_daily_stats", eventDailyView)
	s.RegisterView("v2_courier_daily_stats", eventCourierDailyView)
	s.RegisterView("v2_failure_reasons", failureReasonsView)
	s.RegisterView("v2_shipment_stats", shipmentStatsView)
}

func deliveriesBetween(ctx context.Context, s *memstore.Store, params store.Row) ([]store.Row, error) {
	return s.Fetch(ctx, model.TableDeliveries, store.Query{Filters: []store.Filter{
		store.Gte("delivery_date", params["start_date"]),
		store.Lte("delivery_date", params["end_date"]),
	}})
}

func periodStatsFunc(ctx context.Context, s *memstore.Store, params store.Row) ([]store.Row, error) {
	rows, err := deliveriesBetween(ctx, s, params)
	if err != nil {
		return nil, err
	}
	var loaded, delivered int64
	couriers := map[string]struct{}{}
	days := map[string]struct{}{}
	for _, row := range rows {
		loaded += intOf(row["loaded_count"])
		delivered += intOf(row["delivered_count"])
		couriers[row.String("courier_id")] = struct{}{}
		days[dateKey(row["delivery_date"])] = struct{}{}
	}
	return []store.Row{{
		"total_loaded":    loaded,
		"total_delivered": delivered,
		"success_rate":    model.SuccessRate(delivered, loaded),
		"active_couriers": len(couriers),
		"delivery_days":   len(days),
	}}, nil
}

func topCouriersFunc(ctx context.Context, s *memstore.Store, params store.Row) ([]store.Row, error) {
	rows, err := deliveriesBetween(ctx, s, params)
	if err != nil {
		return nil, err
	}
	ts := newTallies()
	for _, row := range rows {
		ts.add(row.String("courier_id"), intOf(row["loaded_count"]), intOf(row["delivered_count"]), "")
	}
	couriers := indexByID(s.Rows(model.TableCouriers))

	out := make([]store.Row, 0, len(ts.order))
	for _, t := range ts.order {
		c, ok := couriers[t.key]
		if !ok {
			continue
		}
		out = append(out, store.Row{
			"courier_id":      t.key,
			"full_name":       c["full_name"],
			"vehicle_number":  c["vehicle_number"],
			"total_loaded":    t.loaded,
			"total_delivered": t.delivered,
			"success_rate":    t.rate(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := floatOf(out[i]["success_rate"]), floatOf(out[j]["success_rate"])
		if ri != rj {
			return ri > rj
		}
		if ni, nj := out[i].String("full_name"), out[j].String("full_name"); ni != nj {
			return ni < nj
		}
		return out[i].String("courier_id") < out[j].String("courier_id")
	})
	if limit := int(intOf(params["limit_count"])); limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type dayTotals struct {
	couriers          map[string]struct{}
	loaded, delivered int64
}

func dailyStatsView(ctx context.Context, s *memstore.Store) ([]store.Row, error) {
	byDay := map[string]*dayTotals{}
	var days []string
	for _, row := range s.Rows(model.TableDeliveries) {
		day := dateKey(row["delivery_date"])
		agg, ok := byDay[day]
		if !ok {
			agg = &dayTotals{couriers: map[string]struct{}{}}
			byDay[day] = agg
			days = append(days, day)
		}
		agg.couriers[row.String("courier_id")] = struct{}{}
		agg.loaded += intOf(row["loaded_count"])
		agg.delivered += intOf(row["delivered_count"])
	}
	out := make([]store.Row, 0, len(days))
	for _, day := range days {
		agg := byDay[day]
		out = append(out, store.Row{
			"delivery_date":   day,
			"active_couriers": len(agg.couriers),
			"total_loaded":    agg.loaded,
			"total_delivered": agg.delivered,
			"success_rate":    model.SuccessRate(agg.delivered, agg.loaded),
		})
	}
	return out, nil
}

// eventCounts summarizes delivery report lines. Duplicate lines are ignored;
// a line counts as delivered when it carries a delivery date and as failed
// when it carries a failure reason.
type eventCounts struct {
	total, delivered, failed int64
	couriers                 map[string]struct{}
}

func (c *eventCounts) add(row store.Row) {
	c.total++
	if row["delivery_date"] != nil {
		c.delivered++
	}
	if row["failure_reason"] != nil {
		c.failed++
	}
	if name := row.String("courier_name"); name != "" {
		if c.couriers == nil {
			c.couriers = map[string]struct{}{}
		}
		c.couriers[model.MatchKey(name)] = struct{}{}
	}
}

func (c *eventCounts) row() store.Row {
	return store.Row{
		"total_shipments": c.total,
		"delivered":       c.delivered,
		"failed":          c.failed,
		"success_rate":    model.SuccessRate(c.delivered, c.total),
	}
}

func liveEvents(s *memstore.Store) []store.Row {
	var out []store.Row
	for _, row := range s.Rows(model.TableDeliveryEvents) {
		if dup, _ := row["is_duplicate"].(bool); dup {
			continue
		}
		out = append(out, row)
	}
	return out
}

func eventDailyView(ctx context.Context, s *memstore.Store) ([]store.Row, error) {
	byDay := map[string]*eventCounts{}
	var days []string
	for _, row := range liveEvents(s) {
		day := dateKey(row["report_date"])
		if _, ok := byDay[day]; !ok {
			byDay[day] = &eventCounts{}
			days = append(days, day)
		}
		byDay[day].add(row)
	}
	out := make([]store.Row, 0, len(days))
	for _, day := range days {
		row := byDay[day].row()
		row["date"] = day
		row["unique_couriers"] = len(byDay[day].couriers)
		out = append(out, row)
	}
	return out, nil
}

func eventCourierDailyView(ctx context.Context, s *memstore.Store) ([]store.Row, error) {
	type key struct{ day, courier string }
	groups := map[key]*eventCounts{}
	var keys []key
	for _, row := range liveEvents(s) {
		name := row.String("courier_name")
		if name == "" {
			continue
		}
		k := key{day: dateKey(row["report_date"]), courier: name}
		if _, ok := groups[k]; !ok {
			groups[k] = &eventCounts{}
			keys = append(keys, k)
		}
		groups[k].add(row)
	}
	out := make([]store.Row, 0, len(keys))
	for _, k := range keys {
		row := groups[k].row()
		row["report_date"] = k.day
		row["courier_name"] = k.courier
		out = append(out, row)
	}
	return out, nil
}

func failureReasonsView(ctx context.Context, s *memstore.Store) ([]store.Row, error) {
	counts := map[string]int64{}
	var reasons []string
	for _, row := range liveEvents(s) {
		reason := row.String("failure_reason")
		if reason == "" {
			continue
		}
		if _, ok := counts[reason]; !ok {
			reasons = append(reasons, reason)
		}
		counts[reason]++
	}
	out := make([]store.Row, 0, len(reasons))
	for _, reason := range reasons {
		out = append(out, store.Row{"reason": reason, "count": counts[reason]})
	}
	return out, nil
}

func shipmentStatsView(ctx context.Context, s *memstore.Store) ([]store.Row, error) {
	type agg struct {
		shipments, places         int64
		weight, declared, revenue float64
		senders                   map[string]struct{}
	}
	byDay := map[string]*agg{}
	var days []string
	for _, row := range s.Rows(model.TableShipments) {
		day := dateKey(row["pickup_execution_date"])
		if day == "" {
			continue
		}
		a, ok := byDay[day]
		if !ok {
			a = &agg{senders: map[string]struct{}{}}
			byDay[day] = a
			days = append(days, day)
		}
		a.shipments++
		a.places += intOf(row["places_count"])
		a.weight += floatOf(row["total_weight_actual"])
		a.declared += floatOf(row["declared_value"])
		a.revenue += floatOf(row["delivery_cost"])
		if sender := row.String("sender_company"); sender != "" {
			a.senders[model.MatchKey(sender)] = struct{}{}
		}
	}
	out := make([]store.Row, 0, len(days))
	for _, day := range days {
		a := byDay[day]
		out = append(out, store.Row{
			"pickup_execution_date": day,
			"total_shipments":       a.shipments,
			"total_places":          a.places,
			"total_weight":          model.Round2(a.weight),
			"total_declared_value":  model.Round2(a.declared),
			"total_delivery_cost":   model.Round2(a.revenue),
			"unique_senders":        len(a.senders),
		})
	}
	return out, nil
}

func indexByID(rows []store.Row) map[string]store.Row {
	out := make(map[string]store.Row, len(rows))
	for _, row := range rows {
		out[row.String("id")] = row
	}
	return out
}
