package analytics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/db"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
	"github.com/courier-analytics/api/internal/store/memstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) openapi_types.Date {
	return openapi_types.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func window(start, end openapi_types.Date) model.Window {
	return model.Window{Start: start, End: end}
}

type fixture struct {
	t     *testing.T
	store *memstore.Store
	ids   map[string]string
}

func newFixture(t *testing.T) *fixture {
	return &fixture{t: t, store: db.NewMemoryStore(), ids: map[string]string{}}
}

func (f *fixture) entity(table, column, name string) string {
	if id, ok := f.ids[table+":"+name]; ok {
		return id
	}
	rows, err := f.store.Insert(context.Background(), table, store.Row{column: name})
	require.NoError(f.t, err)
	id := rows[0].String("id")
	f.ids[table+":"+name] = id
	return id
}

func (f *fixture) delivery(date openapi_types.Date, courier, zone string, loaded, delivered int) {
	_, err := f.store.Insert(context.Background(), model.TableDeliveries, store.Row{
		"delivery_date":   date,
		"courier_id":      f.entity(model.TableCouriers, "full_name", courier),
		"zone_id":         f.entity(model.TableZones, "name", zone),
		"loaded_count":    loaded,
		"delivered_count": delivered,
	})
	require.NoError(f.t, err)
}

func (f *fixture) engine(opts ...analytics.Option) *analytics.Engine {
	return analytics.New(f.store, discardLogger(), opts...)
}

func TestTopCouriersOrdersTiesByName(t *testing.T) {
	f := newFixture(t)
	jan := day(2024, 1, 10)
	f.delivery(jan, "A", "North", 10, 9)
	f.delivery(jan, "B", "North", 10, 10)
	f.delivery(jan, "C", "North", 10, 9)
	f.delivery(jan, "D", "North", 10, 8)
	f.delivery(jan, "E", "North", 10, 10)

	top, err := f.engine().TopCouriers(context.Background(), window(day(2024, 1, 1), day(2024, 1, 31)), 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"B", "E", "A"}, []string{top[0].FullName, top[1].FullName, top[2].FullName})
	assert.Equal(t, 100.0, top[0].SuccessRate)
	assert.Equal(t, 90.0, top[2].SuccessRate)
}

func TestTopCouriersTieAtLimitKeepsFirstName(t *testing.T) {
	f := newFixture(t)
	jan := day(2024, 1, 10)
	f.delivery(jan, "Zed", "North", 10, 10)
	f.delivery(jan, "Amy", "North", 10, 10)

	top, err := f.engine().TopCouriers(context.Background(), window(day(2024, 1, 1), day(2024, 1, 31)), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Amy", top[0].FullName)
}

func TestTopCouriersRejectsLimitOutOfRange(t *testing.T) {
	e := newFixture(t).engine()
	w := window(day(2024, 1, 1), day(2024, 1, 31))
	for _, limit := range []int{0, 51} {
		_, err := e.TopCouriers(context.Background(), w, limit)
		assert.ErrorIs(t, err, analytics.ErrInvalidInput, "limit %d", limit)
	}
}

func TestCompareFromEmptyBaseline(t *testing.T) {
	f := newFixture(t)
	f.delivery(day(2024, 2, 5), "Anna", "North", 10, 5)

	cmp, err := f.engine().Compare(context.Background(),
		window(day(2024, 1, 1), day(2024, 1, 31)),
		window(day(2024, 2, 1), day(2024, 2, 29)))
	require.NoError(t, err)
	assert.Equal(t, int64(0), cmp.Period1.Stats.TotalLoaded)
	assert.Equal(t, int64(10), cmp.Period2.Stats.TotalLoaded)
	assert.Equal(t, 100.0, cmp.Changes.LoadedChange)
	assert.Equal(t, 100.0, cmp.Changes.DeliveredChange)
	assert.Equal(t, 50.0, cmp.Changes.SuccessRateChange)
	assert.Equal(t, 100.0, cmp.Changes.CouriersChange)
}

func TestCompareRejectsInvertedWindow(t *testing.T) {
	_, err := newFixture(t).engine().Compare(context.Background(),
		window(day(2024, 1, 31), day(2024, 1, 1)),
		window(day(2024, 2, 1), day(2024, 2, 29)))
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)
}

func TestPercentChange(t *testing.T) {
	assert.Equal(t, 100.0, analytics.PercentChange(0, 3))
	assert.Equal(t, 0.0, analytics.PercentChange(0, 0))
	assert.Equal(t, -50.0, analytics.PercentChange(10, 5))
	assert.Equal(t, 33.33, analytics.PercentChange(3, 4))
}

func TestWindowDefaultsToMonthToDate(t *testing.T) {
	e := newFixture(t).engine(analytics.WithClock(func() time.Time {
		return time.Date(2024, 3, 17, 15, 30, 0, 0, time.UTC)
	}))

	start := day(2024, 3, 5)
	for _, w := range []struct{ start, end *openapi_types.Date }{{nil, nil}, {&start, nil}} {
		got, err := e.Window(w.start, w.end)
		require.NoError(t, err)
		assert.Equal(t, day(2024, 3, 1), got.Start)
		assert.Equal(t, day(2024, 3, 17), got.End)
	}

	end := day(2024, 3, 1)
	_, err := e.Window(&start, &end)
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)
}

func TestInsightsOrderAndWording(t *testing.T) {
	got := analytics.Insights(
		model.PeriodStats{SuccessRate: 90, Undelivered: 12},
		&model.TopCourier{FullName: "Anna", SuccessRate: 97.5},
		&model.ZoneStats{Name: "North", SuccessRate: 85},
	)
	assert.Equal(t, []string{
		"Top courier: Anna with 97.5% success rate",
		"Attention: North has low success rate (85%)",
		"Overall success rate (90%) is below target (95%)",
		"Undelivered packages: 12",
	}, got)

	assert.Empty(t, analytics.Insights(model.PeriodStats{SuccessRate: 99}, nil, &model.ZoneStats{Name: "South", SuccessRate: 95}))
}

func TestPeriodSummaryAndBreakdowns(t *testing.T) {
	f := newFixture(t)
	f.delivery(day(2024, 1, 15), "Anna", "North", 20, 18)
	f.delivery(day(2024, 1, 15), "Boris", "South", 10, 5)
	f.delivery(day(2024, 1, 16), "Anna", "South", 30, 30)
	f.delivery(day(2024, 2, 1), "Boris", "North", 99, 1)
	e := f.engine()
	ctx := context.Background()
	jan := window(day(2024, 1, 1), day(2024, 1, 31))

	period, err := e.PeriodSummary(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStats{
		TotalLoaded:    60,
		TotalDelivered: 53,
		SuccessRate:    88.33,
		ActiveCouriers: 2,
		DeliveryDays:   2,
		Undelivered:    7,
	}, period)

	daily, err := e.DailyStats(ctx, jan)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, day(2024, 1, 15), daily[0].DeliveryDate)
	assert.Equal(t, int64(2), daily[0].ActiveCouriers)
	assert.Equal(t, 76.67, daily[0].SuccessRate)
	assert.Equal(t, day(2024, 1, 16), daily[1].DeliveryDate)

	couriers, err := e.CourierStats(ctx, jan, 2)
	require.NoError(t, err)
	require.Len(t, couriers, 1)
	assert.Equal(t, "Anna", couriers[0].FullName)
	assert.Equal(t, int64(2), couriers[0].TotalDeliveries)
	assert.Equal(t, 96.0, couriers[0].SuccessRate)
	require.NotNil(t, couriers[0].FirstDelivery)
	assert.Equal(t, day(2024, 1, 15), *couriers[0].FirstDelivery)
	assert.Equal(t, day(2024, 1, 16), *couriers[0].LastDelivery)

	_, err = e.CourierStats(ctx, jan, -1)
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)

	zones, err := e.ZoneStats(ctx, jan)
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "South", zones[0].Name)
	assert.Equal(t, int64(40), zones[0].TotalLoaded)
	assert.Equal(t, 87.5, zones[0].SuccessRate)
	assert.Equal(t, "North", zones[1].Name)

	summary, err := e.FullSummary(ctx, jan)
	require.NoError(t, err)
	require.NotNil(t, summary.BestCourier)
	assert.Equal(t, "Anna", summary.BestCourier.FullName)
	require.NotNil(t, summary.WorstZone)
	assert.Equal(t, "South", summary.WorstZone.Name)
	assert.Equal(t, []string{
		"Top courier: Anna with 96% success rate",
		"Attention: South has low success rate (87.5%)",
		"Overall success rate (88.33%) is below target (95%)",
		"Undelivered packages: 7",
	}, summary.Insights)
}

func TestEmptyWindowSummary(t *testing.T) {
	summary, err := newFixture(t).engine().FullSummary(context.Background(), window(day(2024, 1, 1), day(2024, 1, 31)))
	require.NoError(t, err)
	assert.Equal(t, model.PeriodStats{}, summary.PeriodStats)
	assert.Empty(t, summary.TopCouriers)
	assert.Nil(t, summary.BestCourier)
	assert.Nil(t, summary.WorstZone)
	assert.Equal(t, []string{"Overall success rate (0%) is below target (95%)"}, summary.Insights)
}

type mapCache map[string][]byte

func (c mapCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, ok := c[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dst)
}

func (c mapCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	c[key] = data
	return err
}

func TestCachedResultsSurviveStoreChanges(t *testing.T) {
	f := newFixture(t)
	f.delivery(day(2024, 1, 15), "Anna", "North", 10, 10)
	cache := mapCache{}
	e := f.engine(analytics.WithCache(cache))
	ctx := context.Background()
	jan := window(day(2024, 1, 1), day(2024, 1, 31))

	first, err := e.PeriodSummary(ctx, jan)
	require.NoError(t, err)
	assert.NotEmpty(t, cache)

	f.delivery(day(2024, 1, 16), "Anna", "North", 10, 0)
	second, err := e.PeriodSummary(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for k := range cache {
		delete(cache, k)
	}
	third, err := e.PeriodSummary(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, int64(20), third.TotalLoaded)
}

func TestPerformanceStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, row := range []store.Row{
		{"courier_name": "Anna", "report_date": day(2024, 1, 1), "loaded_parcels": 10, "delivered_parcels": 9, "delivery_success_rate": 90.0},
		{"courier_name": "Boris", "report_date": day(2024, 1, 1), "loaded_parcels": 10, "delivered_parcels": 10, "delivery_success_rate": 100.0},
		{"courier_name": "Anna", "report_date": day(2024, 1, 2), "loaded_parcels": 10, "delivered_parcels": 10, "delivery_success_rate": 100.0},
		{"courier_name": "Cleo", "report_date": day(2024, 3, 1), "loaded_parcels": 5, "delivered_parcels": 1, "delivery_success_rate": 20.0},
	} {
		_, err := f.store.Insert(ctx, model.TableCourierPerformance, row)
		require.NoError(t, err)
	}
	e := f.engine()
	from, to := day(2024, 1, 1), day(2024, 1, 31)
	jan := analytics.Range{From: &from, To: &to}

	summary, err := e.PerformanceSummary(ctx, jan)
	require.NoError(t, err)
	assert.Equal(t, model.PerformanceSummary{
		TotalRecords:   3,
		UniqueCouriers: 2,
		TotalDelivered: 29,
		TotalLoaded:    30,
		AvgSuccessRate: 96.67,
	}, summary)

	top, err := e.PerformanceTopCouriers(ctx, analytics.Range{}, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Boris", top[0].CourierName)
	assert.Equal(t, "Anna", top[1].CourierName)
	assert.Equal(t, 95.0, top[1].AvgSuccessRate)

	_, err = e.PerformanceSummary(ctx, analytics.Range{From: &to, To: &from})
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)
}

func TestPickupStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, row := range []store.Row{
		{"execution_date": day(2024, 1, 3), "sender_country": "Poland", "recipient_country": "Ukraine", "shipments_in_doc": 2, "actual_weight": 1.25, "delivery_cost": 100.5, "shipment_status": "Delivered"},
		{"execution_date": day(2024, 1, 4), "sender_country": "Poland", "recipient_country": "Ukraine", "actual_weight": 2.0, "delivery_cost": 50.0, "shipment_status": "Delivered"},
		{"execution_date": day(2024, 1, 5), "recipient_country": "Germany", "shipments_in_doc": 1, "shipment_status": "Returned"},
	} {
		_, err := f.store.Insert(ctx, model.TablePickupOrders, row)
		require.NoError(t, err)
	}
	e := f.engine()

	summary, err := e.PickupSummary(ctx, analytics.Range{})
	require.NoError(t, err)
	assert.Equal(t, model.PickupSummary{
		TotalOrders:     3,
		TotalShipments:  4,
		TotalWeightKg:   3.25,
		TotalRevenue:    150.5,
		UniqueCountries: 3,
	}, summary)

	senders, err := e.PickupByCountry(ctx, analytics.Range{}, analytics.DirectionSender)
	require.NoError(t, err)
	require.Len(t, senders, 2)
	assert.Equal(t, "Poland", senders[0].Country)
	assert.Equal(t, int64(2), senders[0].OrdersCount)
	assert.Equal(t, int64(3), senders[0].ShipmentsCount)
	assert.Equal(t, "Unknown", senders[1].Country)

	_, err = e.PickupByCountry(ctx, analytics.Range{}, analytics.Direction("sideways"))
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)

	statuses, err := e.PickupByStatus(ctx, analytics.Range{})
	require.NoError(t, err)
	assert.Equal(t, []model.StatusStats{
		{Status: "Delivered", Count: 2, Percentage: 66.67},
		{Status: "Returned", Count: 1, Percentage: 33.33},
	}, statuses)
}

func TestReportingViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, row := range []store.Row{
		{"shipment_number": "S1", "report_date": day(2024, 1, 1), "courier_name": "Anna", "delivery_date": day(2024, 1, 1)},
		{"shipment_number": "S2", "report_date": day(2024, 1, 1), "courier_name": "Anna", "failure_reason": "No one home"},
		{"shipment_number": "S3", "report_date": day(2024, 1, 2), "courier_name": "Boris", "failure_reason": "No one home"},
		{"shipment_number": "S3", "report_date": day(2024, 1, 2), "courier_name": "Boris", "failure_reason": "Refused", "is_duplicate": true},
	} {
		_, err := f.store.Insert(ctx, model.TableDeliveryEvents, row)
		require.NoError(t, err)
	}
	e := f.engine()

	daily, err := e.ViewRows(ctx, analytics.ViewDailyStats)
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2024-01-02", daily[0]["date"])
	assert.Equal(t, "2024-01-01", daily[1]["date"])
	assert.Equal(t, float64(2), daily[1]["total_shipments"])
	assert.Equal(t, float64(50), daily[1]["success_rate"])

	reasons, err := e.ViewRows(ctx, analytics.ViewFailureReasons)
	require.NoError(t, err)
	require.Len(t, reasons, 1)
	assert.Equal(t, "No one home", reasons[0]["reason"])
	assert.Equal(t, float64(2), reasons[0]["count"])

	_, err = e.ViewRows(ctx, analytics.View("v2_unknown"))
	assert.ErrorIs(t, err, analytics.ErrInvalidInput)
}
