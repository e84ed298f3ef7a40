package model

import openapi_types "github.com/oapi-codegen/runtime/types"

type PeriodStats struct {
	TotalLoaded    int64   `json:"total_loaded"`
	TotalDelivered int64   `json:"total_delivered"`
	SuccessRate    float64 `json:"success_rate"`
	ActiveCouriers int64   `json:"active_couriers"`
	DeliveryDays   int64   `json:"delivery_days"`
	Undelivered    int64   `json:"undelivered"`
}

type CourierStats struct {
	ID              string              `json:"id"`
	FullName        string              `json:"full_name"`
	VehicleNumber   *string             `json:"vehicle_number"`
	TotalDeliveries int64               `json:"total_deliveries"`
	TotalLoaded     int64               `json:"total_loaded"`
	TotalDelivered  int64               `json:"total_delivered"`
	SuccessRate     float64             `json:"success_rate"`
	FirstDelivery   *openapi_types.Date `json:"first_delivery"`
	LastDelivery    *openapi_types.Date `json:"last_delivery"`
}

type ZoneStats struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	TotalDeliveries int64   `json:"total_deliveries"`
	TotalLoaded     int64   `json:"total_loaded"`
	TotalDelivered  int64   `json:"total_delivered"`
	SuccessRate     float64 `json:"success_rate"`
}

type DailyStats struct {
	DeliveryDate   openapi_types.Date `json:"delivery_date"`
	ActiveCouriers int64              `json:"active_couriers"`
	TotalLoaded    int64              `json:"total_loaded"`
	TotalDelivered int64              `json:"total_delivered"`
	SuccessRate    float64            `json:"success_rate"`
}

type TopCourier struct {
	CourierID      string  `json:"courier_id"`
	FullName       string  `json:"full_name"`
	VehicleNumber  *string `json:"vehicle_number"`
	TotalLoaded    int64   `json:"total_loaded"`
	TotalDelivered int64   `json:"total_delivered"`
	SuccessRate    float64 `json:"success_rate"`
}

type AnalyticsSummary struct {
	PeriodStats PeriodStats  `json:"period_stats"`
	DailyTrend  []DailyStats `json:"daily_trend"`
	TopCouriers []TopCourier `json:"top_couriers"`
	ZoneStats   []ZoneStats  `json:"zone_stats"`
	BestCourier *TopCourier  `json:"best_courier"`
	WorstZone   *ZoneStats   `json:"worst_zone"`
	Insights    []string     `json:"insights"`
}

type Window struct {
	Start openapi_types.Date `json:"start"`
	End   openapi_types.Date `json:"end"`
}

type PeriodSnapshot struct {
	Start openapi_types.Date `json:"start"`
	End   openapi_types.Date `json:"end"`
	Stats PeriodStats        `json:"stats"`
}

type PeriodChanges struct {
	LoadedChange      float64 `json:"loaded_change"`
	DeliveredChange   float64 `json:"delivered_change"`
	SuccessRateChange float64 `json:"success_rate_change"`
	CouriersChange    float64 `json:"couriers_change"`
}

type PeriodComparison struct {
	Period1 PeriodSnapshot `json:"period1"`
	Period2 PeriodSnapshot `json:"period2"`
	Changes PeriodChanges  `json:"changes"`
}

type PerformanceSummary struct {
	TotalRecords   int64   `json:"total_records"`
	UniqueCouriers int64   `json:"unique_couriers"`
	TotalDelivered int64   `json:"total_delivered"`
	TotalLoaded    int64   `json:"total_loaded"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

type PerformanceCourier struct {
	CourierName    string  `json:"courier_name"`
	TotalDelivered int64   `json:"total_delivered"`
	TotalLoaded    int64   `json:"total_loaded"`
	AvgSuccessRate float64 `json:"avg_success_rate"`
}

type PickupSummary struct {
	TotalOrders     int64   `json:"total_orders"`
	TotalShipments  int64   `json:"total_shipments"`
	TotalWeightKg   float64 `json:"total_weight_kg"`
	TotalRevenue    float64 `json:"total_revenue"`
	UniqueCountries int64   `json:"unique_countries"`
}

type CountryStats struct {
	Country        string  `json:"country"`
	OrdersCount    int64   `json:"orders_count"`
	ShipmentsCount int64   `json:"shipments_count"`
	TotalWeight    float64 `json:"total_weight"`
	TotalRevenue   float64 `json:"total_revenue"`
}

type StatusStats struct {
	Status     string  `json:"status"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}
