package model

import (
	"strings"
	"time"
)

// Table names.
const (
	TableCouriers           = "couriers"
	TableZones              = "zones"
	TableDeliveries         = "deliveries"
	TableImportLogs         = "import_logs"
	TableCourierPerformance = "courier_performance"
	TablePickupOrders       = "pickup_orders"
	TableShipments          = "shipments"
	TableDeliveryEvents     = "delivery_events"
)

type Courier struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	VehicleNumber *string    `json:"vehicle_number"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type CourierInput struct {
	FullName      string  `json:"full_name" validate:"required,max=255"`
	VehicleNumber *string `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

func (in *CourierInput) Normalize() {
	in.FullName = strings.TrimSpace(in.FullName)
	in.VehicleNumber = trimmedOrNil(in.VehicleNumber)
}

type CourierPatch struct {
	FullName      *string `json:"full_name,omitempty" validate:"omitempty,min=1,max=255"`
	VehicleNumber *string `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	IsActive      *bool   `json:"is_active,omitempty"`
}

type Zone struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

type ZoneInput struct {
	Name string `json:"name" validate:"required,max=255"`
}

// MatchKey is the case-insensitive key couriers and zones are matched by.
func MatchKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
