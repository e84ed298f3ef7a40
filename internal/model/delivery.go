package model

import (
	"math"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

type Delivery struct {
	ID             string             `json:"id"`
	DeliveryDate   openapi_types.Date `json:"delivery_date"`
	CourierID      string             `json:"courier_id"`
	ZoneID         string             `json:"zone_id"`
	LoadedCount    int                `json:"loaded_count"`
	DeliveredCount int                `json:"delivered_count"`
	CreatedAt      *time.Time         `json:"created_at,omitempty"`
}

// DeliveryWithDetails is a delivery joined with its courier and zone names.
type DeliveryWithDetails struct {
	Delivery
	CourierName   string  `json:"courier_name"`
	VehicleNumber *string `json:"vehicle_number"`
	ZoneName      string  `json:"zone_name"`
	SuccessRate   float64 `json:"success_rate"`
}

type DeliveryInput struct {
	DeliveryDate   openapi_types.Date `json:"delivery_date"`
	CourierID      string             `json:"courier_id" validate:"required,uuid"`
	ZoneID         string             `json:"zone_id" validate:"required,uuid"`
	LoadedCount    int                `json:"loaded_count" validate:"gte=0"`
	DeliveredCount int                `json:"delivered_count" validate:"gte=0,ltefield=LoadedCount"`
}

func (in DeliveryInput) Validate() error {
	if in.DeliveryDate.Time.IsZero() {
		return invalid("delivery_date", "delivery_date is required")
	}
	return Validate(in)
}

type DeliveryPatch struct {
	DeliveryDate   *openapi_types.Date `json:"delivery_date,omitempty"`
	CourierID      *string             `json:"courier_id,omitempty" validate:"omitempty,uuid"`
	ZoneID         *string             `json:"zone_id,omitempty" validate:"omitempty,uuid"`
	LoadedCount    *int                `json:"loaded_count,omitempty" validate:"omitempty,gte=0"`
	DeliveredCount *int                `json:"delivered_count,omitempty" validate:"omitempty,gte=0"`
}

// Apply returns the delivery with the patch applied, re-checking the count invariant.
func (p DeliveryPatch) Apply(d Delivery) (Delivery, error) {
	if err := Validate(p); err != nil {
		return d, err
	}
	if p.DeliveryDate != nil {
		d.DeliveryDate = *p.DeliveryDate
	}
	if p.CourierID != nil {
		d.CourierID = *p.CourierID
	}
	if p.ZoneID != nil {
		d.ZoneID = *p.ZoneID
	}
	if p.LoadedCount != nil {
		d.LoadedCount = *p.LoadedCount
	}
	if p.DeliveredCount != nil {
		d.DeliveredCount = *p.DeliveredCount
	}
	if d.DeliveredCount > d.LoadedCount {
		return d, invalid("delivered_count", "delivered_count must be less than or equal to loaded_count")
	}
	return d, nil
}

// DeliveryImport is one delivery row keyed by names rather than ids.
type DeliveryImport struct {
	DeliveryDate   openapi_types.Date `json:"delivery_date"`
	CourierName    string             `json:"courier_name" validate:"required,max=255"`
	VehicleNumber  *string            `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
	ZoneName       string             `json:"zone_name" validate:"required,max=255"`
	LoadedCount    int                `json:"loaded_count" validate:"gte=0"`
	DeliveredCount int                `json:"delivered_count" validate:"gte=0,ltefield=LoadedCount"`
}

func (in *DeliveryImport) Validate() error {
	in.CourierName = strings.TrimSpace(in.CourierName)
	in.ZoneName = strings.TrimSpace(in.ZoneName)
	in.VehicleNumber = trimmedOrNil(in.VehicleNumber)
	if in.DeliveryDate.Time.IsZero() {
		return invalid("delivery_date", "delivery_date is required")
	}
	return Validate(in)
}

// SuccessRate is delivered/loaded as a percentage rounded to two decimals,
// clamped to [0, 100] and 0 when nothing was loaded.
func SuccessRate(delivered, loaded int64) float64 {
	if loaded <= 0 || delivered <= 0 {
		return 0
	}
	if delivered >= loaded {
		return 100
	}
	return Round2(float64(delivered) / float64(loaded) * 100)
}

func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
