package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// TimeOfDay is a wall-clock time with minute precision, serialized as HH:MM.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if len(s) == 8 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

// Shipment is one pickup/shipment document row, keyed by shipment number.
type Shipment struct {
	ShipmentNumber         string              `json:"shipment_number"`
	PickupDocNumber        *string             `json:"pickup_doc_number"`
	PickupShipmentCount    int                 `json:"pickup_shipment_count"`
	PickupExecutionDate    *openapi_types.Date `json:"pickup_execution_date"`
	PickupTimeSlot         *string             `json:"pickup_time_slot"`
	SenderCountry          *string             `json:"sender_country"`
	SenderType             *string             `json:"sender_type"`
	SenderCompany          *string             `json:"sender_company"`
	SenderCity             *string             `json:"sender_city"`
	ShipmentType           *string             `json:"shipment_type"`
	DeclaredValue          float64             `json:"declared_value"`
	TotalWeightActual      float64             `json:"total_weight_actual"`
	TotalWeightVolumetric  float64             `json:"total_weight_volumetric"`
	Dimensions             *string             `json:"dimensions"`
	PlacesCount            int                 `json:"places_count"`
	ReceiverCountry        *string             `json:"receiver_country"`
	ReceiverType           *string             `json:"receiver_type"`
	DeliveryCost           float64             `json:"delivery_cost"`
	PayerType              *string             `json:"payer_type"`
	PaymentStatus          *string             `json:"payment_status"`
	LastShipmentStatus     *string             `json:"last_shipment_status"`
	LastShipmentStatusDate *openapi_types.Date `json:"last_shipment_status_date"`
	ExecutionSpeed         *string             `json:"execution_speed"`
}

// DeliveryEvent is one operational delivery report line. ShipmentNumber refers
// to a Shipment but the shipment need not exist.
type DeliveryEvent struct {
	ShipmentNumber       string              `json:"shipment_number"`
	ReportDate           openapi_types.Date  `json:"report_date"`
	CourierName          *string             `json:"courier_name"`
	CarNumber            *string             `json:"car_number"`
	LoadingSheetNumber   *string             `json:"loading_sheet_number"`
	Branch               *string             `json:"branch"`
	ShipmentCreatedDate  *openapi_types.Date `json:"shipment_created_date"`
	LastWarehouse        *string             `json:"last_warehouse"`
	PlannedArrivalDate   *openapi_types.Date `json:"planned_arrival_date"`
	ReceiverCity         *string             `json:"receiver_city"`
	ReceiverAddress      *string             `json:"receiver_address"`
	District             *string             `json:"district"`
	StatusOnDate         *string             `json:"status_on_date"`
	DeliveryStatusOnDate *string             `json:"delivery_status_on_date"`
	DeliveryDate         *openapi_types.Date `json:"delivery_date"`
	DeliveryTime         *TimeOfDay          `json:"delivery_time"`
	PredictWindow        *string             `json:"predict_window"`
	FailureReason        *string             `json:"failure_reason"`
	DeliveryType         *string             `json:"delivery_type"`
	IsDuplicate          bool                `json:"is_duplicate"`
}
