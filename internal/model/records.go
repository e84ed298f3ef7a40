package model

import (
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"
)

// CourierPerformanceInput is one daily courier report row.
type CourierPerformanceInput struct {
	ReportDate            openapi_types.Date `json:"report_date"`
	CourierName           string             `json:"courier_name" validate:"required,max=255"`
	CarNumber             *string            `json:"car_number" validate:"omitempty,max=50"`
	Department            *string            `json:"department"`
	ReportsCount          int                `json:"reports_count" validate:"gte=0"`
	AddressesCount        int                `json:"addresses_count" validate:"gte=0"`
	LoadedParcels         int                `json:"loaded_parcels" validate:"gte=0"`
	DeliveredParcels      int                `json:"delivered_parcels" validate:"gte=0"`
	DeliveredInHand       int                `json:"delivered_in_hand" validate:"gte=0"`
	DeliveredSafePlace    int                `json:"delivered_safe_place" validate:"gte=0"`
	UndeliveredParcels    int                `json:"undelivered_parcels" validate:"gte=0"`
	UndeliveredWithReason int                `json:"undelivered_with_reason" validate:"gte=0"`
	UndeliveredNoReason   int                `json:"undelivered_no_reason" validate:"gte=0"`
	DeliverySuccessRate   float64            `json:"delivery_success_rate" validate:"gte=0,lte=100"`
}

func (in *CourierPerformanceInput) Validate() error {
	in.CourierName = strings.TrimSpace(in.CourierName)
	if in.ReportDate.Time.IsZero() {
		return invalid("report_date", "report_date is required")
	}
	return Validate(in)
}

type CourierPerformance struct {
	ID string `json:"id"`
	CourierPerformanceInput
	ImportBatchID *string    `json:"import_batch_id"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type CourierPerformancePatch struct {
	ReportDate            *openapi_types.Date `json:"report_date,omitempty"`
	CourierName           *string             `json:"courier_name,omitempty" validate:"omitempty,min=1,max=255"`
	CarNumber             *string             `json:"car_number,omitempty"`
	Department            *string             `json:"department,omitempty"`
	ReportsCount          *int                `json:"reports_count,omitempty" validate:"omitempty,gte=0"`
	AddressesCount        *int                `json:"addresses_count,omitempty" validate:"omitempty,gte=0"`
	LoadedParcels         *int                `json:"loaded_parcels,omitempty" validate:"omitempty,gte=0"`
	DeliveredParcels      *int                `json:"delivered_parcels,omitempty" validate:"omitempty,gte=0"`
	DeliveredInHand       *int                `json:"delivered_in_hand,omitempty" validate:"omitempty,gte=0"`
	DeliveredSafePlace    *int                `json:"delivered_safe_place,omitempty" validate:"omitempty,gte=0"`
	UndeliveredParcels    *int                `json:"undelivered_parcels,omitempty" validate:"omitempty,gte=0"`
	UndeliveredWithReason *int                `json:"undelivered_with_reason,omitempty" validate:"omitempty,gte=0"`
	UndeliveredNoReason   *int                `json:"undelivered_no_reason,omitempty" validate:"omitempty,gte=0"`
	DeliverySuccessRate   *float64            `json:"delivery_success_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// PickupOrderInput is one pickup document line.
type PickupOrderInput struct {
	PickupDocNumber      *string             `json:"pickup_doc_number"`
	ShipmentsInDoc       int                 `json:"shipments_in_doc" validate:"gte=0"`
	ExecutionDate        *openapi_types.Date `json:"execution_date"`
	TimeInterval         *string             `json:"time_interval"`
	CreationSource       *string             `json:"creation_source"`
	FirstWarehouse       *string             `json:"first_warehouse"`
	ShipmentNumber       *string             `json:"shipment_number"`
	PlacesCount          int                 `json:"places_count" validate:"gte=0"`
	ShipmentCreatedDate  *openapi_types.Date `json:"shipment_created_date"`
	ShipmentDepartment   *string             `json:"shipment_department"`
	FirstScanDate        *openapi_types.Date `json:"first_scan_date"`
	FirstScanWarehouse   *string             `json:"first_scan_warehouse"`
	PlannedDeliveryDate  *openapi_types.Date `json:"planned_delivery_date"`
	SenderCountry        *string             `json:"sender_country"`
	SenderType           *string             `json:"sender_type"`
	SenderCompany        *string             `json:"sender_company"`
	SenderCity           *string             `json:"sender_city"`
	SenderAddress        *string             `json:"sender_address"`
	ShipmentType         *string             `json:"shipment_type"`
	ShipmentDescription  *string             `json:"shipment_description"`
	DeclaredValue        *float64            `json:"declared_value" validate:"omitempty,gte=0"`
	ActualWeight         *float64            `json:"actual_weight" validate:"omitempty,gte=0"`
	VolumetricWeight     *float64            `json:"volumetric_weight" validate:"omitempty,gte=0"`
	Dimensions           *string             `json:"dimensions"`
	RecipientCountry     *string             `json:"recipient_country"`
	RecipientType        *string             `json:"recipient_type"`
	PickupStatus         *string             `json:"pickup_status"`
	PickupStatusDate     *openapi_types.Date `json:"pickup_status_date"`
	CourierName          *string             `json:"courier_name"`
	PartnerPickupNumber  *string             `json:"partner_pickup_number"`
	PartnerShipmentNum   *string             `json:"partner_shipment_number"`
	DeliveryCost         *float64            `json:"delivery_cost" validate:"omitempty,gte=0"`
	DeliveryCurrency     string              `json:"delivery_currency"`
	Payer                *string             `json:"payer"`
	PaymentDocNumber     *string             `json:"payment_doc_number"`
	PaymentDocStatus     *string             `json:"payment_doc_status"`
	PaymentDocStatusDate *openapi_types.Date `json:"payment_doc_status_date"`
	ShipmentPaymentStat  *string             `json:"shipment_payment_status"`
	ShipmentPaymentDate  *openapi_types.Date `json:"shipment_payment_date"`
	ShipmentStatus       *string             `json:"shipment_status"`
	ShipmentStatusDate   *openapi_types.Date `json:"shipment_status_date"`
	VerificationResult   *string             `json:"verification_result"`
	AcceptanceDate       *openapi_types.Date `json:"acceptance_date"`
	LastScanDate         *openapi_types.Date `json:"last_scan_date"`
	LastScanDepartment   *string             `json:"last_scan_department"`
	LastScanReport       *string             `json:"last_scan_report"`
	ExecutionSpeed       *string             `json:"execution_speed"`
	NonExecutionReason   *string             `json:"non_execution_reason"`
}

// DefaultPickupOrder carries the defaults applied to records that omit them.
func DefaultPickupOrder() PickupOrderInput {
	return PickupOrderInput{ShipmentsInDoc: 1, PlacesCount: 1, DeliveryCurrency: "UAH"}
}

func (in *PickupOrderInput) Validate() error {
	if strings.TrimSpace(in.DeliveryCurrency) == "" {
		in.DeliveryCurrency = "UAH"
	}
	return Validate(in)
}

type PickupOrder struct {
	ID string `json:"id"`
	PickupOrderInput
	ImportBatchID *string    `json:"import_batch_id"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

type PickupOrderPatch struct {
	PickupDocNumber  *string             `json:"pickup_doc_number,omitempty"`
	ShipmentsInDoc   *int                `json:"shipments_in_doc,omitempty" validate:"omitempty,gte=0"`
	ExecutionDate    *openapi_types.Date `json:"execution_date,omitempty"`
	ShipmentNumber   *string             `json:"shipment_number,omitempty"`
	SenderCountry    *string             `json:"sender_country,omitempty"`
	RecipientCountry *string             `json:"recipient_country,omitempty"`
	PickupStatus     *string             `json:"pickup_status,omitempty"`
	ShipmentStatus   *string             `json:"shipment_status,omitempty"`
	DeliveryCost     *float64            `json:"delivery_cost,omitempty" validate:"omitempty,gte=0"`
	ActualWeight     *float64            `json:"actual_weight,omitempty" validate:"omitempty,gte=0"`
}
