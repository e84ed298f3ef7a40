package ingest

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/courier-analytics/api/internal/model"
)

// errSkipRow marks a row without its key column. Such rows are counted as
// skipped and produce no error message.
var errSkipRow = errors.New("skip row")

func mapShipment(r Record) (model.Shipment, error) {
	number := r.Get("shipment_number")
	if isBlank(number) {
		return model.Shipment{}, errSkipRow
	}
	return model.Shipment{
		ShipmentNumber:         number,
		PickupDocNumber:        r.Optional("pickup_doc_number"),
		PickupShipmentCount:    wholeOrZero(r.Get("pickup_shipment_count")),
		PickupExecutionDate:    ParseDate(r.Get("pickup_execution_date"), LayoutDotted),
		PickupTimeSlot:         r.Optional("pickup_time_slot"),
		SenderCountry:          r.Optional("sender_country"),
		SenderType:             r.Optional("sender_type"),
		SenderCompany:          r.Optional("sender_company"),
		SenderCity:             r.Optional("sender_city"),
		ShipmentType:           r.Optional("shipment_type"),
		DeclaredValue:          ParseFloat(r.Get("declared_value")),
		TotalWeightActual:      ParseFloat(r.Get("total_weight_actual")),
		TotalWeightVolumetric:  ParseFloat(r.Get("total_weight_volumetric")),
		Dimensions:             r.Optional("dimensions"),
		PlacesCount:            wholeOrZero(r.Get("places_count")),
		ReceiverCountry:        r.Optional("receiver_country"),
		ReceiverType:           r.Optional("receiver_type"),
		DeliveryCost:           ParseFloat(r.Get("delivery_cost")),
		PayerType:              r.Optional("payer_type"),
		PaymentStatus:          r.Optional("payment_status"),
		LastShipmentStatus:     r.Optional("last_shipment_status"),
		LastShipmentStatusDate: ParseDate(r.Get("last_shipment_status_date"), LayoutDotted),
		ExecutionSpeed:         r.Optional("execution_speed"),
	}, nil
}

func mapEvent(r Record) (model.DeliveryEvent, error) {
	number := r.Get("shipment_number")
	if isBlank(number) {
		return model.DeliveryEvent{}, errSkipRow
	}
	reportDate := ParseDate(r.Get("report_date"), LayoutDashed)
	if reportDate == nil {
		return model.DeliveryEvent{}, fmt.Errorf("invalid report_date %q", r.Get("report_date"))
	}
	return model.DeliveryEvent{
		ShipmentNumber:       number,
		ReportDate:           *reportDate,
		CourierName:          r.Optional("courier_name"),
		CarNumber:            r.Optional("car_number"),
		LoadingSheetNumber:   r.Optional("loading_sheet_number"),
		Branch:               r.Optional("branch"),
		ShipmentCreatedDate:  ParseDate(r.Get("shipment_created_date"), LayoutDashed),
		LastWarehouse:        r.Optional("last_warehouse"),
		PlannedArrivalDate:   fallbackDate(r.Get("planned_arrival_date")),
		ReceiverCity:         r.Optional("receiver_city"),
		ReceiverAddress:      r.Optional("receiver_address"),
		District:             r.Optional("district"),
		StatusOnDate:         r.Optional("status_on_date"),
		DeliveryStatusOnDate: r.Optional("delivery_status_on_date"),
		DeliveryDate:         ParseDate(r.Get("delivery_date"), LayoutDashed),
		DeliveryTime:         ParseTime(r.Get("delivery_time")),
		PredictWindow:        r.Optional("predict_window"),
		FailureReason:        r.Optional("failure_reason"),
		DeliveryType:         r.Optional("delivery_type"),
		IsDuplicate:          strings.ToLower(r.Get("is_duplicate")) == "так",
	}, nil
}

func mapDelivery(r Record) (model.DeliveryImport, error) {
	courier := r.Get("courier_name")
	zone := r.Get("zone_name")
	if isBlank(courier) {
		return model.DeliveryImport{}, errSkipRow
	}
	date := ParseDate(r.Get("delivery_date"), LayoutDotted)
	if date == nil {
		return model.DeliveryImport{}, fmt.Errorf("invalid delivery_date %q", r.Get("delivery_date"))
	}
	loaded, err := parseCount("loaded_count", r.Get("loaded_count"))
	if err != nil {
		return model.DeliveryImport{}, err
	}
	delivered := 0
	if raw := r.Get("delivered_count"); !isBlank(raw) {
		if delivered, err = parseCount("delivered_count", raw); err != nil {
			return model.DeliveryImport{}, err
		}
	}
	rec := model.DeliveryImport{
		DeliveryDate:   *date,
		CourierName:    courier,
		VehicleNumber:  r.Optional("vehicle_number"),
		ZoneName:       zone,
		LoadedCount:    loaded,
		DeliveredCount: delivered,
	}
	if err := rec.Validate(); err != nil {
		return model.DeliveryImport{}, err
	}
	return rec, nil
}

// wholeOrZero truncates a lenient numeric cell to an integer.
func wholeOrZero(raw string) int {
	f := ParseFloat(raw)
	if f < 0 {
		return 0
	}
	return int(math.Trunc(f))
}
