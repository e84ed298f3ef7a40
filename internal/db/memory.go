package db

import (
	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store/memstore"
)

// NewMemoryStore returns an in-process store with the same unique constraints,
// rollup views and functions as the PostgreSQL schema in migrations/.
func NewMemoryStore() *memstore.Store {
	s := memstore.New()
	s.DefineTable(model.TableCouriers, memstore.Unique{Name: "couriers_full_name_key", Columns: []string{"full_name"}, Fold: true})
	s.DefineTable(model.TableZones, memstore.Unique{Name: "zones_name_key", Columns: []string{"name"}, Fold: true})
	s.DefineTable(model.TableDeliveries, memstore.Unique{
		Name:    "deliveries_natural_key",
		Columns: []string{"delivery_date", "courier_id", "zone_id"},
	})
	s.DefineTable(model.TableShipments, memstore.Unique{Name: "shipments_shipment_number_key", Columns: []string{"shipment_number"}})
	s.DefineTable(model.TableDeliveryEvents)
	s.DefineTable(model.TableImportLogs)
	s.DefineTable(model.TableCourierPerformance)
	s.DefineTable(model.TablePickupOrders)

	analytics.InstallRollups(s)
	return s
}
