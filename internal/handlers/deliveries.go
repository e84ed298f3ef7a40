package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

func (s *Server) GetDeliveries(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	start, end := p.date("start_date"), p.date("end_date")
	courierID, zoneID := p.raw("courier_id"), p.raw("zone_id")
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}

	q := store.Query{
		Order:  []store.Order{store.Desc("delivery_date")},
		Limit:  limit,
		Offset: offset,
	}
	if start != nil {
		q = q.Where(store.Gte("delivery_date", *start))
	}
	if end != nil {
		q = q.Where(store.Lte("delivery_date", *end))
	}
	if courierID != "" {
		q = q.Where(store.Eq("courier_id", courierID))
	}
	if zoneID != "" {
		q = q.Where(store.Eq("zone_id", zoneID))
	}
	rows, err := s.Store.Fetch(r.Context(), model.TableDeliveries, q)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.withDetails(r.Context(), rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) GetDelivery(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.Store.FetchByID(r.Context(), model.TableDeliveries, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := s.withDetails(r.Context(), []store.Row{row})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out[0])
}

// withDetails joins deliveries with courier and zone names and a per-row success rate.
func (s *Server) withDetails(ctx context.Context, rows []store.Row) ([]model.DeliveryWithDetails, error) {
	deliveries, err := store.DecodeRows[model.Delivery](rows)
	if err != nil {
		return nil, err
	}
	courierIDs := make([]string, 0, len(deliveries))
	zoneIDs := make([]string, 0, len(deliveries))
	for _, d := range deliveries {
		courierIDs = append(courierIDs, d.CourierID)
		zoneIDs = append(zoneIDs, d.ZoneID)
	}
	couriers, err := s.byID(ctx, model.TableCouriers, courierIDs)
	if err != nil {
		return nil, err
	}
	zones, err := s.byID(ctx, model.TableZones, zoneIDs)
	if err != nil {
		return nil, err
	}

	out := make([]model.DeliveryWithDetails, 0, len(deliveries))
	for _, d := range deliveries {
		dd := model.DeliveryWithDetails{
			Delivery:    d,
			SuccessRate: model.SuccessRate(int64(d.DeliveredCount), int64(d.LoadedCount)),
		}
		if c, ok := couriers[d.CourierID]; ok {
			dd.CourierName = c.String("full_name")
			if v := c.String("vehicle_number"); v != "" {
				dd.VehicleNumber = &v
			}
		}
		if z, ok := zones[d.ZoneID]; ok {
			dd.ZoneName = z.String("name")
		}
		out = append(out, dd)
	}
	return out, nil
}

func (s *Server) byID(ctx context.Context, table string, ids []string) (map[string]store.Row, error) {
	out := map[string]store.Row{}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.Store.Fetch(ctx, table, store.Query{Filters: []store.Filter{store.In("id", ids...)}})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.String("id")] = row
	}
	return out, nil
}

// checkRefs reports a validation error when the courier or zone does not exist.
func (s *Server) checkRefs(ctx context.Context, courierID, zoneID string) error {
	for _, ref := range []struct{ table, field, id string }{
		{model.TableCouriers, "courier_id", courierID},
		{model.TableZones, "zone_id", zoneID},
	} {
		if _, err := s.Store.FetchByID(ctx, ref.table, ref.id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &model.ValidationError{Fields: []model.FieldError{{
					Field:   ref.field,
					Message: fmt.Sprintf("%s %s does not exist", ref.field, ref.id),
				}}}
			}
			return err
		}
	}
	return nil
}

func (s *Server) PostDeliveries(w http.ResponseWriter, r *http.Request) {
	var in model.DeliveryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := in.Validate(); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.checkRefs(r.Context(), in.CourierID, in.ZoneID); err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := store.Encode(in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.Store.Insert(r.Context(), model.TableDeliveries, row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context())
	writeRow[model.Delivery](s, w, r, http.StatusCreated, rows[0], nil)
}

// PatchDelivery re-checks delivered <= loaded against the merged record.
func (s *Server) PatchDelivery(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.DeliveryPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	current, err := s.Store.FetchByID(ctx, model.TableDeliveries, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := store.Decode[model.Delivery](current)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	merged, err := patch.Apply(d)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if patch.CourierID != nil || patch.ZoneID != nil {
		if err := s.checkRefs(ctx, merged.CourierID, merged.ZoneID); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	changes, err := store.Encode(patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(changes) == 0 {
		writeRow[model.Delivery](s, w, r, http.StatusOK, current, nil)
		return
	}
	row, err := s.Store.Update(ctx, model.TableDeliveries, id, changes)
	if err == nil {
		s.invalidate(ctx)
	}
	writeRow[model.Delivery](s, w, r, http.StatusOK, row, err)
}

func (s *Server) DeleteDelivery(w http.ResponseWriter, r *http.Request, id string) {
	ok, err := s.Store.Delete(r.Context(), model.TableDeliveries, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, store.ErrNotFound)
		return
	}
	s.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ClearDeliveries deletes deliveries matching the optional date, zone and
// courier filters. It requires confirm=true.
func (s *Server) ClearDeliveries(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	confirm := p.boolean("confirm")
	start, end := p.date("start_date"), p.date("end_date")
	zoneID, courierID := p.raw("zone_id"), p.raw("courier_id")
	if !p.ok(s, w, r) {
		return
	}
	if confirm == nil || !*confirm {
		s.badRequest(w, r, "Set confirm=true to delete records")
		return
	}

	var filters []store.Filter
	if start != nil {
		filters = append(filters, store.Gte("delivery_date", *start))
	}
	if end != nil {
		filters = append(filters, store.Lte("delivery_date", *end))
	}
	if zoneID != "" {
		filters = append(filters, store.Eq("zone_id", zoneID))
	}
	if courierID != "" {
		filters = append(filters, store.Eq("courier_id", courierID))
	}

	ctx := r.Context()
	var err error
	if len(filters) == 0 {
		err = s.Importer.ClearDeliveries(ctx)
	} else {
		_, err = s.Store.DeleteWhere(ctx, model.TableDeliveries, filters...)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(ctx)
	w.WriteHeader(http.StatusNoContent)
}

// PostDeliveriesImport imports delivery rows given by courier and zone name.
func (s *Server) PostDeliveriesImport(w http.ResponseWriter, r *http.Request) {
	mode, err := ingest.ParseMode(r.URL.Query().Get("import_mode"))
	if err != nil {
		s.badRequest(w, r, err.Error())
		return
	}
	var records []model.DeliveryImport
	if err := httpx.DecodeJSON(r, &records); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Importer.ImportDeliveries(r.Context(), r.URL.Query().Get("filename"), records, mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}
