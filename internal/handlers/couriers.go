package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

func (s *Server) GetCouriers(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	active := p.boolean("is_active")
	search := p.raw("search")
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}

	q := store.Query{Order: []store.Order{store.Asc("full_name")}, Limit: limit, Offset: offset}
	if active != nil {
		q = q.Where(store.Eq("is_active", *active))
	}
	if search != "" {
		q = q.Where(store.ILike("full_name", contains(search)))
	}
	rows, err := s.Store.Fetch(r.Context(), model.TableCouriers, q)
	writeRows[model.Courier](s, w, r, rows, err)
}

func (s *Server) GetCourier(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.Store.FetchByID(r.Context(), model.TableCouriers, id)
	writeRow[model.Courier](s, w, r, http.StatusOK, row, err)
}

func (s *Server) PostCouriers(w http.ResponseWriter, r *http.Request) {
	var in model.CourierInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.Normalize()
	if err := model.Validate(in); err != nil {
		s.fail(w, r, err)
		return
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	rows, err := s.Store.Insert(r.Context(), model.TableCouriers, store.Row{
		"full_name":      in.FullName,
		"vehicle_number": in.VehicleNumber,
		"is_active":      active,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeRow[model.Courier](s, w, r, http.StatusCreated, rows[0], nil)
}

func (s *Server) PatchCourier(w http.ResponseWriter, r *http.Request, id string) {
	var patch model.CourierPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		patch.FullName = &name
	}
	if err := model.Validate(patch); err != nil {
		s.fail(w, r, err)
		return
	}
	s.updateCourier(w, r, id, patch)
}

func (s *Server) updateCourier(w http.ResponseWriter, r *http.Request, id string, patch model.CourierPatch) {
	changes, err := store.Encode(patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var row store.Row
	if len(changes) == 0 {
		row, err = s.Store.FetchByID(r.Context(), model.TableCouriers, id)
	} else {
		row, err = s.Store.Update(r.Context(), model.TableCouriers, id, changes)
	}
	if err == nil && len(changes) > 0 {
		s.invalidate(r.Context())
	}
	writeRow[model.Courier](s, w, r, http.StatusOK, row, err)
}

func (s *Server) PostCourierActivate(w http.ResponseWriter, r *http.Request, id string) {
	active := true
	s.updateCourier(w, r, id, model.CourierPatch{IsActive: &active})
}

func (s *Server) PostCourierDeactivate(w http.ResponseWriter, r *http.Request, id string) {
	active := false
	s.updateCourier(w, r, id, model.CourierPatch{IsActive: &active})
}

// DeleteCourier refuses to remove a courier that deliveries still reference.
func (s *Server) DeleteCourier(w http.ResponseWriter, r *http.Request, id string) {
	s.deleteReferenced(w, r, model.TableCouriers, "courier_id", id)
}

func (s *Server) deleteReferenced(w http.ResponseWriter, r *http.Request, table, refColumn, id string) {
	ctx := r.Context()
	if _, err := s.Store.FetchByID(ctx, table, id); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.Store.Count(ctx, model.TableDeliveries, store.Eq(refColumn, id))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if n > 0 {
		s.fail(w, r, &store.ConflictError{Table: table, Message: fmt.Sprintf("still referenced by %d deliveries", n)})
		return
	}
	ok, err := s.Store.Delete(ctx, table, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, store.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
