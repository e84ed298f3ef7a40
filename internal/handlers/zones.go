package handlers

import (
	"net/http"
	"strings"

	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/model"
	"github.com/courier-analytics/api/internal/store"
)

func (s *Server) GetZones(w http.ResponseWriter, r *http.Request) {
	p := queryParams(r)
	search := p.raw("search")
	limit, offset := p.page()
	if !p.ok(s, w, r) {
		return
	}
	q := store.Query{Order: []store.Order{store.Asc("name")}, Limit: limit, Offset: offset}
	if search != "" {
		q = q.Where(store.ILike("name", contains(search)))
	}
	rows, err := s.Store.Fetch(r.Context(), model.TableZones, q)
	writeRows[model.Zone](s, w, r, rows, err)
}

func (s *Server) GetZone(w http.ResponseWriter, r *http.Request, id string) {
	row, err := s.Store.FetchByID(r.Context(), model.TableZones, id)
	writeRow[model.Zone](s, w, r, http.StatusOK, row, err)
}

func decodeZone(r *http.Request) (model.ZoneInput, error) {
	var in model.ZoneInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		return in, err
	}
	in.Name = strings.TrimSpace(in.Name)
	return in, model.Validate(in)
}

func (s *Server) PostZones(w http.ResponseWriter, r *http.Request) {
	in, err := decodeZone(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.Store.Insert(r.Context(), model.TableZones, store.Row{"name": in.Name})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeRow[model.Zone](s, w, r, http.StatusCreated, rows[0], nil)
}

func (s *Server) PatchZone(w http.ResponseWriter, r *http.Request, id string) {
	in, err := decodeZone(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	row, err := s.Store.Update(r.Context(), model.TableZones, id, store.Row{"name": in.Name})
	if err == nil {
		s.invalidate(r.Context())
	}
	writeRow[model.Zone](s, w, r, http.StatusOK, row, err)
}

func (s *Server) DeleteZone(w http.ResponseWriter, r *http.Request, id string) {
	s.deleteReferenced(w, r, model.TableZones, "zone_id", id)
}
