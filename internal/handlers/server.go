package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/courier-analytics/api/internal/analytics"
	"github.com/courier-analytics/api/internal/config"
	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/ingest"
	"github.com/courier-analytics/api/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Server struct {
	Config      config.Config
	Store       store.Store
	Importer    *ingest.Importer
	Analytics   *analytics.Engine
	Invalidator ingest.Invalidator
	Logger      *slog.Logger
}

func NewServer(cfg config.Config, st store.Store, importer *ingest.Importer, engine *analytics.Engine, inv ingest.Invalidator, logger *slog.Logger) *Server {
	return &Server{Config: cfg, Store: st, Importer: importer, Analytics: engine, Invalidator: inv, Logger: logger}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": s.Config.StoreDriver})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteFailure(w, r, s.Logger, err)
}

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", message, nil)
}

// invalidate drops cached analytics after a write. Failures only log.
func (s *Server) invalidate(ctx context.Context) {
	if s.Invalidator == nil {
		return
	}
	if err := s.Invalidator.Invalidate(ctx); err != nil {
		s.Logger.Warn("cache_invalidate_failed", "error", err)
	}
}

// writeRows decodes store rows into T and writes them as a JSON array.
func writeRows[T any](s *Server, w http.ResponseWriter, r *http.Request, rows []store.Row, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := store.DecodeRows[T](rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func writeRow[T any](s *Server, w http.ResponseWriter, r *http.Request, status int, row store.Row, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out, err := store.Decode[T](row)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, status, out)
}

type queryError struct{ message string }

func (e *queryError) Error() string { return e.message }

// params reads typed query parameters, remembering the first failure.
type params struct {
	values map[string][]string
	err    *queryError
}

func queryParams(r *http.Request) *params {
	return &params{values: r.URL.Query()}
}

func (p *params) raw(name string) string {
	if vs := p.values[name]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (p *params) fail(format string, args ...any) {
	if p.err == nil {
		p.err = &queryError{message: fmt.Sprintf(format, args...)}
	}
}

func (p *params) date(name string) *openapi_types.Date {
	v := p.raw(name)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		p.fail("%s must be a date in YYYY-MM-DD format", name)
		return nil
	}
	return &openapi_types.Date{Time: t}
}

func (p *params) integer(name string, fallback, min, max int) int {
	v := p.raw(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		p.fail("%s must be an integer between %d and %d", name, min, max)
		return fallback
	}
	return n
}

func (p *params) boolean(name string) *bool {
	v := p.raw(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail("%s must be true or false", name)
		return nil
	}
	return &b
}

func (p *params) page() (limit, offset int) {
	return p.integer("limit", defaultListLimit, 1, maxListLimit), p.integer("offset", 0, 0, 1<<31-1)
}

// ok writes a 400 for the first bad parameter and reports whether parsing succeeded.
func (p *params) ok(s *Server, w http.ResponseWriter, r *http.Request) bool {
	if p.err != nil {
		s.badRequest(w, r, p.err.message)
		return false
	}
	return true
}

func contains(pattern string) string {
	return "%" + pattern + "%"
}
