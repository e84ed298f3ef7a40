package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	openapimiddleware "github.com/oapi-codegen/nethttp-middleware"

	"github.com/courier-analytics/api/api"
	"github.com/courier-analytics/api/internal/config"
	"github.com/courier-analytics/api/internal/handlers"
	"github.com/courier-analytics/api/internal/httpx"
	"github.com/courier-analytics/api/internal/middleware"
)

// withID adapts a handler method taking a path parameter.
func withID(param string, fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, param))
	}
}

func loadSpec() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(api.OpenAPI)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
}

func NewRouter(cfg config.Config, h *handlers.Server, logger *slog.Logger) (http.Handler, error) {
	doc, err := loadSpec()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders(cfg.Env))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.LimitBodyBytes(cfg.APIMaxBodyBytes, middleware.BodyLimitOverride{
		PathPrefix: "/ingest",
		// multipart framing on top of the file itself
		MaxBytes: cfg.ImportMaxFileBytes + 1<<20,
	}))

	api := chi.NewRouter()
	api.Use(openapimiddleware.OapiRequestValidatorWithOptions(doc, &openapimiddleware.Options{
		SilenceServersWarning: true,
		ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
			requestID := w.Header().Get("X-Request-Id")
			httpx.WriteJSON(w, statusCode, httpx.ErrorEnvelope{
				Error:     httpx.ErrorBody{Code: "validation_error", Message: message},
				RequestID: requestID,
			})
		},
	}))

	uploads := func(next http.Handler) http.Handler { return next }
	if cfg.ImportRatePerMin > 0 {
		limiter := middleware.NewIPRateLimiterWithMaxEntries(cfg.ImportRatePerMin, time.Minute, cfg.RateLimitMaxIPs)
		uploads = limiter.Middleware("Too many imports, try again later")
	}

	api.Get("/health", h.GetHealth)

	api.Route("/couriers", func(r chi.Router) {
		r.Get("/", h.GetCouriers)
		r.Post("/", h.PostCouriers)
		r.Get("/{id}", withID("id", h.GetCourier))
		r.Patch("/{id}", withID("id", h.PatchCourier))
		r.Delete("/{id}", withID("id", h.DeleteCourier))
		r.Post("/{id}/activate", withID("id", h.PostCourierActivate))
		r.Post("/{id}/deactivate", withID("id", h.PostCourierDeactivate))
	})

	api.Route("/zones", func(r chi.Router) {
		r.Get("/", h.GetZones)
		r.Post("/", h.PostZones)
		r.Get("/{id}", withID("id", h.GetZone))
		r.Patch("/{id}", withID("id", h.PatchZone))
		r.Delete("/{id}", withID("id", h.DeleteZone))
	})

	api.Route("/deliveries", func(r chi.Router) {
		r.Get("/", h.GetDeliveries)
		r.Post("/", h.PostDeliveries)
		r.Delete("/", h.ClearDeliveries)
		r.With(uploads).Post("/import", h.PostDeliveriesImport)
		r.Get("/{id}", withID("id", h.GetDelivery))
		r.Patch("/{id}", withID("id", h.PatchDelivery))
		r.Delete("/{id}", withID("id", h.DeleteDelivery))
	})

	api.With(uploads).Post("/ingest/{kind}", withID("kind", h.PostIngest))

	api.Route("/imports", func(r chi.Router) {
		r.Get("/", h.GetImports)
		r.Get("/{id}", withID("id", h.GetImport))
		r.Delete("/{id}", withID("id", h.DeleteImport))
		r.Get("/{id}/errors.csv", withID("id", h.GetImportErrorsCsv))
	})

	api.Route("/performance", func(r chi.Router) {
		r.Get("/", h.GetPerformance)
		r.Post("/", h.PostPerformance)
		r.With(uploads).Post("/bulk", h.PostPerformanceBulk)
		r.Delete("/batch/{batchId}", withID("batchId", h.DeletePerformanceBatch))
		r.Get("/stats/summary", h.GetPerformanceSummary)
		r.Get("/stats/top-couriers", h.GetPerformanceTopCouriers)
		r.Get("/{id}", withID("id", h.GetPerformanceRecord))
		r.Put("/{id}", withID("id", h.PutPerformanceRecord))
		r.Delete("/{id}", withID("id", h.DeletePerformanceRecord))
	})

	api.Route("/pickup-orders", func(r chi.Router) {
		r.Get("/", h.GetPickupOrders)
		r.Post("/", h.PostPickupOrders)
		r.With(uploads).Post("/bulk", h.PostPickupOrdersBulk)
		r.Delete("/batch/{batchId}", withID("batchId", h.DeletePickupBatch))
		r.Get("/stats/summary", h.GetPickupSummary)
		r.Get("/stats/by-country", h.GetPickupByCountry)
		r.Get("/stats/by-status", h.GetPickupByStatus)
		r.Get("/{id}", withID("id", h.GetPickupOrder))
		r.Put("/{id}", withID("id", h.PutPickupOrder))
		r.Delete("/{id}", withID("id", h.DeletePickupOrder))
	})

	api.Route("/analytics", func(r chi.Router) {
		r.Get("/summary", h.GetAnalyticsSummary)
		r.Get("/top-couriers", h.GetAnalyticsTopCouriers)
		r.Get("/daily", h.GetAnalyticsDaily)
		r.Get("/couriers", h.GetAnalyticsCouriers)
		r.Get("/zones", h.GetAnalyticsZones)
		r.Get("/full", h.GetAnalyticsFull)
		r.Get("/compare", h.GetAnalyticsCompare)
	})

	api.Route("/v2/analytics", func(r chi.Router) {
		r.Get("/delivery/summary", h.GetDeliveryDailySummary())
		r.Get("/delivery/couriers", h.GetCourierDailyStats())
		r.Get("/delivery/failures", h.GetFailureReasons())
		r.Get("/pickup/summary", h.GetShipmentSummary())
	})

	r.Mount("/api", api)
	return r, nil
}
