package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/imoklv/imok/internal/health"
	"github.com/imoklv/imok/internal/http/handler"
	"github.com/imoklv/imok/internal/http/middleware"
	"github.com/imoklv/imok/internal/http/response"
)

type CreateRateLimiterFunc func(http.Handler) http.Handler

type Dependencies struct {
	Devices *handler.DeviceHandler

	CORSOrigins []string
	BodyLimit   int64

	// Limits device creation (POST /generate, POST /device). Pings are
	// throttled per device in the store, not here.
	CreateRateLimit   int
	CreateRateWindow  time.Duration
	CreateRateLimiter CreateRateLimiterFunc

	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	bodyLimit := dep.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}
	r.Use(middleware.BodyLimit(bodyLimit))

	createLimiter := dep.CreateRateLimiter
	if createLimiter == nil {
		createLimiter = middleware.NewRateLimiter(dep.CreateRateLimit, dep.CreateRateWindow).Middleware()
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unready", "checks": results})
	})

	r.With(createLimiter).Post("/generate", dep.Devices.Register)
	r.With(createLimiter).Post("/device", dep.Devices.CreateTrusted)

	r.Get("/u/{hash}", dep.Devices.Ping)
	r.Get("/status/{hash}", dep.Devices.Status)
	r.Post("/notifications/{hash}", dep.Devices.SetNotifications)
	r.Post("/name/{hash}", dep.Devices.Rename)
	r.Delete("/device/{hash}", dep.Devices.Delete)

	r.Get("/verify/{token}", dep.Devices.Verify)
	// Legacy emailed links used /validate; both consume the same token.
	r.Get("/validate/{token}", dep.Devices.Verify)

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
