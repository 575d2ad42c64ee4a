package chi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-relay/webhook"
	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Options configures the HTTP surface
type Options struct {
	// Logger is used for request logs; usually built with httplog.NewLogger
	Logger zerolog.Logger
	// Metrics serves GET /metrics when set
	Metrics http.Handler
	// Timeout bounds each request; defaults to 30s
	Timeout time.Duration
}

// Handlers sets up the webhook relay routes
func Handlers(webhookService webhook.UseCase, opts Options) *chi.Mux {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	r := newRouter(opts.Logger, timeout)
	mountOps(r, opts.Metrics)
	r.Method(http.MethodPost, "/webhook/{orgSlug}/{endpointSlug}", postWebhook(webhookService))

	return r
}

// OpsHandlers serves only /health and /metrics, for processes without a public API
func OpsHandlers(opts Options) *chi.Mux {
	r := newRouter(opts.Logger, defaultTimeout)
	mountOps(r, opts.Metrics)
	return r
}

func newRouter(logger zerolog.Logger, timeout time.Duration) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	return r
}

func mountOps(r chi.Router, metrics http.Handler) {
	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
}
