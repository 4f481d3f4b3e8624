// Package devicetransport assembles the agent daemon's local HTTP surface:
// offline verification, the write queue, and device status. It is the
// loopback counterpart of the server's route tree, so the kiosk UI speaks
// the same verbs whether a request lands on the device or on the server.
package devicetransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	offlinehandler "permis/internal/offline/handler"
	httptransport "permis/internal/transport/http"
	verifyhandler "permis/internal/verify/handler"
	id "permis/pkg/domain"
	"permis/pkg/platform/middleware/metadata"
	"permis/pkg/platform/middleware/requestid"
	"permis/pkg/platform/middleware/requesttime"
	"permis/pkg/requestcontext"
)

// Deps carries the assembled handlers and the device's identity. Health may
// be nil; the endpoint then reports plain ok.
type Deps struct {
	Logger *slog.Logger
	// AgentID is the agent this device was provisioned for. Every request
	// is attributed to it; the daemon listens on loopback, so reaching the
	// socket is holding the device.
	AgentID        id.AgentID
	RequestTimeout time.Duration

	Verify *verifyhandler.Handler
	Queue  *offlinehandler.Handler
	Health *httptransport.HealthHandler
}

// NewRouter wires the device route tree.
//
// Layout:
//   - /healthz, /metrics: for the kiosk watchdog and local scraping
//   - /api/v1/verify: scan verification against the cached snapshot
//   - /api/v1/permits, /api/v1/queue/**, /api/v1/status: the write queue
//
// No bearer auth: the provisioned agent is stamped on every request instead,
// which is what downstream handlers attribute scans and submissions to.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(chimw.Timeout(d.RequestTimeout))
	}

	health := d.Health
	if health == nil {
		health = httptransport.NewHealthHandler(d.Logger, nil)
	}
	r.Get("/healthz", health.HandleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(provisionedAgent(d.AgentID))
		d.Verify.Register(api)
		d.Queue.Register(api)
	})

	return r
}

// provisionedAgent attributes every request to the device's agent, standing
// in for the bearer-token middleware of the server tree.
func provisionedAgent(agentID id.AgentID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithAgentID(r.Context(), agentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
