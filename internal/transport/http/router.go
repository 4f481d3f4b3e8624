// Package httptransport assembles the permit server's HTTP surface. Routing
// and middleware ordering live here; every endpoint's behavior lives with its
// module's handler.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	agenthandler "permis/internal/agent/handler"
	permithandler "permis/internal/permit/handler"
	scanhandler "permis/internal/scanlog/handler"
	verifyhandler "permis/internal/verify/handler"
	adminmw "permis/pkg/platform/middleware/admin"
	authmw "permis/pkg/platform/middleware/auth"
	"permis/pkg/platform/middleware/metadata"
	"permis/pkg/platform/middleware/requestid"
	"permis/pkg/platform/middleware/requesttime"
)

// Deps carries the assembled handlers and the cross-cutting dependencies the
// router itself needs. Health may be nil; the endpoint then reports plain ok.
type Deps struct {
	Logger       *slog.Logger
	JWTValidator authmw.JWTValidator
	// AdminToken guards the provisioning endpoints. Empty keeps them closed.
	AdminToken     string
	RequestTimeout time.Duration

	Agents  *agenthandler.Handler
	Permits *permithandler.Handler
	Verify  *verifyhandler.Handler
	Scans   *scanhandler.Handler
	Health  *HealthHandler
}

// NewRouter wires the full route tree.
//
// Layout:
//   - /healthz, /metrics: unauthenticated, for probes and Prometheus
//   - /api/v1/agents/login: unauthenticated
//   - /api/v1/** (everything else): agent bearer token
//   - /api/v1 admin surface (agent provisioning): operator admin token
//
// Middleware order matters: the request ID must exist before anything logs,
// and client metadata must exist before any handler that records a scan.
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
		health = NewHealthHandler(d.Logger, nil)
	}
	r.Get("/healthz", health.HandleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		d.Agents.Register(api)

		api.Group(func(protected chi.Router) {
			protected.Use(authmw.RequireAuth(d.JWTValidator, d.Logger))
			d.Agents.RegisterProtected(protected)
			d.Permits.Register(protected)
			d.Verify.Register(protected)
			d.Scans.Register(protected)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(adminmw.RequireAdminToken(d.AdminToken, d.Logger))
			d.Agents.RegisterAdmin(admin)
		})
	})

	return r
}
