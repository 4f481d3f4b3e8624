// The permis agent daemon runs on a warden's field device. It verifies
// scanned permit codes against a locally cached snapshot, queues permit
// submissions made while offline, and syncs both directions whenever the
// issuing server is reachable.
//
// main wires dependencies and owns the process lifecycle; the kiosk UI talks
// to the loopback HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"permis/internal/offline"
	offlinehandler "permis/internal/offline/handler"
	"permis/internal/offline/store/sqlite"
	"permis/internal/permitapi"
	"permis/internal/platform/httpserver"
	"permis/internal/platform/logger"
	"permis/internal/signer"
	devicetransport "permis/internal/transport/device"
	httptransport "permis/internal/transport/http"
	"permis/internal/verify"
	verifyhandler "permis/internal/verify/handler"
	verifymetrics "permis/internal/verify/metrics"
)

func main() {
	configPath := flag.String("config", "permis-agent.yaml", "path to the agent configuration file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New()

	if err := run(log, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("agent daemon exited", "error", err)
		os.Exit(1)
	}
	log.Info("agent daemon stopped")
}

func run(log *slog.Logger, cfg Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub, err := signer.NewVerifierFromHex(cfg.Verification.PublicKey)
	if err != nil {
		return fmt.Errorf("verification public key: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	queueStore, err := sqlite.New(db)
	if err != nil {
		return err
	}
	snapshots, err := sqlite.NewSnapshotStore(db)
	if err != nil {
		return err
	}

	api := permitapi.New(cfg.Server.URL, cfg.Server.Email, cfg.password,
		permitapi.WithLogger(log),
	)

	// The token source logs in lazily, so constructing the daemon never
	// requires connectivity.
	submitter := offline.NewHTTPSubmitter(cfg.Server.URL, offline.WithTokenSource(api))

	queueOpts := []offline.Option{offline.WithLogger(log)}
	if cfg.Queue.Capacity > 0 {
		queueOpts = append(queueOpts, offline.WithCapacity(cfg.Queue.Capacity))
	}
	if cfg.Queue.MaxAttempts > 0 {
		queueOpts = append(queueOpts, offline.WithMaxAttempts(cfg.Queue.MaxAttempts))
	}
	queue := offline.New(queueStore, submitter, queueOpts...)

	verifyOpts := []verify.Option{
		verify.WithLogger(log),
		verify.WithMetrics(verifymetrics.New()),
	}
	if cfg.Verification.MaxCodeAge > 0 {
		verifyOpts = append(verifyOpts, verify.WithMaxCodeAge(cfg.Verification.MaxCodeAge.Std()))
	}
	verifier := verify.NewOffline(pub, snapshots, verifyOpts...)

	// Only local storage is a health matter. An unreachable server is a
	// normal operating state for this process, reported via /api/v1/status
	// rather than /healthz.
	checks := map[string]httptransport.Checker{
		"sqlite": db.PingContext,
	}

	kick := make(chan struct{}, 1)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return drainLoop(gctx, log, queue, cfg.Queue.DrainInterval.Std(), kick)
	})
	g.Go(func() error {
		return snapshotLoop(gctx, log, api, snapshots, cfg.Snapshot.RefreshInterval.Std(), kick)
	})

	router := devicetransport.NewRouter(devicetransport.Deps{
		Logger:         log,
		AgentID:        cfg.agentID,
		RequestTimeout: cfg.RequestTimeout.Std(),
		Verify:         verifyhandler.New(verifier, log),
		Queue:          offlinehandler.New(queue, log, offlinehandler.WithSnapshotReader(snapshots)),
		Health:         httptransport.NewHealthHandler(log, checks),
	})

	srv := httpserver.New(cfg.ListenAddr, router)

	g.Go(func() error {
		log.Info("agent daemon listening",
			"addr", cfg.ListenAddr,
			"server", cfg.Server.URL,
			"agent_id", cfg.agentID.String(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// drainLoop replays the queue on a timer and whenever the snapshot loop
// proves the server reachable. Drain failures are logged and retried on the
// next round; queued operations survive restarts, so nothing is lost.
func drainLoop(ctx context.Context, log *slog.Logger, queue *offline.Queue, interval time.Duration, kick <-chan struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-kick:
		}

		report, err := queue.Drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("queue drain failed", "error", err)
			continue
		}
		if report.Drained() > 0 || report.Failed > 0 {
			log.Info("queue drained",
				"committed", report.Committed,
				"duplicates", report.Duplicates,
				"failed", report.Failed,
			)
		}
	}
}

// snapshotLoop keeps the local permit snapshot fresh. It pulls once at
// startup, then on a timer; since carries the last snapshot's taken_at so an
// unchanged permit set costs a single 304. Every successful round trip kicks
// the drain loop, which is how the daemon notices connectivity returning.
func snapshotLoop(ctx context.Context, log *slog.Logger, api *permitapi.Client, snapshots *sqlite.SnapshotStore, interval time.Duration, kick chan<- struct{}) error {
	var since time.Time
	if snap, err := snapshots.Get(ctx); err == nil {
		since = snap.TakenAt
	}

	pull := func() {
		snap, changed, err := api.PullSnapshot(ctx, since)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("snapshot pull failed", "error", err)
			}
			return
		}

		select {
		case kick <- struct{}{}:
		default:
		}

		if !changed {
			return
		}
		if err := snapshots.Put(ctx, *snap); err != nil {
			log.Error("snapshot store failed", "error", err)
			return
		}
		since = snap.TakenAt
		log.Info("permit snapshot refreshed",
			"permits", len(snap.Permits),
			"taken_at", snap.TakenAt,
		)
	}

	pull()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			pull()
		}
	}
}
