// The permis server issues fishing permits with signed verification codes
// and answers scans against the authoritative store.
//
// main wires dependencies and owns the process lifecycle: construction order,
// background loops, and shutdown order. Business logic lives in the internal
// service packages.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	agenthandler "permis/internal/agent/handler"
	"permis/internal/agent/lockout"
	agentmetrics "permis/internal/agent/metrics"
	agentservice "permis/internal/agent/service"
	agentstore "permis/internal/agent/store/agent"
	jwttoken "permis/internal/jwt_token"
	permithandler "permis/internal/permit/handler"
	permitmetrics "permis/internal/permit/metrics"
	permitservice "permis/internal/permit/service"
	permitstore "permis/internal/permit/store/permit"
	snapshotstore "permis/internal/permit/store/snapshot"
	"permis/internal/platform/config"
	"permis/internal/platform/httpserver"
	kafkaconsumer "permis/internal/platform/kafka/consumer"
	kafkaproducer "permis/internal/platform/kafka/producer"
	"permis/internal/platform/logger"
	"permis/internal/platform/postgres"
	"permis/internal/platform/redis"
	"permis/internal/scanlog"
	scanconsumer "permis/internal/scanlog/consumer"
	scanhandler "permis/internal/scanlog/handler"
	scanmetrics "permis/internal/scanlog/metrics"
	scanrelay "permis/internal/scanlog/relay"
	scanstore "permis/internal/scanlog/store/postgres"
	"permis/internal/signer"
	httptransport "permis/internal/transport/http"
	"permis/internal/verify"
	verifyhandler "permis/internal/verify/handler"
	verifymetrics "permis/internal/verify/metrics"
)

const scanTopicPartitions = 3

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New()

	if err := run(log, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(log *slog.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keypair, err := loadSigner(log, cfg)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	db, err := postgres.NewDB(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return err
	}

	permitStore := permitstore.NewPostgres(pool)
	agentStore := agentstore.NewPostgres(pool)
	scanStore := scanstore.New(db)

	scanMetrics := scanmetrics.New()
	publisherOpts := []scanlog.Option{
		scanlog.WithLogger(log),
		scanlog.WithMetrics(scanMetrics),
	}
	if cfg.Scan.BufferCapacity > 0 {
		publisherOpts = append(publisherOpts, scanlog.WithAsyncBuffer(cfg.Scan.BufferCapacity))
	}
	publisher := scanlog.NewPublisher(scanStore, publisherOpts...)
	defer publisher.Close()

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	agents := agentservice.New(agentStore, jwtService,
		agentservice.WithLogger(log),
		agentservice.WithTokenTTL(cfg.Auth.TokenTTL),
		agentservice.WithLoginThrottle(lockout.New(lockout.WithLogger(log))),
		agentservice.WithMetrics(agentmetrics.New()),
	)
	permits := permitservice.New(permitStore,
		permitservice.WithLogger(log),
		permitservice.WithMetrics(permitmetrics.New()),
	)

	checks := map[string]httptransport.Checker{
		"postgres": pool.Ping,
	}

	verifyOpts := []verify.Option{
		verify.WithScanRecorder(publisher),
		verify.WithMaxCodeAge(cfg.Verify.MaxCodeAge),
		verify.WithLogger(log),
		verify.WithMetrics(verifymetrics.New()),
	}

	g, gctx := errgroup.WithContext(ctx)

	// Redis is optional. When configured it caches the unexpired permit set
	// so verification can still resolve records through a Postgres outage.
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = redisClient.Health

		snapshots := snapshotstore.New(redisClient.Client, cfg.Redis.SnapshotTTL)
		verifyOpts = append(verifyOpts, verify.WithSnapshotFallback(snapshots))

		refresher := snapshotstore.NewRefresher(permits, snapshots,
			snapshotstore.WithRefreshInterval(cfg.Redis.SnapshotRefresh),
			snapshotstore.WithRefresherLogger(log),
		)
		g.Go(func() error { return refresher.Run(gctx) })
		log.Info("snapshot refresher started", "interval", cfg.Redis.SnapshotRefresh)
	}

	// Kafka is optional. When configured the outbox relay publishes scan
	// events and the consumer materializes them into scan_events.
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkaproducer.New(ctx, cfg.Kafka.Brokers, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		checks["kafka"] = producer.Ping

		if err := producer.EnsureTopic(ctx, cfg.Kafka.ScanTopic, scanTopicPartitions); err != nil {
			return err
		}

		relay := scanrelay.New(scanStore, producer, cfg.Kafka.ScanTopic,
			scanrelay.WithInterval(cfg.Kafka.RelayInterval),
			scanrelay.WithBatchSize(cfg.Kafka.RelayBatch),
			scanrelay.WithLogger(log),
			scanrelay.WithMetrics(scanMetrics),
		)
		g.Go(func() error { return relay.Run(gctx) })

		materializer, err := kafkaconsumer.New(
			cfg.Kafka.Brokers,
			cfg.Kafka.ConsumerGroup,
			[]string{cfg.Kafka.ScanTopic},
			scanconsumer.NewScanHandler(scanStore, log, scanMetrics),
			log,
		)
		if err != nil {
			return err
		}
		defer materializer.Close()
		g.Go(func() error { return materializer.Run(gctx) })

		log.Info("scan pipeline started", "topic", cfg.Kafka.ScanTopic, "group", cfg.Kafka.ConsumerGroup)
	}

	verifier := verify.New(keypair, permitStore, verifyOpts...)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:         log,
		JWTValidator:   jwtService,
		AdminToken:     cfg.Auth.AdminToken,
		RequestTimeout: cfg.Server.RequestTimeout,
		Agents:         agenthandler.New(agents, log),
		Permits:        permithandler.New(permits, keypair, log),
		Verify:         verifyhandler.New(verifier, log),
		Scans:          scanhandler.New(publisher, log),
		Health:         httptransport.NewHealthHandler(log, checks),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// loadSigner derives the issuance keypair from the configured master seed.
// A development run without a seed gets a random one, so codes stop
// verifying after a restart; production refuses to start without explicit
// key material.
func loadSigner(log *slog.Logger, cfg config.Config) (*signer.Ed25519KeyPair, error) {
	seed := cfg.Signer.Seed
	if seed == "" {
		if cfg.Server.IsProduction() {
			return nil, errors.New("SIGNER_SEED is required in production")
		}
		raw := make([]byte, signer.MasterSeedBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, err
		}
		seed = hex.EncodeToString(raw)
		log.Warn("SIGNER_SEED not set, generated ephemeral development seed; issued codes will not verify across restarts")
	}
	return signer.NewFromMasterSeed(seed, cfg.Signer.KeyID)
}
