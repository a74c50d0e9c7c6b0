// The trustguide binary runs the directory service under one of three
// RUN_MODE values: "api" serves HTTP, "worker" runs the scheduled
// ingestion loop, and "refresh_once" runs a single ingestion cycle and
// exits. Grounded on the teacher's cmd/gold_ingestion/gold_ingestion.go
// and cmd/gold_frontend/impl/impl.go main-wiring shape: parse config,
// build the pgxpool, construct dependencies top-down, then dispatch.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/trustguide/directory/internal/api"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/config"
	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/connectors/cpra"
	"github.com/trustguide/directory/internal/connectors/lacounty"
	"github.com/trustguide/directory/internal/connectors/livesbatch"
	"github.com/trustguide/directory/internal/connectors/longbeach"
	"github.com/trustguide/directory/internal/connectors/sandiego"
	"github.com/trustguide/directory/internal/directory"
	"github.com/trustguide/directory/internal/ingestion"
	"github.com/trustguide/directory/internal/ratelimit"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/repository/memory"
	"github.com/trustguide/directory/internal/repository/postgres"
	"github.com/trustguide/directory/internal/scheduler"
	"github.com/trustguide/directory/internal/sklog"
	"github.com/trustguide/directory/internal/votes"
)

const voteRateLimitWindow = time.Minute
const voteRateLimitMax = 5

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		sklog.Fatalf("loading config: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		sklog.Fatalf("building repository: %s", err)
	}
	defer closeRepo()

	coordinator := ingestion.New(repo, buildConnectors(), clock.Real)

	switch cfg.RunMode {
	case config.RunModeRefreshOnce:
		runRefreshOnce(ctx, coordinator)
	case config.RunModeWorker:
		runWorker(ctx, cfg, coordinator)
	default:
		runAPI(ctx, cfg, repo, coordinator)
	}
}

func buildConnectors() []connectors.Connector {
	conns := []connectors.Connector{
		lacounty.FromEnv(),
		sandiego.FromEnv(),
		longbeach.FromEnv(),
		livesbatch.FromEnv(),
	}
	if riv, err := livesbatch.FromEnvRiverside(); err == nil {
		conns = append(conns, riv)
	} else {
		sklog.Infof("riverside connector disabled: %s", err)
	}
	if oc, err := cpra.FromEnvOrangeCounty(); err == nil {
		conns = append(conns, oc)
	} else {
		sklog.Infof("orange county connector disabled: %s", err)
	}
	if pas, err := cpra.FromEnvPasadena(); err == nil {
		conns = append(conns, pas)
	} else {
		sklog.Infof("pasadena connector disabled: %s", err)
	}
	return conns
}

func buildRepository(ctx context.Context, cfg config.Config) (repository.FacilityRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		sklog.Infof("DATABASE_URL not set, using in-memory repository")
		return memory.New(clock.Real), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	store := postgres.New(pool)
	if err := store.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("initializing schema: %w", err)
	}
	sklog.Infof("connected to postgres repository")
	return store, pool.Close, nil
}

func runRefreshOnce(ctx context.Context, coordinator *ingestion.Coordinator) {
	if err := coordinator.Refresh(ctx); err != nil {
		sklog.Fatalf("refresh failed: %s", err)
	}
	sklog.Infof("refresh complete")
}

func runWorker(ctx context.Context, cfg config.Config, coordinator *ingestion.Coordinator) {
	// scheduler.Run discards its own first tick, so the startup refresh has
	// to happen here -- otherwise a freshly started worker would perform no
	// refresh at all until a full interval has elapsed.
	if err := coordinator.Refresh(ctx); err != nil {
		sklog.Errorf("startup refresh failed: %s", err)
	}
	s := scheduler.New(coordinator, cfg.IngestionIntervalHours)
	s.Run(ctx)
}

func runAPI(ctx context.Context, cfg config.Config, repo repository.FacilityRepository, coordinator *ingestion.Coordinator) {
	dirSvc := directory.New(repo)
	voteLimiter := ratelimit.New(voteRateLimitMax, voteRateLimitWindow, clock.Real)
	voteSvc := votes.New(repo, voteLimiter)

	h := api.NewHandlers(dirSvc, voteSvc, coordinator, clock.Real)
	router := api.NewRouter(h, cfg.CORSOrigin)

	if cfg.EnableBackgroundIngestion {
		go scheduler.New(coordinator, cfg.IngestionIntervalHours).Run(ctx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			sklog.Errorf("error shutting down server: %s", err)
		}
	}()

	sklog.Infof("trustguide listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sklog.Fatalf("server error: %s", err)
	}
	os.Exit(0)
}
