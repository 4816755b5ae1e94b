package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bindflow/runledger/internal/platform/auth"
	"github.com/bindflow/runledger/internal/platform/env"
	"github.com/bindflow/runledger/internal/platform/httpserver"
	"github.com/bindflow/runledger/internal/platform/metrics"
	"github.com/bindflow/runledger/internal/platform/objectstore"
	"github.com/bindflow/runledger/internal/platform/postgres"
	"github.com/bindflow/runledger/internal/platform/seqera"
	"github.com/bindflow/runledger/internal/repo"
	"github.com/bindflow/runledger/internal/repo/memory"
	pgrepo "github.com/bindflow/runledger/internal/repo/postgres"
	"github.com/bindflow/runledger/internal/service/access"
	"github.com/bindflow/runledger/internal/service/catalog"
	"github.com/bindflow/runledger/internal/service/identity"
	"github.com/bindflow/runledger/internal/service/objects"
	"github.com/bindflow/runledger/internal/service/reconcile"
	"github.com/bindflow/runledger/internal/service/runs"
)

const serviceName = "runledger"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverCfg, err := httpserver.ConfigFromEnv(serviceName)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	var store repo.Store
	storeMode := strings.ToLower(strings.TrimSpace(env.String("RUN_LEDGER_STORE", "postgres")))
	switch storeMode {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	case "", "postgres":
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid database config", "error", err)
			os.Exit(2)
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		store = pgrepo.NewStore(db)
	default:
		logger.Error("unsupported store", "mode", storeMode)
		os.Exit(2)
	}

	objectsCfg, err := objects.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object identity config", "error", err)
		os.Exit(2)
	}
	registry := objects.New(store.Objects(), objectsCfg)
	identitySvc := identity.New(store.Users())
	catalogSvc := catalog.New(store.Workflows())
	gate := access.NewGate(store.Runs())

	promMetrics := metrics.New()
	runSvc := runs.New(store, gate, registry).WithObserver(promMetrics)

	if path := strings.TrimSpace(env.String("WORKFLOW_CATALOG_FILE", "")); path != "" {
		seeded, err := catalogSvc.SeedFromFile(ctx, path)
		if err != nil {
			logger.Error("workflow catalog seed failed", "path", path, "error", err)
			os.Exit(1)
		}
		logger.Info("workflow catalog seeded", "path", path, "workflows", seeded)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	var (
		storeClient *objectstore.Client
		lister      objects.Lister
		results     reconcile.ResultReader
	)
	if storeCfg.Enabled {
		storeClient, err = objectstore.New(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		lister = storeClient
		results = storeClient
	}

	seqeraCfg, err := seqera.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid seqera config", "error", err)
		os.Exit(2)
	}
	if seqeraCfg.Enabled() {
		platform, err := seqera.New(seqeraCfg)
		if err != nil {
			logger.Error("seqera client init failed", "error", err)
			os.Exit(2)
		}
		runSvc.WithPlatform(platform)

		reconcileCfg, err := reconcile.ConfigFromEnv()
		if err != nil {
			logger.Error("invalid reconcile config", "error", err)
			os.Exit(2)
		}
		reconcile.New(logger, runSvc, platform, results, reconcileCfg).
			WithObserver(promMetrics).
			Start(ctx)
	} else {
		logger.Warn("seqera disabled; run status is only updated through the API")
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	var authenticator auth.Authenticator
	switch authCfg.Mode {
	case auth.ModeOIDC:
		startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		oidcAuth, err := auth.NewOIDCAuthenticator(startupCtx, authCfg)
		cancel()
		if err != nil {
			logger.Error("oidc provider unavailable", "error", err)
			os.Exit(1)
		}
		authenticator = oidcAuth
	default:
		logger.Warn("dev auth enabled; every request acts as one fixed user", "subject", authCfg.DevSubject)
		authenticator = auth.NewDevAuthenticator(authCfg)
	}
	authMiddleware := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		Resolve: func(ctx context.Context, id auth.Identity) (string, error) {
			user, err := identitySvc.ResolveOrCreate(ctx, id.Subject, id.Name, id.Email)
			if err != nil {
				return "", err
			}
			return user.ID, nil
		},
	}

	readiness := []httpserver.ReadinessCheck{
		{Name: storeMode, Check: httpserver.WithTimeout(750*time.Millisecond, store.Ping)},
	}
	if storeClient != nil {
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name:  "minio",
			Check: httpserver.WithTimeout(750*time.Millisecond, storeClient.CheckBucket),
		})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz(serviceName))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(serviceName, readiness...))
	mux.Handle("GET /metrics", promMetrics.Handler())

	api := newLedgerAPI(logger, runSvc, catalogSvc, identitySvc, lister)
	api.register(mux, authMiddleware.Wrap)

	handler := httpserver.Wrap(logger, serviceName, mux, promMetrics)
	if err := httpserver.Run(ctx, logger, serverCfg, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
