package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fastprodman/realmpay/internal/api"
	"github.com/fastprodman/realmpay/internal/dispatch"
	"github.com/fastprodman/realmpay/internal/infra/logging"
	"github.com/fastprodman/realmpay/internal/infra/pgutils"
	"github.com/fastprodman/realmpay/internal/payserve"
	"github.com/fastprodman/realmpay/internal/realms"
	pgaccounts "github.com/fastprodman/realmpay/internal/repos/accounts/postgres"
	pgpending "github.com/fastprodman/realmpay/internal/repos/pending/postgres"
	pgrealminfo "github.com/fastprodman/realmpay/internal/repos/realminfo/postgres"
	"github.com/fastprodman/realmpay/internal/services/gateway"
	"github.com/fastprodman/realmpay/internal/services/reconcile"
	"github.com/fastprodman/realmpay/pkg/envconf"
	"github.com/fastprodman/realmpay/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running coordinator: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(coordinatorConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Close database pool")

		return dbConns.Close()
	})

	// --- Realm link ---
	registry := realms.NewRegistry()
	router := realms.NewRouter(registry)

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Stop correlation router")
		router.Close()

		return nil
	})

	// --- Services ---
	gw := gateway.New(dbConns, router, registry)
	engine := reconcile.New(dbConns, gw, router, registry)
	dispatcher := dispatch.New(dbConns, registry, router, engine)
	connector := payserve.New(cfg.PayService, engine, dispatcher, registry.Online)

	registry.SetOnChange(connector.RenewRealms)

	realmSrv := realms.NewServer(cfg.RealmListenAddr, registry, router, pgrealminfo.New(dbConns))
	realmSrv.OnOnline = func(realmID int) {
		pushRealmConfig(ctx, router, registry, cfg, realmID)
	}

	// --- Operator HTTP server ---
	handler := api.NewHandler(
		registry.Online,
		pgrealminfo.New(dbConns),
		pgpending.New(dbConns),
		pgaccounts.New(dbConns),
	)
	srv := api.NewServer(cfg.HTTPPort, handler)

	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// --- Run everything ---
	errCh := make(chan error, 3)

	go func() {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("operator api: %w", serr)

			return
		}

		errCh <- nil
	}()

	go func() {
		serr := realmSrv.Serve(ctx)
		if serr != nil {
			errCh <- fmt.Errorf("realm listener: %w", serr)

			return
		}

		errCh <- nil
	}()

	go func() {
		errCh <- connector.Run(ctx)
	}()

	go engine.Run(ctx)

	slog.Info("Coordinator started", "env", cfg.Env)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("coordinator error: %w", serr)
		}

		return nil
	}
}

func pushRealmConfig(ctx context.Context, router *realms.Router, registry *realms.Registry, cfg *coordinatorConfig, realmID int) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := realms.PushConfig(callCtx, router, registry, cfg.PayService.Wallet, cfg.PayService.Symbol, realmID)
	if err != nil {
		slog.Warn("realm config push failed", "realm_id", realmID, "error", err)
	}
}
