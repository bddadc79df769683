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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	jwttoken "aidledger/internal/jwt_token"
	"aidledger/internal/ledger/handler"
	ledgermetrics "aidledger/internal/ledger/metrics"
	"aidledger/internal/ledger/service"
	"aidledger/internal/ledger/store"
	"aidledger/internal/platform/config"
	"aidledger/internal/platform/httpserver"
	"aidledger/internal/platform/logger"
	"aidledger/internal/platform/metrics"
	id "aidledger/pkg/domain"
	"aidledger/pkg/platform/httputil"
	authmw "aidledger/pkg/platform/middleware/auth"
	"aidledger/pkg/platform/middleware/metadata"
	"aidledger/pkg/platform/middleware/request"
	"aidledger/pkg/platform/middleware/requesttime"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal/ledger.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("aidledger stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("aidledger stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := metrics.NewRegistry()

	roleStore, closeRoles, err := newRoleStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRoles()

	auditing, err := newAudit(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer auditing.close()

	ledger := store.New(store.WithApprovalRequired(cfg.Ledger.ApprovalRequired))
	checkpoints, err := newCheckpoints(ctx, cfg, ledger, log)
	if err != nil {
		return err
	}
	defer checkpoints.close()

	svc := service.New(ledger, roleStore,
		service.WithLogger(log),
		service.WithAuditPublisher(auditing.publisher),
		service.WithAuditTrail(auditing.publisher),
		service.WithMetrics(ledgermetrics.New(reg)),
	)
	if err := svc.SyncMetrics(ctx); err != nil {
		return err
	}
	if cfg.Auth.BootstrapAdmin != "" {
		admin, err := id.ParseIdentity(cfg.Auth.BootstrapAdmin)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if err := svc.Bootstrap(ctx, admin); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)

	router := chi.NewRouter()
	router.Use(request.RequestID)
	router.Use(metadata.ClientMetadata)
	router.Use(requesttime.Middleware)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler(reg))
	router.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		handler.New(svc, log).Register(r)
	})

	srv := httpserver.New(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting aidledger", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	for _, worker := range append(auditing.workers, checkpoints.workers...) {
		g.Go(func() error {
			if err := worker(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
