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

	"golang.org/x/sync/errgroup"

	"aidledger/internal/platform/config"
	"aidledger/internal/platform/logger"
	"aidledger/internal/platform/metrics"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/consumer"
	"aidledger/pkg/platform/audit/store/postgres"
)

// main runs the audit archive: it consumes the ledger's audit topic and
// stores every event in Postgres, graded by category.
func main() {
	cfg, err := config.ConsumerFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log).With("component", "audit-consumer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("audit consumer stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Consumer, log *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.ArchiveDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	archive := postgres.NewArchive(db)
	if err := archive.Migrate(ctx); err != nil {
		return err
	}

	router := consumer.NewRouter(log, nil)
	router.Register(audit.CategoryCompliance, consumer.NewComplianceHandler(archive, log))
	router.Register(audit.CategorySecurity, consumer.NewSecurityHandler(archive, log))
	router.Register(audit.CategoryOperations, consumer.NewOpsHandler(archive, log))

	reg := metrics.NewRegistry()
	c, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Group:   cfg.Group,
	}, router,
		consumer.WithLogger(log),
		consumer.WithMetrics(consumer.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming audit stream", "topic", cfg.Kafka.Topic, "group", cfg.Group)
		if err := c.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
