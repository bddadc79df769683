package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aidledger/internal/ledger/checkpoint"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/service"
	"aidledger/internal/ledger/store"
	"aidledger/internal/platform/config"
	"aidledger/internal/platform/redis"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publisher"
	"aidledger/pkg/platform/audit/store/kafka"
	"aidledger/pkg/platform/audit/store/memory"
	"aidledger/pkg/platform/audit/store/postgres"
	"aidledger/pkg/platform/audit/worker"
)

type backgroundWorker func(ctx context.Context) error

func newRoleStore(ctx context.Context, cfg config.Server) (service.RoleStore, func(), error) {
	if strings.ToLower(cfg.Ledger.RoleBackend) != "redis" {
		return roles.NewMemoryStore(), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connect role store: %w", err)
	}
	return roles.NewRedisStore(client.Client), func() { _ = client.Close() }, nil
}

type auditDeps struct {
	publisher *publisher.Publisher
	workers   []backgroundWorker
	closers   []func()
}

// close drains the publisher before the sinks it writes to are closed.
func (a *auditDeps) close() {
	a.publisher.Close()
	a.closeSinks()
}

func newKafkaStore(ctx context.Context, cfg config.KafkaConfig) (*kafka.Store, error) {
	st, err := kafka.New(kafka.Config{
		Brokers:           cfg.Brokers,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
	})
	if err != nil {
		return nil, err
	}
	if err := st.EnsureTopic(ctx, cfg.Partitions, cfg.ReplicationFactor); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func newAudit(ctx context.Context, cfg config.Server, reg prometheus.Registerer, log *slog.Logger) (*auditDeps, error) {
	deps := &auditDeps{}
	var sink audit.Store

	switch strings.ToLower(cfg.Audit.Sink) {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func() { _ = db.Close() })
		outbox := postgres.New(db)
		if err := outbox.Migrate(ctx); err != nil {
			deps.closeSinks()
			return nil, err
		}
		sink = outbox

		if cfg.Audit.RelayToKafka {
			stream, err := newKafkaStore(ctx, cfg.Kafka)
			if err != nil {
				deps.closeSinks()
				return nil, err
			}
			deps.closers = append(deps.closers, stream.Close)
			relay := worker.NewWorker(outbox, stream,
				worker.WithInterval(cfg.Audit.RelayInterval),
				worker.WithLogger(log),
			)
			deps.workers = append(deps.workers, relay.Run)
		}
	case "kafka":
		stream, err := newKafkaStore(ctx, cfg.Kafka)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, stream.Close)
		sink = stream
	default:
		sink = memory.NewInMemoryStore()
	}

	deps.publisher = publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithCircuitBreaker(publisher.NewCircuitBreaker(5, 30*time.Second)),
	)
	return deps, nil
}

func (a *auditDeps) closeSinks() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type checkpointDeps struct {
	workers []backgroundWorker
	closers []func()
}

func (c *checkpointDeps) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// newCheckpoints restores the ledger from the latest checkpoint and returns
// the worker that keeps writing new ones.
func newCheckpoints(ctx context.Context, cfg config.Server, ledger *store.Store, log *slog.Logger) (*checkpointDeps, error) {
	deps := &checkpointDeps{}
	var cp checkpoint.Store

	switch strings.ToLower(cfg.Checkpoint.Backend) {
	case "postgres":
		pool, err := checkpoint.OpenPool(ctx, cfg.Checkpoint.PostgresDSN)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, pool.Close)
		pg := checkpoint.NewPostgresStore(pool, cfg.Checkpoint.Keep)
		if err := pg.Migrate(ctx); err != nil {
			deps.close()
			return nil, err
		}
		cp = pg
	case "s3":
		s3Store, err := checkpoint.NewS3Store(ctx, checkpoint.S3Config{
			Bucket:   cfg.Checkpoint.S3Bucket,
			Prefix:   cfg.Checkpoint.S3Prefix,
			Region:   cfg.Checkpoint.S3Region,
			Endpoint: cfg.Checkpoint.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		cp = s3Store
	default:
		return deps, nil
	}

	w := checkpoint.NewWorker(ledger, cp,
		checkpoint.WithInterval(cfg.Checkpoint.Interval),
		checkpoint.WithLogger(log),
	)
	if cfg.Checkpoint.Restore {
		restored, err := checkpoint.Restore(ctx, cp, ledger)
		if err != nil {
			deps.close()
			return nil, err
		}
		if restored {
			w.MarkSaved(ledger.Version())
			log.InfoContext(ctx, "ledger restored from checkpoint", "version", ledger.Version())
		}
	}
	deps.workers = append(deps.workers, w.Run)
	return deps, nil
}
