package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	"aidledger/pkg/platform/audit/store/kafka"
)

// Config selects the topic and consumer group.
type Config struct {
	Brokers []string
	Topic   string
	Group   string
}

// Metrics counts consumed events by outcome.
type Metrics struct {
	Consumed *prometheus.CounterVec
	Retries  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_audit_consumed_total",
			Help: "Audit stream records consumed, by outcome",
		}, []string{"outcome"}),
		Retries: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_consume_retries_total",
			Help: "Handler retries while consuming the audit stream",
		}),
	}
}

// Consumer polls the audit topic as part of a consumer group. Offsets are
// committed only after every record of a fetch was handled, so delivery is at
// least once.
type Consumer struct {
	client     *kgo.Client
	handler    Handler
	logger     *slog.Logger
	metrics    *Metrics
	retryDelay time.Duration
	maxDelay   time.Duration
}

// Option configures the Consumer.
type Option func(*Consumer)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Consumer) {
		c.metrics = m
	}
}

// WithRetryDelay sets the first and the maximum delay between handler retries.
func WithRetryDelay(initial, maxDelay time.Duration) Option {
	return func(c *Consumer) {
		if initial > 0 {
			c.retryDelay = initial
		}
		if maxDelay >= c.retryDelay {
			c.maxDelay = maxDelay
		}
	}
}

func newConsumer(handler Handler, opts ...Option) *Consumer {
	c := &Consumer{
		handler:    handler,
		logger:     slog.Default(),
		retryDelay: 500 * time.Millisecond,
		maxDelay:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New connects a group consumer for cfg.Topic.
func New(cfg Config, handler Handler, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("audit consumer: no brokers configured")
	}
	if cfg.Topic == "" || cfg.Group == "" {
		return nil, errors.New("audit consumer: topic and group are required")
	}
	c := newConsumer(handler, opts...)
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c.client = client
	return c, nil
}

// Run consumes until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.WarnContext(ctx, "audit fetch failed",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handled []*kgo.Record
		var stopErr error
		fetches.EachRecord(func(r *kgo.Record) {
			if stopErr != nil {
				return
			}
			if err := c.handleRecord(ctx, r); err != nil {
				stopErr = err
				return
			}
			handled = append(handled, r)
		})
		if len(handled) > 0 {
			if err := c.client.CommitRecords(ctx, handled...); err != nil {
				c.logger.WarnContext(ctx, "audit offset commit failed", "error", err)
			}
		}
		if stopErr != nil {
			return stopErr
		}
	}
}

// handleRecord decodes and handles one record, retrying handler failures
// with backoff until they succeed or ctx ends. Undecodable records are
// skipped so one bad message cannot stall the partition.
func (c *Consumer) handleRecord(ctx context.Context, r *kgo.Record) error {
	event, err := kafka.Decode(r.Value)
	if err != nil {
		c.logger.WarnContext(ctx, "skipping undecodable audit record",
			"partition", r.Partition,
			"offset", r.Offset,
			"error", err,
		)
		c.count("skipped")
		return nil
	}

	delay := c.retryDelay
	for {
		err := c.handler.Handle(ctx, event)
		if err == nil {
			c.count("handled")
			return nil
		}
		c.logger.WarnContext(ctx, "audit handler failed, retrying",
			"event_id", event.ID,
			"retry_in", delay,
			"error", err,
		)
		if c.metrics != nil {
			c.metrics.Retries.Inc()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, c.maxDelay)
	}
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.Consumed.WithLabelValues(outcome).Inc()
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
