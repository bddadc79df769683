// Package kafka streams audit events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	id "aidledger/pkg/domain"
	audit "aidledger/pkg/platform/audit"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config holds the producer settings.
type Config struct {
	Brokers           []string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
}

// Store implements audit.Store by producing one record per event.
// Records are keyed by program so every event for a program lands on the same
// partition and keeps its order.
type Store struct {
	client *kgo.Client
	topic  string
}

// New connects a producer client for cfg.Topic.
func New(cfg Config) (*Store, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka audit store: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka audit store: no topic configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Store{client: client, topic: cfg.Topic}, nil
}

// EnsureTopic creates the audit topic if it does not exist yet.
func (s *Store) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	admin := kadm.NewClient(s.client)
	resp, err := admin.CreateTopics(ctx, partitions, replicationFactor, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

type message struct {
	ID         string    `json:"id"`
	Category   string    `json:"category"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	ActorID    string    `json:"actor_id,omitempty"`
	RecordID   uint64    `json:"record_id,omitempty"`
	ProgramID  string    `json:"program_id,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
}

// Encode renders the wire form of an event.
func Encode(event audit.Event) ([]byte, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return json.Marshal(message{
		ID:         event.ID,
		Category:   string(audit.AuditEvent(event.Action).Category()),
		Timestamp:  event.Timestamp.UTC(),
		Action:     event.Action,
		ActorID:    event.ActorID.String(),
		RecordID:   uint64(event.RecordID),
		ProgramID:  event.ProgramID.String(),
		Amount:     event.Amount,
		FromStatus: event.FromStatus,
		ToStatus:   event.ToStatus,
		Reason:     event.Reason,
		RequestID:  event.RequestID,
	})
}

// Decode parses the wire form produced by Encode. The category is derived
// from the action so producers cannot misroute an event.
func Decode(value []byte) (audit.Event, error) {
	var msg message
	if err := json.Unmarshal(value, &msg); err != nil {
		return audit.Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	if msg.ID == "" || msg.Action == "" {
		return audit.Event{}, errors.New("decode audit event: missing id or action")
	}
	return audit.Event{
		ID:         msg.ID,
		Category:   audit.AuditEvent(msg.Action).Category(),
		Timestamp:  msg.Timestamp,
		Action:     msg.Action,
		ActorID:    id.Identity(msg.ActorID),
		RecordID:   id.RecordID(msg.RecordID),
		ProgramID:  id.ProgramID(msg.ProgramID),
		Amount:     msg.Amount,
		FromStatus: msg.FromStatus,
		ToStatus:   msg.ToStatus,
		Reason:     msg.Reason,
		RequestID:  msg.RequestID,
	}, nil
}

// Append produces the event and waits for the broker acknowledgement.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := Encode(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.ProgramID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the client.
func (s *Store) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
