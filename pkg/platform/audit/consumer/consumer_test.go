package consumer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/store/kafka"
)

type archived struct {
	event    audit.Event
	severity string
}

// fakeArchive fails the first failures calls, then stores by event id.
type fakeArchive struct {
	mu       sync.Mutex
	failures int
	calls    int
	rows     map[string]archived
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{rows: map[string]archived{}}
}

func (f *fakeArchive) Put(_ context.Context, event audit.Event, severity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return false, errors.New("archive unavailable")
	}
	if _, ok := f.rows[event.ID]; ok {
		return false, nil
	}
	f.rows[event.ID] = archived{event: event, severity: severity}
	return true, nil
}

func (f *fakeArchive) get(eventID string) (archived, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[eventID]
	return row, ok
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newTestRouter(archive Archiver, logger *slog.Logger) *Router {
	router := NewRouter(logger, nil)
	router.Register(audit.CategoryCompliance, NewComplianceHandler(archive, logger))
	router.Register(audit.CategorySecurity, NewSecurityHandler(archive, logger))
	router.Register(audit.CategoryOperations, NewOpsHandler(archive, logger))
	return router
}

func newEvent(eventID string, action audit.AuditEvent) audit.Event {
	return audit.Event{
		ID:        eventID,
		Timestamp: time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC),
		Action:    string(action),
		ActorID:   "officer-1",
		RecordID:  1,
		ProgramID: "BANSOS_2025",
	}
}

func TestRouterArchivesByCategory(t *testing.T) {
	archive := newFakeArchive()
	router := newTestRouter(archive, discard())
	ctx := context.Background()

	rejected := newEvent("e-1", audit.EventStatusChanged)
	rejected.ToStatus = "Rejected"
	require.NoError(t, router.Handle(ctx, rejected))
	require.NoError(t, router.Handle(ctx, newEvent("e-2", audit.EventAidIssued)))
	require.NoError(t, router.Handle(ctx, newEvent("e-3", audit.EventEmergencyAction)))
	require.NoError(t, router.Handle(ctx, newEvent("e-4", audit.EventRoleGranted)))
	require.NoError(t, router.Handle(ctx, newEvent("e-5", audit.EventProgramCreated)))

	for eventID, severity := range map[string]string{
		"e-1": "notice",
		"e-2": "normal",
		"e-3": "high",
		"e-4": "medium",
		"e-5": "low",
	} {
		row, ok := archive.get(eventID)
		require.True(t, ok, eventID)
		assert.Equal(t, severity, row.severity, eventID)
	}
}

func TestRouterFallback(t *testing.T) {
	archive := newFakeArchive()
	router := NewRouter(discard(), NewOpsHandler(archive, discard()))

	require.NoError(t, router.Handle(context.Background(), newEvent("e-1", audit.EventEmergencyAction)))
	row, ok := archive.get("e-1")
	require.True(t, ok)
	assert.Equal(t, "low", row.severity)
}

func TestRouterSkipsUnroutedCategory(t *testing.T) {
	archive := newFakeArchive()
	router := NewRouter(discard(), nil)
	router.Register(audit.CategorySecurity, NewSecurityHandler(archive, discard()))

	require.NoError(t, router.Handle(context.Background(), newEvent("e-1", audit.EventAidIssued)))
	assert.Zero(t, archive.calls)
}

func TestComplianceHandlerSkipsIncompleteEvents(t *testing.T) {
	archive := newFakeArchive()
	h := NewComplianceHandler(archive, discard())

	noProgram := newEvent("e-1", audit.EventAidIssued)
	noProgram.ProgramID = ""
	require.NoError(t, h.Handle(context.Background(), noProgram))

	noActor := newEvent("e-2", audit.EventAidIssued)
	noActor.ActorID = ""
	require.NoError(t, h.Handle(context.Background(), noActor))

	assert.Zero(t, archive.calls)
}

func TestSecurityHandlerLogsHighSeverityOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	archive := newFakeArchive()
	h := NewSecurityHandler(archive, logger)

	e := newEvent("e-1", audit.EventEmergencyAction)
	e.Reason = "duplicate beneficiary"
	require.NoError(t, h.Handle(context.Background(), e))
	require.NoError(t, h.Handle(context.Background(), e))

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("privileged ledger action")))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "duplicate beneficiary")
}

func TestHandlerErrorsSurface(t *testing.T) {
	archive := newFakeArchive()
	archive.failures = 1
	router := newTestRouter(archive, discard())

	err := router.Handle(context.Background(), newEvent("e-1", audit.EventAidIssued))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "e-1")
}

func TestHandleRecordRetriesUntilArchived(t *testing.T) {
	archive := newFakeArchive()
	archive.failures = 2
	metrics := NewMetrics(prometheus.NewRegistry())
	c := newConsumer(newTestRouter(archive, discard()),
		WithLogger(discard()),
		WithMetrics(metrics),
		WithRetryDelay(time.Millisecond, 2*time.Millisecond),
	)

	value, err := kafka.Encode(newEvent("e-1", audit.EventAidIssued))
	require.NoError(t, err)
	require.NoError(t, c.handleRecord(context.Background(), &kgo.Record{Value: value}))

	_, ok := archive.get("e-1")
	assert.True(t, ok)
	assert.Equal(t, 3, archive.calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Retries))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Consumed.WithLabelValues("handled")))
}

func TestHandleRecordSkipsUndecodable(t *testing.T) {
	archive := newFakeArchive()
	metrics := NewMetrics(prometheus.NewRegistry())
	c := newConsumer(newTestRouter(archive, discard()), WithLogger(discard()), WithMetrics(metrics))

	require.NoError(t, c.handleRecord(context.Background(), &kgo.Record{Value: []byte("{")}))
	assert.Zero(t, archive.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Consumed.WithLabelValues("skipped")))
}

func TestHandleRecordStopsOnCancel(t *testing.T) {
	archive := newFakeArchive()
	archive.failures = 1_000
	c := newConsumer(newTestRouter(archive, discard()),
		WithLogger(discard()),
		WithRetryDelay(time.Hour, time.Hour),
	)
	value, err := kafka.Encode(newEvent("e-1", audit.EventAidIssued))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.handleRecord(ctx, &kgo.Record{Value: value})
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	_, err := New(Config{Topic: "audit", Group: "archive"}, NewRouter(discard(), nil))
	assert.Error(t, err)

	_, err = New(Config{Brokers: []string{"localhost:9092"}, Topic: "audit"}, NewRouter(discard(), nil))
	assert.Error(t, err)
}
