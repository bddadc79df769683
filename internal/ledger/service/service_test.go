package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"aidledger/internal/ledger/metrics"
	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/service/mocks"
	"aidledger/internal/ledger/store"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/requestcontext"
)

// =============================================================================
// Ledger Service Test Suite
// =============================================================================
// Runs the service against the real in-memory store and role store. Only the
// audit publisher is mocked so emitted events can be asserted.

const (
	admin      id.Identity = "admin-1"
	officer    id.Identity = "officer-1"
	supervisor id.Identity = "supervisor-1"
	auditor    id.Identity = "auditor-1"
	stranger   id.Identity = "stranger-1"

	bansos id.ProgramID = "BANSOS_2025"
)

var (
	now         = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	windowStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
)

type LedgerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockAuditPublisher
	store     *store.Store
	roles     *roles.MemoryStore
	metrics   *metrics.Metrics
	svc       *Service
	ctx       context.Context

	mu     sync.Mutex
	events []audit.Event
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockAuditPublisher(s.ctrl)
	s.events = nil
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e audit.Event) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.events = append(s.events, e)
			return nil
		}).AnyTimes()

	s.ctx = requestcontext.WithTime(context.Background(), now)
	s.store = store.New()
	s.roles = roles.NewMemoryStore()
	s.Require().NoError(s.roles.Grant(s.ctx, roles.RoleAdmin, admin))
	s.Require().NoError(s.roles.Grant(s.ctx, roles.RoleAidOfficer, officer))
	s.Require().NoError(s.roles.Grant(s.ctx, roles.RoleSupervisor, supervisor))
	s.Require().NoError(s.roles.Grant(s.ctx, roles.RoleAuditor, auditor))

	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = New(s.store, s.roles,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.publisher),
		WithMetrics(s.metrics),
	)
}

func (s *LedgerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func programParams(name id.ProgramID, budget, minAmount, maxAmount uint64) models.ProgramParams {
	return models.ProgramParams{
		Name:               name,
		Description:        "social aid",
		TotalBudget:        budget,
		MinAmount:          minAmount,
		MaxAmount:          maxAmount,
		StartDate:          windowStart,
		EndDate:            windowEnd,
		Manager:            admin,
		EligibleCategories: []models.Category{models.CategoryGeneral},
	}
}

func (s *LedgerSuite) createBansos() *models.Program {
	p, err := s.svc.CreateProgram(s.ctx, admin, programParams(bansos, 1_000_000_000, 0, models.Unlimited))
	s.Require().NoError(err)
	return p
}

func recordParams(program id.ProgramID, beneficiary string, amount uint64) models.RecordParams {
	return models.RecordParams{
		ProgramID:       program,
		BeneficiaryHash: id.HashBeneficiary(beneficiary),
		Amount:          amount,
		RecipientID:     "NIK-" + beneficiary,
		RecipientName:   "Recipient " + beneficiary,
		Category:        models.CategoryGeneral,
		Priority:        models.PriorityMedium,
		Location: models.Location{
			Province: "Jawa Barat",
			City:     "Bandung",
			District: "Coblong",
			Village:  "Dago",
		},
	}
}

func (s *LedgerSuite) issue(beneficiary string, amount uint64) *models.AidRecord {
	r, err := s.svc.IssueAid(s.ctx, officer, recordParams(bansos, beneficiary, amount))
	s.Require().NoError(err)
	return r
}

func (s *LedgerSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "expected %s, got %v (%s)", code, err, dErrors.GetCode(err))
}

func (s *LedgerSuite) eventsFor(action audit.AuditEvent) []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Event
	for _, e := range s.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// End-to-end scenarios
// =============================================================================

func (s *LedgerSuite) TestBansosScenario() {
	s.createBansos()

	r := s.issue("H1", 500_000)
	s.Equal(id.RecordID(1), r.ID)
	s.Equal(models.StatusPending, r.Status)

	p, err := s.svc.GetProgram(s.ctx, bansos)
	s.Require().NoError(err)
	s.Equal(uint64(500_000), p.BudgetUsed)

	_, err = s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "H1", 500_000))
	s.requireCode(err, dErrors.CodeDuplicateClaim)
	s.ErrorIs(err, models.ErrAlreadyClaimed)

	approved, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "verified")
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, approved.Status)
	s.Require().NotNil(approved.ApprovedBy)
	s.Equal(supervisor, *approved.ApprovedBy)
	s.Require().NotNil(approved.SupervisedBy)
	s.Equal("verified", approved.Notes)

	disbursed, err := s.svc.UpdateStatus(s.ctx, officer, r.ID, models.StatusDisbursed, "")
	s.Require().NoError(err)
	s.Require().NotNil(disbursed.DisbursedAt)
	s.Equal(now, *disbursed.DisbursedAt)
	s.Equal("verified", disbursed.Notes, "empty notes keep the previous notes")

	_, err = s.svc.UpdateStatus(s.ctx, officer, r.ID, models.StatusCompleted, "delivered")
	s.Require().NoError(err)

	stats, err := s.svc.GetStatistics(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), stats.TotalRecords)
	s.Equal(uint64(500_000), stats.TotalDisbursed)
	s.Equal(0, stats.PendingApplications)
	s.Equal(1, stats.CompletedApplications)
	s.Equal(1, stats.ActivePrograms)

	history, err := s.svc.GetHistory(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Require().Len(history, 4)
	s.Equal(officer, history[0].Actor)
	s.Equal(models.StatusPending, history[1].From)
	s.Equal(models.StatusApproved, history[1].To)
	s.Equal(supervisor, history[1].Actor)
	s.Equal(models.StatusCompleted, history[3].To)

	s.Len(s.eventsFor(audit.EventAidIssued), 1)
	s.Len(s.eventsFor(audit.EventStatusChanged), 3)
	s.Equal(2.0, testutil.ToFloat64(s.metrics.AidIssued)+testutil.ToFloat64(s.metrics.Rejections.WithLabelValues("issue_aid", "duplicate_claim")))
}

func (s *LedgerSuite) TestEmergencyCancelRefundsAndKeepsClaim() {
	s.createBansos()
	r := s.issue("H1", 500_000)
	_, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "")
	s.Require().NoError(err)

	cancelled, err := s.svc.EmergencyCancel(s.ctx, admin, r.ID, "fraud report")
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, cancelled.Status)

	p, err := s.svc.GetProgram(s.ctx, bansos)
	s.Require().NoError(err)
	s.Zero(p.BudgetUsed)

	cancelledList, err := s.svc.ListByStatus(s.ctx, models.StatusCancelled)
	s.Require().NoError(err)
	s.Require().Len(cancelledList, 1)
	approvedList, err := s.svc.ListByStatus(s.ctx, models.StatusApproved)
	s.Require().NoError(err)
	s.Empty(approvedList)

	claimed, err := s.svc.IsClaimed(s.ctx, id.HashBeneficiary("H1"), bansos)
	s.Require().NoError(err)
	s.True(claimed)

	_, err = s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "H1", 500_000))
	s.requireCode(err, dErrors.CodeDuplicateClaim)

	actions, err := s.svc.EmergencyActions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(actions, 1)
	s.Equal(models.EmergencyCancel, actions[0].Kind)
	s.Equal(r.ID, actions[0].RecordID)
	s.Equal("fraud report", actions[0].Reason)

	events := s.eventsFor(audit.EventEmergencyAction)
	s.Require().Len(events, 1)
	s.Equal(admin, events[0].ActorID)
	s.Equal(uint64(500_000), events[0].Amount)
	s.Equal(audit.CategorySecurity, audit.AuditEvent(events[0].Action).Category())
}

func (s *LedgerSuite) TestOverMaxLeavesNoTrace() {
	_, err := s.svc.CreateProgram(s.ctx, admin, programParams("CAPPED", 1_000_000, 0, 100_000))
	s.Require().NoError(err)

	_, err = s.svc.IssueAid(s.ctx, officer, recordParams("CAPPED", "H1", 200_000))
	s.requireCode(err, dErrors.CodeValidation)
	s.ErrorIs(err, models.ErrAmountAboveMaximum)

	p, err := s.svc.GetProgram(s.ctx, "CAPPED")
	s.Require().NoError(err)
	s.Zero(p.BudgetUsed)

	all, err := s.svc.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Empty(all)
	byProgram, err := s.svc.ListByProgram(s.ctx, "CAPPED")
	s.Require().NoError(err)
	s.Empty(byProgram)
	claimed, err := s.svc.HasClaimedAny(s.ctx, id.HashBeneficiary("H1"))
	s.Require().NoError(err)
	s.False(claimed)
	s.Empty(s.eventsFor(audit.EventAidIssued))

	r, err := s.svc.IssueAid(s.ctx, officer, recordParams("CAPPED", "H1", 100_000))
	s.Require().NoError(err)
	s.Equal(id.RecordID(1), r.ID, "a rejected issuance consumes no id")
}

// =============================================================================
// IssueAid
// =============================================================================

func (s *LedgerSuite) TestIssueAidRoundTrip() {
	s.createBansos()
	params := recordParams(bansos, "H1", 750_000)
	params.Contact = models.Contact{Phone: "+62-811", Email: "h1@example.id"}
	params.ContentReference = "ipfs://bafy-doc"

	issued, err := s.svc.IssueAid(s.ctx, officer, params)
	s.Require().NoError(err)

	got, err := s.svc.GetAidRecord(s.ctx, issued.ID)
	s.Require().NoError(err)
	s.Equal(issued, got)
	s.Equal(params.BeneficiaryHash, got.BeneficiaryHash)
	s.Equal(params.Location, got.Location)
	s.Equal(params.Contact, got.Contact)
	s.Equal(officer, got.DistributedBy)
	s.Nil(got.ApprovedBy)
	s.Nil(got.DisbursedAt)
	s.Equal(now, got.CreatedAt)

	events := s.eventsFor(audit.EventAidIssued)
	s.Require().Len(events, 1)
	s.Equal(issued.ID, events[0].RecordID)
	s.Equal(bansos, events[0].ProgramID)
	s.Equal(uint64(750_000), events[0].Amount)
	s.Equal(officer, events[0].ActorID)
}

func (s *LedgerSuite) TestIssueAidChecks() {
	s.createBansos()
	_, err := s.svc.CreateProgram(s.ctx, admin, programParams("SMALL", 1_000, 0, models.Unlimited))
	s.Require().NoError(err)
	s.issue("claimed", 1_000)

	tests := []struct {
		name   string
		actor  id.Identity
		ctx    context.Context
		params func() models.RecordParams
		code   dErrors.Code
		cause  error
	}{
		{
			name:   "caller without an operator role",
			actor:  auditor,
			params: func() models.RecordParams { return recordParams(bansos, "H2", 1_000) },
			code:   dErrors.CodeForbidden,
			cause:  models.ErrNotAuthorized,
		},
		{
			name:   "unknown program",
			actor:  officer,
			params: func() models.RecordParams { return recordParams("NOPE", "H2", 1_000) },
			code:   dErrors.CodeNotFound,
			cause:  models.ErrProgramNotFound,
		},
		{
			name:   "before the program window",
			actor:  officer,
			ctx:    requestcontext.WithTime(context.Background(), windowStart.Add(-time.Second)),
			params: func() models.RecordParams { return recordParams(bansos, "H2", 1_000) },
			code:   dErrors.CodeValidation,
			cause:  models.ErrProgramOutOfWindow,
		},
		{
			name:   "claim is checked before input fields",
			actor:  officer,
			params: func() models.RecordParams { return recordParams(bansos, "claimed", 0) },
			code:   dErrors.CodeDuplicateClaim,
			cause:  models.ErrAlreadyClaimed,
		},
		{
			name:   "zero amount",
			actor:  officer,
			params: func() models.RecordParams { return recordParams(bansos, "H2", 0) },
			code:   dErrors.CodeValidation,
		},
		{
			name:   "missing recipient name",
			actor:  officer,
			params: func() models.RecordParams {
				p := recordParams(bansos, "H2", 1_000)
				p.RecipientName = "  "
				return p
			},
			code: dErrors.CodeValidation,
		},
		{
			name:   "ineligible category",
			actor:  officer,
			params: func() models.RecordParams {
				p := recordParams(bansos, "H2", 1_000)
				p.Category = models.CategoryVeteran
				return p
			},
			code:  dErrors.CodeValidation,
			cause: models.ErrCategoryIneligible,
		},
		{
			name:   "budget exceeded",
			actor:  officer,
			params: func() models.RecordParams { return recordParams("SMALL", "H2", 1_001) },
			code:   dErrors.CodeBudgetExceeded,
			cause:  models.ErrBudgetExceeded,
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			ctx := tt.ctx
			if ctx == nil {
				ctx = s.ctx
			}
			_, err := s.svc.IssueAid(ctx, tt.actor, tt.params())
			s.requireCode(err, tt.code)
			if tt.cause != nil {
				s.ErrorIs(err, tt.cause)
			}
		})
	}

	stats, err := s.svc.GetStatistics(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), stats.TotalRecords, "no failed issuance left a record")
}

func (s *LedgerSuite) TestInactiveProgramRejectsIssuance() {
	s.createBansos()
	updated, err := s.svc.UpdateProgram(s.ctx, admin, bansos, 2_000_000_000, false)
	s.Require().NoError(err)
	s.False(updated.IsActive)

	_, err = s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "H1", 1_000))
	s.requireCode(err, dErrors.CodeValidation)
	s.ErrorIs(err, models.ErrProgramInactive)

	stats, err := s.svc.GetStatistics(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.ActivePrograms)
}

func (s *LedgerSuite) TestApprovalNotRequiredStartsApproved() {
	s.createBansos()

	err := s.svc.SetApprovalRequired(s.ctx, officer, false)
	s.requireCode(err, dErrors.CodeForbidden)

	s.Require().NoError(s.svc.SetApprovalRequired(s.ctx, admin, false))
	settings, err := s.svc.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.False(settings.ApprovalRequired)

	r := s.issue("H1", 1_000)
	s.Equal(models.StatusApproved, r.Status)
	s.Nil(r.ApprovedBy)

	s.Require().NoError(s.svc.SetApprovalRequired(s.ctx, admin, true))
	s.Equal(models.StatusPending, s.issue("H2", 1_000).Status)
	s.Len(s.eventsFor(audit.EventApprovalRequired), 2)
}

func (s *LedgerSuite) TestConcurrentIssuanceNeverOverspends() {
	_, err := s.svc.CreateProgram(s.ctx, admin, programParams("TIGHT", 10_000, 0, models.Unlimited))
	s.Require().NoError(err)

	const callers = 40
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			beneficiary := "B" + string(rune('A'+i%26)) + string(rune('a'+i/26))
			_, results[i] = s.svc.IssueAid(s.ctx, officer, recordParams("TIGHT", beneficiary, 1_000))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeBudgetExceeded), "unexpected error %v", err)
	}
	s.Equal(10, ok)

	p, err := s.svc.GetProgram(s.ctx, "TIGHT")
	s.Require().NoError(err)
	s.Equal(p.TotalBudget, p.BudgetUsed)
}

func (s *LedgerSuite) TestConcurrentDuplicateClaimsAdmitOne() {
	s.createBansos()

	const callers = 20
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "same", 1_000))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicateClaim))
	}
	s.Equal(1, ok)
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *LedgerSuite) TestTransitionTable() {
	allowed := map[transitionKey]bool{
		{models.StatusPending, models.StatusApproved}:    true,
		{models.StatusPending, models.StatusRejected}:    true,
		{models.StatusApproved, models.StatusDisbursed}:  true,
		{models.StatusDisbursed, models.StatusCompleted}: true,
	}
	for _, from := range models.Statuses {
		for _, to := range models.Statuses {
			_, err := lookupTransition(from, to)
			key := transitionKey{from, to}
			switch {
			case from == to:
				s.ErrorIs(err, models.ErrNoOpTransition, "%s -> %s", from, to)
			case allowed[key]:
				s.NoError(err, "%s -> %s", from, to)
			default:
				s.ErrorIs(err, models.ErrIllegalTransition, "%s -> %s", from, to)
			}
			if err != nil {
				s.True(dErrors.HasCode(err, dErrors.CodeIllegalTransition))
			}
		}
	}
}

func (s *LedgerSuite) TestUpdateStatusRules() {
	s.createBansos()
	r := s.issue("H1", 1_000)

	s.Run("officer cannot approve", func() {
		_, err := s.svc.UpdateStatus(s.ctx, officer, r.ID, models.StatusApproved, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
	s.Run("auditor cannot change status", func() {
		_, err := s.svc.UpdateStatus(s.ctx, auditor, r.ID, models.StatusDisbursed, "")
		s.requireCode(err, dErrors.CodeForbidden)
	})
	s.Run("same status is a no-op error", func() {
		_, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusPending, "")
		s.requireCode(err, dErrors.CodeIllegalTransition)
		s.ErrorIs(err, models.ErrNoOpTransition)
	})
	s.Run("cannot skip approval", func() {
		_, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusDisbursed, "")
		s.requireCode(err, dErrors.CodeIllegalTransition)
	})
	s.Run("cancellation is emergency only", func() {
		_, err := s.svc.UpdateStatus(s.ctx, admin, r.ID, models.StatusCancelled, "")
		s.requireCode(err, dErrors.CodeIllegalTransition)
	})
	s.Run("unknown record", func() {
		_, err := s.svc.UpdateStatus(s.ctx, supervisor, 99, models.StatusApproved, "")
		s.requireCode(err, dErrors.CodeNotFound)
		s.ErrorIs(err, models.ErrRecordNotFound)
	})
	s.Run("unknown status", func() {
		_, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.Status("Lost"), "")
		s.requireCode(err, dErrors.CodeValidation)
	})

	got, err := s.svc.GetAidRecord(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, got.Status, "failed transitions leave the record alone")
	history, err := s.svc.GetHistory(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(history, 1)

	rejected, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusRejected, "incomplete documents")
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)

	_, err = s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "")
	s.requireCode(err, dErrors.CodeIllegalTransition)
}

func (s *LedgerSuite) TestEmergencyCancelRules() {
	s.createBansos()
	pending := s.issue("H1", 1_000)
	disbursed := s.issue("H2", 2_000)
	completed := s.issue("H3", 3_000)
	for _, r := range []*models.AidRecord{disbursed, completed} {
		_, err := s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "")
		s.Require().NoError(err)
		_, err = s.svc.UpdateStatus(s.ctx, officer, r.ID, models.StatusDisbursed, "")
		s.Require().NoError(err)
	}
	_, err := s.svc.UpdateStatus(s.ctx, officer, completed.ID, models.StatusCompleted, "")
	s.Require().NoError(err)

	_, err = s.svc.EmergencyCancel(s.ctx, supervisor, pending.ID, "")
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.EmergencyCancel(s.ctx, admin, completed.ID, "")
	s.requireCode(err, dErrors.CodeAlreadyCompleted)
	s.ErrorIs(err, models.ErrAlreadyCompleted)

	_, err = s.svc.EmergencyCancel(s.ctx, admin, disbursed.ID, "")
	s.requireCode(err, dErrors.CodeIllegalTransition)

	_, err = s.svc.EmergencyCancel(s.ctx, admin, 404, "")
	s.requireCode(err, dErrors.CodeNotFound)

	s.Require().NoError(s.svc.Pause(s.ctx, admin, "incident"))
	cancelled, err := s.svc.EmergencyCancel(s.ctx, admin, pending.ID, "duplicate identity")
	s.Require().NoError(err, "emergency cancellation works while paused")
	s.Equal(models.StatusCancelled, cancelled.Status)

	_, err = s.svc.EmergencyCancel(s.ctx, admin, pending.ID, "again")
	s.requireCode(err, dErrors.CodeIllegalTransition)

	p, err := s.svc.GetProgram(s.ctx, bansos)
	s.Require().NoError(err)
	s.Equal(uint64(5_000), p.BudgetUsed)
}

func (s *LedgerSuite) TestUpdatePaymentDocumentation() {
	s.createBansos()
	r := s.issue("H1", 1_000)

	_, err := s.svc.UpdatePaymentDocumentation(s.ctx, stranger, r.ID, "ipfs://x", "cash")
	s.requireCode(err, dErrors.CodeForbidden)

	updated, err := s.svc.UpdatePaymentDocumentation(s.ctx, officer, r.ID, " ipfs://receipt ", "bank transfer")
	s.Require().NoError(err)
	s.Equal("ipfs://receipt", updated.ContentReference)
	s.Equal("bank transfer", updated.DisbursementMethod)
	s.Equal(models.StatusPending, updated.Status)

	history, err := s.svc.GetHistory(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
	s.Len(s.eventsFor(audit.EventPaymentDocumented), 1)

	_, err = s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusRejected, "")
	s.Require().NoError(err)
	_, err = s.svc.UpdatePaymentDocumentation(s.ctx, officer, r.ID, "ipfs://late", "cash")
	s.requireCode(err, dErrors.CodeIllegalTransition)
	s.ErrorIs(err, models.ErrRecordTerminal)

	_, err = s.svc.UpdatePaymentDocumentation(s.ctx, officer, 77, "ipfs://x", "cash")
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *LedgerSuite) TestSyncMetricsAfterRestore() {
	s.createBansos()
	s.Require().NoError(s.svc.Pause(s.ctx, admin, "incident"))

	restored := store.New()
	s.Require().NoError(restored.Import(s.store.Export(now)))
	m := metrics.New(prometheus.NewRegistry())
	svc := New(restored, s.roles, WithMetrics(m))
	s.Equal(0.0, testutil.ToFloat64(m.Paused))

	s.Require().NoError(svc.SyncMetrics(s.ctx))
	s.Equal(1.0, testutil.ToFloat64(m.Paused))
}

func (s *LedgerSuite) TestPauseBlocksWritesNotReads() {
	s.createBansos()
	r := s.issue("H1", 1_000)

	s.requireCode(s.svc.Pause(s.ctx, supervisor, ""), dErrors.CodeForbidden)
	s.Require().NoError(s.svc.Pause(s.ctx, admin, "audit in progress"))
	s.Require().NoError(s.svc.Pause(s.ctx, admin, "again"))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Paused))

	_, err := s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "H2", 1_000))
	s.requireCode(err, dErrors.CodeSystemPaused)
	_, err = s.svc.IssueAid(s.ctx, stranger, recordParams(bansos, "H2", 1_000))
	s.requireCode(err, dErrors.CodeSystemPaused)
	_, err = s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "")
	s.requireCode(err, dErrors.CodeSystemPaused)

	_, err = s.svc.GetAidRecord(s.ctx, r.ID)
	s.NoError(err)
	_, err = s.svc.GetStatistics(s.ctx)
	s.NoError(err)
	settings, err := s.svc.GetSettings(s.ctx)
	s.Require().NoError(err)
	s.True(settings.Paused)

	s.Require().NoError(s.svc.Unpause(s.ctx, admin, "done"))
	_, err = s.svc.UpdateStatus(s.ctx, supervisor, r.ID, models.StatusApproved, "")
	s.NoError(err)

	actions, err := s.svc.EmergencyActions(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(actions, 2, "a repeated pause is not logged")
	s.Equal(models.EmergencyPause, actions[0].Kind)
	s.Equal("audit in progress", actions[0].Reason)
	s.Equal(models.EmergencyUnpause, actions[1].Kind)
	s.Zero(testutil.ToFloat64(s.metrics.Paused))
}

// =============================================================================
// Program registry
// =============================================================================

func (s *LedgerSuite) TestCreateProgram() {
	created := s.createBansos()

	got, err := s.svc.GetProgram(s.ctx, bansos)
	s.Require().NoError(err)
	s.Equal(created, got)
	s.True(got.IsApproved)
	s.True(got.IsActive)

	_, err = s.svc.CreateProgram(s.ctx, admin, programParams(bansos, 5, 0, 5))
	s.requireCode(err, dErrors.CodeConflict)
	s.ErrorIs(err, models.ErrDuplicateProgram)

	_, err = s.svc.CreateProgram(s.ctx, officer, programParams("OTHER", 5, 0, 5))
	s.requireCode(err, dErrors.CodeForbidden)

	bad := programParams("OTHER", 5, 0, 5)
	bad.EndDate = bad.StartDate
	_, err = s.svc.CreateProgram(s.ctx, admin, bad)
	s.requireCode(err, dErrors.CodeValidation)
	s.ErrorIs(err, models.ErrInvalidDateRange)

	_, err = s.svc.CreateProgram(s.ctx, admin, programParams("OTHER", 5, 10, 5))
	s.requireCode(err, dErrors.CodeValidation)
	s.ErrorIs(err, models.ErrInvalidAmountBounds)

	_, err = s.svc.CreateProgram(s.ctx, admin, programParams("PKH", 5, 0, 5))
	s.Require().NoError(err)
	programs, err := s.svc.ListPrograms(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(programs, 2)
	s.Equal(bansos, programs[0].Name)
	s.Equal(id.ProgramID("PKH"), programs[1].Name)
	s.Len(s.eventsFor(audit.EventProgramCreated), 2)
}

func (s *LedgerSuite) TestUpdateProgram() {
	s.createBansos()
	s.issue("H1", 400)

	_, err := s.svc.UpdateProgram(s.ctx, admin, "NOPE", 10, true)
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.svc.UpdateProgram(s.ctx, officer, bansos, 10_000, true)
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.UpdateProgram(s.ctx, admin, bansos, 399, true)
	s.requireCode(err, dErrors.CodeValidation)
	s.ErrorIs(err, models.ErrBudgetBelowUsed)

	_, err = s.svc.UpdateProgram(s.ctx, admin, bansos, 0, true)
	s.requireCode(err, dErrors.CodeValidation)

	updated, err := s.svc.UpdateProgram(s.ctx, admin, bansos, 400, true)
	s.Require().NoError(err)
	s.Equal(uint64(400), updated.TotalBudget)
	s.Equal(uint64(400), updated.BudgetUsed)
	s.Equal(windowStart, updated.StartDate)

	_, err = s.svc.IssueAid(s.ctx, officer, recordParams(bansos, "H2", 1))
	s.requireCode(err, dErrors.CodeBudgetExceeded)
}

func (s *LedgerSuite) TestCheckEligibility() {
	s.createBansos()
	s.NoError(s.svc.CheckEligibility(s.ctx, bansos, 1_000, models.CategoryGeneral))

	err := s.svc.CheckEligibility(s.ctx, bansos, 1_000, models.CategoryStudent)
	s.ErrorIs(err, models.ErrCategoryIneligible)

	err = s.svc.CheckEligibility(s.ctx, bansos, 2_000_000_000, models.CategoryGeneral)
	s.requireCode(err, dErrors.CodeBudgetExceeded)

	late := requestcontext.WithTime(context.Background(), windowEnd.Add(time.Hour))
	err = s.svc.CheckEligibility(late, bansos, 1_000, models.CategoryGeneral)
	s.ErrorIs(err, models.ErrProgramOutOfWindow)

	err = s.svc.CheckEligibility(s.ctx, "NOPE", 1_000, models.CategoryGeneral)
	s.requireCode(err, dErrors.CodeNotFound)

	p, err := s.svc.GetProgram(s.ctx, bansos)
	s.Require().NoError(err)
	s.Zero(p.BudgetUsed, "eligibility checks are read-only")
}

// =============================================================================
// Queries
// =============================================================================

func (s *LedgerSuite) TestQueriesFollowIndexes() {
	s.createBansos()
	params := programParams("PKH", 1_000_000, 0, models.Unlimited)
	params.EligibleCategories = []models.Category{models.CategoryGeneral, models.CategoryElderly}
	_, err := s.svc.CreateProgram(s.ctx, admin, params)
	s.Require().NoError(err)

	first := s.issue("H1", 100)
	elderly := recordParams("PKH", "H1", 200)
	elderly.Category = models.CategoryElderly
	elderly.Location = models.Location{Province: "Jawa Timur", City: "Surabaya"}
	second, err := s.svc.IssueAid(s.ctx, officer, elderly)
	s.Require().NoError(err)

	byBeneficiary, err := s.svc.ListByBeneficiary(s.ctx, id.HashBeneficiary("H1"))
	s.Require().NoError(err)
	s.Require().Len(byBeneficiary, 2)
	s.Equal(first.ID, byBeneficiary[0].ID)
	s.Equal(second.ID, byBeneficiary[1].ID)

	byCategory, err := s.svc.ListByCategory(s.ctx, models.CategoryElderly)
	s.Require().NoError(err)
	s.Require().Len(byCategory, 1)
	s.Equal(second.ID, byCategory[0].ID)

	byLocation, err := s.svc.ListByLocation(s.ctx, models.Location{
		Province: "jawa  barat", City: "BANDUNG", District: "Coblong", Village: "dago",
	})
	s.Require().NoError(err)
	s.Require().Len(byLocation, 1)
	s.Equal(first.ID, byLocation[0].ID)

	byProgram, err := s.svc.ListByProgram(s.ctx, "PKH")
	s.Require().NoError(err)
	s.Len(byProgram, 1)

	none, err := s.svc.ListByCategory(s.ctx, models.CategoryVeteran)
	s.Require().NoError(err)
	s.Empty(none)

	_, err = s.svc.GetHistory(s.ctx, 42)
	s.requireCode(err, dErrors.CodeNotFound)
}

// =============================================================================
// Roles
// =============================================================================

func (s *LedgerSuite) TestRoleManagement() {
	const newcomer id.Identity = "officer-2"

	s.requireCode(s.svc.GrantRole(s.ctx, officer, roles.RoleAidOfficer, newcomer), dErrors.CodeForbidden)
	s.requireCode(s.svc.GrantRole(s.ctx, admin, roles.Role("Root"), newcomer), dErrors.CodeValidation)
	s.requireCode(s.svc.GrantRole(s.ctx, admin, roles.RoleAidOfficer, ""), dErrors.CodeInvalidInput)

	s.Require().NoError(s.svc.GrantRole(s.ctx, admin, roles.RoleAidOfficer, newcomer))
	ok, err := s.svc.HasRole(s.ctx, roles.RoleAidOfficer, newcomer)
	s.Require().NoError(err)
	s.True(ok)

	s.createBansos()
	_, err = s.svc.IssueAid(s.ctx, newcomer, recordParams(bansos, "H1", 1))
	s.Require().NoError(err)

	s.Require().NoError(s.svc.RevokeRole(s.ctx, admin, roles.RoleAidOfficer, newcomer))
	_, err = s.svc.IssueAid(s.ctx, newcomer, recordParams(bansos, "H2", 1))
	s.requireCode(err, dErrors.CodeForbidden)

	members, err := s.svc.RoleMembers(s.ctx, roles.RoleAidOfficer)
	s.Require().NoError(err)
	s.Equal([]id.Identity{officer}, members)

	ok, err = s.svc.HasRole(s.ctx, roles.RoleAdmin, "unknown")
	s.Require().NoError(err)
	s.False(ok)

	s.Len(s.eventsFor(audit.EventRoleGranted), 1)
	s.Len(s.eventsFor(audit.EventRoleRevoked), 1)
}

func (s *LedgerSuite) TestBootstrap() {
	s.Require().NoError(s.svc.Bootstrap(s.ctx, "root-admin"))
	ok, err := s.svc.HasRole(s.ctx, roles.RoleAdmin, "root-admin")
	s.Require().NoError(err)
	s.True(ok)

	err = s.svc.Bootstrap(s.ctx, " ")
	s.Error(err)
}

func (s *LedgerSuite) TestNestedCallFailsInsteadOfDeadlocking() {
	s.createBansos()
	var nested error
	err := s.store.RunInTx(s.ctx, func(ctx context.Context, _ *store.Tx) error {
		_, nested = s.svc.IssueAid(ctx, officer, recordParams(bansos, "H1", 1))
		return nil
	})
	s.Require().NoError(err)
	s.requireCode(nested, dErrors.CodeInvariantViolation)
	s.True(errors.Is(nested, models.ErrReentrantOperation))
}
