package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/service/mocks"
	"aidledger/internal/ledger/store"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/audit/publisher"
	"aidledger/pkg/requestcontext"
)

func TestRoleBackendFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerStore(ctrl)
	roleStore := mocks.NewMockRoleStore(ctrl)
	roleStore.EXPECT().Has(gomock.Any(), gomock.Any(), officer).
		Return(false, errors.New("redis: connection refused")).
		AnyTimes()

	svc := New(ledger, roleStore)
	ctx := requestcontext.WithTime(context.Background(), now)

	_, err := svc.IssueAid(ctx, officer, recordParams(bansos, "H1", 1_000))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	_, err = svc.UpdateStatus(ctx, officer, 1, models.StatusApproved, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	err = svc.Pause(ctx, officer, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestUnauthorizedCallerNeverOpensTransaction(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerStore(ctrl)
	roleStore := mocks.NewMockRoleStore(ctrl)
	roleStore.EXPECT().Has(gomock.Any(), gomock.Any(), stranger).Return(false, nil).AnyTimes()

	svc := New(ledger, roleStore)
	ctx := requestcontext.WithTime(context.Background(), now)

	_, err := svc.CreateProgram(ctx, stranger, programParams(bansos, 10, 0, 10))
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = svc.EmergencyCancel(ctx, stranger, 1, "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	err = svc.SetApprovalRequired(ctx, stranger, false)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	err = svc.GrantRole(ctx, stranger, roles.RoleAdmin, stranger)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
}

func TestStoreFailureIsInternal(t *testing.T) {
	ctrl := gomock.NewController(t)
	ledger := mocks.NewMockLedgerStore(ctrl)
	ledger.EXPECT().View(gomock.Any(), gomock.Any()).Return(errors.New("disk on fire"))

	svc := New(ledger, roles.NewMemoryStore())
	_, err := svc.GetStatistics(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockAuditPublisher(ctrl)
	pub.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("sink down")).Times(2)

	roleStore := roles.NewMemoryStore()
	ctx := requestcontext.WithTime(context.Background(), now)
	require.NoError(t, roleStore.Grant(ctx, roles.RoleAdmin, admin))

	svc := New(store.New(), roleStore, WithAuditPublisher(pub))
	_, err := svc.CreateProgram(ctx, admin, programParams(bansos, 1_000, 0, models.Unlimited))
	require.NoError(t, err)

	r, err := svc.IssueAid(ctx, admin, recordParams(bansos, "H1", 500))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, r.Status)
}

func TestAuditTrail(t *testing.T) {
	ctrl := gomock.NewController(t)
	trail := mocks.NewMockAuditTrail(ctrl)

	roleStore := roles.NewMemoryStore()
	ctx := requestcontext.WithTime(context.Background(), now)
	require.NoError(t, roleStore.Grant(ctx, roles.RoleAdmin, admin))
	require.NoError(t, roleStore.Grant(ctx, roles.RoleAidOfficer, officer))
	require.NoError(t, roleStore.Grant(ctx, roles.RoleAuditor, auditor))

	svc := New(store.New(), roleStore, WithAuditTrail(trail))
	_, err := svc.CreateProgram(ctx, admin, programParams(bansos, 1_000, 0, models.Unlimited))
	require.NoError(t, err)
	r, err := svc.IssueAid(ctx, officer, recordParams(bansos, "H1", 500))
	require.NoError(t, err)

	t.Run("auditor reads the trail", func(t *testing.T) {
		issued := audit.Event{ID: "e-1", Action: string(audit.EventAidIssued), RecordID: r.ID}
		trail.EXPECT().List(gomock.Any(), r.ID).Return([]audit.Event{issued}, nil)

		events, err := svc.AuditTrail(ctx, auditor, r.ID)
		require.NoError(t, err)
		assert.Equal(t, []audit.Event{issued}, events)
	})

	t.Run("operators are refused", func(t *testing.T) {
		_, err := svc.AuditTrail(ctx, officer, r.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = svc.AuditTrail(ctx, "", r.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := svc.AuditTrail(ctx, admin, 99)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("sink without per-record listing", func(t *testing.T) {
		trail.EXPECT().List(gomock.Any(), r.ID).Return(nil, publisher.ErrListUnsupported)

		_, err := svc.AuditTrail(ctx, admin, r.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("sink failure is internal", func(t *testing.T) {
		trail.EXPECT().List(gomock.Any(), r.ID).Return(nil, errors.New("outbox unreachable"))

		_, err := svc.AuditTrail(ctx, admin, r.ID)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
