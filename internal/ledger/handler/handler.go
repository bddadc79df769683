package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"aidledger/internal/ledger/models"
	"aidledger/internal/ledger/roles"
	"aidledger/internal/ledger/service"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	audit "aidledger/pkg/platform/audit"
	"aidledger/pkg/platform/httputil"
	"aidledger/pkg/requestcontext"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	CreateProgram(ctx context.Context, actor id.Identity, params models.ProgramParams) (*models.Program, error)
	UpdateProgram(ctx context.Context, actor id.Identity, name id.ProgramID, newBudget uint64, isActive bool) (*models.Program, error)
	GetProgram(ctx context.Context, name id.ProgramID) (*models.Program, error)
	ListPrograms(ctx context.Context) ([]*models.Program, error)
	CheckEligibility(ctx context.Context, programID id.ProgramID, amount uint64, category models.Category) error

	IssueAid(ctx context.Context, actor id.Identity, params models.RecordParams) (*models.AidRecord, error)
	UpdateStatus(ctx context.Context, actor id.Identity, recordID id.RecordID, next models.Status, notes string) (*models.AidRecord, error)
	EmergencyCancel(ctx context.Context, actor id.Identity, recordID id.RecordID, reason string) (*models.AidRecord, error)
	UpdatePaymentDocumentation(ctx context.Context, actor id.Identity, recordID id.RecordID, contentReference, method string) (*models.AidRecord, error)
	Pause(ctx context.Context, actor id.Identity, reason string) error
	Unpause(ctx context.Context, actor id.Identity, reason string) error
	SetApprovalRequired(ctx context.Context, actor id.Identity, required bool) error

	GetAidRecord(ctx context.Context, recordID id.RecordID) (*models.AidRecord, error)
	GetHistory(ctx context.Context, recordID id.RecordID) ([]models.HistoryEntry, error)
	AuditTrail(ctx context.Context, actor id.Identity, recordID id.RecordID) ([]audit.Event, error)
	ListAll(ctx context.Context) ([]*models.AidRecord, error)
	ListByProgram(ctx context.Context, programID id.ProgramID) ([]*models.AidRecord, error)
	ListByStatus(ctx context.Context, status models.Status) ([]*models.AidRecord, error)
	ListByCategory(ctx context.Context, category models.Category) ([]*models.AidRecord, error)
	ListByLocation(ctx context.Context, loc models.Location) ([]*models.AidRecord, error)
	ListByBeneficiary(ctx context.Context, b id.BeneficiaryHash) ([]*models.AidRecord, error)
	IsClaimed(ctx context.Context, b id.BeneficiaryHash, programID id.ProgramID) (bool, error)
	HasClaimedAny(ctx context.Context, b id.BeneficiaryHash) (bool, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
	GetSettings(ctx context.Context) (service.Settings, error)
	EmergencyActions(ctx context.Context) ([]models.EmergencyAction, error)

	GrantRole(ctx context.Context, actor id.Identity, role roles.Role, identity id.Identity) error
	RevokeRole(ctx context.Context, actor id.Identity, role roles.Role, identity id.Identity) error
	RoleMembers(ctx context.Context, role roles.Role) ([]id.Identity, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: svc,
		logger:  logger,
	}
}

// Register mounts the ledger endpoints under /v1. Authentication middleware is
// applied by the caller.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/programs", h.HandleCreateProgram)
		r.Get("/programs", h.HandleListPrograms)
		r.Get("/programs/{name}", h.HandleGetProgram)
		r.Patch("/programs/{name}", h.HandleUpdateProgram)
		r.Post("/programs/{name}/eligibility", h.HandleCheckEligibility)

		r.Post("/records", h.HandleIssueAid)
		r.Get("/records", h.HandleListRecords)
		r.Get("/records/{id}", h.HandleGetRecord)
		r.Get("/records/{id}/history", h.HandleGetHistory)
		r.Get("/records/{id}/audit", h.HandleGetAuditTrail)
		r.Post("/records/{id}/status", h.HandleUpdateStatus)
		r.Post("/records/{id}/cancel", h.HandleEmergencyCancel)
		r.Put("/records/{id}/payment", h.HandleUpdatePayment)

		r.Get("/claims", h.HandleGetClaim)
		r.Get("/statistics", h.HandleGetStatistics)

		r.Get("/settings", h.HandleGetSettings)
		r.Post("/settings/pause", h.HandlePause)
		r.Post("/settings/unpause", h.HandleUnpause)
		r.Put("/settings/approval-required", h.HandleSetApprovalRequired)
		r.Get("/emergency-actions", h.HandleEmergencyActions)

		r.Get("/roles/{role}/members", h.HandleRoleMembers)
		r.Post("/roles/{role}/members", h.HandleGrantRole)
		r.Delete("/roles/{role}/members/{identity}", h.HandleRevokeRole)
	})
}

// requireActor returns the authenticated caller or writes 401.
func requireActor(ctx context.Context, w http.ResponseWriter) (id.Identity, bool) {
	actor := requestcontext.Actor(ctx)
	if actor.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return "", false
	}
	return actor, true
}

func recordIDParam(w http.ResponseWriter, r *http.Request) (id.RecordID, bool) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return 0, false
	}
	return recordID, true
}

func programParam(w http.ResponseWriter, r *http.Request) (id.ProgramID, bool) {
	name, err := id.ParseProgramID(chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return name, true
}

// fail logs a rejected call and writes the error. Client errors log at warn,
// internal ones at error.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.GetCode(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, args...)
	} else {
		h.logger.WarnContext(ctx, msg, args...)
	}
	httputil.WriteError(w, err)
}

// HandleCreateProgram handles POST /v1/programs.
func (h *Handler) HandleCreateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateProgramRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	program, err := h.service.CreateProgram(ctx, actor, req.Params())
	if err != nil {
		h.fail(ctx, w, "create program failed", err, "program", req.Name)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromProgram(program))
}

// HandleListPrograms handles GET /v1/programs.
func (h *Handler) HandleListPrograms(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	programs, err := h.service.ListPrograms(ctx)
	if err != nil {
		h.fail(ctx, w, "list programs failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPrograms(programs))
}

// HandleGetProgram handles GET /v1/programs/{name}.
func (h *Handler) HandleGetProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := programParam(w, r)
	if !ok {
		return
	}
	program, err := h.service.GetProgram(ctx, name)
	if err != nil {
		h.fail(ctx, w, "get program failed", err, "program", name)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProgram(program))
}

// HandleUpdateProgram handles PATCH /v1/programs/{name}.
func (h *Handler) HandleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	name, ok := programParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateProgramRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	program, err := h.service.UpdateProgram(ctx, actor, name, req.TotalBudget, *req.IsActive)
	if err != nil {
		h.fail(ctx, w, "update program failed", err, "program", name)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProgram(program))
}

// HandleCheckEligibility handles POST /v1/programs/{name}/eligibility. A rule
// failure is a normal answer, not an HTTP error.
func (h *Handler) HandleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name, ok := programParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[EligibilityRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	resp := EligibilityResponse{Program: name, Eligible: true}
	if err := h.service.CheckEligibility(ctx, name, req.Amount, req.category); err != nil {
		switch dErrors.GetCode(err) {
		case dErrors.CodeValidation, dErrors.CodeBudgetExceeded:
			resp.Eligible = false
			var de *dErrors.Error
			if errors.As(err, &de) {
				resp.Reason = de.Message
			}
		default:
			h.fail(ctx, w, "eligibility check failed", err, "program", name)
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleIssueAid handles POST /v1/records.
func (h *Handler) HandleIssueAid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[IssueAidRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	record, err := h.service.IssueAid(ctx, actor, req.Params())
	if err != nil {
		h.fail(ctx, w, "issue aid failed", err, "program", req.Program, "actor", actor)
		return
	}
	h.logger.InfoContext(ctx, "aid issued",
		"request_id", requestID,
		"record_id", record.ID,
		"program", record.ProgramID,
		"status", record.Status,
	)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleListRecords handles GET /v1/records. At most one filter applies:
// program, status, category, beneficiary_hash, beneficiary_id, or a location
// built from province, city, district and village.
func (h *Handler) HandleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	loc := models.Location{
		Province: q.Get("province"),
		City:     q.Get("city"),
		District: q.Get("district"),
		Village:  q.Get("village"),
	}
	hasLocation := loc != (models.Location{})

	filters := 0
	for _, key := range []string{"program", "status", "category", "beneficiary_hash", "beneficiary_id"} {
		if q.Get(key) != "" {
			filters++
		}
	}
	if hasLocation {
		filters++
	}
	if filters > 1 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "use at most one filter"))
		return
	}

	var (
		records []*models.AidRecord
		err     error
	)
	switch {
	case q.Get("program") != "":
		var program id.ProgramID
		if program, err = id.ParseProgramID(q.Get("program")); err == nil {
			records, err = h.service.ListByProgram(ctx, program)
		}
	case q.Get("status") != "":
		var status models.Status
		if status, err = models.ParseStatus(q.Get("status")); err == nil {
			records, err = h.service.ListByStatus(ctx, status)
		}
	case q.Get("category") != "":
		var category models.Category
		if category, err = models.ParseCategory(q.Get("category")); err == nil {
			records, err = h.service.ListByCategory(ctx, category)
		}
	case q.Get("beneficiary_hash") != "":
		var b id.BeneficiaryHash
		if b, err = id.ParseBeneficiaryHash(q.Get("beneficiary_hash")); err == nil {
			records, err = h.service.ListByBeneficiary(ctx, b)
		}
	case q.Get("beneficiary_id") != "":
		records, err = h.service.ListByBeneficiary(ctx, id.HashBeneficiary(q.Get("beneficiary_id")))
	case hasLocation:
		records, err = h.service.ListByLocation(ctx, loc)
	default:
		records, err = h.service.ListAll(ctx)
	}
	if err != nil {
		h.fail(ctx, w, "list records failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(records))
}

// HandleGetRecord handles GET /v1/records/{id}.
func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	record, err := h.service.GetAidRecord(ctx, recordID)
	if err != nil {
		h.fail(ctx, w, "get record failed", err, "record_id", recordID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleGetHistory handles GET /v1/records/{id}/history.
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.service.GetHistory(ctx, recordID)
	if err != nil {
		h.fail(ctx, w, "get history failed", err, "record_id", recordID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{RecordID: recordID, Entries: entries})
}

// HandleGetAuditTrail handles GET /v1/records/{id}/audit.
func (h *Handler) HandleGetAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	events, err := h.service.AuditTrail(ctx, actor, recordID)
	if err != nil {
		h.fail(ctx, w, "get audit trail failed", err, "record_id", recordID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditTrailResponse(recordID, events))
}

// HandleUpdateStatus handles POST /v1/records/{id}/status.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.service.UpdateStatus(ctx, actor, recordID, req.status, req.Notes)
	if err != nil {
		h.fail(ctx, w, "update status failed", err, "record_id", recordID, "to", req.status)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleEmergencyCancel handles POST /v1/records/{id}/cancel.
func (h *Handler) HandleEmergencyCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.service.EmergencyCancel(ctx, actor, recordID, req.Reason)
	if err != nil {
		h.fail(ctx, w, "emergency cancel failed", err, "record_id", recordID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleUpdatePayment handles PUT /v1/records/{id}/payment.
func (h *Handler) HandleUpdatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentDocumentationRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	record, err := h.service.UpdatePaymentDocumentation(ctx, actor, recordID, req.ContentReference, req.Method)
	if err != nil {
		h.fail(ctx, w, "update payment documentation failed", err, "record_id", recordID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleGetClaim handles GET /v1/claims. Without a program it answers whether
// the beneficiary claimed under any program.
func (h *Handler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var b id.BeneficiaryHash
	switch {
	case q.Get("beneficiary_hash") != "":
		parsed, err := id.ParseBeneficiaryHash(q.Get("beneficiary_hash"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		b = parsed
	case q.Get("beneficiary_id") != "":
		b = id.HashBeneficiary(q.Get("beneficiary_id"))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "beneficiary_hash or beneficiary_id is required"))
		return
	}

	resp := ClaimResponse{BeneficiaryHash: b}
	var err error
	if program := strings.TrimSpace(q.Get("program")); program != "" {
		resp.Program = id.ProgramID(program)
		resp.Claimed, err = h.service.IsClaimed(ctx, b, resp.Program)
	} else {
		resp.Claimed, err = h.service.HasClaimedAny(ctx, b)
	}
	if err != nil {
		h.fail(ctx, w, "claim lookup failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGetStatistics handles GET /v1/statistics.
func (h *Handler) HandleGetStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.GetStatistics(ctx)
	if err != nil {
		h.fail(ctx, w, "statistics failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleGetSettings handles GET /v1/settings.
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	settings, err := h.service.GetSettings(ctx)
	if err != nil {
		h.fail(ctx, w, "settings failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, settings)
}

// HandlePause handles POST /v1/settings/pause.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handlePauseSwitch(w, r, h.service.Pause)
}

// HandleUnpause handles POST /v1/settings/unpause.
func (h *Handler) HandleUnpause(w http.ResponseWriter, r *http.Request) {
	h.handlePauseSwitch(w, r, h.service.Unpause)
}

func (h *Handler) handlePauseSwitch(w http.ResponseWriter, r *http.Request, apply func(context.Context, id.Identity, string) error) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := apply(ctx, actor, req.Reason); err != nil {
		h.fail(ctx, w, "pause switch failed", err, "actor", actor)
		return
	}
	h.HandleGetSettings(w, r)
}

// HandleSetApprovalRequired handles PUT /v1/settings/approval-required.
func (h *Handler) HandleSetApprovalRequired(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ApprovalRequiredRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.SetApprovalRequired(ctx, actor, *req.Required); err != nil {
		h.fail(ctx, w, "set approval requirement failed", err, "actor", actor)
		return
	}
	h.HandleGetSettings(w, r)
}

// HandleEmergencyActions handles GET /v1/emergency-actions.
func (h *Handler) HandleEmergencyActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actions, err := h.service.EmergencyActions(ctx)
	if err != nil {
		h.fail(ctx, w, "emergency log failed", err)
		return
	}
	if actions == nil {
		actions = []models.EmergencyAction{}
	}
	httputil.WriteJSON(w, http.StatusOK, EmergencyActionsResponse{Actions: actions})
}

// HandleRoleMembers handles GET /v1/roles/{role}/members.
func (h *Handler) HandleRoleMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.service.RoleMembers(ctx, role)
	if err != nil {
		h.fail(ctx, w, "list role members failed", err, "role", role)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RoleMembersResponse{Role: role, Members: members})
}

// HandleGrantRole handles POST /v1/roles/{role}/members.
func (h *Handler) HandleGrantRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[GrantRoleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.service.GrantRole(ctx, actor, role, req.identity); err != nil {
		h.fail(ctx, w, "grant role failed", err, "role", role)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRevokeRole handles DELETE /v1/roles/{role}/members/{identity}.
func (h *Handler) HandleRevokeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	role, err := parseRole(chi.URLParam(r, "role"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RevokeRole(ctx, actor, role, identity); err != nil {
		h.fail(ctx, w, "revoke role failed", err, "role", role)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
