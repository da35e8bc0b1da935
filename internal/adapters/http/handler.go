// Package http exposes the application service as a JSON API over
// chi, authenticating every request except login with a bearer JWT.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/application"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/propagation"
)

type Handler struct {
	service   *application.Service
	jwtSecret []byte
	validate  *validator.Validate
	log       *zap.Logger
}

func NewRouter(service *application.Service, jwtSecret []byte, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{service: service, jwtSecret: jwtSecret, validate: validator.New(), log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Post("/api/v1/auth/login", h.handleLogin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(h.requireAuth)

		api.Post("/regulations", h.handleCreateRegulation)
		api.Put("/regulations", h.handleUpdateRegulation)
		api.Delete("/regulations/{id}", h.handleDeleteRegulation)

		api.Post("/departments", h.handleCreateDepartment)
		api.Delete("/departments/{id}", h.handleDeleteDepartment)

		api.Post("/budgets", h.handleCreateBudget)
		api.Delete("/budgets/{id}", h.handleDeleteBudget)

		api.Post("/services", h.handleCreateService)
		api.Delete("/services/{id}", h.handleDeleteService)

		api.Post("/kpis", h.handleCreateKPI)
		api.Delete("/kpis/{id}", h.handleDeleteKPI)

		api.Post("/edges", h.handleCreateEdge)
		api.Delete("/edges/{id}", h.handleDeleteEdge)

		api.Post("/propagate", h.handlePropagate)
		api.Post("/risk/recalculate", h.handleRecalculateRisk)
		api.Get("/risk/departments", h.handleDepartmentRanking)
		api.Post("/simulations", h.handleRunSimulation)

		api.Get("/audit/logs", h.handleListAuditLogs)
	})

	return r
}

type loginRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.TenantID, req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID, TenantID: req.TenantID, Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(12 * time.Hour)),
		},
	})
	signed, err := token.SignedString(h.jwtSecret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to issue token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": signed, "userId": user.ID, "email": user.Email})
}

type regulationRequest struct {
	ID            string    `json:"id"`
	Code          string    `json:"code" validate:"required"`
	Name          string    `json:"name"`
	Severity      string    `json:"severity" validate:"required,oneof=Low Medium High Critical"`
	Status        string    `json:"status" validate:"required,oneof=Draft Active Superseded Revoked"`
	EffectiveDate time.Time `json:"effectiveDate"`
	Version       int       `json:"version"`
}

func (h *Handler) handleCreateRegulation(w http.ResponseWriter, r *http.Request) {
	var req regulationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	tenantID := mustTenant(r)
	reg, err := h.service.CreateRegulation(r.Context(), tenantID, domain.Regulation{
		Code: req.Code, Name: req.Name, Severity: domain.Severity(req.Severity),
		Status: domain.RegulationStatus(req.Status), EffectiveDate: req.EffectiveDate,
	})
	if !h.respond(w, reg, err, http.StatusCreated) {
		return
	}
}

func (h *Handler) handleUpdateRegulation(w http.ResponseWriter, r *http.Request) {
	var req regulationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	tenantID := mustTenant(r)
	reg, err := h.service.UpdateRegulation(r.Context(), tenantID, domain.Regulation{
		ID: req.ID, Code: req.Code, Name: req.Name, Severity: domain.Severity(req.Severity),
		Status: domain.RegulationStatus(req.Status), EffectiveDate: req.EffectiveDate, Version: req.Version,
	})
	h.respond(w, reg, err, http.StatusOK)
}

func (h *Handler) handleDeleteRegulation(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteRegulation(r.Context(), mustTenant(r), chi.URLParam(r, "id"))
	h.respondEmpty(w, err)
}

type namedEntityRequest struct {
	Code string `json:"code" validate:"required"`
	Name string `json:"name"`
}

func (h *Handler) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req namedEntityRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	d, err := h.service.CreateDepartment(r.Context(), mustTenant(r), domain.Department{Code: req.Code, Name: req.Name})
	h.respond(w, d, err, http.StatusCreated)
}

func (h *Handler) handleDeleteDepartment(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.service.DeleteDepartment(r.Context(), mustTenant(r), chi.URLParam(r, "id")))
}

type budgetRequest struct {
	Code       string  `json:"code" validate:"required"`
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	FiscalYear int     `json:"fiscalYear"`
}

func (h *Handler) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	b, err := h.service.CreateBudget(r.Context(), mustTenant(r), domain.Budget{
		Code: req.Code, Name: req.Name, Amount: req.Amount, Currency: req.Currency, FiscalYear: req.FiscalYear,
	})
	h.respond(w, b, err, http.StatusCreated)
}

func (h *Handler) handleDeleteBudget(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.service.DeleteBudget(r.Context(), mustTenant(r), chi.URLParam(r, "id")))
}

type serviceRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name"`
	ServiceType string `json:"serviceType"`
	Status      string `json:"status"`
}

func (h *Handler) handleCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	svc, err := h.service.CreateService(r.Context(), mustTenant(r), domain.Service{
		Code: req.Code, Name: req.Name, ServiceType: req.ServiceType, Status: req.Status,
	})
	h.respond(w, svc, err, http.StatusCreated)
}

func (h *Handler) handleDeleteService(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.service.DeleteService(r.Context(), mustTenant(r), chi.URLParam(r, "id")))
}

type kpiRequest struct {
	Code      string  `json:"code" validate:"required"`
	Name      string  `json:"name"`
	Unit      string  `json:"unit"`
	Target    float64 `json:"target"`
	Current   float64 `json:"current"`
	Frequency string  `json:"frequency"`
}

func (h *Handler) handleCreateKPI(w http.ResponseWriter, r *http.Request) {
	var req kpiRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	k, err := h.service.CreateKPI(r.Context(), mustTenant(r), domain.KPI{
		Code: req.Code, Name: req.Name, Unit: req.Unit, Target: req.Target, Current: req.Current, Frequency: req.Frequency,
	})
	h.respond(w, k, err, http.StatusCreated)
}

func (h *Handler) handleDeleteKPI(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.service.DeleteKPI(r.Context(), mustTenant(r), chi.URLParam(r, "id")))
}

type edgeRequest struct {
	SourceType     string         `json:"sourceType" validate:"required,oneof=REGULATION DEPARTMENT BUDGET SERVICE KPI"`
	SourceID       string         `json:"sourceId" validate:"required"`
	TargetType     string         `json:"targetType" validate:"required,oneof=REGULATION DEPARTMENT BUDGET SERVICE KPI"`
	TargetID       string         `json:"targetId" validate:"required"`
	ImpactWeight   float64        `json:"impactWeight" validate:"min=0,max=1"`
	ImpactType     string         `json:"impactType" validate:"required,oneof=Direct Indirect Conditional"`
	ImpactCategory string         `json:"impactCategory"`
	Condition      map[string]any `json:"condition"`
}

func (h *Handler) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var req edgeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	e, err := h.service.CreateEdge(r.Context(), mustTenant(r), domain.ImpactEdge{
		SourceType: domain.NodeType(req.SourceType), SourceID: req.SourceID,
		TargetType: domain.NodeType(req.TargetType), TargetID: req.TargetID,
		ImpactWeight: req.ImpactWeight, ImpactType: domain.ImpactType(req.ImpactType),
		ImpactCategory: req.ImpactCategory, Condition: req.Condition,
	})
	h.respond(w, e, err, http.StatusCreated)
}

func (h *Handler) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	h.respondEmpty(w, h.service.DeleteEdge(r.Context(), mustTenant(r), chi.URLParam(r, "id")))
}

type propagateRequest struct {
	SourceType    string  `json:"sourceType" validate:"required,oneof=REGULATION DEPARTMENT BUDGET SERVICE KPI"`
	SourceID      string  `json:"sourceId" validate:"required"`
	InitialImpact float64 `json:"initialImpact"`
	MaxDepth      int     `json:"maxDepth"`
	// ImpactThreshold is a pointer for the same reason as
	// IncludeIndirect below: 0 is a legitimate explicit threshold
	// (include everything), so an omitted field can't be told apart
	// from an explicit zero without one.
	ImpactThreshold *float64 `json:"impactThreshold"`
	// IncludeIndirect is a pointer so an omitted field can be told
	// apart from an explicit false; the documented default is true.
	IncludeIndirect *bool `json:"includeIndirect"`
}

func (h *Handler) handlePropagate(w http.ResponseWriter, r *http.Request) {
	var req propagateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	includeIndirect := true
	if req.IncludeIndirect != nil {
		includeIndirect = *req.IncludeIndirect
	}
	impactThreshold := propagation.DefaultConfig().ImpactThreshold
	if req.ImpactThreshold != nil {
		impactThreshold = *req.ImpactThreshold
	}
	result, err := h.service.Propagate(r.Context(), mustTenant(r),
		propagation.Seed{SourceType: domain.NodeType(req.SourceType), SourceID: req.SourceID, InitialImpact: req.InitialImpact},
		propagation.Config{MaxDepth: req.MaxDepth, ImpactThreshold: impactThreshold, IncludeIndirect: includeIndirect},
	)
	h.respond(w, result, err, http.StatusOK)
}

func (h *Handler) handleRecalculateRisk(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.RecalculateRisk(r.Context(), mustTenant(r))
	h.respond(w, results, err, http.StatusOK)
}

func (h *Handler) handleDepartmentRanking(w http.ResponseWriter, r *http.Request) {
	ranking, err := h.service.GetDepartmentRiskRanking(r.Context(), mustTenant(r))
	h.respond(w, ranking, err, http.StatusOK)
}

type simulationRequest struct {
	RegulationID string    `json:"regulationId" validate:"required"`
	BeforeDate   time.Time `json:"beforeDate" validate:"required"`
	AfterDate    time.Time `json:"afterDate" validate:"required"`
}

func (h *Handler) handleRunSimulation(w http.ResponseWriter, r *http.Request) {
	var req simulationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	run, err := h.service.RunSimulation(r.Context(), mustTenant(r), req.RegulationID, req.BeforeDate, req.AfterDate)
	h.respond(w, run, err, http.StatusOK)
}

func (h *Handler) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListAuditLogs(r.Context(), mustTenant(r), 200)
	h.respond(w, logs, err, http.StatusOK)
}

func mustTenant(r *http.Request) string {
	c, _ := claimsFromContext(r.Context())
	return c.TenantID
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid payload"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, payload any, err error, okStatus int) bool {
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return false
	}
	writeJSON(w, okStatus, payload)
	return true
}

func (h *Handler) respondEmpty(w http.ResponseWriter, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case domain.IsKind(err, domain.KindNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.KindInvalid):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.KindConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.KindCancelled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
