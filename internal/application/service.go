// Package application wires the core engines, the persistence
// adapter, and the observer together behind one service every
// transport adapter (HTTP, CLI) depends on.
package application

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/db/sqlite"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/graph"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/propagation"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/risk"
)

// Service is the single entry point transport adapters call into. It
// validates input, delegates to the repository or the core engines,
// and invalidates the cache and writes an audit log around every
// mutation.
type Service struct {
	repo            Repository
	cache           *cache.Cache
	builder         *graph.Builder
	observer        domain.Observer
	log             *zap.Logger
	riskConcurrency int
}

func NewService(repo Repository, c *cache.Cache, observer domain.Observer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		cache:    c,
		builder:  graph.NewBuilder(repo, c),
		observer: observer,
		log:      log,
	}
}

// SetRiskConcurrency overrides the worker pool size RecalculateRisk and
// GetDepartmentRiskRanking use for their per-regulation propagation
// fan-out. n <= 0 leaves risk.NewAggregator to pick its automatic
// default.
func (s *Service) SetRiskConcurrency(n int) {
	s.riskConcurrency = n
}

// --- Regulations ---

func (s *Service) CreateRegulation(ctx context.Context, tenantID string, reg domain.Regulation) (domain.Regulation, error) {
	if strings.TrimSpace(reg.Code) == "" {
		return domain.Regulation{}, domain.Invalid("regulation code is required")
	}
	reg.TenantID = tenantID
	created, err := s.repo.CreateRegulation(ctx, reg)
	if err != nil {
		return domain.Regulation{}, err
	}
	s.cache.InvalidateRegulation(tenantID, created.ID)
	s.audit(ctx, tenantID, nil, "regulation.create", "REGULATION", created.ID, created.Code)
	return created, nil
}

func (s *Service) UpdateRegulation(ctx context.Context, tenantID string, reg domain.Regulation) (domain.Regulation, error) {
	reg.TenantID = tenantID
	updated, err := s.repo.UpdateRegulation(ctx, reg)
	if err != nil {
		return domain.Regulation{}, err
	}
	s.cache.InvalidateRegulation(tenantID, updated.ID)
	s.audit(ctx, tenantID, nil, "regulation.update", "REGULATION", updated.ID, updated.Code)
	return updated, nil
}

func (s *Service) DeleteRegulation(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteRegulation(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateRegulation(tenantID, id)
	s.audit(ctx, tenantID, nil, "regulation.delete", "REGULATION", id, "")
	return nil
}

// --- Departments, Budgets, Services, KPIs ---
// Entity CRUD follows one shape: validate a required code, delegate,
// invalidate the entity's cache tags, audit.

func (s *Service) CreateDepartment(ctx context.Context, tenantID string, d domain.Department) (domain.Department, error) {
	if strings.TrimSpace(d.Code) == "" {
		return domain.Department{}, domain.Invalid("department code is required")
	}
	d.TenantID = tenantID
	created, err := s.repo.CreateDepartment(ctx, d)
	if err != nil {
		return domain.Department{}, err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeDepartment), created.ID)
	s.audit(ctx, tenantID, nil, "department.create", "DEPARTMENT", created.ID, created.Code)
	return created, nil
}

func (s *Service) DeleteDepartment(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteDepartment(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeDepartment), id)
	s.audit(ctx, tenantID, nil, "department.delete", "DEPARTMENT", id, "")
	return nil
}

func (s *Service) CreateBudget(ctx context.Context, tenantID string, b domain.Budget) (domain.Budget, error) {
	if strings.TrimSpace(b.Code) == "" {
		return domain.Budget{}, domain.Invalid("budget code is required")
	}
	b.TenantID = tenantID
	created, err := s.repo.CreateBudget(ctx, b)
	if err != nil {
		return domain.Budget{}, err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeBudget), created.ID)
	s.audit(ctx, tenantID, nil, "budget.create", "BUDGET", created.ID, created.Code)
	return created, nil
}

func (s *Service) DeleteBudget(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteBudget(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeBudget), id)
	s.audit(ctx, tenantID, nil, "budget.delete", "BUDGET", id, "")
	return nil
}

func (s *Service) CreateService(ctx context.Context, tenantID string, svc domain.Service) (domain.Service, error) {
	if strings.TrimSpace(svc.Code) == "" {
		return domain.Service{}, domain.Invalid("service code is required")
	}
	svc.TenantID = tenantID
	created, err := s.repo.CreateService(ctx, svc)
	if err != nil {
		return domain.Service{}, err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeService), created.ID)
	s.audit(ctx, tenantID, nil, "service.create", "SERVICE", created.ID, created.Code)
	return created, nil
}

func (s *Service) DeleteService(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteService(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeService), id)
	s.audit(ctx, tenantID, nil, "service.delete", "SERVICE", id, "")
	return nil
}

func (s *Service) CreateKPI(ctx context.Context, tenantID string, k domain.KPI) (domain.KPI, error) {
	if strings.TrimSpace(k.Code) == "" {
		return domain.KPI{}, domain.Invalid("kpi code is required")
	}
	k.TenantID = tenantID
	created, err := s.repo.CreateKPI(ctx, k)
	if err != nil {
		return domain.KPI{}, err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeKPI), created.ID)
	s.audit(ctx, tenantID, nil, "kpi.create", "KPI", created.ID, created.Code)
	return created, nil
}

func (s *Service) DeleteKPI(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteKPI(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateEntity(tenantID, string(domain.NodeKPI), id)
	s.audit(ctx, tenantID, nil, "kpi.delete", "KPI", id, "")
	return nil
}

// --- Edges ---

func (s *Service) CreateEdge(ctx context.Context, tenantID string, e domain.ImpactEdge) (domain.ImpactEdge, error) {
	if !e.SourceType.Valid() || !e.TargetType.Valid() {
		return domain.ImpactEdge{}, domain.Invalid("edge endpoints must be a known node type")
	}
	e.TenantID = tenantID
	created, err := s.repo.CreateEdge(ctx, e)
	if err != nil {
		return domain.ImpactEdge{}, err
	}
	s.cache.InvalidateEdge(tenantID)
	s.audit(ctx, tenantID, nil, "edge.create", "IMPACT_EDGE", created.ID, created.SourceKey()+"->"+created.TargetKey())
	return created, nil
}

func (s *Service) DeleteEdge(ctx context.Context, tenantID, id string) error {
	if err := s.repo.DeleteEdge(ctx, tenantID, id); err != nil {
		return err
	}
	s.cache.InvalidateEdge(tenantID)
	s.audit(ctx, tenantID, nil, "edge.delete", "IMPACT_EDGE", id, "")
	return nil
}

// --- Core operations ---

// Propagate exposes a single ad-hoc traversal, seeded directly by
// callers that want impact from one node without persisting risk
// scores (e.g. a what-if preview before committing an edge).
func (s *Service) Propagate(ctx context.Context, tenantID string, seed propagation.Seed, cfg propagation.Config) (propagation.Result, error) {
	engine := propagation.NewEngine(tenantID, cfg, s.builder, s.repo)
	return engine.Propagate(ctx, seed)
}

// RecalculateRisk runs calculateAllRisks for the tenant, persists
// every resulting score, and narrates the run through the observer.
func (s *Service) RecalculateRisk(ctx context.Context, tenantID string) ([]risk.CalculationResult, error) {
	s.notify(ctx, tenantID, domain.EventRecalculationStart, nil)

	aggregator := risk.NewAggregator(tenantID, s.repo, s.builder, s.riskConcurrency)
	results, err := aggregator.CalculateAllRisks(ctx)
	if err != nil {
		s.notify(ctx, tenantID, domain.EventRecalculationError, map[string]any{"error": err.Error()})
		return nil, err
	}

	for _, r := range results {
		score := domain.RiskScore{
			TenantID: tenantID, EntityType: r.EntityType, EntityID: r.EntityID,
			BaseRiskScore: r.BaseRiskScore, AdjustedRiskScore: r.AdjustedRiskScore,
			RiskLevel: r.RiskLevel, RiskFactors: r.RiskFactors,
		}
		if err := s.repo.UpsertRiskScore(ctx, score); err != nil {
			s.notify(ctx, tenantID, domain.EventRecalculationError, map[string]any{"error": err.Error()})
			return nil, domain.Upstream("persisting risk score", err)
		}
		s.notify(ctx, tenantID, domain.EventRiskUpdate, map[string]any{
			"entityType": string(r.EntityType), "entityId": r.EntityID, "riskLevel": string(r.RiskLevel),
		})
	}

	s.cache.InvalidateByTag(cache.ScopedTag(tenantID, "risk-scores"))
	s.notify(ctx, tenantID, domain.EventRecalculationComplete, map[string]any{"entityCount": len(results)})
	return results, nil
}

func (s *Service) GetDepartmentRiskRanking(ctx context.Context, tenantID string) ([]risk.DepartmentRanking, error) {
	aggregator := risk.NewAggregator(tenantID, s.repo, s.builder, s.riskConcurrency)
	return aggregator.GetDepartmentRiskRanking(ctx)
}

func (s *Service) RunSimulation(ctx context.Context, tenantID, regulationID string, beforeDate, afterDate time.Time) (domain.SimulationRun, error) {
	runner := risk.NewSimulationRunner(tenantID, s.repo, s.observer, s.builder)
	return runner.Run(ctx, regulationID, beforeDate, afterDate)
}

// --- Auth ---

func (s *Service) BootstrapAdmin(ctx context.Context, tenantID, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.Invalid("bootstrap admin email and password are required")
	}
	if _, err := s.repo.FindUserByEmail(ctx, tenantID, email); err == nil {
		return nil
	}
	hash, err := hashPassword(password)
	if err != nil {
		return domain.Upstream("hashing bootstrap password", err)
	}
	user, err := s.repo.CreateUser(ctx, tenantID, email, hash)
	if err != nil {
		return err
	}
	roleID, err := s.repo.EnsureRole(ctx, "admin", "Administrator")
	if err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, user.ID, roleID); err != nil {
		return err
	}
	s.audit(ctx, tenantID, &user.ID, "auth.bootstrap_admin", "USER", user.ID, "initial admin created")
	return nil
}

// Authenticate verifies an email/password pair and returns the user
// record a caller can mint a JWT against; it issues no token itself —
// that belongs to the transport adapter holding the signing secret.
func (s *Service) Authenticate(ctx context.Context, tenantID, email, password string) (sqlite.User, error) {
	user, err := s.repo.FindUserByEmail(ctx, tenantID, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return sqlite.User{}, domain.Invalid("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return sqlite.User{}, domain.Invalid("invalid credentials")
	}
	s.audit(ctx, tenantID, &user.ID, "auth.login", "USER", user.ID, "")
	return user, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditEntry, error) {
	return s.repo.ListAuditLogs(ctx, tenantID, limit)
}

func (s *Service) audit(ctx context.Context, tenantID string, actorUserID *string, action, targetType, targetID, metadata string) {
	if err := s.repo.AppendAuditLog(ctx, domain.AuditEntry{
		TenantID: tenantID, ActorUserID: actorUserID, Action: action,
		TargetType: targetType, TargetID: targetID, Metadata: metadata,
		CreatedAt: time.Now(),
	}); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, tenantID string, kind domain.EventKind, payload map[string]any) {
	if s.observer == nil {
		return
	}
	s.observer.Publish(ctx, tenantID, domain.Event{TenantID: tenantID, Kind: kind, Timestamp: time.Now(), Payload: payload})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.New("failed to hash password")
	}
	return string(hash), nil
}
