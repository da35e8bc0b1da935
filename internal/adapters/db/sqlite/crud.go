package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

// The methods in this file back the HTTP CRUD surface. They are not
// part of domain.Store — the core never creates or mutates entities —
// but they persist through the same models and enforce the invariants
// §3 names for entity and edge lifecycle.

func (s *Store) CreateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error) {
	if reg.ID == "" {
		reg.ID = randomID()
	}
	reg.Version = 1
	reg.Active = true
	now := time.Now()
	m := RegulationModel{
		ID: reg.ID, TenantID: reg.TenantID, Code: reg.Code, Name: reg.Name,
		Severity: string(reg.Severity), Status: string(reg.Status),
		EffectiveDate: reg.EffectiveDate, ExpirationDate: reg.ExpirationDate,
		Version: 1, Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Regulation{}, domain.Conflict("a regulation with this code already exists for this tenant")
		}
		return domain.Regulation{}, domain.Upstream("creating regulation", err)
	}
	return regulationFromModel(m), nil
}

// UpdateRegulation requires version to strictly increase and enforces
// invariant 4; callers must pass a version greater than the stored one
// (passing the previously-read version unchanged is rejected as Invalid).
func (s *Store) UpdateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error) {
	var existing RegulationModel
	if err := s.db.WithContext(ctx).First(&existing, "tenant_id = ? AND id = ?", reg.TenantID, reg.ID).Error; err != nil {
		return domain.Regulation{}, translateNotFound(err, "regulation not found")
	}
	if reg.Version <= existing.Version {
		return domain.Regulation{}, domain.Invalid("regulation version must strictly increase on update")
	}
	updates := map[string]any{
		"name": reg.Name, "severity": string(reg.Severity), "status": string(reg.Status),
		"effective_date": reg.EffectiveDate, "expiration_date": reg.ExpirationDate,
		"version": reg.Version, "updated_at": time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&RegulationModel{}).Where("id = ?", reg.ID).Updates(updates).Error; err != nil {
		return domain.Regulation{}, domain.Upstream("updating regulation", err)
	}
	return s.FindRegulation(ctx, reg.TenantID, reg.ID)
}

func (s *Store) DeleteRegulation(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&RegulationModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

func (s *Store) CreateDepartment(ctx context.Context, d domain.Department) (domain.Department, error) {
	if d.ID == "" {
		d.ID = randomID()
	}
	now := time.Now()
	m := DepartmentModel{ID: d.ID, TenantID: d.TenantID, Code: d.Code, Name: d.Name, ParentID: d.ParentID, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Department{}, domain.Conflict("a department with this code already exists for this tenant")
		}
		return domain.Department{}, domain.Upstream("creating department", err)
	}
	return departmentFromModel(m), nil
}

func (s *Store) DeleteDepartment(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&DepartmentModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

func (s *Store) CreateBudget(ctx context.Context, b domain.Budget) (domain.Budget, error) {
	if b.ID == "" {
		b.ID = randomID()
	}
	now := time.Now()
	m := BudgetModel{ID: b.ID, TenantID: b.TenantID, Code: b.Code, Name: b.Name, Amount: b.Amount, Currency: b.Currency, FiscalYear: b.FiscalYear, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Budget{}, domain.Conflict("a budget with this code already exists for this tenant")
		}
		return domain.Budget{}, domain.Upstream("creating budget", err)
	}
	return budgetFromModel(m), nil
}

func (s *Store) DeleteBudget(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&BudgetModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	if svc.ID == "" {
		svc.ID = randomID()
	}
	now := time.Now()
	m := ServiceModel{ID: svc.ID, TenantID: svc.TenantID, Code: svc.Code, Name: svc.Name, ServiceType: svc.ServiceType, Status: svc.Status, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Service{}, domain.Conflict("a service with this code already exists for this tenant")
		}
		return domain.Service{}, domain.Upstream("creating service", err)
	}
	return serviceFromModel(m), nil
}

func (s *Store) DeleteService(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&ServiceModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

func (s *Store) CreateKPI(ctx context.Context, k domain.KPI) (domain.KPI, error) {
	if k.ID == "" {
		k.ID = randomID()
	}
	now := time.Now()
	m := KPIModel{ID: k.ID, TenantID: k.TenantID, Code: k.Code, Name: k.Name, Unit: k.Unit, Target: k.Target, Current: k.Current, Frequency: k.Frequency, Active: true, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.KPI{}, domain.Conflict("a KPI with this code already exists for this tenant")
		}
		return domain.KPI{}, domain.Upstream("creating kpi", err)
	}
	return kpiFromModel(m), nil
}

func (s *Store) DeleteKPI(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&KPIModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

// CreateEdge enforces invariants 2 and 3: no self-loops, and at most one
// edge per (tenant, source, target), via a unique index that also covers
// soft-deleted rows. The endpoints are not looked up, so it does not check
// that the source and target entities exist or belong to e.TenantID.
func (s *Store) CreateEdge(ctx context.Context, e domain.ImpactEdge) (domain.ImpactEdge, error) {
	if e.SourceType == e.TargetType && e.SourceID == e.TargetID {
		return domain.ImpactEdge{}, domain.Invalid("an edge cannot connect a node to itself")
	}
	if e.ID == "" {
		e.ID = randomID()
	}
	conditionJSON := ""
	if e.Condition != nil {
		b, err := json.Marshal(e.Condition)
		if err != nil {
			return domain.ImpactEdge{}, domain.Invalid("invalid condition payload")
		}
		conditionJSON = string(b)
	}
	now := time.Now()
	m := ImpactEdgeModel{
		ID: e.ID, TenantID: e.TenantID,
		SourceType: string(e.SourceType), SourceID: e.SourceID,
		TargetType: string(e.TargetType), TargetID: e.TargetID,
		ImpactWeight: e.ImpactWeight, ImpactType: string(e.ImpactType),
		ImpactCategory: e.ImpactCategory, ConditionJSON: conditionJSON,
		Active: true, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.ImpactEdge{}, domain.Conflict("an active edge between these nodes already exists")
		}
		return domain.ImpactEdge{}, domain.Upstream("creating edge", err)
	}
	return edgeFromModel(m)
}

func (s *Store) DeleteEdge(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Model(&ImpactEdgeModel{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Updates(map[string]any{"active": false, "updated_at": time.Now()}).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
