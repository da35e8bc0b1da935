// Package sqlite implements the domain.Store contract over GORM and
// SQLite, the persistence adapter the core never imports directly.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

type Store struct {
	db *gorm.DB
}

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{})
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindTenant(ctx context.Context, id string) (domain.Tenant, error) {
	var m TenantModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return domain.Tenant{}, translateNotFound(err, "tenant not found")
	}
	return domain.Tenant{ID: m.ID, Code: m.Code, Name: m.Name, CreatedAt: m.CreatedAt}, nil
}

func (s *Store) FindRegulation(ctx context.Context, tenantID, id string) (domain.Regulation, error) {
	var m RegulationModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return domain.Regulation{}, translateNotFound(err, "regulation not found")
	}
	return regulationFromModel(m), nil
}

func (s *Store) FindDepartment(ctx context.Context, tenantID, id string) (domain.Department, error) {
	var m DepartmentModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return domain.Department{}, translateNotFound(err, "department not found")
	}
	return departmentFromModel(m), nil
}

func (s *Store) FindBudget(ctx context.Context, tenantID, id string) (domain.Budget, error) {
	var m BudgetModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return domain.Budget{}, translateNotFound(err, "budget not found")
	}
	return budgetFromModel(m), nil
}

func (s *Store) FindService(ctx context.Context, tenantID, id string) (domain.Service, error) {
	var m ServiceModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return domain.Service{}, translateNotFound(err, "service not found")
	}
	return serviceFromModel(m), nil
}

func (s *Store) FindKPI(ctx context.Context, tenantID, id string) (domain.KPI, error) {
	var m KPIModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return domain.KPI{}, translateNotFound(err, "kpi not found")
	}
	return kpiFromModel(m), nil
}

func (s *Store) ActiveEntitiesByType(ctx context.Context, tenantID string, nodeType domain.NodeType) ([]domain.NamedEntity, error) {
	switch nodeType {
	case domain.NodeRegulation:
		var rows []RegulationModel
		if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.NamedEntity, 0, len(rows))
		for _, m := range rows {
			out = append(out, domain.NamedEntity{Type: domain.NodeRegulation, ID: m.ID, Name: regulationFromModel(m).DisplayName(), Active: m.Active})
		}
		return out, nil
	case domain.NodeDepartment:
		var rows []DepartmentModel
		if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.NamedEntity, 0, len(rows))
		for _, m := range rows {
			out = append(out, domain.NamedEntity{Type: domain.NodeDepartment, ID: m.ID, Name: departmentFromModel(m).DisplayName(), Active: m.Active})
		}
		return out, nil
	case domain.NodeBudget:
		var rows []BudgetModel
		if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.NamedEntity, 0, len(rows))
		for _, m := range rows {
			out = append(out, domain.NamedEntity{Type: domain.NodeBudget, ID: m.ID, Name: budgetFromModel(m).DisplayName(), Active: m.Active})
		}
		return out, nil
	case domain.NodeService:
		var rows []ServiceModel
		if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.NamedEntity, 0, len(rows))
		for _, m := range rows {
			out = append(out, domain.NamedEntity{Type: domain.NodeService, ID: m.ID, Name: serviceFromModel(m).DisplayName(), Active: m.Active})
		}
		return out, nil
	case domain.NodeKPI:
		var rows []KPIModel
		if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]domain.NamedEntity, 0, len(rows))
		for _, m := range rows {
			out = append(out, domain.NamedEntity{Type: domain.NodeKPI, ID: m.ID, Name: kpiFromModel(m).DisplayName(), Active: m.Active})
		}
		return out, nil
	default:
		return nil, domain.Invalid("unknown node type")
	}
}

func (s *Store) ActiveEdges(ctx context.Context, tenantID string) ([]domain.ImpactEdge, error) {
	var rows []ImpactEdgeModel
	if err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ImpactEdge, 0, len(rows))
	for _, m := range rows {
		e, err := edgeFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) ActiveRegulations(ctx context.Context, tenantID string) ([]domain.Regulation, error) {
	var rows []RegulationModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ? AND status = ?", tenantID, true, string(domain.RegulationActive)).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Regulation, 0, len(rows))
	for _, m := range rows {
		out = append(out, regulationFromModel(m))
	}
	return out, nil
}

func (s *Store) RegulationsActiveBefore(ctx context.Context, tenantID string, before time.Time, excludingID string) ([]domain.Regulation, error) {
	var rows []RegulationModel
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ? AND id <> ? AND effective_date < ?", tenantID, true, excludingID, before).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Regulation, 0, len(rows))
	for _, m := range rows {
		out = append(out, regulationFromModel(m))
	}
	return out, nil
}

// ReplaceRegulationImpacts atomically wipes and re-inserts a
// regulation's derived impact rows.
func (s *Store) ReplaceRegulationImpacts(ctx context.Context, regulationID string, impacts []domain.RegulationImpact) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("regulation_id = ?", regulationID).Delete(&RegulationImpactModel{}).Error; err != nil {
			return err
		}
		for _, imp := range impacts {
			pathJSON, err := json.Marshal(imp.Path)
			if err != nil {
				return err
			}
			m := RegulationImpactModel{
				ID:           randomID(),
				RegulationID: imp.RegulationID,
				TenantID:     imp.TenantID,
				NodeType:     string(imp.NodeType),
				NodeID:       imp.NodeID,
				ImpactScore:  imp.ImpactScore,
				ImpactLevel:  string(imp.ImpactLevel),
				PathJSON:     string(pathJSON),
				CreatedAt:    time.Now(),
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpsertRiskScore(ctx context.Context, score domain.RiskScore) error {
	factorsJSON, err := json.Marshal(score.RiskFactors)
	if err != nil {
		return err
	}
	m := RiskScoreModel{
		TenantID:          score.TenantID,
		EntityType:        string(score.EntityType),
		EntityID:          score.EntityID,
		BaseRiskScore:     score.BaseRiskScore,
		AdjustedRiskScore: score.AdjustedRiskScore,
		RiskLevel:         string(score.RiskLevel),
		RiskFactorsJSON:   string(factorsJSON),
		UpdatedAt:         time.Now(),
	}

	var existing RiskScoreModel
	err = s.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", score.TenantID, score.EntityType, score.EntityID).
		First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		m.ID = randomID()
		return s.db.WithContext(ctx).Create(&m).Error
	case err != nil:
		return err
	default:
		m.ID = existing.ID
		return s.db.WithContext(ctx).Model(&RiskScoreModel{}).Where("id = ?", existing.ID).Updates(&m).Error
	}
}

func (s *Store) AppendAuditLog(ctx context.Context, entry domain.AuditEntry) error {
	m := AuditLogModel{
		ID:          randomID(),
		TenantID:    entry.TenantID,
		ActorUserID: entry.ActorUserID,
		Action:      entry.Action,
		TargetType:  entry.TargetType,
		TargetID:    entry.TargetID,
		Metadata:    entry.Metadata,
		CreatedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func (s *Store) CreateSimulationRun(ctx context.Context, run domain.SimulationRun) (domain.SimulationRun, error) {
	if run.ID == "" {
		run.ID = randomID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	m := SimulationRunModel{
		ID:           run.ID,
		TenantID:     run.TenantID,
		RegulationID: run.RegulationID,
		Status:       string(run.Status),
		BeforeDate:   run.BeforeDate,
		AfterDate:    run.AfterDate,
		CreatedAt:    run.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.SimulationRun{}, err
	}
	return run, nil
}

func (s *Store) CompleteSimulationRun(ctx context.Context, id string, deltas []domain.ImpactDelta) error {
	deltasJSON, err := json.Marshal(deltas)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.db.WithContext(ctx).Model(&SimulationRunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":       string(domain.SimulationCompleted),
		"deltas_json":  string(deltasJSON),
		"completed_at": now,
	}).Error
}

func (s *Store) FailSimulationRun(ctx context.Context, id string, errMessage string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&SimulationRunModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(domain.SimulationFailed),
		"error_message": errMessage,
		"completed_at":  now,
	}).Error
}

func translateNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFound(message)
	}
	return domain.Upstream(message, err)
}

func regulationFromModel(m RegulationModel) domain.Regulation {
	return domain.Regulation{
		ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name,
		Severity: domain.Severity(m.Severity), Status: domain.RegulationStatus(m.Status),
		EffectiveDate: m.EffectiveDate, ExpirationDate: m.ExpirationDate,
		Version: m.Version, Active: m.Active, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func departmentFromModel(m DepartmentModel) domain.Department {
	return domain.Department{
		ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name, ParentID: m.ParentID,
		Active: m.Active, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func budgetFromModel(m BudgetModel) domain.Budget {
	return domain.Budget{
		ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name, Amount: m.Amount,
		Currency: m.Currency, FiscalYear: m.FiscalYear, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func serviceFromModel(m ServiceModel) domain.Service {
	return domain.Service{
		ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name, ServiceType: m.ServiceType,
		Status: m.Status, Active: m.Active, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func kpiFromModel(m KPIModel) domain.KPI {
	return domain.KPI{
		ID: m.ID, TenantID: m.TenantID, Code: m.Code, Name: m.Name, Unit: m.Unit,
		Target: m.Target, Current: m.Current, Frequency: m.Frequency, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func edgeFromModel(m ImpactEdgeModel) (domain.ImpactEdge, error) {
	var condition map[string]any
	if m.ConditionJSON != "" {
		if err := json.Unmarshal([]byte(m.ConditionJSON), &condition); err != nil {
			return domain.ImpactEdge{}, err
		}
	}
	return domain.ImpactEdge{
		ID: m.ID, TenantID: m.TenantID,
		SourceType: domain.NodeType(m.SourceType), SourceID: m.SourceID,
		TargetType: domain.NodeType(m.TargetType), TargetID: m.TargetID,
		ImpactWeight: m.ImpactWeight, ImpactType: domain.ImpactType(m.ImpactType),
		ImpactCategory: m.ImpactCategory, Condition: condition, Active: m.Active,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}, nil
}
