package sqlite

import "time"

type TenantModel struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (TenantModel) TableName() string { return "tenants" }

type RegulationModel struct {
	ID             string `gorm:"primaryKey"`
	TenantID       string `gorm:"not null;index:idx_reg_tenant_code,unique"`
	Code           string `gorm:"not null;index:idx_reg_tenant_code,unique"`
	Name           string
	Severity       string `gorm:"not null"`
	Status         string `gorm:"not null;default:'Draft'"`
	EffectiveDate  time.Time
	ExpirationDate *time.Time
	Version        int  `gorm:"not null;default:1"`
	Active         bool `gorm:"not null;default:true;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (RegulationModel) TableName() string { return "regulations" }

type DepartmentModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index:idx_dept_tenant_code,unique"`
	Code      string `gorm:"not null;index:idx_dept_tenant_code,unique"`
	Name      string
	ParentID  *string
	Active    bool `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DepartmentModel) TableName() string { return "departments" }

type BudgetModel struct {
	ID         string `gorm:"primaryKey"`
	TenantID   string `gorm:"not null;index:idx_budget_tenant_code,unique"`
	Code       string `gorm:"not null;index:idx_budget_tenant_code,unique"`
	Name       string
	Amount     float64
	Currency   string
	FiscalYear int
	Active     bool `gorm:"not null;default:true;index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (BudgetModel) TableName() string { return "budgets" }

type ServiceModel struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"not null;index:idx_service_tenant_code,unique"`
	Code        string `gorm:"not null;index:idx_service_tenant_code,unique"`
	Name        string
	ServiceType string
	Status      string
	Active      bool `gorm:"not null;default:true;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ServiceModel) TableName() string { return "services" }

type KPIModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null;index:idx_kpi_tenant_code,unique"`
	Code      string `gorm:"not null;index:idx_kpi_tenant_code,unique"`
	Name      string
	Unit      string
	Target    float64
	Current   float64
	Frequency string
	Active    bool `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (KPIModel) TableName() string { return "kpis" }

type ImpactEdgeModel struct {
	ID             string `gorm:"primaryKey"`
	TenantID       string `gorm:"not null;index:idx_edge_tenant_src_dst,unique"`
	SourceType     string `gorm:"not null;index:idx_edge_tenant_src_dst,unique"`
	SourceID       string `gorm:"not null;index:idx_edge_tenant_src_dst,unique"`
	TargetType     string `gorm:"not null;index:idx_edge_tenant_src_dst,unique"`
	TargetID       string `gorm:"not null;index:idx_edge_tenant_src_dst,unique"`
	ImpactWeight   float64
	ImpactType     string `gorm:"not null"`
	ImpactCategory string
	ConditionJSON  string
	Active         bool `gorm:"not null;default:true;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (ImpactEdgeModel) TableName() string { return "impact_edges" }

type RegulationImpactModel struct {
	ID           string `gorm:"primaryKey"`
	RegulationID string `gorm:"not null;index"`
	TenantID     string `gorm:"not null;index"`
	NodeType     string `gorm:"not null"`
	NodeID       string `gorm:"not null"`
	ImpactScore  float64
	ImpactLevel  string
	PathJSON     string
	CreatedAt    time.Time
}

func (RegulationImpactModel) TableName() string { return "regulation_impacts" }

type RiskScoreModel struct {
	ID                string `gorm:"primaryKey"`
	TenantID          string `gorm:"not null;index:idx_risk_tenant_entity,unique"`
	EntityType        string `gorm:"not null;index:idx_risk_tenant_entity,unique"`
	EntityID          string `gorm:"not null;index:idx_risk_tenant_entity,unique"`
	BaseRiskScore     float64
	AdjustedRiskScore float64
	RiskLevel         string
	RiskFactorsJSON   string
	UpdatedAt         time.Time
}

func (RiskScoreModel) TableName() string { return "risk_scores" }

type SimulationRunModel struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"not null;index"`
	RegulationID string `gorm:"not null;index"`
	Status       string `gorm:"not null;default:'Pending'"`
	BeforeDate   time.Time
	AfterDate    time.Time
	DeltasJSON   string
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

func (SimulationRunModel) TableName() string { return "simulation_runs" }

type UserModel struct {
	ID           string `gorm:"primaryKey"`
	TenantID     string `gorm:"not null;index:idx_user_tenant_email,unique"`
	Email        string `gorm:"not null;index:idx_user_tenant_email,unique"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type SessionModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (SessionModel) TableName() string { return "sessions" }

type APITokenModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	TokenHash string `gorm:"not null;uniqueIndex"`
	ExpiresAt *time.Time
	CreatedAt time.Time
}

func (APITokenModel) TableName() string { return "api_tokens" }

type RoleModel struct {
	ID        string `gorm:"primaryKey"`
	Key       string `gorm:"not null;uniqueIndex"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (RoleModel) TableName() string { return "roles" }

type UserRoleModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index:idx_user_role,unique"`
	RoleID    string `gorm:"not null;index:idx_user_role,unique"`
	CreatedAt time.Time
}

func (UserRoleModel) TableName() string { return "user_roles" }

type AuditLogModel struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"not null;index"`
	ActorUserID *string
	Action      string `gorm:"not null;index"`
	TargetType  string `gorm:"not null;index"`
	TargetID    string
	Metadata    string
	CreatedAt   time.Time
}

func (AuditLogModel) TableName() string { return "audit_logs" }
