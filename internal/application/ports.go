package application

import (
	"context"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/db/sqlite"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

// Repository is everything the application layer needs from
// persistence: the core's domain.Store contract plus the mutation
// surface the HTTP adapter exercises for CRUD, plus the auth and
// audit surface the service layer itself owns. The sqlite adapter
// satisfies this by structural typing; tests supply lighter fakes.
type Repository interface {
	domain.Store

	CreateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error)
	UpdateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error)
	DeleteRegulation(ctx context.Context, tenantID, id string) error

	CreateDepartment(ctx context.Context, d domain.Department) (domain.Department, error)
	DeleteDepartment(ctx context.Context, tenantID, id string) error

	CreateBudget(ctx context.Context, b domain.Budget) (domain.Budget, error)
	DeleteBudget(ctx context.Context, tenantID, id string) error

	CreateService(ctx context.Context, svc domain.Service) (domain.Service, error)
	DeleteService(ctx context.Context, tenantID, id string) error

	CreateKPI(ctx context.Context, k domain.KPI) (domain.KPI, error)
	DeleteKPI(ctx context.Context, tenantID, id string) error

	CreateEdge(ctx context.Context, e domain.ImpactEdge) (domain.ImpactEdge, error)
	DeleteEdge(ctx context.Context, tenantID, id string) error

	CreateUser(ctx context.Context, tenantID, email, passwordHash string) (sqlite.User, error)
	FindUserByEmail(ctx context.Context, tenantID, email string) (sqlite.User, error)
	FindUserByID(ctx context.Context, id string) (sqlite.User, error)
	EnsureRole(ctx context.Context, key, name string) (string, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditEntry, error)
}
