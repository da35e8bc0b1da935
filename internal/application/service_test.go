package application

import (
	"context"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/adapters/db/sqlite"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/cache"
	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

// fakeRepo is an in-memory Repository double; it exercises the
// service's validate-then-delegate and cache-invalidation behavior
// without a real database.
type fakeRepo struct {
	regulations map[string]domain.Regulation
	departments map[string]domain.Department
	edges       map[string]domain.ImpactEdge
	auditLog    []domain.AuditEntry
	users       map[string]sqlite.User
	roles       map[string]string
	nextID      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		regulations: map[string]domain.Regulation{},
		departments: map[string]domain.Department{},
		edges:       map[string]domain.ImpactEdge{},
		users:       map[string]sqlite.User{},
		roles:       map[string]string{},
	}
}

func (f *fakeRepo) newID() string {
	f.nextID++
	return "id" + strconv.Itoa(f.nextID)
}

func (f *fakeRepo) FindTenant(ctx context.Context, id string) (domain.Tenant, error) { return domain.Tenant{}, nil }
func (f *fakeRepo) FindRegulation(ctx context.Context, tenantID, id string) (domain.Regulation, error) {
	r, ok := f.regulations[id]
	if !ok {
		return domain.Regulation{}, domain.NotFound("not found")
	}
	return r, nil
}
func (f *fakeRepo) FindDepartment(ctx context.Context, tenantID, id string) (domain.Department, error) {
	d, ok := f.departments[id]
	if !ok {
		return domain.Department{}, domain.NotFound("not found")
	}
	return d, nil
}
func (f *fakeRepo) FindBudget(ctx context.Context, tenantID, id string) (domain.Budget, error) { return domain.Budget{}, domain.NotFound("not found") }
func (f *fakeRepo) FindService(ctx context.Context, tenantID, id string) (domain.Service, error) { return domain.Service{}, domain.NotFound("not found") }
func (f *fakeRepo) FindKPI(ctx context.Context, tenantID, id string) (domain.KPI, error) { return domain.KPI{}, domain.NotFound("not found") }
func (f *fakeRepo) ActiveEntitiesByType(ctx context.Context, tenantID string, nodeType domain.NodeType) ([]domain.NamedEntity, error) {
	return nil, nil
}
func (f *fakeRepo) ActiveEdges(ctx context.Context, tenantID string) ([]domain.ImpactEdge, error) {
	out := make([]domain.ImpactEdge, 0, len(f.edges))
	for _, e := range f.edges {
		out = append(out, e)
	}
	return out, nil
}
func (f *fakeRepo) ActiveRegulations(ctx context.Context, tenantID string) ([]domain.Regulation, error) {
	out := make([]domain.Regulation, 0, len(f.regulations))
	for _, r := range f.regulations {
		out = append(out, r)
	}
	return out, nil
}
func (f *fakeRepo) RegulationsActiveBefore(ctx context.Context, tenantID string, before time.Time, excludingID string) ([]domain.Regulation, error) {
	return nil, nil
}
func (f *fakeRepo) ReplaceRegulationImpacts(ctx context.Context, regulationID string, impacts []domain.RegulationImpact) error {
	return nil
}
func (f *fakeRepo) UpsertRiskScore(ctx context.Context, score domain.RiskScore) error { return nil }
func (f *fakeRepo) AppendAuditLog(ctx context.Context, entry domain.AuditEntry) error {
	f.auditLog = append(f.auditLog, entry)
	return nil
}
func (f *fakeRepo) CreateSimulationRun(ctx context.Context, run domain.SimulationRun) (domain.SimulationRun, error) {
	return run, nil
}
func (f *fakeRepo) CompleteSimulationRun(ctx context.Context, id string, deltas []domain.ImpactDelta) error {
	return nil
}
func (f *fakeRepo) FailSimulationRun(ctx context.Context, id string, errMessage string) error { return nil }

func (f *fakeRepo) CreateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error) {
	reg.ID = f.newID()
	reg.Version = 1
	reg.Active = true
	f.regulations[reg.ID] = reg
	return reg, nil
}
func (f *fakeRepo) UpdateRegulation(ctx context.Context, reg domain.Regulation) (domain.Regulation, error) {
	f.regulations[reg.ID] = reg
	return reg, nil
}
func (f *fakeRepo) DeleteRegulation(ctx context.Context, tenantID, id string) error {
	delete(f.regulations, id)
	return nil
}
func (f *fakeRepo) CreateDepartment(ctx context.Context, d domain.Department) (domain.Department, error) {
	d.ID = f.newID()
	f.departments[d.ID] = d
	return d, nil
}
func (f *fakeRepo) DeleteDepartment(ctx context.Context, tenantID, id string) error {
	delete(f.departments, id)
	return nil
}
func (f *fakeRepo) CreateBudget(ctx context.Context, b domain.Budget) (domain.Budget, error) { b.ID = f.newID(); return b, nil }
func (f *fakeRepo) DeleteBudget(ctx context.Context, tenantID, id string) error              { return nil }
func (f *fakeRepo) CreateService(ctx context.Context, svc domain.Service) (domain.Service, error) {
	svc.ID = f.newID()
	return svc, nil
}
func (f *fakeRepo) DeleteService(ctx context.Context, tenantID, id string) error { return nil }
func (f *fakeRepo) CreateKPI(ctx context.Context, k domain.KPI) (domain.KPI, error) { k.ID = f.newID(); return k, nil }
func (f *fakeRepo) DeleteKPI(ctx context.Context, tenantID, id string) error         { return nil }
func (f *fakeRepo) CreateEdge(ctx context.Context, e domain.ImpactEdge) (domain.ImpactEdge, error) {
	if e.SourceType == e.TargetType && e.SourceID == e.TargetID {
		return domain.ImpactEdge{}, domain.Invalid("self-loop")
	}
	e.ID = f.newID()
	e.Active = true
	f.edges[e.ID] = e
	return e, nil
}
func (f *fakeRepo) DeleteEdge(ctx context.Context, tenantID, id string) error {
	delete(f.edges, id)
	return nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, tenantID, email, passwordHash string) (sqlite.User, error) {
	u := sqlite.User{ID: f.newID(), TenantID: tenantID, Email: email, PasswordHash: passwordHash}
	f.users[u.ID] = u
	return u, nil
}
func (f *fakeRepo) FindUserByEmail(ctx context.Context, tenantID, email string) (sqlite.User, error) {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.Email == email {
			return u, nil
		}
	}
	return sqlite.User{}, domain.NotFound("user not found")
}
func (f *fakeRepo) FindUserByID(ctx context.Context, id string) (sqlite.User, error) {
	u, ok := f.users[id]
	if !ok {
		return sqlite.User{}, domain.NotFound("user not found")
	}
	return u, nil
}
func (f *fakeRepo) EnsureRole(ctx context.Context, key, name string) (string, error) {
	if id, ok := f.roles[key]; ok {
		return id, nil
	}
	id := f.newID()
	f.roles[key] = id
	return id, nil
}
func (f *fakeRepo) AssignRole(ctx context.Context, userID, roleID string) error { return nil }
func (f *fakeRepo) ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditEntry, error) {
	return f.auditLog, nil
}

func TestCreateRegulationInvalidatesCacheAndAudits(t *testing.T) {
	repo := newFakeRepo()
	c := cache.New()
	defer c.Shutdown()
	svc := NewService(repo, c, nil, zap.NewNop())
	ctx := context.Background()

	c.Set("t1", cache.DependencyGraphKey(), "stale", cache.SetOptions{TTL: time.Minute, Tags: []string{cache.DependencyGraphTagFor("t1")}})

	reg, err := svc.CreateRegulation(ctx, "t1", domain.Regulation{Code: "R1", Severity: domain.SeverityHigh, Status: domain.RegulationActive})
	if err != nil {
		t.Fatalf("create regulation: %v", err)
	}
	if reg.TenantID != "t1" {
		t.Fatalf("expected tenant to be stamped onto the regulation")
	}
	if c.Has("t1", cache.DependencyGraphKey()) {
		t.Fatalf("expected dependency graph cache entry to be invalidated")
	}
	if len(repo.auditLog) != 1 || repo.auditLog[0].Action != "regulation.create" {
		t.Fatalf("expected one audit entry for regulation.create, got %+v", repo.auditLog)
	}
}

func TestCreateRegulationRejectsEmptyCode(t *testing.T) {
	repo := newFakeRepo()
	c := cache.New()
	defer c.Shutdown()
	svc := NewService(repo, c, nil, nil)

	_, err := svc.CreateRegulation(context.Background(), "t1", domain.Regulation{Severity: domain.SeverityLow, Status: domain.RegulationDraft})
	if !domain.IsKind(err, domain.KindInvalid) {
		t.Fatalf("expected invalid kind for missing code, got %v", err)
	}
}

func TestCreateEdgeRejectsUnknownNodeType(t *testing.T) {
	repo := newFakeRepo()
	c := cache.New()
	defer c.Shutdown()
	svc := NewService(repo, c, nil, nil)

	_, err := svc.CreateEdge(context.Background(), "t1", domain.ImpactEdge{
		SourceType: "NOT_A_TYPE", SourceID: "a", TargetType: domain.NodeDepartment, TargetID: "b", ImpactType: domain.ImpactDirect,
	})
	if !domain.IsKind(err, domain.KindInvalid) {
		t.Fatalf("expected invalid kind for unknown node type, got %v", err)
	}
}

func TestBootstrapAdminIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	c := cache.New()
	defer c.Shutdown()
	svc := NewService(repo, c, nil, nil)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx, "t1", "admin@example.com", "secret123"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	if len(repo.users) != 1 {
		t.Fatalf("expected one user after first bootstrap, got %d", len(repo.users))
	}

	if err := svc.BootstrapAdmin(ctx, "t1", "admin@example.com", "secret123"); err != nil {
		t.Fatalf("bootstrap admin second call: %v", err)
	}
	if len(repo.users) != 1 {
		t.Fatalf("expected bootstrap to be a no-op once a user exists, got %d", len(repo.users))
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	repo := newFakeRepo()
	c := cache.New()
	defer c.Shutdown()
	svc := NewService(repo, c, nil, nil)
	ctx := context.Background()

	if err := svc.BootstrapAdmin(ctx, "t1", "admin@example.com", "secret123"); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "t1", "admin@example.com", "wrong"); !domain.IsKind(err, domain.KindInvalid) {
		t.Fatalf("expected invalid credentials error, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, "t1", "admin@example.com", "secret123"); err != nil {
		t.Fatalf("expected correct password to authenticate, got %v", err)
	}
}
