package sqlite

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/YASSERRMD/regulatory-impact-chain/internal/domain"
)

type User struct {
	ID           string
	TenantID     string
	Email        string
	PasswordHash string
	RoleKeys     []string
}

func (s *Store) CreateUser(ctx context.Context, tenantID, email, passwordHash string) (User, error) {
	m := UserModel{ID: randomID(), TenantID: tenantID, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return User{}, domain.Conflict("a user with this email already exists for this tenant")
		}
		return User{}, domain.Upstream("creating user", err)
	}
	return User{ID: m.ID, TenantID: m.TenantID, Email: m.Email, PasswordHash: m.PasswordHash}, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, tenantID, email string) (User, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "tenant_id = ? AND email = ?", tenantID, email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, domain.NotFound("user not found")
		}
		return User{}, domain.Upstream("finding user", err)
	}
	roles, err := s.userRoleKeys(ctx, m.ID)
	if err != nil {
		return User{}, err
	}
	return User{ID: m.ID, TenantID: m.TenantID, Email: m.Email, PasswordHash: m.PasswordHash, RoleKeys: roles}, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (User, error) {
	var m UserModel
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, domain.NotFound("user not found")
		}
		return User{}, domain.Upstream("finding user", err)
	}
	roles, err := s.userRoleKeys(ctx, m.ID)
	if err != nil {
		return User{}, err
	}
	return User{ID: m.ID, TenantID: m.TenantID, Email: m.Email, PasswordHash: m.PasswordHash, RoleKeys: roles}, nil
}

func (s *Store) EnsureRole(ctx context.Context, key, name string) (string, error) {
	var m RoleModel
	err := s.db.WithContext(ctx).First(&m, "key = ?", key).Error
	if err == nil {
		return m.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.Upstream("loading role", err)
	}
	m = RoleModel{ID: randomID(), Key: key, Name: name, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return "", domain.Upstream("creating role", err)
	}
	return m.ID, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID string) error {
	m := UserRoleModel{ID: randomID(), UserID: userID, RoleID: roleID, CreatedAt: time.Now()}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return domain.Upstream("assigning role", err)
	}
	return nil
}

func (s *Store) userRoleKeys(ctx context.Context, userID string) ([]string, error) {
	var rows []struct{ Key string }
	err := s.db.WithContext(ctx).
		Table("user_roles").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("user_roles.user_id = ?", userID).
		Select("roles.key").
		Scan(&rows).Error
	if err != nil {
		return nil, domain.Upstream("loading user roles", err)
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	return keys, nil
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, limit int) ([]domain.AuditEntry, error) {
	var rows []AuditLogModel
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, domain.Upstream("listing audit logs", err)
	}
	out := make([]domain.AuditEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, domain.AuditEntry{
			ID: m.ID, TenantID: m.TenantID, ActorUserID: m.ActorUserID,
			Action: m.Action, TargetType: m.TargetType, TargetID: m.TargetID,
			Metadata: m.Metadata, CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}
