package roles

import (
	"context"
	"fmt"
	"strconv"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
)

// RoleEngine is the slice of the rbac service the admin area drives.
type RoleEngine interface {
	ListRolesWithStats(ctx context.Context) ([]rbac.RoleWithStats, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, name, description string) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	PermissionsOfRole(ctx context.Context, roleID int64) ([]rbac.Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// PermissionChecker resolves live permission grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// Auditor journals role changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps the role engine with actor checks and journaling. Grant
// changes need no session revocation: enforcement reads the database on
// every request, so a widened or narrowed role takes effect immediately.
type Service struct {
	engine RoleEngine
	perms  PermissionChecker
	audit  Auditor
}

// NewService constructs a role administration service.
func NewService(engine RoleEngine, perms PermissionChecker, audit Auditor) *Service {
	return &Service{engine: engine, perms: perms, audit: audit}
}

// ListWithStats returns every role with user and permission counts.
func (s *Service) ListWithStats(ctx context.Context) ([]rbac.RoleWithStats, error) {
	return s.engine.ListRolesWithStats(ctx)
}

// Matrix loads one role together with the full permission catalog and the
// subset currently granted.
func (s *Service) Matrix(ctx context.Context, roleID int64) (rbac.Role, []rbac.Permission, map[int64]bool, error) {
	role, err := s.engine.GetRole(ctx, roleID)
	if err != nil {
		return rbac.Role{}, nil, nil, err
	}
	all, err := s.engine.ListPermissions(ctx)
	if err != nil {
		return rbac.Role{}, nil, nil, err
	}
	granted, err := s.engine.PermissionsOfRole(ctx, roleID)
	if err != nil {
		return rbac.Role{}, nil, nil, err
	}
	grantedSet := make(map[int64]bool, len(granted))
	for _, p := range granted {
		grantedSet[p.ID] = true
	}
	return role, all, grantedSet, nil
}

// Create adds a role.
func (s *Service) Create(ctx context.Context, actorID int64, name, description string) (rbac.Role, error) {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return rbac.Role{}, err
	}
	role, err := s.engine.CreateRole(ctx, name, description)
	if err != nil {
		return rbac.Role{}, err
	}
	s.journal(ctx, actorID, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// Update renames a role or changes its description.
func (s *Service) Update(ctx context.Context, actorID, id int64, name, description string) (rbac.Role, error) {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return rbac.Role{}, err
	}
	role, err := s.engine.UpdateRole(ctx, id, name, description)
	if err != nil {
		return rbac.Role{}, err
	}
	s.journal(ctx, actorID, "role.update", id, map[string]any{"name": role.Name})
	return role, nil
}

// Delete removes a role that no user holds.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return err
	}
	role, err := s.engine.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if err := s.engine.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.journal(ctx, actorID, "role.delete", id, map[string]any{"name": role.Name})
	return nil
}

// SetPermissions replaces a role's permission set.
func (s *Service) SetPermissions(ctx context.Context, actorID, roleID int64, permissionIDs []int64) error {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.engine.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.journal(ctx, actorID, "role.set_permissions", roleID, map[string]any{"permission_ids": permissionIDs})
	return nil
}

func (s *Service) requireUserManage(ctx context.Context, actorID int64) error {
	ok, err := s.perms.HasPermission(ctx, actorID, shared.PermUserManage)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", shared.PermUserManage, err)
	}
	if !ok {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) journal(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
}
