package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
)

// RoleManager assigns and lists roles. The rbac service satisfies it.
type RoleManager interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	AssignRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RoleNamesOf(ctx context.Context, userID int64) ([]string, error)
	PermissionsGranted(ctx context.Context, roleNames []string) ([]string, error)
}

// SessionRevoker drops every live session of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

// PermissionChecker resolves live permission grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// Auditor journals account changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for account administration. Every
// mutation needs the user_manage grant, checked against the database at
// call time.
type Service struct {
	repo     Repository
	roles    RoleManager
	sessions SessionRevoker
	perms    PermissionChecker
	audit    Auditor
}

// NewService constructs a user administration service.
func NewService(repo Repository, roles RoleManager, sessions SessionRevoker, perms PermissionChecker, audit Auditor) *Service {
	return &Service{repo: repo, roles: roles, sessions: sessions, perms: perms, audit: audit}
}

// List returns every account with its roles.
func (s *Service) List(ctx context.Context) ([]ManagedUser, error) {
	return s.repo.List(ctx)
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (*ManagedUser, error) {
	return s.repo.Get(ctx, id)
}

// Roles lists the assignable roles for the account forms.
func (s *Service) Roles(ctx context.Context) ([]rbac.Role, error) {
	return s.roles.ListRoles(ctx)
}

// Create opens a new account and assigns its initial roles.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (*ManagedUser, error) {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.Create(ctx, in.Username, in.Email, string(hash))
	if err != nil {
		return nil, err
	}
	if len(in.RoleIDs) > 0 {
		if err := s.roles.AssignRoles(ctx, id, in.RoleIDs); err != nil {
			return nil, fmt.Errorf("assign roles: %w", err)
		}
	}
	s.journal(ctx, actorID, "user.create", id, map[string]any{"username": in.Username, "email": in.Email})
	return s.repo.Get(ctx, id)
}

// SetActive enables or disables sign-in for an account. Disabling also
// drops the user's live sessions so the lockout is immediate.
func (s *Service) SetActive(ctx context.Context, actorID, userID int64, active bool) error {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return err
	}
	action := "user.activate"
	if !active {
		action = "user.deactivate"
		if err := s.sessions.RevokeUser(ctx, strconv.FormatInt(userID, 10)); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
	}
	s.journal(ctx, actorID, action, userID, nil)
	return nil
}

// Delete removes an account. Deleting yourself is rejected outright so an
// administrator cannot saw off the branch they sit on.
func (s *Service) Delete(ctx context.Context, actorID, userID int64) error {
	if actorID == userID {
		return shared.ErrSelfDelete
	}
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return err
	}
	user, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	if err := s.sessions.RevokeUser(ctx, strconv.FormatInt(userID, 10)); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	s.journal(ctx, actorID, "user.delete", userID, map[string]any{"username": user.Username})
	return nil
}

// AssignRoles replaces a user's role set. Live sessions are revoked so the
// next request starts from the new grants and fresh claims.
func (s *Service) AssignRoles(ctx context.Context, actorID, userID int64, roleIDs []int64) error {
	if err := s.requireUserManage(ctx, actorID); err != nil {
		return err
	}
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return err
	}
	if err := s.roles.AssignRoles(ctx, userID, roleIDs); err != nil {
		return err
	}
	if err := s.sessions.RevokeUser(ctx, strconv.FormatInt(userID, 10)); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	// The journal records what the new set actually grants, not just the
	// IDs, so an auditor can read the entry without replaying history.
	meta := map[string]any{"role_ids": roleIDs}
	if names, err := s.roles.RoleNamesOf(ctx, userID); err == nil {
		meta["roles"] = names
		if grants, err := s.roles.PermissionsGranted(ctx, names); err == nil {
			meta["grants"] = grants
		}
	}
	s.journal(ctx, actorID, "user.assign_roles", userID, meta)
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

func (s *Service) journal(ctx context.Context, actorID int64, action string, userID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     meta,
	})
}

func validateCreate(in CreateInput) error {
	if n := utf8.RuneCountInString(in.Username); n < 2 || n > 50 {
		return errors.New("users: username must be between 2 and 50 characters")
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return errors.New("users: a valid email is required")
	}
	if len(in.Password) < 8 {
		return errors.New("users: password must be at least 8 characters")
	}
	return nil
}
