package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
)

// RoleSource resolves role names for a user at login time.
type RoleSource interface {
	RoleNamesOf(ctx context.Context, userID int64) ([]string, error)
}

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	roles RoleSource
}

// NewService constructs a new Service.
func NewService(repo Repository, roles RoleSource) *Service {
	return &Service{repo: repo, roles: roles}
}

// Authenticate validates email/password credentials. Unknown accounts,
// wrong passwords and deactivated accounts are indistinguishable to the
// caller: all collapse into ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Claims assembles the identity snapshot stored in a fresh session. The
// snapshot labels the UI; permission checks stay live against the database.
func (s *Service) Claims(ctx context.Context, user *User) (shared.SessionClaims, error) {
	names, err := s.roles.RoleNamesOf(ctx, user.ID)
	if err != nil {
		return shared.SessionClaims{}, err
	}
	return shared.SessionClaims{
		Username:      user.Username,
		Email:         user.Email,
		Roles:         names,
		PrincipalRole: rbac.PrincipalRole(names),
	}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// MarkLogin stamps the account's last successful sign-in.
func (s *Service) MarkLogin(ctx context.Context, userID int64) error {
	return s.repo.TouchLastLogin(ctx, userID)
}
