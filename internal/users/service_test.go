package users

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/plume-cms/plume/internal/rbac"
	"github.com/plume-cms/plume/internal/shared"
)

type fakeRepo struct {
	nextID    int64
	items     map[int64]*ManagedUser
	passwords map[int64]string
	roleIDs   map[int64][]int64
	authored  map[int64]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		// ID 1 belongs to the acting administrator, who exists outside this
		// fake; created accounts therefore start at ID 2.
		nextID:    1,
		items:     map[int64]*ManagedUser{},
		passwords: map[int64]string{},
		roleIDs:   map[int64][]int64{},
		authored:  map[int64]bool{},
	}
}

func (f *fakeRepo) List(_ context.Context) ([]ManagedUser, error) {
	var out []ManagedUser
	for _, u := range f.items {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (*ManagedUser, error) {
	u, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) Create(_ context.Context, username, email, passwordHash string) (int64, error) {
	for _, u := range f.items {
		if u.Email == email {
			return 0, shared.ErrDuplicateEmail
		}
		if u.Username == username {
			return 0, shared.ErrDuplicateUsername
		}
	}
	f.nextID++
	now := time.Now()
	f.items[f.nextID] = &ManagedUser{
		ID: f.nextID, Username: username, Email: email,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	f.passwords[f.nextID] = passwordHash
	return f.nextID, nil
}

func (f *fakeRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := f.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return shared.ErrNotFound
	}
	if f.authored[id] {
		return shared.ErrUserHasContent
	}
	delete(f.items, id)
	return nil
}

type fakeRoleManager struct {
	assigned     map[int64][]int64
	roles        []rbac.Role
	grantsByRole map[string][]string
}

func (f *fakeRoleManager) ListRoles(_ context.Context) ([]rbac.Role, error) {
	return f.roles, nil
}

func (f *fakeRoleManager) AssignRoles(_ context.Context, userID int64, roleIDs []int64) error {
	f.assigned[userID] = append([]int64(nil), roleIDs...)
	return nil
}

func (f *fakeRoleManager) RoleNamesOf(_ context.Context, userID int64) ([]string, error) {
	var names []string
	for _, id := range f.assigned[userID] {
		for _, r := range f.roles {
			if r.ID == id {
				names = append(names, r.Name)
			}
		}
	}
	return names, nil
}

func (f *fakeRoleManager) PermissionsGranted(_ context.Context, roleNames []string) ([]string, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	seen := map[string]struct{}{}
	var union []string
	for _, name := range roleNames {
		for _, p := range f.grantsByRole[name] {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	return union, nil
}

type fakeRevoker struct{ revoked []string }

func (f *fakeRevoker) RevokeUser(_ context.Context, userID string) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakePerms struct{ grants map[int64][]string }

func (f *fakePerms) HasPermission(_ context.Context, userID int64, permission string) (bool, error) {
	for _, p := range f.grants[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

type recordingAuditor struct {
	actions []string
	entries []shared.AuditLog
}

func (r *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	r.entries = append(r.entries, log)
	return nil
}

func newTestService() (*Service, *fakeRepo, *fakeRoleManager, *fakeRevoker, *recordingAuditor) {
	repo := newFakeRepo()
	roles := &fakeRoleManager{
		assigned: map[int64][]int64{},
		roles:    []rbac.Role{{ID: 1, Name: "Administrator"}, {ID: 2, Name: "Editor"}},
		grantsByRole: map[string][]string{
			"Administrator": {shared.PermAdminAccess, shared.PermUserManage},
			"Editor":        {shared.PermAdminAccess, shared.PermArticlePublish},
		},
	}
	revoker := &fakeRevoker{}
	audit := &recordingAuditor{}
	perms := &fakePerms{grants: map[int64][]string{1: {shared.PermUserManage}}}
	return NewService(repo, roles, revoker, perms, audit), repo, roles, revoker, audit
}

func validCreate() CreateInput {
	return CreateInput{Username: "margaux", Email: "Margaux@Example.com", Password: "long-enough", RoleIDs: []int64{2}}
}

func TestCreateHashesPasswordAndAssignsRoles(t *testing.T) {
	svc, repo, roles, _, audit := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)
	require.Equal(t, "margaux", created.Username)
	require.Equal(t, "margaux@example.com", created.Email, "emails are stored lowercase")
	require.True(t, created.IsActive)

	hash := repo.passwords[created.ID]
	require.NotEqual(t, "long-enough", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("long-enough")))
	require.Equal(t, []int64{2}, roles.assigned[created.ID])
	require.Contains(t, audit.actions, "user.create")
}

func TestCreateNeedsUserManage(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 2, validCreate())
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, repo.items)
}

func TestCreateRejectsWeakPassword(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	in := validCreate()
	in.Password = "short"
	_, err := svc.Create(context.Background(), 1, in)
	require.Error(t, err)
}

func TestCreateSurfacesDuplicates(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	in := validCreate()
	in.Username = "other"
	_, err = svc.Create(context.Background(), 1, in)
	require.ErrorIs(t, err, shared.ErrDuplicateEmail)
}

func TestDeactivateRevokesSessions(t *testing.T) {
	svc, repo, _, revoker, _ := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.SetActive(context.Background(), 1, created.ID, false))
	require.False(t, repo.items[created.ID].IsActive)
	require.Contains(t, revoker.revoked, "2", "a disabled account must not keep riding an old cookie")

	// Re-enabling does not touch sessions; the user signs in again.
	revoker.revoked = nil
	require.NoError(t, svc.SetActive(context.Background(), 1, created.ID, true))
	require.Empty(t, revoker.revoked)
}

func TestAssignRolesRevokesSessionsForFreshClaims(t *testing.T) {
	svc, _, roles, revoker, audit := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.AssignRoles(context.Background(), 1, created.ID, []int64{1, 2}))
	require.Equal(t, []int64{1, 2}, roles.assigned[created.ID])
	require.Contains(t, revoker.revoked, "2")
	require.Contains(t, audit.actions, "user.assign_roles")

	// The journal entry names the resulting roles and their grant union.
	last := audit.entries[len(audit.entries)-1]
	require.Equal(t, []string{"Administrator", "Editor"}, last.Meta["roles"])
	require.ElementsMatch(t,
		[]string{shared.PermAdminAccess, shared.PermUserManage, shared.PermArticlePublish},
		last.Meta["grants"])
}

func TestAssignRolesWithEmptySetClearsEverything(t *testing.T) {
	svc, _, roles, revoker, audit := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.AssignRoles(context.Background(), 1, created.ID, []int64{1, 2}))
	require.NoError(t, svc.AssignRoles(context.Background(), 1, created.ID, nil))

	require.Empty(t, roles.assigned[created.ID])
	require.Contains(t, revoker.revoked, "2")

	last := audit.entries[len(audit.entries)-1]
	require.Empty(t, last.Meta["roles"])
	require.Empty(t, last.Meta["grants"])
}

func TestDeleteRejectsSelfBeforeAnythingElse(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	err = svc.Delete(context.Background(), created.ID, created.ID)
	require.ErrorIs(t, err, shared.ErrSelfDelete)
	require.Contains(t, repo.items, created.ID)
}

func TestDeleteRemovesAccountAndSessions(t *testing.T) {
	svc, repo, _, revoker, audit := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 1, created.ID))
	require.NotContains(t, repo.items, created.ID)
	require.Contains(t, revoker.revoked, "2")
	require.Contains(t, audit.actions, "user.delete")
}

func TestDeleteRefusedWhileOwningArticles(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	created, err := svc.Create(context.Background(), 1, validCreate())
	require.NoError(t, err)
	repo.authored[created.ID] = true

	err = svc.Delete(context.Background(), 1, created.ID)
	require.ErrorIs(t, err, shared.ErrUserHasContent)
	require.Contains(t, repo.items, created.ID)
}
