package tags

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/internal/shared"
)

type fakeRepo struct {
	nextID int64
	items  map[int64]*Tag
	usage  map[int64]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[int64]*Tag{}, usage: map[int64]int{}}
}

func (f *fakeRepo) Create(_ context.Context, name, slug string) (*Tag, error) {
	for _, t := range f.items {
		if strings.EqualFold(t.Name, name) {
			return nil, shared.ErrTagNameTaken
		}
	}
	f.nextID++
	tag := &Tag{ID: f.nextID, Name: name, Slug: slug, CreatedAt: time.Now()}
	f.items[tag.ID] = tag
	return tag, nil
}

func (f *fakeRepo) Rename(_ context.Context, id int64, name, slug string) error {
	t, ok := f.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	t.Name, t.Slug = name, slug
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return shared.ErrNotFound
	}
	if f.usage[id] > 0 {
		return shared.ErrTagInUse
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*Tag, error) {
	t, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *t
	cp.ArticleCount = f.usage[id]
	return &cp, nil
}

func (f *fakeRepo) List(_ context.Context) ([]Tag, error) {
	var out []Tag
	for _, t := range f.items {
		cp := *t
		cp.ArticleCount = f.usage[t.ID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) Search(_ context.Context, prefix string, limit int) ([]Tag, error) {
	all, _ := f.List(context.Background())
	var out []Tag
	for _, t := range all {
		if strings.HasPrefix(strings.ToLower(t.Name), strings.ToLower(prefix)) {
			out = append(out, t)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) SlugExists(_ context.Context, slug string, excludeID int64) (bool, error) {
	for _, t := range f.items {
		if t.Slug == slug && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) UsageCount(_ context.Context, id int64) (int, error) {
	return f.usage[id], nil
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

type recordingAuditor struct{ actions []string }

func (r *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	r.actions = append(r.actions, log.Action)
	return nil
}

func newTestService() (*Service, *fakeRepo, *recordingAuditor) {
	repo := newFakeRepo()
	audit := &recordingAuditor{}
	perms := &fakePerms{grants: map[int64][]string{1: {shared.PermTagManage}}}
	return NewService(repo, perms, audit), repo, audit
}

func TestCreateDerivesSlug(t *testing.T) {
	svc, _, audit := newTestService()

	tag, err := svc.Create(context.Background(), 1, "  Craft Brewing  ")
	require.NoError(t, err)
	require.Equal(t, "Craft Brewing", tag.Name)
	require.Equal(t, "craft-brewing", tag.Slug)
	require.Contains(t, audit.actions, "tag.create")
}

func TestCreateNeedsTagManage(t *testing.T) {
	svc, repo, _ := newTestService()

	_, err := svc.Create(context.Background(), 2, "Gophers")
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Empty(t, repo.items)
}

func TestCreateRejectsShortName(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, "x")
	require.Error(t, err)
}

func TestCreateAvoidsSlugCollision(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, "Go Modules")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), 1, "Go, Modules!")
	require.NoError(t, err)
	require.Equal(t, "go-modules-2", second.Slug)
}

func TestRenameMovesSlug(t *testing.T) {
	svc, _, audit := newTestService()

	tag, err := svc.Create(context.Background(), 1, "Olde Name")
	require.NoError(t, err)

	renamed, err := svc.Rename(context.Background(), 1, tag.ID, "Fresh Name")
	require.NoError(t, err)
	require.Equal(t, "Fresh Name", renamed.Name)
	require.Equal(t, "fresh-name", renamed.Slug)
	require.Contains(t, audit.actions, "tag.rename")
}

func TestDeleteRefusedWhileAttached(t *testing.T) {
	svc, repo, _ := newTestService()

	tag, err := svc.Create(context.Background(), 1, "Sticky")
	require.NoError(t, err)
	repo.usage[tag.ID] = 3

	err = svc.Delete(context.Background(), 1, tag.ID)
	require.ErrorIs(t, err, shared.ErrTagInUse)
	require.Contains(t, repo.items, tag.ID)

	repo.usage[tag.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), 1, tag.ID))
	require.NotContains(t, repo.items, tag.ID)
}

func TestSuggestSkipsEmptyPrefix(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, "Golang")
	require.NoError(t, err)

	matches, err := svc.Suggest(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, matches)

	matches, err = svc.Suggest(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestListRefsMapsVocabulary(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Create(context.Background(), 1, "Zig")
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, "Ada")
	require.NoError(t, err)

	refs, err := svc.ListRefs(context.Background())
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "Ada", refs[0].Name, "refs follow the alphabetical listing")
	require.Equal(t, "ada", refs[0].Slug)
}
