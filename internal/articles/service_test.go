package articles

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/plume-cms/plume/internal/shared"
)

type fakeRepo struct {
	nextID int64
	items  map[int64]*Article
	tags   map[int64][]int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: map[int64]*Article{}, tags: map[int64][]int64{}}
}

func (f *fakeRepo) Create(_ context.Context, a *Article) (int64, error) {
	f.nextID++
	cp := *a
	cp.ID = f.nextID
	now := time.Now()
	cp.CreatedAt, cp.UpdatedAt = now, now
	f.items[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeRepo) Update(_ context.Context, a *Article) error {
	stored, ok := f.items[a.ID]
	if !ok {
		return shared.ErrNotFound
	}
	cp := *a
	cp.Status = stored.Status
	cp.PublishedAt = stored.PublishedAt
	f.items[a.ID] = &cp
	return nil
}

func (f *fakeRepo) SetStatus(_ context.Context, id int64, status Status, publishedAt *time.Time) error {
	a, ok := f.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	a.Status = status
	a.PublishedAt = publishedAt
	return nil
}

func (f *fakeRepo) Delete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id int64) (*Article, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) GetPublishedBySlug(_ context.Context, slug string) (*Article, error) {
	for _, a := range f.items {
		if a.Slug == slug && a.Status == StatusPublished {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (f *fakeRepo) List(_ context.Context, fl ListFilters) ([]Article, int, error) {
	var out []Article
	for _, a := range f.items {
		if fl.Status != "" && a.Status != fl.Status {
			continue
		}
		if fl.AuthorID != 0 && a.AuthorID != fl.AuthorID {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (f *fakeRepo) ReplaceTags(_ context.Context, articleID int64, tagIDs []int64) error {
	f.tags[articleID] = append([]int64(nil), tagIDs...)
	return nil
}

func (f *fakeRepo) SlugExists(_ context.Context, slug string, excludeID int64) (bool, error) {
	for _, a := range f.items {
		if a.Slug == slug && a.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) CountByStatus(_ context.Context) (map[Status]int, error) {
	counts := map[Status]int{}
	for _, a := range f.items {
		counts[a.Status]++
	}
	return counts, nil
}

func (f *fakeRepo) PublishDue(_ context.Context, now time.Time) ([]int64, error) {
	var ids []int64
	for _, a := range f.items {
		if a.Status == StatusDraft && a.PublishedAt != nil && !a.PublishedAt.After(now) {
			a.Status = StatusPublished
			ids = append(ids, a.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type fakePerms struct {
	grants map[int64][]string
	err    error
}

func (f *fakePerms) HasPermission(_ context.Context, userID int64, permission string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, p := range f.grants[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

type fakeRenderer struct{ err error }

func (f fakeRenderer) HTML(markdown string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "<p>" + markdown + "</p>", nil
}

type recordingAuditor struct{ entries []shared.AuditLog }

func (r *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func (r *recordingAuditor) actions() []string {
	var out []string
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

func newTestService(grants map[int64][]string) (*Service, *fakeRepo, *recordingAuditor) {
	repo := newFakeRepo()
	audit := &recordingAuditor{}
	svc := NewService(repo, &fakePerms{grants: grants}, fakeRenderer{}, audit)
	return svc, repo, audit
}

func draftInput(title string) Input {
	return Input{Title: title, BodyMarkdown: "Some **bold** opening.\n\nSecond paragraph."}
}

func TestCreateStoresDraftWithRenderedBody(t *testing.T) {
	svc, repo, audit := newTestService(nil)

	article, err := svc.Create(context.Background(), 7, draftInput("Hello World"))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, article.Status)
	require.Nil(t, article.PublishedAt)
	require.Equal(t, "hello-world", article.Slug)
	require.Equal(t, int64(7), article.AuthorID)
	require.Contains(t, article.BodyHTML, "<p>")
	require.Equal(t, "Some bold opening.", article.Excerpt)
	require.Equal(t, []string{"article.create"}, audit.actions())
	require.Len(t, repo.items, 1)
}

func TestCreateAppendsSuffixWhenSlugTaken(t *testing.T) {
	svc, _, _ := newTestService(nil)

	first, err := svc.Create(context.Background(), 1, draftInput("Hello World"))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), 2, draftInput("Hello, World!"))
	require.NoError(t, err)

	require.Equal(t, "hello-world", first.Slug)
	require.Equal(t, "hello-world-2", second.Slug)
}

func TestCreateRejectsBlankBody(t *testing.T) {
	svc, _, _ := newTestService(nil)

	_, err := svc.Create(context.Background(), 1, Input{Title: "Valid title", BodyMarkdown: "   "})
	require.Error(t, err)
}

func TestCreateSurfacesRenderFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakePerms{}, fakeRenderer{err: errors.New("boom")}, nil)

	_, err := svc.Create(context.Background(), 1, draftInput("Hello"))
	require.ErrorContains(t, err, "render body")
	require.Empty(t, repo.items)
}

func TestUpdateOwnDraftNeedsNoExtraGrant(t *testing.T) {
	svc, _, _ := newTestService(nil)

	article, err := svc.Create(context.Background(), 3, draftInput("First Title"))
	require.NoError(t, err)

	in := draftInput("Second Title")
	updated, err := svc.Update(context.Background(), 3, article.ID, in)
	require.NoError(t, err)
	require.Equal(t, "Second Title", updated.Title)
	require.Equal(t, "second-title", updated.Slug, "draft slug follows the title")
}

func TestUpdateSomeoneElsesDraftNeedsEditAll(t *testing.T) {
	grants := map[int64][]string{9: {shared.PermArticleEditAll}}
	svc, _, _ := newTestService(grants)

	article, err := svc.Create(context.Background(), 3, draftInput("First Title"))
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), 8, article.ID, draftInput("Hijacked"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Update(context.Background(), 9, article.ID, draftInput("Edited by editor"))
	require.NoError(t, err)
}

func TestUpdatePublishedKeepsSlugAndNeedsEditAll(t *testing.T) {
	grants := map[int64][]string{
		3: {shared.PermArticlePublish},
		9: {shared.PermArticleEditAll},
	}
	svc, _, _ := newTestService(grants)

	article, err := svc.Create(context.Background(), 3, draftInput("Launch Day"))
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), 3, article.ID, nil)
	require.NoError(t, err)

	// The author owns it, but once live an edit needs article_edit_all.
	_, err = svc.Update(context.Background(), 3, article.ID, draftInput("Launch Day, Revised"))
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := svc.Update(context.Background(), 9, article.ID, draftInput("Launch Day, Revised"))
	require.NoError(t, err)
	require.Equal(t, "launch-day", updated.Slug, "published slug must not move")
	require.Equal(t, StatusPublished, updated.Status)
}

func TestPublishStampsOnceAndSurvivesArchive(t *testing.T) {
	grants := map[int64][]string{1: {shared.PermArticlePublish}}
	svc, _, audit := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Keep the Date"))
	require.NoError(t, err)

	published, err := svc.Publish(context.Background(), 1, article.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	first := *published.PublishedAt

	archived, err := svc.Archive(context.Background(), 1, article.ID)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, archived.Status)

	again, err := svc.Publish(context.Background(), 1, article.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, again.PublishedAt)
	require.True(t, again.PublishedAt.Equal(first), "republish must keep the original date")
	require.Contains(t, audit.actions(), "article.archive")
}

func TestPublishRequiresGrant(t *testing.T) {
	svc, repo, _ := newTestService(nil)

	article, err := svc.Create(context.Background(), 1, draftInput("Not Yet"))
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), 1, article.ID, nil)
	require.ErrorIs(t, err, shared.ErrForbidden)
	require.Equal(t, StatusDraft, repo.items[article.ID].Status)
}

func TestPermissionLookupFailureDeniesAccess(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, &fakePerms{err: errors.New("db down")}, fakeRenderer{}, nil)

	article := &Article{AuthorID: 1, Title: "Stuck", Slug: "stuck", Status: StatusDraft, BodyMarkdown: "x"}
	id, err := repo.Create(context.Background(), article)
	require.NoError(t, err)

	_, err = svc.Publish(context.Background(), 1, id, nil)
	require.Error(t, err)
	require.NotErrorIs(t, err, shared.ErrForbidden)
	require.Equal(t, StatusDraft, repo.items[id].Status)
}

func TestPublishInFutureSchedulesDraft(t *testing.T) {
	grants := map[int64][]string{1: {shared.PermArticlePublish}}
	svc, repo, audit := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Tomorrow"))
	require.NoError(t, err)

	at := time.Now().Add(2 * time.Hour)
	scheduled, err := svc.Publish(context.Background(), 1, article.ID, &at)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, scheduled.Status, "scheduled articles stay drafts until the sweep")
	require.NotNil(t, scheduled.PublishedAt)
	require.Contains(t, audit.actions(), "article.schedule")

	// Nothing due yet.
	ids, err := svc.PublishDue(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)

	// Pull the stamp into the past and sweep again.
	past := time.Now().Add(-time.Minute)
	repo.items[article.ID].PublishedAt = &past
	ids, err = svc.PublishDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{article.ID}, ids)
	require.Equal(t, StatusPublished, repo.items[article.ID].Status)
	require.Contains(t, audit.actions(), "article.publish_due")
}

func TestUnpublishClearsStampSoSweepSkipsIt(t *testing.T) {
	grants := map[int64][]string{1: {shared.PermArticlePublish}}
	svc, repo, _ := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Retracted"))
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), 1, article.ID, nil)
	require.NoError(t, err)

	pulled, err := svc.Unpublish(context.Background(), 1, article.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, pulled.Status)
	require.Nil(t, pulled.PublishedAt)

	ids, err := svc.PublishDue(context.Background())
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Equal(t, StatusDraft, repo.items[article.ID].Status)
}

func TestArchiveOnlyFromPublished(t *testing.T) {
	grants := map[int64][]string{1: {shared.PermArticlePublish}}
	svc, _, _ := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Still a Draft"))
	require.NoError(t, err)

	_, err = svc.Archive(context.Background(), 1, article.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteRequiresGrantAndJournals(t *testing.T) {
	grants := map[int64][]string{2: {shared.PermArticleDelete}}
	svc, repo, audit := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Doomed"))
	require.NoError(t, err)

	require.ErrorIs(t, svc.Delete(context.Background(), 1, article.ID), shared.ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), 2, article.ID))
	require.Empty(t, repo.items)
	require.Contains(t, audit.actions(), "article.delete")
}

func TestListAdminScopesContributorsToOwnWork(t *testing.T) {
	grants := map[int64][]string{9: {shared.PermArticleEditAll}}
	svc, _, _ := newTestService(grants)

	_, err := svc.Create(context.Background(), 1, draftInput("Mine"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 2, draftInput("Theirs"))
	require.NoError(t, err)

	own, _, err := svc.ListAdmin(context.Background(), 1, ListFilters{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, int64(1), own[0].AuthorID)

	all, page, err := svc.ListAdmin(context.Background(), 9, ListFilters{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 2, page.Total)
}

func TestGetForEditHonoursOwnership(t *testing.T) {
	grants := map[int64][]string{9: {shared.PermArticleEditAll}}
	svc, _, _ := newTestService(grants)

	article, err := svc.Create(context.Background(), 1, draftInput("Private Draft"))
	require.NoError(t, err)

	_, err = svc.GetForEdit(context.Background(), 1, article.ID)
	require.NoError(t, err)
	_, err = svc.GetForEdit(context.Background(), 2, article.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.GetForEdit(context.Background(), 9, article.ID)
	require.NoError(t, err)
}

// leakyRepo simulates a lookup that ignores the status filter, so the
// service level recheck has to catch it.
type leakyRepo struct{ *fakeRepo }

func (l leakyRepo) GetPublishedBySlug(_ context.Context, slug string) (*Article, error) {
	for _, a := range l.items {
		if a.Slug == slug {
			cp := *a
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func TestPublishedBySlugNeverLeaksDrafts(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(leakyRepo{repo}, &fakePerms{}, fakeRenderer{}, nil)

	_, err := repo.Create(context.Background(), &Article{
		AuthorID: 1, Title: "Secret", Slug: "secret", Status: StatusDraft, BodyMarkdown: "x",
	})
	require.NoError(t, err)

	_, err = svc.PublishedBySlug(context.Background(), "secret")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestListPublishedForcesStatusFilter(t *testing.T) {
	grants := map[int64][]string{1: {shared.PermArticlePublish}}
	svc, _, _ := newTestService(grants)

	live, err := svc.Create(context.Background(), 1, draftInput("Live Post"))
	require.NoError(t, err)
	_, err = svc.Publish(context.Background(), 1, live.ID, nil)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), 1, draftInput("Hidden Draft"))
	require.NoError(t, err)

	items, page, err := svc.ListPublished(context.Background(), ListFilters{Status: StatusDraft})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "live-post", items[0].Slug)
	require.Equal(t, 1, page.Total)
}
