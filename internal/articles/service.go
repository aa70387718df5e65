package articles

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plume-cms/plume/internal/shared"
)

// ErrInvalidTransition flags a lifecycle move the state machine forbids.
var ErrInvalidTransition = errors.New("articles: invalid status transition")

// PermissionChecker resolves live permission grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// HTMLRenderer produces sanitized HTML from Markdown.
type HTMLRenderer interface {
	HTML(markdown string) (string, error)
}

// Auditor journals mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for authoring and reading articles.
//
// Route guards gate the admin surface, but every mutation here re-checks the
// actor's grants against the database so a stale session can never widen
// access.
type Service struct {
	repo  Repository
	perms PermissionChecker
	html  HTMLRenderer
	audit Auditor
}

// NewService constructs an articles service.
func NewService(repo Repository, perms PermissionChecker, html HTMLRenderer, audit Auditor) *Service {
	return &Service{repo: repo, perms: perms, html: html, audit: audit}
}

// Create stores a new draft owned by the actor.
func (s *Service) Create(ctx context.Context, actorID int64, in Input) (*Article, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	bodyHTML, err := s.html.HTML(in.BodyMarkdown)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	slug, err := s.uniqueSlug(ctx, shared.Slugify(in.Title), 0)
	if err != nil {
		return nil, fmt.Errorf("derive slug: %w", err)
	}

	article := &Article{
		AuthorID:     actorID,
		Title:        strings.TrimSpace(in.Title),
		Slug:         slug,
		Excerpt:      excerptFor(in),
		BodyMarkdown: in.BodyMarkdown,
		BodyHTML:     bodyHTML,
		CoverPath:    in.CoverPath,
		Status:       StatusDraft,
	}
	id, err := s.repo.Create(ctx, article)
	if err != nil {
		return nil, err
	}
	article.ID = id
	if err := s.repo.ReplaceTags(ctx, id, in.TagIDs); err != nil {
		return nil, fmt.Errorf("attach tags: %w", err)
	}
	s.journal(ctx, actorID, "article.create", id, map[string]any{"title": article.Title, "slug": article.Slug})
	return s.repo.GetByID(ctx, id)
}

// Update edits an article. Authors may rework their own drafts; anything
// else needs article_edit_all.
func (s *Service) Update(ctx context.Context, actorID, id int64, in Input) (*Article, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeEdit(ctx, actorID, article); err != nil {
		return nil, err
	}

	bodyHTML, err := s.html.HTML(in.BodyMarkdown)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	slug := article.Slug
	if article.Status == StatusDraft && !strings.EqualFold(strings.TrimSpace(in.Title), article.Title) {
		slug, err = s.uniqueSlug(ctx, shared.Slugify(in.Title), id)
		if err != nil {
			return nil, fmt.Errorf("derive slug: %w", err)
		}
	}

	article.Title = strings.TrimSpace(in.Title)
	article.Slug = slug
	article.Excerpt = excerptFor(in)
	article.BodyMarkdown = in.BodyMarkdown
	article.BodyHTML = bodyHTML
	article.CoverPath = in.CoverPath

	if err := s.repo.Update(ctx, article); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceTags(ctx, id, in.TagIDs); err != nil {
		return nil, fmt.Errorf("replace tags: %w", err)
	}
	s.journal(ctx, actorID, "article.update", id, map[string]any{"title": article.Title, "slug": article.Slug})
	return s.repo.GetByID(ctx, id)
}

// Publish makes an article publicly visible, or schedules it when at lies in
// the future. The first publish stamps PublishedAt; republishing an archived
// article keeps the original date.
func (s *Service) Publish(ctx context.Context, actorID, id int64, at *time.Time) (*Article, error) {
	if err := s.requirePermission(ctx, actorID, shared.PermArticlePublish); err != nil {
		return nil, err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if at != nil && at.After(now) {
		if article.Status != StatusDraft {
			return nil, ErrInvalidTransition
		}
		if err := s.repo.SetStatus(ctx, id, StatusDraft, at); err != nil {
			return nil, err
		}
		s.journal(ctx, actorID, "article.schedule", id, map[string]any{"publish_at": at.UTC().Format(time.RFC3339)})
		return s.repo.GetByID(ctx, id)
	}

	publishedAt := now
	if article.PublishedAt != nil && !article.PublishedAt.After(now) {
		publishedAt = *article.PublishedAt
	}
	if err := s.repo.SetStatus(ctx, id, StatusPublished, &publishedAt); err != nil {
		return nil, err
	}
	s.journal(ctx, actorID, "article.publish", id, map[string]any{"slug": article.Slug})
	return s.repo.GetByID(ctx, id)
}

// Unpublish pulls an article back to draft and clears its publish stamp.
func (s *Service) Unpublish(ctx context.Context, actorID, id int64) (*Article, error) {
	if err := s.requirePermission(ctx, actorID, shared.PermArticlePublish); err != nil {
		return nil, err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != StatusPublished {
		return nil, ErrInvalidTransition
	}
	if err := s.repo.SetStatus(ctx, id, StatusDraft, nil); err != nil {
		return nil, err
	}
	s.journal(ctx, actorID, "article.unpublish", id, map[string]any{"slug": article.Slug})
	return s.repo.GetByID(ctx, id)
}

// Archive retires a published article from the public site while keeping it
// in the admin area.
func (s *Service) Archive(ctx context.Context, actorID, id int64) (*Article, error) {
	if err := s.requirePermission(ctx, actorID, shared.PermArticlePublish); err != nil {
		return nil, err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.Status != StatusPublished {
		return nil, ErrInvalidTransition
	}
	if err := s.repo.SetStatus(ctx, id, StatusArchived, article.PublishedAt); err != nil {
		return nil, err
	}
	s.journal(ctx, actorID, "article.archive", id, map[string]any{"slug": article.Slug})
	return s.repo.GetByID(ctx, id)
}

// Delete permanently removes an article.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requirePermission(ctx, actorID, shared.PermArticleDelete); err != nil {
		return err
	}
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.journal(ctx, actorID, "article.delete", id, map[string]any{"title": article.Title, "slug": article.Slug})
	return nil
}

// GetForEdit loads an article for the admin area, enforcing ownership.
func (s *Service) GetForEdit(ctx context.Context, actorID, id int64) (*Article, error) {
	article, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if article.AuthorID != actorID {
		if err := s.requirePermission(ctx, actorID, shared.PermArticleEditAll); err != nil {
			return nil, err
		}
	}
	return article, nil
}

// ListAdmin pages through articles for the admin area. Actors without
// article_edit_all only ever see their own work.
func (s *Service) ListAdmin(ctx context.Context, actorID int64, f ListFilters) ([]Article, shared.Pagination, error) {
	editAll, err := s.perms.HasPermission(ctx, actorID, shared.PermArticleEditAll)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("check permission: %w", err)
	}
	if !editAll {
		f.AuthorID = actorID
	}
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// ListPublished pages through live articles for public readers.
func (s *Service) ListPublished(ctx context.Context, f ListFilters) ([]Article, shared.Pagination, error) {
	f.Status = StatusPublished
	f.AuthorID = 0
	if f.PerPage <= 0 {
		f.PerPage = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(f.Page, f.PerPage, total), nil
}

// PublishedBySlug serves the public article page. Anything that is not
// currently published reads as not found.
func (s *Service) PublishedBySlug(ctx context.Context, slug string) (*Article, error) {
	article, err := s.repo.GetPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !article.Status.PubliclyVisible() {
		return nil, shared.ErrNotFound
	}
	return article, nil
}

// CountByStatus feeds the admin dashboard.
func (s *Service) CountByStatus(ctx context.Context) (map[Status]int, error) {
	return s.repo.CountByStatus(ctx)
}

// PublishDue flips scheduled articles whose time has come. The background
// sweep calls this; the zero actor marks system activity in the journal.
func (s *Service) PublishDue(ctx context.Context) ([]int64, error) {
	ids, err := s.repo.PublishDue(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.journal(ctx, 0, "article.publish_due", id, nil)
	}
	return ids, nil
}

func (s *Service) authorizeEdit(ctx context.Context, actorID int64, article *Article) error {
	if article.AuthorID == actorID && article.Status == StatusDraft {
		return nil
	}
	return s.requirePermission(ctx, actorID, shared.PermArticleEditAll)
}

func (s *Service) requirePermission(ctx context.Context, actorID int64, permission string) error {
	ok, err := s.perms.HasPermission(ctx, actorID, permission)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", permission, err)
	}
	if !ok {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) journal(ctx context.Context, actorID int64, action string, articleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "article",
		EntityID: strconv.FormatInt(articleID, 10),
		Meta:     meta,
	})
}

func validateInput(in Input) error {
	title := strings.TrimSpace(in.Title)
	if utf8.RuneCountInString(title) < 3 {
		return errors.New("articles: title too short")
	}
	if strings.TrimSpace(in.BodyMarkdown) == "" {
		return errors.New("articles: body required")
	}
	return nil
}

func (s *Service) uniqueSlug(ctx context.Context, base string, excludeID int64) (string, error) {
	candidate := base
	for i := 2; ; i++ {
		taken, err := s.repo.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if i > 50 {
			return base + "-" + strconv.FormatInt(time.Now().Unix(), 10), nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
}

func excerptFor(in Input) string {
	if trimmed := strings.TrimSpace(in.Excerpt); trimmed != "" {
		return trimmed
	}
	return deriveExcerpt(in.BodyMarkdown)
}

// deriveExcerpt takes the first paragraph of the Markdown body, strips the
// common inline markers and caps the result.
func deriveExcerpt(markdown string) string {
	paragraph := strings.TrimSpace(markdown)
	if idx := strings.Index(paragraph, "\n\n"); idx > 0 {
		paragraph = paragraph[:idx]
	}
	cleaner := strings.NewReplacer("#", "", "*", "", "_", "", "`", "", ">", "", "[", "", "]", "")
	paragraph = cleaner.Replace(paragraph)
	paragraph = strings.Join(strings.Fields(paragraph), " ")

	const max = 240
	if utf8.RuneCountInString(paragraph) <= max {
		return paragraph
	}
	runes := []rune(paragraph)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
