package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/plume-cms/plume/internal/articles"
	"github.com/plume-cms/plume/internal/shared"
)

// ArticleSource resolves the article a comment targets. Only published
// articles resolve, so drafts can never collect comments.
type ArticleSource interface {
	PublishedBySlug(ctx context.Context, slug string) (*articles.Article, error)
}

// PermissionChecker resolves live permission grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// Auditor journals moderation decisions.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier fans out to the moderation mailbox after a comment lands. The
// implementation enqueues a background job.
type Notifier interface {
	NotifyCommentPending(ctx context.Context, commentID int64) error
}

// Service provides business logic for reader comments and moderation.
type Service struct {
	logger   *slog.Logger
	repo     Repository
	articles ArticleSource
	perms    PermissionChecker
	audit    Auditor
	notifier Notifier
}

// NewService constructs a comment service.
func NewService(logger *slog.Logger, repo Repository, articles ArticleSource, perms PermissionChecker, audit Auditor, notifier Notifier) *Service {
	return &Service{logger: logger, repo: repo, articles: articles, perms: perms, audit: audit, notifier: notifier}
}

// Post stores a reader comment as pending. The target is resolved through
// the published-only lookup; anything else reads as not found.
func (s *Service) Post(ctx context.Context, in PostInput) (*Comment, error) {
	if err := validatePost(in); err != nil {
		return nil, err
	}

	article, err := s.articles.PublishedBySlug(ctx, in.ArticleSlug)
	if err != nil {
		return nil, err
	}

	comment := &Comment{
		ArticleID:   article.ID,
		AuthorName:  strings.TrimSpace(in.AuthorName),
		AuthorEmail: strings.TrimSpace(strings.ToLower(in.AuthorEmail)),
		Body:        normalizeBody(in.Body),
		Status:      StatusPending,
	}
	id, err := s.repo.Create(ctx, comment)
	if err != nil {
		return nil, err
	}
	comment.ID = id
	comment.ArticleTitle = article.Title
	comment.ArticleSlug = article.Slug

	// Notification is best effort. The comment is already stored, so a full
	// queue must not bounce the reader.
	if s.notifier != nil {
		if err := s.notifier.NotifyCommentPending(ctx, id); err != nil {
			s.logger.Warn("enqueue comment notification failed", slog.Any("error", err), slog.Int64("comment_id", id))
		}
	}
	return comment, nil
}

// Approve makes a comment publicly visible.
func (s *Service) Approve(ctx context.Context, actorID, id int64) error {
	return s.moderate(ctx, actorID, id, StatusApproved, "comment.approve")
}

// Reject hides a comment while keeping it for the record.
func (s *Service) Reject(ctx context.Context, actorID, id int64) error {
	return s.moderate(ctx, actorID, id, StatusRejected, "comment.reject")
}

// Delete removes a comment entirely.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireModerate(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.journal(ctx, actorID, "comment.delete", id, nil)
	return nil
}

// Queue pages through comments awaiting a decision, oldest first.
func (s *Service) Queue(ctx context.Context, status CommentStatus, page int) ([]Comment, shared.Pagination, error) {
	if !status.Valid() {
		status = StatusPending
	}
	if page < 1 {
		page = 1
	}
	const perPage = 20
	items, total, err := s.repo.ListByStatus(ctx, status, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// ApprovedForArticle adapts approved comments for public article pages.
func (s *Service) ApprovedForArticle(ctx context.Context, articleID int64) ([]articles.CommentRef, error) {
	items, err := s.repo.ApprovedForArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	refs := make([]articles.CommentRef, 0, len(items))
	for _, c := range items {
		refs = append(refs, articles.CommentRef{
			ID:         c.ID,
			AuthorName: c.AuthorName,
			Body:       c.Body,
			CreatedAt:  c.CreatedAt,
		})
	}
	return refs, nil
}

// CountByStatus feeds the admin dashboard and the queue tabs.
func (s *Service) CountByStatus(ctx context.Context) (map[CommentStatus]int, error) {
	return s.repo.CountByStatus(ctx)
}

// Get returns one comment for the notification mailer.
func (s *Service) Get(ctx context.Context, id int64) (*Comment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) moderate(ctx context.Context, actorID, id int64, status CommentStatus, action string) error {
	if err := s.requireModerate(ctx, actorID); err != nil {
		return err
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return err
	}
	s.journal(ctx, actorID, action, id, nil)
	return nil
}

func (s *Service) requireModerate(ctx context.Context, actorID int64) error {
	ok, err := s.perms.HasPermission(ctx, actorID, shared.PermCommentModerate)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", shared.PermCommentModerate, err)
	}
	if !ok {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) journal(ctx context.Context, actorID int64, action string, commentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "comment",
		EntityID: strconv.FormatInt(commentID, 10),
		Meta:     meta,
	})
}

const maxBodyRunes = 2000

func validatePost(in PostInput) error {
	name := strings.TrimSpace(in.AuthorName)
	if n := utf8.RuneCountInString(name); n < 2 || n > 80 {
		return errors.New("comments: author name must be between 2 and 80 characters")
	}
	email := strings.TrimSpace(in.AuthorEmail)
	if email == "" || !strings.Contains(email, "@") {
		return errors.New("comments: a valid email is required")
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return errors.New("comments: body required")
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		return errors.New("comments: body too long")
	}
	return nil
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	return strings.TrimSpace(body)
}
