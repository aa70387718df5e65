package tags

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/plume-cms/plume/internal/articles"
	"github.com/plume-cms/plume/internal/shared"
)

// PermissionChecker resolves live permission grants.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}

// Auditor journals mutations.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service provides business logic for the tag vocabulary.
type Service struct {
	repo  Repository
	perms PermissionChecker
	audit Auditor
}

// NewService constructs a tag service.
func NewService(repo Repository, perms PermissionChecker, audit Auditor) *Service {
	return &Service{repo: repo, perms: perms, audit: audit}
}

// Create adds a tag with a slug derived from its name.
func (s *Service) Create(ctx context.Context, actorID int64, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := s.requireTagManage(ctx, actorID); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, shared.Slugify(name), 0)
	if err != nil {
		return nil, fmt.Errorf("derive slug: %w", err)
	}
	tag, err := s.repo.Create(ctx, name, slug)
	if err != nil {
		return nil, err
	}
	s.journal(ctx, actorID, "tag.create", tag.ID, map[string]any{"name": tag.Name, "slug": tag.Slug})
	return tag, nil
}

// Rename changes a tag's name and re-derives its slug. Links to articles
// follow along since they reference the tag by ID.
func (s *Service) Rename(ctx context.Context, actorID, id int64, name string) (*Tag, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := s.requireTagManage(ctx, actorID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	slug, err := s.uniqueSlug(ctx, shared.Slugify(name), id)
	if err != nil {
		return nil, fmt.Errorf("derive slug: %w", err)
	}
	if err := s.repo.Rename(ctx, id, name, slug); err != nil {
		return nil, err
	}
	s.journal(ctx, actorID, "tag.rename", id, map[string]any{"name": name, "slug": slug})
	return s.repo.GetByID(ctx, id)
}

// Delete removes an unused tag. Tags still attached to articles are
// refused so published content never loses its labels silently.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.requireTagManage(ctx, actorID); err != nil {
		return err
	}
	tag, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	used, err := s.repo.UsageCount(ctx, id)
	if err != nil {
		return fmt.Errorf("count tag usage: %w", err)
	}
	if used > 0 {
		return shared.ErrTagInUse
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.journal(ctx, actorID, "tag.delete", id, map[string]any{"name": tag.Name})
	return nil
}

// List returns the whole vocabulary with usage counts.
func (s *Service) List(ctx context.Context) ([]Tag, error) {
	return s.repo.List(ctx)
}

// Get returns one tag.
func (s *Service) Get(ctx context.Context, id int64) (*Tag, error) {
	return s.repo.GetByID(ctx, id)
}

// Suggest returns up to ten tags whose names start with prefix. The editor
// autocomplete calls this.
func (s *Service) Suggest(ctx context.Context, prefix string) ([]Tag, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	return s.repo.Search(ctx, prefix, 10)
}

// ListRefs adapts the vocabulary for the article form and public tag cloud.
func (s *Service) ListRefs(ctx context.Context) ([]articles.TagRef, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]articles.TagRef, 0, len(all))
	for _, t := range all {
		refs = append(refs, articles.TagRef{ID: t.ID, Name: t.Name, Slug: t.Slug})
	}
	return refs, nil
}

func (s *Service) requireTagManage(ctx context.Context, actorID int64) error {
	ok, err := s.perms.HasPermission(ctx, actorID, shared.PermTagManage)
	if err != nil {
		return fmt.Errorf("check permission %s: %w", shared.PermTagManage, err)
	}
	if !ok {
		return shared.ErrForbidden
	}
	return nil
}

func (s *Service) journal(ctx context.Context, actorID int64, action string, tagID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "tag",
		EntityID: strconv.FormatInt(tagID, 10),
		Meta:     meta,
	})
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

func validateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 50 {
		return errors.New("tags: name must be between 2 and 50 characters")
	}
	return nil
}
