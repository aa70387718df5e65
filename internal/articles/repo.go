package articles

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/platform/db"
	"github.com/plume-cms/plume/internal/shared"
)

// Repository defines persistence operations for articles.
type Repository interface {
	Create(ctx context.Context, a *Article) (int64, error)
	Update(ctx context.Context, a *Article) error
	SetStatus(ctx context.Context, id int64, status Status, publishedAt *time.Time) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Article, error)
	GetPublishedBySlug(ctx context.Context, slug string) (*Article, error)
	List(ctx context.Context, f ListFilters) ([]Article, int, error)
	ReplaceTags(ctx context.Context, articleID int64, tagIDs []int64) error
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	PublishDue(ctx context.Context, now time.Time) ([]int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const articleColumns = `a.id, a.author_id, u.username, a.title, a.slug, a.excerpt,
	a.body_markdown, a.body_html, a.cover_path, a.status, a.published_at, a.created_at, a.updated_at`

// Create inserts a new article and returns its ID.
func (r *PGRepository) Create(ctx context.Context, a *Article) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO articles (author_id, title, slug, excerpt, body_markdown, body_html, cover_path, status, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.AuthorID, a.Title, a.Slug, a.Excerpt, a.BodyMarkdown, a.BodyHTML, a.CoverPath, a.Status, a.PublishedAt).
		Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, shared.ErrSlugTaken
		}
		return 0, err
	}
	return id, nil
}

// Update rewrites the mutable article fields.
func (r *PGRepository) Update(ctx context.Context, a *Article) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE articles
		SET title = $2, slug = $3, excerpt = $4, body_markdown = $5, body_html = $6, cover_path = $7, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Title, a.Slug, a.Excerpt, a.BodyMarkdown, a.BodyHTML, a.CoverPath)
	if err != nil {
		if isUniqueViolation(err) {
			return shared.ErrSlugTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetStatus moves an article through its lifecycle.
func (r *PGRepository) SetStatus(ctx context.Context, id int64, status Status, publishedAt *time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE articles SET status = $2, published_at = $3, updated_at = NOW() WHERE id = $1`,
		id, status, publishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes the article. Tag links and comments go with it via
// ON DELETE CASCADE.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetByID fetches an article in any lifecycle state.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Article, error) {
	return r.getOne(ctx, `WHERE a.id = $1`, id)
}

// GetPublishedBySlug fetches an article through the public read path. Drafts
// and archived articles are indistinguishable from missing rows here.
func (r *PGRepository) GetPublishedBySlug(ctx context.Context, slug string) (*Article, error) {
	return r.getOne(ctx, `WHERE a.slug = $1 AND a.status = 'published'`, slug)
}

func (r *PGRepository) getOne(ctx context.Context, where string, arg any) (*Article, error) {
	var a Article
	err := r.pool.QueryRow(ctx, `
		SELECT `+articleColumns+`
		FROM articles a
		JOIN users u ON u.id = a.author_id
		`+where, arg).
		Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Slug, &a.Excerpt,
			&a.BodyMarkdown, &a.BodyHTML, &a.CoverPath, &a.Status, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	tags, err := r.tagsFor(ctx, []int64{a.ID})
	if err != nil {
		return nil, err
	}
	a.Tags = tags[a.ID]
	return &a, nil
}

// List returns a page of articles matching the filters plus the total count.
func (r *PGRepository) List(ctx context.Context, f ListFilters) ([]Article, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if f.Status != "" {
		argCount++
		where += ` AND a.status = $` + strconv.Itoa(argCount)
		args = append(args, f.Status)
	}
	if f.AuthorID > 0 {
		argCount++
		where += ` AND a.author_id = $` + strconv.Itoa(argCount)
		args = append(args, f.AuthorID)
	}
	if f.TagSlug != "" {
		argCount++
		where += ` AND EXISTS (
			SELECT 1 FROM article_tags at
			JOIN tags t ON t.id = at.tag_id
			WHERE at.article_id = a.id AND t.slug = $` + strconv.Itoa(argCount) + `)`
		args = append(args, f.TagSlug)
	}
	if f.Search != "" {
		argCount++
		where += ` AND (a.title ILIKE $` + strconv.Itoa(argCount) + ` OR a.excerpt ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+f.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles a`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := ` ORDER BY a.created_at DESC, a.id DESC`
	if f.Status == StatusPublished {
		order = ` ORDER BY a.published_at DESC, a.id DESC`
	}

	query := `
		SELECT ` + articleColumns + `
		FROM articles a
		JOIN users u ON u.id = a.author_id` + where + order
	if f.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, f.PerPage)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (f.Page - 1) * f.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Article
	var ids []int64
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.AuthorID, &a.AuthorName, &a.Title, &a.Slug, &a.Excerpt,
			&a.BodyMarkdown, &a.BodyHTML, &a.CoverPath, &a.Status, &a.PublishedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	tags, err := r.tagsFor(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Tags = tags[out[i].ID]
	}
	return out, total, nil
}

// ReplaceTags swaps an article's tag set in one transaction.
func (r *PGRepository) ReplaceTags(ctx context.Context, articleID int64, tagIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM article_tags WHERE article_id = $1`, articleID); err != nil {
			return err
		}
		for _, id := range tagIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO article_tags (article_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, articleID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// SlugExists reports whether another article already claims the slug.
func (r *PGRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM articles WHERE slug = $1 AND id <> $2)`, slug, excludeID).Scan(&exists)
	return exists, err
}

// CountByStatus aggregates article counts for the dashboard.
func (r *PGRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM articles GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PublishDue flips scheduled drafts whose publish time has arrived and
// returns their IDs.
func (r *PGRepository) PublishDue(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE articles
		SET status = 'published', updated_at = NOW()
		WHERE status = 'draft' AND published_at IS NOT NULL AND published_at <= $1
		RETURNING id`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PGRepository) tagsFor(ctx context.Context, articleIDs []int64) (map[int64][]TagRef, error) {
	result := make(map[int64][]TagRef, len(articleIDs))
	if len(articleIDs) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT at.article_id, t.id, t.name, t.slug
		FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id = ANY($1)
		ORDER BY t.name`, articleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var articleID int64
		var tag TagRef
		if err := rows.Scan(&articleID, &tag.ID, &tag.Name, &tag.Slug); err != nil {
			return nil, err
		}
		result[articleID] = append(result[articleID], tag)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*PGRepository)(nil)
