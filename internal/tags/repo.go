package tags

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/shared"
)

// Repository is the persistence surface the tag service needs.
type Repository interface {
	Create(ctx context.Context, name, slug string) (*Tag, error)
	Rename(ctx context.Context, id int64, name, slug string) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Tag, error)
	List(ctx context.Context) ([]Tag, error)
	Search(ctx context.Context, prefix string, limit int) ([]Tag, error)
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	UsageCount(ctx context.Context, id int64) (int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository builds PGRepository instance.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const tagColumns = `
	t.id, t.name, t.slug, t.created_at,
	(SELECT COUNT(*) FROM article_tags at WHERE at.tag_id = t.id) AS article_count`

func (r *PGRepository) Create(ctx context.Context, name, slug string) (*Tag, error) {
	tag := &Tag{Name: name, Slug: slug}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO tags (name, slug, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at`,
		name, slug).Scan(&tag.ID, &tag.CreatedAt)
	if err != nil {
		return nil, mapTagWriteError(err)
	}
	return tag, nil
}

func (r *PGRepository) Rename(ctx context.Context, id int64, name, slug string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tags SET name = $2, slug = $3 WHERE id = $1`,
		id, name, slug)
	if err != nil {
		return mapTagWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a tag. The article_tags foreign key has no cascade, so a
// referenced tag fails here even if the usage check raced a new attachment.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return shared.ErrTagInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Tag, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+tagColumns+`
		FROM tags t
		WHERE t.id = $1`, id)
	return scanTag(row)
}

func (r *PGRepository) List(ctx context.Context) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tagColumns+`
		FROM tags t
		ORDER BY t.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTags(rows)
}

func (r *PGRepository) Search(ctx context.Context, prefix string, limit int) ([]Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+tagColumns+`
		FROM tags t
		WHERE t.name ILIKE $1 || '%'
		ORDER BY t.name
		LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTags(rows)
}

func (r *PGRepository) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tags WHERE slug = $1 AND id <> $2)`,
		slug, excludeID).Scan(&exists)
	return exists, err
}

func (r *PGRepository) UsageCount(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM article_tags WHERE tag_id = $1`, id).Scan(&count)
	return count, err
}

func scanTag(row pgx.Row) (*Tag, error) {
	var t Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.ArticleCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func collectTags(rows pgx.Rows) ([]Tag, error) {
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt, &t.ArticleCount); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func mapTagWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if strings.Contains(pgErr.ConstraintName, "slug") {
			return shared.ErrSlugTaken
		}
		return shared.ErrTagNameTaken
	}
	return err
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ Repository = (*PGRepository)(nil)
