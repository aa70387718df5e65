package comments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plume-cms/plume/internal/shared"
)

// Repository is the persistence surface the comment service needs.
type Repository interface {
	Create(ctx context.Context, c *Comment) (int64, error)
	SetStatus(ctx context.Context, id int64, status CommentStatus) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*Comment, error)
	ListByStatus(ctx context.Context, status CommentStatus, page, perPage int) ([]Comment, int, error)
	ApprovedForArticle(ctx context.Context, articleID int64) ([]Comment, error)
	CountByStatus(ctx context.Context) (map[CommentStatus]int, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository builds PGRepository instance.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const commentColumns = `
	c.id, c.article_id, a.title, a.slug, c.author_name, c.author_email,
	c.body, c.status, c.created_at`

func (r *PGRepository) Create(ctx context.Context, c *Comment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO comments (article_id, author_name, author_email, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id`,
		c.ArticleID, c.AuthorName, c.AuthorEmail, c.Body, c.Status).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PGRepository) SetStatus(ctx context.Context, id int64, status CommentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE comments SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *PGRepository) GetByID(ctx context.Context, id int64) (*Comment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN articles a ON a.id = c.article_id
		WHERE c.id = $1`, id)
	return scanComment(row)
}

func (r *PGRepository) ListByStatus(ctx context.Context, status CommentStatus, page, perPage int) ([]Comment, int, error) {
	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN articles a ON a.id = c.article_id
		WHERE c.status = $1
		ORDER BY c.created_at ASC
		LIMIT $2 OFFSET $3`,
		status, perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collectComments(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM comments WHERE status = $1`, status).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *PGRepository) ApprovedForArticle(ctx context.Context, articleID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments c
		JOIN articles a ON a.id = c.article_id
		WHERE c.article_id = $1 AND c.status = 'approved'
		ORDER BY c.created_at ASC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectComments(rows)
}

func (r *PGRepository) CountByStatus(ctx context.Context) (map[CommentStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM comments GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[CommentStatus]int{}
	for rows.Next() {
		var status CommentStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	var createdAt time.Time
	err := row.Scan(&c.ID, &c.ArticleID, &c.ArticleTitle, &c.ArticleSlug,
		&c.AuthorName, &c.AuthorEmail, &c.Body, &c.Status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = createdAt
	return &c, nil
}

func collectComments(rows pgx.Rows) ([]Comment, error) {
	var out []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.ArticleTitle, &c.ArticleSlug,
			&c.AuthorName, &c.AuthorEmail, &c.Body, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
