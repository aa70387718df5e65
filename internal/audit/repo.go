package audit

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// The actor name comes through a LEFT JOIN so the journal stays readable
// after the account is deleted. actor_id 0 marks system activity.
const timelineSelect = `
	SELECT l.occurred_at,
	       COALESCE(u.username, CASE WHEN l.actor_id = 0 THEN 'system' ELSE '#' || l.actor_id::text END) AS actor,
	       l.action, l.entity, l.entity_id, COALESCE(l.meta::text, '') AS meta
	FROM audit_logs l
	LEFT JOIN users u ON u.id = l.actor_id`

func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	args = append(args, limit)
	query += " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func timelineQuery(filters TimelineFilters) (string, []any) {
	query := timelineSelect + " WHERE 1=1"
	args := []any{}
	argCount := 0

	if !filters.From.IsZero() {
		argCount++
		query += " AND l.occurred_at >= $" + strconv.Itoa(argCount)
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		argCount++
		query += " AND l.occurred_at < $" + strconv.Itoa(argCount) + " + INTERVAL '1 day'"
		args = append(args, filters.To)
	}
	if filters.Actor != "" {
		argCount++
		query += " AND u.username ILIKE $" + strconv.Itoa(argCount)
		args = append(args, filters.Actor+"%")
	}
	if filters.Entity != "" {
		argCount++
		query += " AND l.entity = $" + strconv.Itoa(argCount)
		args = append(args, filters.Entity)
	}
	if filters.Action != "" {
		argCount++
		query += " AND l.action = $" + strconv.Itoa(argCount)
		args = append(args, filters.Action)
	}

	query += " ORDER BY l.occurred_at DESC, l.id DESC"
	return query, args
}

func collectRows(rows pgx.Rows) ([]TimelineRow, error) {
	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
