package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher on PostgreSQL full-text search. Unlike the Meili
// index it queries the live content_items table, so it filters on status
// itself.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "c.status = 'published' AND c.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.ContentType != "" {
		args = append(args, q.ContentType)
		where += fmt.Sprintf(" AND c.content_type = $%d", len(args))
	}
	if q.PublicOnly {
		where += " AND c.visibility = 'public'"
	}

	ctx := context.Background()

	var total int
	countSQL := "SELECT count(*) FROM content_items c WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT c.id, c.slug, c.title,
			ts_headline('english', CASE WHEN c.excerpt <> '' THEN c.excerpt ELSE c.body END, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			c.content_type, c.visibility
		FROM content_items c
		WHERE %s
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Slug, &r.Title, &r.Snippet, &r.ContentType, &r.Visibility); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadPublishedRecords returns all published items for full reindexing.
func (p *PgFTS) LoadPublishedRecords(ctx context.Context) ([]ContentRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, c.slug, c.title, c.excerpt, c.body, c.content_type, c.visibility,
			COALESCE(array_to_string(array_agg(t.slug) FILTER (WHERE t.slug IS NOT NULL), ','), '')
		FROM content_items c
		LEFT JOIN content_tags ct ON ct.content_id = c.id
		LEFT JOIN tags t ON t.id = ct.tag_id
		WHERE c.status = 'published'
		GROUP BY c.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load published content: %w", err)
	}
	defer rows.Close()

	records := make([]ContentRecord, 0)
	for rows.Next() {
		var rec ContentRecord
		var tags string
		if err := rows.Scan(&rec.ID, &rec.Slug, &rec.Title, &rec.Excerpt, &rec.Body, &rec.ContentType, &rec.Visibility, &tags); err != nil {
			return nil, fmt.Errorf("scan content record: %w", err)
		}
		if tags != "" {
			rec.Tags = strings.Split(tags, ",")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
