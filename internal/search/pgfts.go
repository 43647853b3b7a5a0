package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
// Like the gateway it only ever returns public notes.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const headlineOptions = "StartSel=<mark>, StopSel=</mark>, HighlightAll=true"

// Search ranks public notes with plainto_tsquery and ts_rank and marks
// matches with ts_headline. An empty text lists the newest notes.
func (p *PgFTS) Search(ctx context.Context, q Query) (Results, error) {
	started := time.Now()
	limit, offset := clampPage(q.Limit, q.Offset)
	text := strings.TrimSpace(q.Text)

	where := []string{"n.is_public"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	titleExpr, descExpr, subjectExpr := "n.title", "coalesce(n.description, '')", "n.subject"
	order := "n.created_at DESC, n.id"
	if text != "" {
		tsq := "plainto_tsquery('english', " + arg(text) + ")"
		where = append(where, "n.fts @@ "+tsq)
		headline := func(col string) string {
			return fmt.Sprintf("ts_headline('english', %s, %s, '%s')", col, tsq, headlineOptions)
		}
		titleExpr, descExpr, subjectExpr = headline("n.title"), headline("coalesce(n.description, '')"), headline("n.subject")
		order = "ts_rank(n.fts, " + tsq + ") DESC, n.id"
	}
	if q.Subject != "" {
		where = append(where, "n.subject = "+arg(q.Subject))
	}
	whereSQL := strings.Join(where, " AND ")

	var total int64
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM notes n WHERE "+whereSQL, args...).Scan(&total); err != nil {
		return Results{}, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT n.id, n.title, coalesce(n.description, ''), n.subject,
			coalesce(n.author_id, ''), coalesce(nullif(trim(p.full_name), ''), '%s'),
			coalesce(to_json(n.tags), '[]'::json)::text,
			n.downloads, n.rating_avg, n.is_public, n.file_url, n.created_at,
			%s, %s, %s
		FROM notes n
		LEFT JOIN profiles p ON p.id = n.author_id
		WHERE %s
		ORDER BY %s
		LIMIT %d OFFSET %d`,
		AnonymousAuthor, titleExpr, descExpr, subjectExpr, whereSQL, order, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return Results{}, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	hits := make([]Hit, 0, limit)
	for rows.Next() {
		var (
			hit       Hit
			tagsJSON  string
			createdAt time.Time
			title     string
			desc      string
			subject   string
		)
		if err := rows.Scan(&hit.ID, &hit.Title, &hit.Description, &hit.Subject,
			&hit.AuthorID, &hit.AuthorName, &tagsJSON,
			&hit.Downloads, &hit.RatingAvg, &hit.IsPublic, &hit.FileURL, &createdAt,
			&title, &desc, &subject); err != nil {
			return Results{}, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &hit.Tags); err != nil {
			return Results{}, fmt.Errorf("pgfts decode tags for %s: %w", hit.ID, err)
		}
		if hit.Tags == nil {
			hit.Tags = []string{}
		}
		hit.CreatedAt = createdAt.UnixMilli()
		hit.Formatted = map[string]string{"title": title, "description": desc, "subject": subject}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return Results{}, fmt.Errorf("pgfts iterate: %w", err)
	}

	return Results{
		Hits:          hits,
		TotalEstimate: total,
		TookMs:        time.Since(started).Milliseconds(),
		Query:         q.Text,
	}, nil
}
