package recall

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/chatbi/chatbi/internal/catalog"
)

// GraphRecaller is the graph path. Metric nodes and their relations live in
// two warehouse tables; recall walks name/synonym mentions, domain mentions,
// and RELATED_TO edges up to two hops.
type GraphRecaller struct {
	db *sql.DB
}

func NewGraphRecaller(db *sql.DB) *GraphRecaller {
	return &GraphRecaller{db: db}
}

const graphSchema = `
CREATE TABLE IF NOT EXISTS metric_nodes (
    metric_id   TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    code        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    domain      TEXT NOT NULL DEFAULT '',
    synonyms    TEXT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS metric_edges (
    source_id TEXT NOT NULL REFERENCES metric_nodes(metric_id),
    target_id TEXT NOT NULL REFERENCES metric_nodes(metric_id),
    relation  TEXT NOT NULL,
    PRIMARY KEY (source_id, target_id, relation)
);
`

func (r *GraphRecaller) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, graphSchema); err != nil {
		return fmt.Errorf("create graph tables: %w", err)
	}
	return nil
}

// SeedFromCatalog mirrors the metric catalog into the graph tables. Related
// metrics become RELATED_TO edges; edges pointing at unknown metrics are
// skipped.
func (r *GraphRecaller) SeedFromCatalog(ctx context.Context, registry *catalog.Registry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin graph seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	metrics := registry.All()
	known := make(map[string]bool, len(metrics))
	for _, metric := range metrics {
		known[metric.ID] = true
	}

	for _, metric := range metrics {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO metric_nodes (metric_id, name, code, description, domain, synonyms)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (metric_id) DO UPDATE SET
    name = EXCLUDED.name,
    code = EXCLUDED.code,
    description = EXCLUDED.description,
    domain = EXCLUDED.domain,
    synonyms = EXCLUDED.synonyms`,
			metric.ID, metric.Name, metric.Code, metric.Description, metric.Domain, pgTextArray(metric.Synonyms),
		); err != nil {
			return fmt.Errorf("upsert metric node %s: %w", metric.ID, err)
		}
	}
	for _, metric := range metrics {
		for _, related := range metric.RelatedMetrics {
			if !known[related] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
INSERT INTO metric_edges (source_id, target_id, relation)
VALUES ($1, $2, 'RELATED_TO')
ON CONFLICT DO NOTHING`,
				metric.ID, related,
			); err != nil {
				return fmt.Errorf("upsert metric edge %s->%s: %w", metric.ID, related, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit graph seed: %w", err)
	}
	return nil
}

const graphTextMatchQuery = `
SELECT metric_id, name, code, description, domain
FROM metric_nodes
WHERE position(lower(name) IN lower($1)) > 0
   OR position(lower(code) IN lower($1)) > 0
   OR EXISTS (
        SELECT 1 FROM unnest(synonyms) AS syn
        WHERE position(lower(syn) IN lower($1)) > 0
   )
LIMIT $2`

const graphDomainMatchQuery = `
SELECT metric_id, name, code, description, domain
FROM metric_nodes
WHERE domain <> '' AND position(domain IN $1) > 0
LIMIT $2`

const graphRelatedQuery = `
WITH RECURSIVE walk(metric_id, depth) AS (
    SELECT target_id, 1
    FROM metric_edges
    WHERE source_id = ANY($1)
    UNION
    SELECT e.target_id, w.depth + 1
    FROM metric_edges e
    JOIN walk w ON e.source_id = w.metric_id
    WHERE w.depth < 2
)
SELECT n.metric_id, n.name, n.code, n.description, n.domain
FROM metric_nodes n
JOIN walk w ON w.metric_id = n.metric_id
LIMIT $2`

func (r *GraphRecaller) Recall(ctx context.Context, query string, topK int) ([]Candidate, error) {
	if topK <= 0 {
		topK = 10
	}

	seen := make(map[string]bool)
	var candidates []Candidate

	direct, err := r.collect(ctx, graphTextMatchQuery, query, topK)
	if err != nil {
		return nil, fmt.Errorf("graph text recall: %w", err)
	}
	candidates = appendUnique(candidates, direct, seen)

	byDomain, err := r.collect(ctx, graphDomainMatchQuery, query, topK)
	if err != nil {
		return nil, fmt.Errorf("graph domain recall: %w", err)
	}
	candidates = appendUnique(candidates, byDomain, seen)

	if len(direct) > 0 {
		seeds := make([]string, 0, len(direct))
		for _, candidate := range direct {
			seeds = append(seeds, candidate.MetricID)
		}
		related, err := r.collectRelated(ctx, seeds, topK)
		if err != nil {
			return nil, fmt.Errorf("graph relation recall: %w", err)
		}
		candidates = appendUnique(candidates, related, seen)
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

func (r *GraphRecaller) collect(ctx context.Context, sqlQuery, query string, limit int) ([]Candidate, error) {
	rows, err := r.db.QueryContext(ctx, sqlQuery, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCandidates(rows)
}

func (r *GraphRecaller) collectRelated(ctx context.Context, seeds []string, limit int) ([]Candidate, error) {
	rows, err := r.db.QueryContext(ctx, graphRelatedQuery, pgTextArray(seeds), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCandidates(rows)
}

func scanCandidates(rows *sql.Rows) ([]Candidate, error) {
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.MetricID, &c.Name, &c.Code, &c.Description, &c.Domain); err != nil {
			return nil, err
		}
		c.Score = 1.0
		c.Source = SourceGraph
		c.GraphScore = 1.0
		out = append(out, c)
	}
	return out, rows.Err()
}

// pgTextArray renders a Postgres array literal so string slices bind cleanly
// through database/sql.
func pgTextArray(values []string) string {
	escaper := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	var b strings.Builder
	b.WriteByte('{')
	for i, value := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(escaper.Replace(value))
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func appendUnique(dst, src []Candidate, seen map[string]bool) []Candidate {
	for _, candidate := range src {
		if seen[candidate.MetricID] {
			continue
		}
		seen[candidate.MetricID] = true
		dst = append(dst, candidate)
	}
	return dst
}
