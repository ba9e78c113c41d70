package classify

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"creditdocs-backend/internal/shared/storage/db"
	"creditdocs-backend/internal/shared/telemetry"
)

// PGStore implements ExemplarStore on the classification_exemplars table.
// Databases without pgvector still work; exemplars then carry no embedding.
type PGStore struct {
	DB *sql.DB
}

// Sample returns up to limit random exemplars.
func (s *PGStore) Sample(ctx context.Context, limit int) ([]Exemplar, error) {
	const withVectors = `
SELECT id, label, content, embedding::text, created_at
FROM classification_exemplars
ORDER BY random()
LIMIT $1`
	out, err := s.sample(ctx, withVectors, limit, true)
	if err == nil || !db.IsVectorUnsupported(err) {
		return out, err
	}
	telemetry.Warn("classify.exemplars.no_vectors", map[string]any{"error": err.Error()})
	const plain = `
SELECT id, label, content, created_at
FROM classification_exemplars
ORDER BY random()
LIMIT $1`
	return s.sample(ctx, plain, limit, false)
}

func (s *PGStore) sample(ctx context.Context, query string, limit int, vectors bool) ([]Exemplar, error) {
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Exemplar
	for rows.Next() {
		var ex Exemplar
		var label string
		var raw sql.NullString
		dest := []any{&ex.ID, &label, &ex.Text}
		if vectors {
			dest = append(dest, &raw)
		}
		dest = append(dest, &ex.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ex.Label = Label(label)
		if raw.Valid && raw.String != "" {
			var vec pgvector.Vector
			if err := vec.Scan(raw.String); err != nil {
				return nil, fmt.Errorf("scan exemplar %s embedding: %w", ex.ID, err)
			}
			ex.Embedding = vec.Slice()
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// Add inserts ex. When the embedding column is unavailable the row is stored
// without it.
func (s *PGStore) Add(ctx context.Context, ex Exemplar) error {
	ex = withDefaults(ex)
	if len(ex.Embedding) > 0 {
		const query = `
INSERT INTO classification_exemplars (id, label, content, embedding, created_at)
VALUES ($1, $2, $3, $4, $5)`
		_, err := s.DB.ExecContext(ctx, query, ex.ID, string(ex.Label), ex.Text, pgvector.NewVector(ex.Embedding), ex.CreatedAt)
		if err == nil || !db.IsVectorUnsupported(err) {
			return err
		}
		telemetry.Warn("classify.exemplars.no_vectors", map[string]any{"error": err.Error()})
	}
	const query = `
INSERT INTO classification_exemplars (id, label, content, created_at)
VALUES ($1, $2, $3, $4)`
	_, err := s.DB.ExecContext(ctx, query, ex.ID, string(ex.Label), ex.Text, ex.CreatedAt)
	return err
}
