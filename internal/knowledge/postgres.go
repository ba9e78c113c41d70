package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// PGCollection stores chunks in a Postgres table with an optional pgvector
// embedding column.
type PGCollection struct {
	db    *sql.DB
	name  string
	table string
}

// NewPGCollection uses the table named after the collection.
func NewPGCollection(db *sql.DB, name string) *PGCollection {
	return &PGCollection{db: db, name: name, table: pgx.Identifier{name}.Sanitize()}
}

func (p *PGCollection) Name() string { return p.name }

// VectorSearch orders by cosine distance.
func (p *PGCollection) VectorSearch(ctx context.Context, query []float32, k int) ([]Snippet, error) {
	q := fmt.Sprintf(`
SELECT id, content, source_label, 1 - (embedding <=> $1) AS score
FROM %s
WHERE embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $2`, p.table)
	rows, err := p.db.QueryContext(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snippet
	for rows.Next() {
		var c Chunk
		var score float64
		if err := rows.Scan(&c.ID, &c.Text, &c.SourceLabel, &score); err != nil {
			return nil, err
		}
		out = append(out, snippetFromChunk(c, score))
	}
	return out, rows.Err()
}

// Sample returns random rows. Without vector support the rows carry no
// embedding and the caller embeds them.
func (p *PGCollection) Sample(ctx context.Context, limit int) ([]Chunk, error) {
	q := fmt.Sprintf(`
SELECT id, content, source_label, origin_query, embedding::text, created_at
FROM %s
ORDER BY random()
LIMIT $1`, p.table)
	out, err := p.sample(ctx, q, limit, true)
	if err == nil || !IsVectorUnsupported(err) {
		return out, err
	}
	q = fmt.Sprintf(`
SELECT id, content, source_label, origin_query, created_at
FROM %s
ORDER BY random()
LIMIT $1`, p.table)
	return p.sample(ctx, q, limit, false)
}

func (p *PGCollection) sample(ctx context.Context, q string, limit int, vectors bool) ([]Chunk, error) {
	rows, err := p.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var origin, raw sql.NullString
		dest := []any{&c.ID, &c.Text, &c.SourceLabel, &origin}
		if vectors {
			dest = append(dest, &raw)
		}
		dest = append(dest, &c.CreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		c.OriginQuery = origin.String
		if raw.Valid && raw.String != "" {
			var vec pgvector.Vector
			if err := vec.Scan(raw.String); err != nil {
				return nil, fmt.Errorf("scan chunk %s embedding: %w", c.ID, err)
			}
			c.Embedding = vec.Slice()
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LexicalSearch is a case-insensitive substring match.
func (p *PGCollection) LexicalSearch(ctx context.Context, term string, limit int) ([]Snippet, error) {
	q := fmt.Sprintf(`
SELECT id, content, source_label
FROM %s
WHERE content ILIKE $1 ESCAPE '\'
ORDER BY created_at DESC
LIMIT $2`, p.table)
	rows, err := p.db.QueryContext(ctx, q, "%"+escapeLike(term)+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snippet
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.SourceLabel); err != nil {
			return nil, err
		}
		out = append(out, snippetFromChunk(c, 0))
	}
	return out, rows.Err()
}

// Insert appends chunks in one transaction.
func (p *PGCollection) Insert(ctx context.Context, chunks []Chunk, withVectors bool) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	withEmbedding := fmt.Sprintf(`
INSERT INTO %s (id, content, source_label, origin_query, embedding, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, p.table)
	plain := fmt.Sprintf(`
INSERT INTO %s (id, content, source_label, origin_query, created_at)
VALUES ($1, $2, $3, $4, $5)`, p.table)
	for _, c := range chunks {
		if withVectors && len(c.Embedding) > 0 {
			_, err = tx.ExecContext(ctx, withEmbedding, c.ID, c.Text, c.SourceLabel, c.OriginQuery, pgvector.NewVector(c.Embedding), c.CreatedAt)
		} else {
			_, err = tx.ExecContext(ctx, plain, c.ID, c.Text, c.SourceLabel, c.OriginQuery, c.CreatedAt)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.TrimSpace(s))
}
