package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// EmbeddingDim is the width of the embedding column.
const EmbeddingDim = 128

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn
}

// Record is one exported gallery entry.
type Record struct {
	ID         int64
	Name       string
	Source     string
	Embedding  []float64
	ExportedAt time.Time
}

// Match is the nearest exported face to a query.
type Match struct {
	Name     string
	Source   string
	Distance float64
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	// The vector type only exists once the extension is created
	if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to register vector type: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the export table and vector extension if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS known_faces (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			exported_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS known_faces_name_idx ON known_faces (name);
	`, EmbeddingDim)
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ReplaceGallery swaps the table contents for entries in one transaction.
// Duplicate names are kept as separate rows, in gallery order.
func (s *Store) ReplaceGallery(ctx context.Context, entries []gallery.Entry) (int, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM known_faces"); err != nil {
		return 0, err
	}

	for _, e := range entries {
		if len(e.Embedding) != EmbeddingDim {
			return 0, fmt.Errorf("%s: embedding has %d dimensions, want %d", e.Name, len(e.Embedding), EmbeddingDim)
		}
		_, err := tx.Exec(ctx,
			"INSERT INTO known_faces (name, source, embedding) VALUES ($1, $2, $3)",
			e.Name, e.Source, pgvector.NewVector(toFloat32(e.Embedding)))
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", e.Name, err)
		}
	}

	return len(entries), tx.Commit(ctx)
}

// FindClosest returns the nearest exported face by Euclidean (L2) distance.
// ok is false when the table is empty or the nearest face is farther than threshold.
func (s *Store) FindClosest(ctx context.Context, emb []float64, threshold float64) (m Match, ok bool, err error) {
	// <-> is the L2 distance operator in pgvector
	query := `SELECT name, source, embedding <-> $1 AS distance FROM known_faces ORDER BY distance ASC LIMIT 1`

	err = s.conn.QueryRow(ctx, query, pgvector.NewVector(toFloat32(emb))).Scan(&m.Name, &m.Source, &m.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Match{}, false, nil // Nothing exported
	}
	if err != nil {
		return Match{}, false, err
	}
	return m, m.Distance <= threshold, nil
}

// List returns every exported row in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.conn.Query(ctx, "SELECT id, name, source, embedding, exported_at FROM known_faces ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var vec pgvector.Vector
		if err := rows.Scan(&r.ID, &r.Name, &r.Source, &vec, &r.ExportedAt); err != nil {
			return nil, err
		}
		for _, v := range vec.Slice() {
			r.Embedding = append(r.Embedding, float64(v))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of exported rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM known_faces").Scan(&n)
	return n, err
}

// Reset drops the export table. The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS known_faces CASCADE")
	return err
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
