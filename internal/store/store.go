package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/faceoverlay/internal/gallery"
	"github.com/andresmejia3/faceoverlay/internal/match"
	"github.com/jackc/pgx/v5"
)

// Dim is the descriptor length the schema stores.
const Dim = 128

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn
}

// Person is one stored identity.
type Person struct {
	ID        int
	Name      string
	Count     int
	CreatedAt time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables and vector extension if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS people (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS face_descriptors (
			id BIGSERIAL PRIMARY KEY,
			person_id INT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
			descriptor VECTOR(128) NOT NULL
		);
		CREATE INDEX IF NOT EXISTS face_descriptors_person_idx ON face_descriptors (person_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// ImportArtifact adds every descriptor of a to the store, creating people as
// needed, and returns how many descriptors were written.
func (s *Store) ImportArtifact(ctx context.Context, a *gallery.Artifact) (int, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	written := 0
	for _, p := range a.Data {
		var id int
		err := tx.QueryRow(ctx, `
			INSERT INTO people (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id
		`, p.Name).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("upsert %q: %w", p.Name, err)
		}

		batch := &pgx.Batch{}
		for _, d := range p.Descriptors {
			if len(d) != Dim {
				return 0, fmt.Errorf("%q: descriptor has %d values, store expects %d", p.Name, len(d), Dim)
			}
			batch.Queue(`INSERT INTO face_descriptors (person_id, descriptor) VALUES ($1, $2::vector)`, id, vecToString(d))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return 0, fmt.Errorf("insert descriptors for %q: %w", p.Name, err)
		}
		written += len(p.Descriptors)
	}

	return written, tx.Commit(ctx)
}

// LoadGallery returns every stored descriptor grouped by person, ordered by name.
func (s *Store) LoadGallery(ctx context.Context) (match.Gallery, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.name, d.descriptor::text
		FROM face_descriptors d JOIN people p ON p.id = d.person_id
		ORDER BY p.name, d.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var g match.Gallery
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		vec, err := parseVector(raw)
		if err != nil {
			return nil, fmt.Errorf("descriptor of %q: %w", name, err)
		}
		if n := len(g); n == 0 || g[n-1].Label != name {
			g = append(g, match.LabeledDescriptors{Label: name})
		}
		g[len(g)-1].Descriptors = append(g[len(g)-1].Descriptors, vec)
	}
	return g, rows.Err()
}

// ListPeople returns every person with their descriptor count.
func (s *Store) ListPeople(ctx context.Context) ([]Person, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT p.id, p.name, COUNT(d.id), p.created_at
		FROM people p LEFT JOIN face_descriptors d ON d.person_id = p.id
		GROUP BY p.id
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Person
	for rows.Next() {
		var p Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Count, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindClosest returns the person owning the nearest descriptor by Euclidean
// distance. ok is false when the store is empty.
func (s *Store) FindClosest(ctx context.Context, vec match.Descriptor) (name string, distance float64, ok bool, err error) {
	// <-> is the L2 distance operator in pgvector
	err = s.conn.QueryRow(ctx, `
		SELECT p.name, d.descriptor <-> $1::vector AS dist
		FROM face_descriptors d JOIN people p ON p.id = d.person_id
		ORDER BY dist ASC
		LIMIT 1
	`, vecToString(vec)).Scan(&name, &distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return name, distance, true, nil
}

// RenamePerson updates the name of a stored person.
func (s *Store) RenamePerson(ctx context.Context, id int, newName string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE people SET name = $1 WHERE id = $2", newName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %d not found", id)
	}
	return nil
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_descriptors CASCADE;
		DROP TABLE IF EXISTS people CASCADE;
	`)
	return err
}

// vecToString formats a descriptor in the pgvector text format "[1,2,...]".
func vecToString(vec []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) (match.Descriptor, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("malformed vector %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return match.Descriptor{}, nil
	}
	parts := strings.Split(body, ",")
	out := make(match.Descriptor, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("vector element %d: %w", i, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
