// Package journal persists detection events in PostgreSQL and ranks
// past events by embedding similarity via pgvector.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/notify"
)

// EmbeddingDim is the vector width of the events table. Events whose
// embedding has a different width are journaled without one.
const EmbeddingDim = 512

// StoredEvent is a journaled detection.
type StoredEvent struct {
	ID         uuid.UUID
	Name       string
	Position   string
	Company    string
	Confidence float64
	Labels     []string
	CreatedAt  time.Time
}

// Store reads and writes the events table.
type Store struct {
	pool *Pool
	log  *zap.Logger
}

// NewStore wraps an existing pool.
func NewStore(pool *Pool, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{pool: pool, log: log}
}

// Open connects to the database, applies migrations and returns a
// ready store.
func Open(cfg *config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewStore(pool, log), nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Notify implements notify.Notifier by appending to the journal.
func (s *Store) Notify(ctx context.Context, event notify.Event) error {
	return s.Append(ctx, event)
}

// Append journals one detection event. The snapshot is stored as
// JPEG; the embedding only when it matches the table's vector width.
func (s *Store) Append(ctx context.Context, event notify.Event) error {
	var snapshot []byte
	if event.Snapshot != nil {
		data, err := imaging.EncodeJPEG(event.Snapshot)
		if err != nil {
			s.log.Warn("could not encode snapshot, journaling without it", zap.Error(err))
		} else {
			snapshot = data
		}
	}

	var embedding any
	if len(event.Embedding) == EmbeddingDim {
		embedding = pgvector.NewVector(event.Embedding)
	}

	id := event.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := event.At
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	labels := event.Labels
	if labels == nil {
		labels = []string{}
	}

	query := `
		INSERT INTO events (id, name, position, company, confidence, labels, snapshot, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.pool.db.ExecContext(ctx, query,
		id, event.Name, event.Position, event.Company,
		event.Confidence, pq.Array(labels), snapshot, embedding, createdAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	s.log.Debug("event journaled", zap.String("name", event.Name), zap.String("id", id.String()))
	return nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, name, position, company, confidence, labels, created_at
		FROM events
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.pool.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.Name, &e.Position, &e.Company,
			&e.Confidence, pq.Array(&e.Labels), &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Similar ranks journaled events by distance to the probe embedding,
// closest first. Events journaled without an embedding never match.
func (s *Store) Similar(ctx context.Context, embedding []float32, limit int) ([]StoredEvent, []float64, error) {
	if len(embedding) != EmbeddingDim {
		return nil, nil, fmt.Errorf("probe embedding has %d dimensions, the journal stores %d", len(embedding), EmbeddingDim)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, name, position, company, confidence, labels, created_at,
		       embedding <-> $1::vector AS distance
		FROM events
		WHERE embedding IS NOT NULL
		ORDER BY distance
		LIMIT $2
	`
	rows, err := s.pool.db.QueryContext(ctx, query, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	var distances []float64
	for rows.Next() {
		var e StoredEvent
		var dist float64
		if err := rows.Scan(&e.ID, &e.Name, &e.Position, &e.Company,
			&e.Confidence, pq.Array(&e.Labels), &e.CreatedAt, &dist); err != nil {
			return nil, nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
		distances = append(distances, dist)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, distances, nil
}
