// Package repository persists registration form sessions. Sessions are
// stored as JSON documents so every backend hands out independent copies.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-form/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gocache "github.com/patrickmn/go-cache"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating a session whose id is taken.
var ErrAlreadyExists = errors.New("session already exists")

// MemorySessionRepository keeps sessions in process memory and drops them
// after the configured TTL of inactivity.
type MemorySessionRepository struct {
	cache *gocache.Cache
	ttl   time.Duration
}

// NewMemorySessionRepository constructs a MemorySessionRepository.
func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		cache: gocache.New(ttl, ttl/2+time.Minute),
		ttl:   ttl,
	}
}

// Create stores a new session.
func (r *MemorySessionRepository) Create(ctx context.Context, s *model.FormSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.cache.Add(s.ID, raw, r.ttl); err != nil {
		return ErrAlreadyExists
	}
	return nil
}

// Get returns a copy of the session or ErrNotFound.
func (r *MemorySessionRepository) Get(ctx context.Context, id string) (*model.FormSession, error) {
	v, found := r.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("session %s: unexpected cache value %T", id, v)
	}
	var s model.FormSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Save replaces an existing session and refreshes its TTL.
func (r *MemorySessionRepository) Save(ctx context.Context, s *model.FormSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.cache.Replace(s.ID, raw, r.ttl); err != nil {
		return ErrNotFound
	}
	return nil
}

// PostgresSessionRepository stores sessions in PostgreSQL as JSONB.
type PostgresSessionRepository struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

// NewPostgresSessionRepository constructs a PostgresSessionRepository.
func NewPostgresSessionRepository(db *pgxpool.Pool, ttl time.Duration) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db, ttl: ttl}
}

// querier is satisfied by both the pool and a single pooled connection.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type lockedConnKey struct{}

// conn returns the connection holding the session lock when ctx carries
// one, so reads and writes under Lock need no second connection.
func (r *PostgresSessionRepository) conn(ctx context.Context) querier {
	if c, ok := ctx.Value(lockedConnKey{}).(*pgxpool.Conn); ok {
		return c
	}
	return r.db
}

// Lock takes an advisory lock on the session id, serialising operations on
// the session across every process sharing the database. The returned
// context routes Get and Save through the locking connection; unlock
// releases the lock and the connection.
func (r *PostgresSessionRepository) Lock(ctx context.Context, id string) (context.Context, func(), error) {
	c, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := c.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, id); err != nil {
		c.Release()
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}

	unlock := func() {
		if _, err := c.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, id); err != nil {
			// Closing drops the lock; the pool discards the closed connection.
			_ = c.Conn().Close(context.Background())
		}
		c.Release()
	}
	return context.WithValue(ctx, lockedConnKey{}, c), unlock, nil
}

// Create inserts a new session.
func (r *PostgresSessionRepository) Create(ctx context.Context, s *model.FormSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO form_sessions (id, event_id, status, data, created_at, updated_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID, s.EventID, string(s.Status), raw, s.CreatedAt, s.UpdatedAt, s.UpdatedAt.Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get returns an unexpired session or ErrNotFound.
func (r *PostgresSessionRepository) Get(ctx context.Context, id string) (*model.FormSession, error) {
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT data FROM form_sessions WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var s model.FormSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Save updates an unexpired session and pushes its expiry forward.
func (r *PostgresSessionRepository) Save(ctx context.Context, s *model.FormSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE form_sessions
		 SET status = $2, data = $3, updated_at = $4, expires_at = $5
		 WHERE id = $1 AND expires_at > now()`,
		s.ID, string(s.Status), raw, s.UpdatedAt, s.UpdatedAt.Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and returns how many
// were deleted.
func (r *PostgresSessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM form_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
