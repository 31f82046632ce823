package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the two records as JSONB rows keyed by record name.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmt := `CREATE TABLE IF NOT EXISTS mindgate_state (
		key TEXT PRIMARY KEY,
		value JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ActiveSession(ctx context.Context) (*Session, error) {
	raw, err := s.get(ctx, KeyActiveSession)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyActiveSession, err)
	}
	return &sess, nil
}

func (s *PostgresStore) SaveActiveSession(ctx context.Context, sess *Session) error {
	return s.set(ctx, KeyActiveSession, sess)
}

func (s *PostgresStore) ClearActiveSession(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM mindgate_state WHERE key=$1`, KeyActiveSession)
	if err != nil {
		return fmt.Errorf("clear %s: %w", KeyActiveSession, err)
	}
	return nil
}

func (s *PostgresStore) PendingNavigations(ctx context.Context) (map[int]PendingNavigation, error) {
	raw, err := s.get(ctx, KeyPendingNavigations)
	if err != nil {
		return nil, err
	}
	pending := make(map[int]PendingNavigation)
	if raw == nil {
		return pending, nil
	}
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyPendingNavigations, err)
	}
	return pending, nil
}

func (s *PostgresStore) SavePendingNavigations(ctx context.Context, pending map[int]PendingNavigation) error {
	if pending == nil {
		pending = make(map[int]PendingNavigation)
	}
	return s.set(ctx, KeyPendingNavigations, pending)
}

func (s *PostgresStore) EnsureShape(ctx context.Context) error {
	raw, err := s.get(ctx, KeyPendingNavigations)
	if err != nil {
		return err
	}
	if raw != nil {
		return nil
	}
	return s.SavePendingNavigations(ctx, nil)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM mindgate_state WHERE key=$1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, nil
}

func (s *PostgresStore) set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO mindgate_state (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, raw,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
