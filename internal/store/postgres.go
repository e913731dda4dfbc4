package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresKV keeps one JSONB payload per (store, namespace) row. It
// satisfies the same contract as FileKV so deployments can point the
// service at a database instead of a data directory without touching
// the core.
type PostgresKV struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresKV, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv_mappings (
			store      TEXT NOT NULL,
			namespace  TEXT NOT NULL,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (store, namespace)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure kv_mappings: %w", err)
	}

	return &PostgresKV{db: db}, nil
}

func (s *PostgresKV) Load(ctx context.Context, store, namespace string) (map[string]json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM kv_mappings WHERE store = $1 AND namespace = $2`,
		store, namespace,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", namespace, store, err)
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		// Same leniency as the file backend: unreadable payload means
		// an empty store.
		return map[string]json.RawMessage{}, nil
	}
	if data == nil {
		data = map[string]json.RawMessage{}
	}
	return data, nil
}

func (s *PostgresKV) Save(ctx context.Context, store, namespace string, data map[string]json.RawMessage) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", namespace, store, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_mappings (store, namespace, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (store, namespace)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		store, namespace, raw,
	)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", namespace, store, err)
	}
	return nil
}

func (s *PostgresKV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresKV) Close() error {
	return s.db.Close()
}
