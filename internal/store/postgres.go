package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps preferences in a shared Postgres database, scoped per device so
// several installs can share one server.
type PostgresStore struct {
	db       *sql.DB
	deviceID string
}

func NewPostgresStore(db *sql.DB, deviceID string) *PostgresStore {
	return &PostgresStore{db: db, deviceID: deviceID}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE device_id=$1 AND key=$2`,
		s.deviceID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return []byte(value), nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (device_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (device_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, s.deviceID, key, string(value))
	if err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE device_id=$1 AND key=$2`, s.deviceID, key); err != nil {
		return fmt.Errorf("delete preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM preferences
		WHERE device_id=$1 AND left(key, length($2)) = $2
		ORDER BY key
	`, s.deviceID, prefix)
	if err != nil {
		return nil, fmt.Errorf("list preference keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan preference key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
