package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/storefront/driver"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS cart_snapshots (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`
	readSQL   = `SELECT data FROM cart_snapshots WHERE key = $1`
	upsertSQL = `INSERT INTO cart_snapshots (key, data, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	deleteSQL = `DELETE FROM cart_snapshots WHERE key = $1`
)

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	conn   driver.PostgresPool
	tm     *driver.TransactionManager
	logger *zap.Logger
}

func NewPostgresStore(conn driver.PostgresPool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		conn:   conn,
		tm:     driver.NewTransactionManager(conn, logger),
		logger: logger,
	}
}

// Migrate creates the snapshot table when it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, createTableSQL); err != nil {
		s.logger.Error("Failed to create cart_snapshots table", zap.Error(err))
		return fmt.Errorf("failed to migrate snapshot table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.conn.QueryRow(ctx, readSQL, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.logger.Error("Failed to read snapshot", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return data, nil
}

func (s *PostgresStore) Write(ctx context.Context, key string, data []byte) error {
	err := s.tm.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, upsertSQL, key, data, time.Now().UTC())
		return err
	})
	if err != nil {
		s.logger.Error("Failed to write snapshot", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.Exec(ctx, deleteSQL, key); err != nil {
		s.logger.Error("Failed to delete snapshot", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}
