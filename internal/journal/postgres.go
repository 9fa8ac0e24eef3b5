package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore appends journal entries to the strategy_journal table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore opens a pool for databaseURL and verifies it with a ping.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema creates the journal table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS strategy_journal (
			id          BIGSERIAL PRIMARY KEY,
			strategy_id TEXT        NOT NULL,
			kind        TEXT        NOT NULL,
			data        JSONB,
			existed     BOOLEAN     NOT NULL DEFAULT FALSE,
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS strategy_journal_strategy_id_idx
			ON strategy_journal (strategy_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// BatchInsert writes all entries in one transaction.
func (s *PostgresStore) BatchInsert(ctx context.Context, batch []Entry) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, e := range batch {
		b.Queue(`
			INSERT INTO strategy_journal (strategy_id, kind, data, existed, recorded_at)
			VALUES ($1, $2, $3, $4, $5)`,
			e.StrategyID, e.Kind, e.Data, e.Existed, e.At,
		)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("failed to insert journal entries: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns the most recent entries for a strategy, newest first.
func (s *PostgresStore) History(ctx context.Context, strategyID string, limit int) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT strategy_id, kind, data, existed, recorded_at
		FROM strategy_journal
		WHERE strategy_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT $2`,
		strategyID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.StrategyID, &e.Kind, &e.Data, &e.Existed, &e.At)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan journal: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
