package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// PostgresStore keeps the ledger in a PostgreSQL table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewPostgresStore connects to databaseURL and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string, log logger.Logger) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for the postgres ledger")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(stdlib.OpenDBFromPool(pool), BackendPostgres, log); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, logger: log}, nil
}

func (s *PostgresStore) IsAnnounced(ctx context.Context, challengeID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM announced_challenges WHERE challenge_id = $1)", challengeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking challenge %d: %w", challengeID, err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkAnnounced(ctx context.Context, challengeID int64) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO announced_challenges (challenge_id) VALUES ($1) ON CONFLICT (challenge_id) DO NOTHING", challengeID)
	if err != nil {
		return fmt.Errorf("marking challenge %d: %w", challengeID, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT challenge_id, announced_at FROM announced_challenges ORDER BY challenge_id")
	if err != nil {
		return nil, fmt.Errorf("listing announced challenges: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ChallengeID, &r.AnnouncedAt); err != nil {
			return nil, fmt.Errorf("scanning announced challenge: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating announced challenges: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
