package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// DefaultSQLitePath is used when no path is configured.
const DefaultSQLitePath = "state.db"

// SQLiteStore keeps the ledger in a local SQLite file.
type SQLiteStore struct {
	db     *sqlx.DB
	logger logger.Logger
}

// sqliteRow stores announced_at as unix seconds.
type sqliteRow struct {
	ChallengeID int64 `db:"challenge_id"`
	AnnouncedAt int64 `db:"announced_at"`
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema.
func NewSQLiteStore(ctx context.Context, path string, log logger.Logger) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	migrationDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db for migrations: %w", err)
	}
	if err := runMigrations(migrationDB, BackendSQLite, log); err != nil {
		_ = migrationDB.Close()
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// Single writer; serializing connections avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	log.Debug("SQLite ledger ready", logger.StringField("path", path))
	return &SQLiteStore{db: db, logger: log}, nil
}

func (s *SQLiteStore) IsAnnounced(ctx context.Context, challengeID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM announced_challenges WHERE challenge_id = ?", challengeID)
	if err != nil {
		return false, fmt.Errorf("checking challenge %d: %w", challengeID, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) MarkAnnounced(ctx context.Context, challengeID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO announced_challenges (challenge_id, announced_at) VALUES (?, ?)",
		challengeID, time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("marking challenge %d: %w", challengeID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT challenge_id, announced_at FROM announced_challenges ORDER BY challenge_id")
	if err != nil {
		return nil, fmt.Errorf("listing announced challenges: %w", err)
	}
	records := make([]Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, Record{ChallengeID: r.ChallengeID, AnnouncedAt: time.Unix(r.AnnouncedAt, 0).UTC()})
	}
	return records, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
