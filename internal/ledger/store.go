// Package ledger records which challenges have already had their first blood
// announced. Membership is durable and insertion is idempotent, so a
// challenge is announced at most once across restarts.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Backend names accepted by NewStore.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// ErrUnknownBackend is returned by NewStore for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown ledger backend")

// Record is one announced challenge. AnnouncedAt is zero when the backend
// does not keep timestamps.
type Record struct {
	ChallengeID int64     `db:"challenge_id" json:"challenge_id"`
	AnnouncedAt time.Time `db:"announced_at" json:"announced_at"`
}

// Store is the durable set of announced challenge IDs.
type Store interface {
	IsAnnounced(ctx context.Context, challengeID int64) (bool, error)
	// MarkAnnounced is idempotent: marking an ID twice is not an error.
	MarkAnnounced(ctx context.Context, challengeID int64) error
	// List returns every record ordered by challenge ID.
	List(ctx context.Context) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string

	// sqlite
	Path string

	// postgres
	DatabaseURL string

	// redis
	RedisURL string
	RedisKey string

	// s3
	S3Bucket  string
	S3Prefix  string
	S3Region  string
	S3Profile string
}

// NewStore opens the backend named by cfg.Backend (sqlite when empty).
func NewStore(ctx context.Context, cfg Config, log logger.Logger) (Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendSQLite
	}
	log = log.WithFields(logger.StringField("component", "ledger"), logger.StringField("backend", backend))

	var (
		store Store
		err   error
	)
	switch backend {
	case BackendSQLite:
		store, err = NewSQLiteStore(ctx, cfg.Path, log)
	case BackendPostgres:
		store, err = NewPostgresStore(ctx, cfg.DatabaseURL, log)
	case BackendRedis:
		store, err = NewRedisStore(ctx, cfg.RedisURL, cfg.RedisKey, log)
	case BackendS3:
		store, err = NewS3StoreFromConfig(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", backend, err)
	}

	log.Info("Ledger opened")
	return store, nil
}
