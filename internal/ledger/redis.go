package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// DefaultRedisKey is the set holding announced challenge IDs.
const DefaultRedisKey = "firstblood:announced"

// RedisStore keeps the ledger in a Redis set. A companion hash
// "<key>:at" maps each ID to its announcement time in unix seconds.
type RedisStore struct {
	client *redis.Client
	key    string
	logger logger.Logger
}

// NewRedisStore connects to redisURL (redis://host:port/db).
func NewRedisStore(ctx context.Context, redisURL, key string, log logger.Logger) (*RedisStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required for the redis ledger")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreFromClient(client, key, log), nil
}

// NewRedisStoreFromClient wraps an existing client. The store owns it.
func NewRedisStoreFromClient(client *redis.Client, key string, log logger.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisStore{client: client, key: key, logger: log}
}

func (s *RedisStore) timesKey() string {
	return s.key + ":at"
}

func (s *RedisStore) IsAnnounced(ctx context.Context, challengeID int64) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key, challengeID).Result()
	if err != nil {
		return false, fmt.Errorf("checking challenge %d: %w", challengeID, err)
	}
	return ok, nil
}

func (s *RedisStore) MarkAnnounced(ctx context.Context, challengeID int64) error {
	id := strconv.FormatInt(challengeID, 10)
	now := time.Now().UTC().Unix()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.key, id)
		pipe.HSetNX(ctx, s.timesKey(), id, now)
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking challenge %d: %w", challengeID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Record, error) {
	members, err := s.client.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("listing announced challenges: %w", err)
	}
	times, err := s.client.HGetAll(ctx, s.timesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing announcement times: %w", err)
	}

	records := make([]Record, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			s.logger.Warn("Skipping non-numeric ledger member", logger.StringField("member", m))
			continue
		}
		rec := Record{ChallengeID: id}
		if ts, err := strconv.ParseInt(times[m], 10, 64); err == nil {
			rec.AnnouncedAt = time.Unix(ts, 0).UTC()
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ChallengeID < records[j].ChallengeID })
	return records, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Key is the set holding announced IDs. Timestamps live in the hash Key()+":at".
func (s *RedisStore) Key() string {
	return s.key
}

// Client exposes the underlying client for health checks.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
