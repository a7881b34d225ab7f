package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memObjectClient is an in-memory ObjectClient.
type memObjectClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	puts    int
}

func newMemObjectClient() *memObjectClient {
	return &memObjectClient{objects: map[string][]byte{}}
}

func (m *memObjectClient) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *memObjectClient) PutObject(_ context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.objects[bucket+"/"+key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjectClient) HeadBucket(context.Context, string) error {
	return nil
}

// backendFactory opens a store; calling it again reopens the same storage.
type backendFactory func(t *testing.T) Store

func backends(t *testing.T) map[string]func() backendFactory {
	return map[string]func() backendFactory{
		"sqlite": func() backendFactory {
			path := filepath.Join(t.TempDir(), "state.db")
			return func(t *testing.T) Store {
				s, err := NewSQLiteStore(context.Background(), path, nil)
				require.NoError(t, err)
				return s
			}
		},
		"redis": func() backendFactory {
			mr := miniredis.RunT(t)
			return func(t *testing.T) Store {
				s, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), "", nil)
				require.NoError(t, err)
				return s
			}
		},
		"s3": func() backendFactory {
			client := newMemObjectClient()
			return func(t *testing.T) Store {
				s, err := NewS3Store(context.Background(), client, "bucket", "ctf", nil)
				require.NoError(t, err)
				return s
			}
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			open := mk()
			store := open(t)
			defer store.Close()

			require.NoError(t, store.Ping(ctx))

			ok, err := store.IsAnnounced(ctx, 42)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.MarkAnnounced(ctx, 42))
			require.NoError(t, store.MarkAnnounced(ctx, 42), "marking twice must be idempotent")
			require.NoError(t, store.MarkAnnounced(ctx, 7))

			ok, err = store.IsAnnounced(ctx, 42)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = store.IsAnnounced(ctx, 43)
			require.NoError(t, err)
			assert.False(t, ok)

			records, err := store.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, int64(7), records[0].ChallengeID)
			assert.Equal(t, int64(42), records[1].ChallengeID)
			assert.False(t, records[1].AnnouncedAt.IsZero())
		})
	}
}

func TestStoreDurableAcrossReopen(t *testing.T) {
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			open := mk()

			first := open(t)
			require.NoError(t, first.MarkAnnounced(ctx, 42))
			require.NoError(t, first.Close())

			second := open(t)
			defer second.Close()

			ok, err := second.IsAnnounced(ctx, 42)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSQLiteDefaultPathAndMigrationRerun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")

	for i := 0; i < 2; i++ {
		s, err := NewSQLiteStore(context.Background(), path, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestRedisStoreCustomKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreFromClient(client, "ctf:blood", nil)
	defer store.Close()

	require.NoError(t, store.MarkAnnounced(context.Background(), 5))

	ok, err := mr.SIsMember("ctf:blood", "5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, mr.HGet("ctf:blood:at", "5"))
}

func TestS3StoreWriteFailureLeavesUnmarked(t *testing.T) {
	ctx := context.Background()
	client := newMemObjectClient()
	store, err := NewS3Store(ctx, client, "bucket", "", nil)
	require.NoError(t, err)

	client.putErr = errors.New("access denied")
	require.Error(t, store.MarkAnnounced(ctx, 9))

	ok, err := store.IsAnnounced(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok)

	client.putErr = nil
	require.NoError(t, store.MarkAnnounced(ctx, 9))
	require.NoError(t, store.MarkAnnounced(ctx, 9))
	assert.Equal(t, 1, client.puts, "re-marking must not rewrite the document")
}

func TestS3StoreCorruptDocument(t *testing.T) {
	client := newMemObjectClient()
	client.objects["bucket/announced.json"] = []byte("{not json")

	_, err := NewS3Store(context.Background(), client, "bucket", "", nil)
	assert.Error(t, err)
}

func TestNewStoreUnknownBackend(t *testing.T) {
	_, err := NewStore(context.Background(), Config{Backend: "mongo"}, nil)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestNewStoreSQLite(t *testing.T) {
	cfg := Config{Path: filepath.Join(t.TempDir(), "state.db")}
	store, err := NewStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
}
