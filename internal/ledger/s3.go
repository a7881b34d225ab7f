package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const s3DocumentName = "announced.json"

// s3Document is the JSON layout of the ledger object.
type s3Document struct {
	Announced []Record `json:"announced"`
}

// S3Store keeps the ledger as a single JSON document in a bucket. The
// document is loaded once; membership is then answered from memory and the
// whole document is rewritten on every new mark.
type S3Store struct {
	client ObjectClient
	bucket string
	key    string
	logger logger.Logger

	mu      sync.RWMutex
	records map[int64]time.Time
}

// NewS3StoreFromConfig builds an AWS client from cfg and opens the store.
func NewS3StoreFromConfig(ctx context.Context, cfg Config, log logger.Logger) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("bucket is required for the s3 ledger")
	}
	client, err := NewAWSObjectClient(ctx, cfg.S3Region, cfg.S3Profile)
	if err != nil {
		return nil, err
	}
	return NewS3Store(ctx, client, cfg.S3Bucket, cfg.S3Prefix, log)
}

// NewS3Store loads bucket/prefix/announced.json through client. A missing
// document is an empty ledger.
func NewS3Store(ctx context.Context, client ObjectClient, bucket, prefix string, log logger.Logger) (*S3Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &S3Store{
		client:  client,
		bucket:  bucket,
		key:     path.Join(prefix, s3DocumentName),
		logger:  log,
		records: make(map[int64]time.Time),
	}

	data, err := client.GetObject(ctx, bucket, s.key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		log.Info("No ledger document yet, starting empty", logger.StringField("key", s.key))
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("load ledger document: %w", err)
	}

	var doc s3Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger document %s: %w", s.key, err)
	}
	for _, r := range doc.Announced {
		s.records[r.ChallengeID] = r.AnnouncedAt
	}
	log.Debug("Loaded ledger document", logger.IntField("records", len(s.records)))
	return s, nil
}

func (s *S3Store) IsAnnounced(_ context.Context, challengeID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[challengeID]
	return ok, nil
}

func (s *S3Store) MarkAnnounced(ctx context.Context, challengeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[challengeID]; ok {
		return nil
	}

	s.records[challengeID] = time.Now().UTC().Truncate(time.Second)
	data, err := json.Marshal(s3Document{Announced: s.sortedLocked()})
	if err == nil {
		err = s.client.PutObject(ctx, s.bucket, s.key, data)
	}
	if err != nil {
		// Keep memory consistent with what is durable.
		delete(s.records, challengeID)
		return fmt.Errorf("marking challenge %d: %w", challengeID, err)
	}
	return nil
}

func (s *S3Store) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

func (s *S3Store) sortedLocked() []Record {
	records := make([]Record, 0, len(s.records))
	for id, at := range s.records {
		records = append(records, Record{ChallengeID: id, AnnouncedAt: at})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ChallengeID < records[j].ChallengeID })
	return records
}

func (s *S3Store) Ping(ctx context.Context) error {
	return s.client.HeadBucket(ctx, s.bucket)
}

func (s *S3Store) Close() error {
	return nil
}
