package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/common/compress"
)

const (
	harKeyPrefix  = "har:"
	defaultHARTTL = 24 * time.Hour
)

// ErrNotFound is returned for expired or unknown ids
var ErrNotFound = errors.New("not found")

// StoredArtifact is a cached capture result
type StoredArtifact struct {
	ContentType string    `json:"content_type"`
	Filename    string    `json:"filename,omitempty"`
	Status      int       `json:"status"`
	FinalURL    string    `json:"final_url,omitempty"`
	Title       string    `json:"title,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
	Data        []byte    `json:"data"`
}

// Store keeps HAR documents and cached artifacts in Redis, compressed
type Store struct {
	client      *Client
	compression string
	harTTL      time.Duration
	artifactTTL time.Duration
}

// NewStore wraps client. A zero harTTL uses one day; a zero artifactTTL
// disables the artifact cache.
func NewStore(client *Client, compression string, harTTL, artifactTTL time.Duration) *Store {
	if harTTL <= 0 {
		harTTL = defaultHARTTL
	}
	return &Store{
		client:      client,
		compression: compression,
		harTTL:      harTTL,
		artifactTTL: artifactTTL,
	}
}

// CacheEnabled reports whether artifacts are cached
func (s *Store) CacheEnabled() bool {
	return s != nil && s.artifactTTL > 0
}

// SaveHAR stores an encoded HAR under id
func (s *Store) SaveHAR(ctx context.Context, id string, data []byte) error {
	packed, err := compress.Compress(data, s.compression)
	if err != nil {
		return err
	}
	return s.client.set(ctx, harKey(id), packed, s.harTTL)
}

// LoadHAR returns the HAR stored under id
func (s *Store) LoadHAR(ctx context.Context, id string) ([]byte, error) {
	packed, err := s.client.getBytes(ctx, harKey(id))
	if err != nil {
		return nil, err
	}
	if packed == nil {
		return nil, ErrNotFound
	}
	return compress.Decompress(packed)
}

// DeleteHAR removes a stored HAR
func (s *Store) DeleteHAR(ctx context.Context, id string) error {
	return s.client.del(ctx, harKey(id))
}

// SaveArtifact caches a capture result under key
func (s *Store) SaveArtifact(ctx context.Context, key string, artifact *StoredArtifact) error {
	if !s.CacheEnabled() {
		return nil
	}
	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	packed, err := compress.Compress(data, s.compression)
	if err != nil {
		return err
	}
	return s.client.set(ctx, key, packed, s.artifactTTL)
}

// LoadArtifact returns a cached capture result. A corrupt entry is
// deleted and reported as missing.
func (s *Store) LoadArtifact(ctx context.Context, key string) (*StoredArtifact, error) {
	if !s.CacheEnabled() {
		return nil, ErrNotFound
	}
	packed, err := s.client.getBytes(ctx, key)
	if err != nil {
		return nil, err
	}
	if packed == nil {
		return nil, ErrNotFound
	}

	var artifact StoredArtifact
	data, err := compress.Decompress(packed)
	if err == nil {
		err = json.Unmarshal(data, &artifact)
	}
	if err != nil {
		s.client.logger.Warn("Dropping corrupt cached artifact", zap.String("key", key), zap.Error(err))
		_ = s.client.del(ctx, key)
		return nil, ErrNotFound
	}
	return &artifact, nil
}

func harKey(id string) string {
	return harKeyPrefix + id
}
