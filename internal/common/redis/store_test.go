package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elidickinson/shot-power-scraper/internal/common/configtypes"
)

func setupStore(t *testing.T, artifactTTL time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, configtypes.CompressionSnappy, time.Hour, artifactTTL), mr
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis config is required")

	_, err = NewClient(&configtypes.RedisConfig{Addr: "127.0.0.1:1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestStore_HAR(t *testing.T) {
	store, mr := setupStore(t, 0)
	ctx := context.Background()
	har := []byte(`{"log":{"version":"1.2","entries":[` + strings.Repeat(`{"time":1},`, 200) + `{}]}}`)

	require.NoError(t, store.SaveHAR(ctx, "abc12-example", har))
	assert.Equal(t, time.Hour, mr.TTL("har:abc12-example"))

	raw, err := mr.Get("har:abc12-example")
	require.NoError(t, err)
	assert.Less(t, len(raw), len(har))

	got, err := store.LoadHAR(ctx, "abc12-example")
	require.NoError(t, err)
	assert.Equal(t, har, got)

	require.NoError(t, store.DeleteHAR(ctx, "abc12-example"))
	_, err = store.LoadHAR(ctx, "abc12-example")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_HARExpires(t *testing.T) {
	store, mr := setupStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.SaveHAR(ctx, "short", []byte(`{}`)))
	mr.FastForward(2 * time.Hour)

	_, err := store.LoadHAR(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Artifact(t *testing.T) {
	store, mr := setupStore(t, 10*time.Minute)
	ctx := context.Background()
	assert.True(t, store.CacheEnabled())

	in := &StoredArtifact{
		ContentType: "image/png",
		Status:      200,
		FinalURL:    "https://example.com/",
		CapturedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:        []byte{0x89, 'P', 'N', 'G'},
	}
	require.NoError(t, store.SaveArtifact(ctx, "artifact:png:1", in))
	assert.Equal(t, 10*time.Minute, mr.TTL("artifact:png:1"))

	out, err := store.LoadArtifact(ctx, "artifact:png:1")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = store.LoadArtifact(ctx, "artifact:png:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_CorruptArtifactDropped(t *testing.T) {
	store, mr := setupStore(t, time.Minute)
	require.NoError(t, mr.Set("artifact:png:bad", "\x07garbage"))

	_, err := store.LoadArtifact(context.Background(), "artifact:png:bad")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("artifact:png:bad"))
}

func TestStore_CacheDisabled(t *testing.T) {
	store, mr := setupStore(t, 0)
	ctx := context.Background()
	assert.False(t, store.CacheEnabled())

	require.NoError(t, store.SaveArtifact(ctx, "artifact:png:1", &StoredArtifact{Data: []byte("x")}))
	assert.False(t, mr.Exists("artifact:png:1"))

	_, err := store.LoadArtifact(ctx, "artifact:png:1")
	assert.ErrorIs(t, err, ErrNotFound)

	var nilStore *Store
	assert.False(t, nilStore.CacheEnabled())
}
