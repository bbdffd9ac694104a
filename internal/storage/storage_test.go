package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/nurture/internal/persona"
)

func fileLayer(t *testing.T) *Layer {
	t.Helper()
	backend, err := NewFileBackend(context.Background(), filepath.Join(t.TempDir(), "relationship.json"))
	require.NoError(t, err)
	l := NewLayer(backend, "test")
	t.Cleanup(func() { l.Close() })
	return l
}

func redisLayer(t *testing.T) *Layer {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewLayer(NewRedisBackend(client, 0), "test")
	t.Cleanup(func() { l.Close() })
	return l
}

func populatedSnapshot(t *testing.T) *persona.Snapshot {
	t.Helper()
	m := persona.NewPersonalityStateManager()
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := m.ProcessAction(&persona.PlayerAction{
			Type:      persona.ActionControlTaking,
			Context:   persona.ContextPrivate,
			Valence:   -0.6,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}
	return m.Snapshot(base.Add(4 * time.Hour))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	backends := map[string]func(*testing.T) *Layer{
		"file":  fileLayer,
		"redis": redisLayer,
	}
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			l := mk(t)
			ctx := context.Background()
			snap := populatedSnapshot(t)

			require.NoError(t, l.Save(ctx, snap))

			loaded, err := l.Load(ctx)
			require.NoError(t, err)
			assert.InDelta(t, snap.TrustScore, loaded.TrustScore, 0.01)
			assert.InDelta(t, snap.ResentmentScore, loaded.ResentmentScore, 0.01)
			assert.Len(t, loaded.ActionHistory, len(snap.ActionHistory))
			assert.Len(t, loaded.Memories, len(snap.Memories))
		})
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	l := fileLayer(t)
	snap, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60.0, snap.TrustScore)
	assert.Equal(t, 10.0, snap.ResentmentScore)
	assert.Equal(t, 50.0, snap.EmotionalSafety)
	assert.Equal(t, 70.0, snap.ParentingUnity)
}

func TestLoadCorruptReturnsDefaultsAndError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, 0)
	l := NewLayer(backend, "test")
	t.Cleanup(func() { l.Close() })

	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, "relationship:test", []byte(`{"version":"1.0"}`)))

	snap, err := l.Load(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, persona.ErrCorruptSnapshot)
	// Caller still gets a usable state.
	assert.Equal(t, 60.0, snap.TrustScore)
	assert.Equal(t, 70.0, snap.ParentingUnity)
}

func TestSaveRefusesInvalidSnapshot(t *testing.T) {
	l := fileLayer(t)
	snap := populatedSnapshot(t)
	snap.TrustScore = 200
	assert.Error(t, l.Save(context.Background(), snap))
}

func TestFileBackendRawRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(ctx, filepath.Join(t.TempDir(), "relationship.json"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	_, err = backend.Get(ctx, "relationship:absent")
	assert.ErrorIs(t, err, ErrNotFound)

	doc := []byte(`{"version":"1.0","trust_score":60}`)
	require.NoError(t, backend.Put(ctx, "relationship:test", doc))

	got, err := backend.Get(ctx, "relationship:test")
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))
}

func TestRedisBackendMissingKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackend(client, 0)
	t.Cleanup(func() { backend.Close() })

	_, err := backend.Get(context.Background(), "relationship:absent")
	assert.ErrorIs(t, err, ErrNotFound)
}
