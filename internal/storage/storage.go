// /internal/storage/storage.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keshon/nurture/internal/persona"
)

// ErrNotFound means no snapshot exists yet for the key. Not corruption.
var ErrNotFound = errors.New("storage: snapshot not found")

// Backend stores raw snapshot JSON by key. Implementations must be safe for
// concurrent use.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Layer persists relationship snapshots through a backend. Saves are
// serialized and throttled so a burst of save requests coalesces into a
// sustainable write rate; a failed write is retried once and then skipped
// with a warning, never escalated.
type Layer struct {
	backend Backend
	key     string

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewLayer wraps a backend for one relationship ID.
func NewLayer(backend Backend, relationshipID string) *Layer {
	return &Layer{
		backend: backend,
		key:     "relationship:" + relationshipID,
		// At most one write per 2s, bursts of 3 absorbed.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 3),
	}
}

// Save writes the snapshot. Progress is never blocked on storage health: an
// I/O failure gets one retry, then the save is skipped and logged.
func (l *Layer) Save(ctx context.Context, snap *persona.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("storage: nil snapshot")
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("save cancelled: %w", err)
	}

	if err := l.backend.Put(ctx, l.key, data); err != nil {
		log.Printf("[STORE] save failed key=%s err=%v retrying", l.key, err)
		if err = l.backend.Put(ctx, l.key, data); err != nil {
			log.Printf("[STORE] save skipped key=%s err=%v", l.key, err)
			return fmt.Errorf("save skipped after retry: %w", err)
		}
	}
	log.Printf("[STORE] saved key=%s bytes=%d", l.key, len(data))
	return nil
}

// Load reads and validates the stored snapshot. On any failure it returns
// the safe default state together with the error, so the caller can log and
// keep going; a missing snapshot is a clean first run, default and nil.
func (l *Layer) Load(ctx context.Context) (*persona.Snapshot, error) {
	data, err := l.backend.Get(ctx, l.key)
	if errors.Is(err, ErrNotFound) {
		log.Printf("[STORE] no snapshot key=%s starting fresh", l.key)
		return persona.DefaultSnapshot(time.Now()), nil
	}
	if err != nil {
		return persona.DefaultSnapshot(time.Now()), fmt.Errorf("read snapshot: %w", err)
	}
	snap, err := persona.DecodeSnapshot(data)
	if err != nil {
		return persona.DefaultSnapshot(time.Now()), fmt.Errorf("decode snapshot: %w", err)
	}
	log.Printf("[STORE] loaded key=%s saved_at=%s", l.key, snap.SavedAt.Format(time.RFC3339))
	return snap, nil
}

// Close releases the backend.
func (l *Layer) Close() error {
	return l.backend.Close()
}
