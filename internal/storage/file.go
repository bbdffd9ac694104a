// /internal/storage/file.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/keshon/datastore"
)

// FileBackend keeps snapshots in a single JSON file with atomic writes,
// checksums and rotating backups, courtesy of the datastore library. The
// store autosaves in the background, so Put only has to update the key.
type FileBackend struct {
	ds *datastore.DataStore
}

// NewFileBackend opens (or creates) the store file at path.
func NewFileBackend(ctx context.Context, path string) (*FileBackend, error) {
	ds, err := datastore.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open datastore: %w", err)
	}
	return &FileBackend{ds: ds}, nil
}

// Put stores the raw JSON under key. The document is kept as a RawMessage so
// the datastore's own marshalling writes it through verbatim.
func (f *FileBackend) Put(_ context.Context, key string, data []byte) error {
	if err := f.ds.Set(key, json.RawMessage(data)); err != nil {
		return fmt.Errorf("datastore set %s: %w", key, err)
	}
	return nil
}

// Get returns the stored JSON for key, ErrNotFound when absent.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	var raw json.RawMessage
	ok, err := f.ds.Get(key, &raw)
	if err != nil {
		return nil, fmt.Errorf("datastore get %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

// Close flushes and stops the underlying datastore.
func (f *FileBackend) Close() error {
	return f.ds.Close()
}
