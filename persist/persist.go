// Package persist moves drawings between the in-memory path store, the remote
// document store and the local fallback cache.
package persist

import (
	"context"
	"errors"
	"fmt"

	"inkboard/core"
)

type (
	// Remote is the remote document store, keyed by (canvas, layer).
	Remote interface {
		Upsert(ctx context.Context, canvasID, layerID string, data []byte) error
		Delete(ctx context.Context, canvasID, layerID string) error
		// QueryLatest returns the most recently updated drawing data, or core.ErrNotFound.
		QueryLatest(ctx context.Context, canvasID, layerID string) ([]byte, error)
	}

	// Cache is the durable local key-value store used as a fallback.
	Cache interface {
		Set(key string, value []byte) error
		Get(key string) (value []byte, ok bool, err error)
		Remove(key string) error
	}

	// Key identifies one layer drawing of one canvas.
	Key struct {
		CanvasID string
		LayerID  string
	}
)

// CacheKey is the local cache key of the drawing. It is derived only from the
// (canvas, layer) pair, so entries of different drawings never collide.
func (k Key) CacheKey() string {
	return fmt.Sprintf("drawing:%d:%s:%s", len(k.CanvasID), k.CanvasID, k.LayerID)
}

func (k Key) String() string {
	return k.CanvasID + "/" + k.LayerID
}

// Validate checks both ids are usable store keys.
func (k Key) Validate() error {
	if !core.ValidKey(k.CanvasID) {
		return fmt.Errorf("invalid canvas id %q", k.CanvasID)
	}
	if !core.ValidKey(k.LayerID) {
		return fmt.Errorf("invalid layer id %q", k.LayerID)
	}
	return nil
}

// StoreRemote adapts a core.DrawingStore to the Remote interface.
type StoreRemote struct {
	Store core.DrawingStore
}

func (r StoreRemote) Upsert(ctx context.Context, canvasID, layerID string, data []byte) error {
	return r.Store.Upsert(ctx, &core.Drawing{
		CanvasID:  canvasID,
		LayerID:   layerID,
		Data:      append([]byte(nil), data...),
		PathCount: core.CountPaths(data),
	})
}

func (r StoreRemote) Delete(ctx context.Context, canvasID, layerID string) error {
	return r.Store.Delete(ctx, canvasID, layerID)
}

func (r StoreRemote) QueryLatest(ctx context.Context, canvasID, layerID string) ([]byte, error) {
	d, err := r.Store.Latest(ctx, canvasID, layerID)
	if err != nil {
		return nil, err
	}
	if len(d.Data) == 0 {
		return nil, core.ErrNotFound
	}
	return d.Data, nil
}

// SaveWarning reports a remote save that failed after a non-empty document was
// produced. The in-memory document stays valid; BackedUp tells whether the
// local cache holds a copy.
type SaveWarning struct {
	Key      Key
	BackedUp bool
	Err      error
}

func (w *SaveWarning) Error() string {
	if w.BackedUp {
		return fmt.Sprintf("drawing %s not saved remotely, kept in local backup: %v", w.Key, w.Err)
	}
	return fmt.Sprintf("drawing %s not saved remotely and no local backup: %v", w.Key, w.Err)
}

func (w *SaveWarning) Unwrap() error {
	return w.Err
}

// IsSaveWarning reports whether err carries a SaveWarning.
func IsSaveWarning(err error) bool {
	var w *SaveWarning
	return errors.As(err, &w)
}
