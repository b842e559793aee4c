package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no drawing exists for a (canvas, layer) pair.
var ErrNotFound = errors.New("drawing not found")

type (
	// Drawing is the persisted freehand layer of one canvas. Data holds the
	// serialized path array exactly as the drawing engine produced it.
	Drawing struct {
		CanvasID  string          `json:"canvasId"`
		LayerID   string          `json:"layerId"`
		Data      json.RawMessage `json:"data,omitempty"` // Not included in list views.
		PathCount int             `json:"pathCount"`
		CreatedAt time.Time       `json:"createdAt"`
		UpdatedAt time.Time       `json:"updatedAt"`
	}

	// DrawingStore defines the remote persistence layer for drawings.
	// Records are keyed by (canvasID, layerID); every save replaces the record.
	DrawingStore interface {
		// Latest returns the most recently updated drawing for the pair, or ErrNotFound.
		Latest(ctx context.Context, canvasID, layerID string) (*Drawing, error)

		// Upsert creates or replaces the drawing for its (CanvasID, LayerID).
		Upsert(ctx context.Context, drawing *Drawing) error

		// Delete removes the drawing. Deleting a missing drawing is not an error.
		Delete(ctx context.Context, canvasID, layerID string) error

		// List returns metadata for every layer drawing of a canvas, without Data.
		List(ctx context.Context, canvasID string) ([]*Drawing, error)
	}
)

// CountPaths reports how many top-level elements a serialized path array holds.
// It returns 0 for anything that is not a JSON array.
func CountPaths(data []byte) int {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return 0
	}
	return len(items)
}

// ValidKey reports whether an identifier is safe to use as a key segment.
func ValidKey(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	for _, r := range id {
		switch r {
		case '/', '\\', 0:
			return false
		}
	}
	return true
}
