package memory

import (
	"bytes"
	"context"
	"inkboard/core"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type drawingKey struct {
	canvasID string
	layerID  string
}

type memStore struct {
	mu       sync.RWMutex
	drawings map[drawingKey]core.Drawing
	now      func() time.Time
}

// NewStore creates an in-memory drawing store.
func NewStore() core.DrawingStore {
	return &memStore{
		drawings: make(map[drawingKey]core.Drawing),
		now:      time.Now,
	}
}

func (s *memStore) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID})

	s.mu.RLock()
	d, ok := s.drawings[drawingKey{canvasID, layerID}]
	s.mu.RUnlock()

	if !ok {
		log.Debug("Drawing not found")
		return nil, core.ErrNotFound
	}
	d.Data = bytes.Clone(d.Data)
	log.Debug("Drawing retrieved successfully")
	return &d, nil
}

func (s *memStore) Upsert(ctx context.Context, drawing *core.Drawing) error {
	key := drawingKey{drawing.CanvasID, drawing.LayerID}
	now := s.now()

	s.mu.Lock()
	stored := *drawing
	stored.Data = bytes.Clone(drawing.Data)
	stored.PathCount = core.CountPaths(drawing.Data)
	stored.CreatedAt = now
	if existing, ok := s.drawings[key]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	stored.UpdatedAt = now
	s.drawings[key] = stored
	s.mu.Unlock()

	drawing.PathCount = stored.PathCount
	drawing.CreatedAt = stored.CreatedAt
	drawing.UpdatedAt = stored.UpdatedAt

	logrus.WithFields(logrus.Fields{
		"canvas_id":   drawing.CanvasID,
		"layer_id":    drawing.LayerID,
		"data_length": len(drawing.Data),
	}).Info("Drawing saved successfully")
	return nil
}

func (s *memStore) Delete(ctx context.Context, canvasID, layerID string) error {
	s.mu.Lock()
	delete(s.drawings, drawingKey{canvasID, layerID})
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID}).Info("Drawing deleted")
	return nil
}

func (s *memStore) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawings := make([]*core.Drawing, 0)
	for key, d := range s.drawings {
		if key.canvasID != canvasID {
			continue
		}
		d.Data = nil
		drawings = append(drawings, &d)
	}
	sort.Slice(drawings, func(i, j int) bool {
		return drawings[i].LayerID < drawings[j].LayerID
	})
	return drawings, nil
}
