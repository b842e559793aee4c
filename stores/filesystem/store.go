package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"inkboard/core"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const fileExt = ".json"

type fsStore struct {
	basePath string
}

// NewStore creates a filesystem store keeping one JSON file per layer drawing
// under <basePath>/<canvasID>/<layerID>.json.
func NewStore(basePath string) (core.DrawingStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &fsStore{basePath: basePath}, nil
}

func (s *fsStore) canvasPath(canvasID string) (string, error) {
	if !core.ValidKey(canvasID) {
		return "", fmt.Errorf("invalid canvas id %q", canvasID)
	}
	return filepath.Join(s.basePath, canvasID), nil
}

func (s *fsStore) drawingPath(canvasID, layerID string) (string, error) {
	dir, err := s.canvasPath(canvasID)
	if err != nil {
		return "", err
	}
	if !core.ValidKey(layerID) {
		return "", fmt.Errorf("invalid layer id %q", layerID)
	}
	return filepath.Join(dir, layerID+fileExt), nil
}

func (s *fsStore) read(path string) (*core.Drawing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d core.Drawing
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal drawing %s: %w", path, err)
	}
	return &d, nil
}

func (s *fsStore) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	filePath, err := s.drawingPath(canvasID, layerID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID, "path": filePath})

	d, err := s.read(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("Drawing file not found")
			return nil, core.ErrNotFound
		}
		log.WithError(err).Error("Failed to read drawing file")
		return nil, err
	}
	log.Debug("Drawing retrieved successfully")
	return d, nil
}

func (s *fsStore) Upsert(ctx context.Context, drawing *core.Drawing) error {
	filePath, err := s.drawingPath(drawing.CanvasID, drawing.LayerID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{
		"canvas_id":   drawing.CanvasID,
		"layer_id":    drawing.LayerID,
		"path":        filePath,
		"data_length": len(drawing.Data),
	})

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		log.WithError(err).Error("Failed to create canvas directory")
		return err
	}

	now := time.Now()
	drawing.CreatedAt = now
	if existing, err := s.read(filePath); err == nil {
		drawing.CreatedAt = existing.CreatedAt
	}
	drawing.UpdatedAt = now
	drawing.PathCount = core.CountPaths(drawing.Data)

	data, err := json.Marshal(drawing)
	if err != nil {
		log.WithError(err).Error("Failed to marshal drawing for saving")
		return err
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.WithError(err).Error("Failed to write drawing file")
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		os.Remove(tmp)
		log.WithError(err).Error("Failed to replace drawing file")
		return err
	}

	log.Info("Drawing saved successfully")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, canvasID, layerID string) error {
	filePath, err := s.drawingPath(canvasID, layerID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID, "path": filePath})

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Debug("Drawing file not found for deletion, considered successful")
			return nil
		}
		log.WithError(err).Error("Failed to delete drawing file")
		return err
	}

	log.Info("Drawing deleted successfully")
	return nil
}

func (s *fsStore) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	dir, err := s.canvasPath(canvasID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "path": dir})

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Drawing{}, nil
		}
		log.WithError(err).Error("Failed to read canvas directory")
		return nil, err
	}

	drawings := make([]*core.Drawing, 0, len(files))
	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), fileExt) {
			continue
		}
		d, err := s.read(filepath.Join(dir, file.Name()))
		if err != nil {
			log.WithError(err).Warnf("Failed to read drawing file %s, skipping", file.Name())
			continue
		}
		d.Data = nil
		drawings = append(drawings, d)
	}
	sort.Slice(drawings, func(i, j int) bool {
		return drawings[i].LayerID < drawings[j].LayerID
	})

	log.Debugf("Listed %d drawings", len(drawings))
	return drawings, nil
}
