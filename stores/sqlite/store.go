package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"inkboard/core"
	"time"

	"github.com/sirupsen/logrus"
)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS drawings (
	canvas_id TEXT NOT NULL,
	layer_id TEXT NOT NULL,
	data BLOB NOT NULL,
	path_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (canvas_id, layer_id)
);`

// NewStore opens the SQLite database and creates the drawings table.
func NewStore(dataSourceName string) (core.DrawingStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create drawings table: %w", err)
	}
	return &sqliteStore{db}, nil
}

func (s *sqliteStore) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID})
	log.Debug("Retrieving latest drawing")

	d := core.Drawing{CanvasID: canvasID, LayerID: layerID}
	var data []byte
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		"SELECT data, path_count, created_at, updated_at FROM drawings WHERE canvas_id = ? AND layer_id = ? ORDER BY updated_at DESC LIMIT 1",
		canvasID, layerID).Scan(&data, &d.PathCount, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("Drawing not found")
			return nil, core.ErrNotFound
		}
		log.WithError(err).Error("Failed to retrieve drawing")
		return nil, err
	}
	d.Data = data
	d.CreatedAt = time.UnixMilli(createdAt)
	d.UpdatedAt = time.UnixMilli(updatedAt)

	log.Debug("Drawing retrieved successfully")
	return &d, nil
}

func (s *sqliteStore) Upsert(ctx context.Context, drawing *core.Drawing) error {
	now := time.Now()
	drawing.PathCount = core.CountPaths(drawing.Data)
	log := logrus.WithFields(logrus.Fields{
		"canvas_id":   drawing.CanvasID,
		"layer_id":    drawing.LayerID,
		"data_length": len(drawing.Data),
	})

	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO drawings (canvas_id, layer_id, data, path_count, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(canvas_id, layer_id) DO UPDATE SET data = excluded.data, path_count = excluded.path_count, updated_at = excluded.updated_at
		RETURNING created_at`,
		drawing.CanvasID, drawing.LayerID, []byte(drawing.Data), drawing.PathCount, now.UnixMilli(), now.UnixMilli()).Scan(&createdAt)
	if err != nil {
		log.WithError(err).Error("Failed to save drawing")
		return err
	}
	drawing.CreatedAt = time.UnixMilli(createdAt)
	drawing.UpdatedAt = time.UnixMilli(now.UnixMilli())

	log.Info("Drawing saved successfully")
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, canvasID, layerID string) error {
	log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID})

	result, err := s.db.ExecContext(ctx, "DELETE FROM drawings WHERE canvas_id = ? AND layer_id = ?", canvasID, layerID)
	if err != nil {
		log.WithError(err).Error("Failed to delete drawing")
		return err
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		log.Debug("No drawing to delete")
		return nil
	}

	log.Info("Drawing deleted successfully")
	return nil
}

func (s *sqliteStore) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	log := logrus.WithField("canvas_id", canvasID)

	rows, err := s.db.QueryContext(ctx,
		"SELECT layer_id, path_count, created_at, updated_at FROM drawings WHERE canvas_id = ? ORDER BY layer_id",
		canvasID)
	if err != nil {
		log.WithError(err).Error("Failed to list drawings")
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.WithError(cerr).Warn("Failed to close drawing rows")
		}
	}()

	drawings := make([]*core.Drawing, 0)
	for rows.Next() {
		d := core.Drawing{CanvasID: canvasID}
		var createdAt, updatedAt int64
		if err := rows.Scan(&d.LayerID, &d.PathCount, &createdAt, &updatedAt); err != nil {
			log.WithError(err).Error("Failed to scan drawing")
			continue
		}
		d.CreatedAt = time.UnixMilli(createdAt)
		d.UpdatedAt = time.UnixMilli(updatedAt)
		drawings = append(drawings, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drawings, nil
}

// Close releases the database handle.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
