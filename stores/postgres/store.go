package postgres

import (
	"context"
	"errors"
	"fmt"
	"inkboard/core"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DrawingRow is one stored layer drawing. Several rows may exist for a
// (canvas, layer) pair; the most recently updated one wins.
type DrawingRow struct {
	UUID      uuid.UUID      `gorm:"type:uuid;primarykey" json:"uuid"`
	CanvasID  string         `gorm:"not null;index:idx_drawing_key" json:"canvas_id"`
	LayerID   string         `gorm:"not null;index:idx_drawing_key" json:"layer_id"`
	Data      datatypes.JSON `json:"data"`
	PathCount int            `gorm:"not null;default:0" json:"path_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`
}

func (DrawingRow) TableName() string {
	return "drawings"
}

func (r *DrawingRow) toDrawing(withData bool) *core.Drawing {
	d := &core.Drawing{
		CanvasID:  r.CanvasID,
		LayerID:   r.LayerID,
		PathCount: r.PathCount,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if withData {
		d.Data = []byte(r.Data)
	}
	return d
}

type pgStore struct {
	db *gorm.DB
}

// NewStore connects to the database at dsn and migrates the drawings table.
func NewStore(dsn string) (core.DrawingStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return NewStoreWithDB(db)
}

// NewStoreWithDB wraps an open gorm handle.
func NewStoreWithDB(db *gorm.DB) (core.DrawingStore, error) {
	if err := db.AutoMigrate(&DrawingRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &pgStore{db: db}, nil
}

func (s *pgStore) latestRow(tx *gorm.DB, canvasID, layerID string) (*DrawingRow, error) {
	var row DrawingRow
	err := tx.Where("canvas_id = ? AND layer_id = ?", canvasID, layerID).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *pgStore) Latest(ctx context.Context, canvasID, layerID string) (*core.Drawing, error) {
	row, err := s.latestRow(s.db.WithContext(ctx), canvasID, layerID)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID}).
				WithError(err).Error("Failed to retrieve drawing")
		}
		return nil, err
	}
	return row.toDrawing(true), nil
}

func (s *pgStore) Upsert(ctx context.Context, drawing *core.Drawing) error {
	log := logrus.WithFields(logrus.Fields{
		"canvas_id":   drawing.CanvasID,
		"layer_id":    drawing.LayerID,
		"data_length": len(drawing.Data),
	})
	drawing.PathCount = core.CountPaths(drawing.Data)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.latestRow(tx, drawing.CanvasID, drawing.LayerID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			row = &DrawingRow{
				UUID:      uuid.New(),
				CanvasID:  drawing.CanvasID,
				LayerID:   drawing.LayerID,
				Data:      datatypes.JSON(drawing.Data),
				PathCount: drawing.PathCount,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			row.Data = datatypes.JSON(drawing.Data)
			row.PathCount = drawing.PathCount
			if err := tx.Save(row).Error; err != nil {
				return err
			}
		}
		drawing.CreatedAt = row.CreatedAt
		drawing.UpdatedAt = row.UpdatedAt
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to save drawing")
		return err
	}
	log.Info("Drawing saved successfully")
	return nil
}

func (s *pgStore) Delete(ctx context.Context, canvasID, layerID string) error {
	err := s.db.WithContext(ctx).
		Where("canvas_id = ? AND layer_id = ?", canvasID, layerID).
		Delete(&DrawingRow{}).Error
	if err != nil {
		logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID}).
			WithError(err).Error("Failed to delete drawing")
	}
	return err
}

func (s *pgStore) List(ctx context.Context, canvasID string) ([]*core.Drawing, error) {
	var rows []DrawingRow
	err := s.db.WithContext(ctx).
		Select("canvas_id", "layer_id", "path_count", "created_at", "updated_at").
		Where("canvas_id = ?", canvasID).
		Order("layer_id, updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return latestPerLayer(rows), nil
}

// latestPerLayer keeps the first row of each layer from rows ordered by layer
// then recency.
func latestPerLayer(rows []DrawingRow) []*core.Drawing {
	drawings := make([]*core.Drawing, 0, len(rows))
	for i := range rows {
		if i > 0 && rows[i].LayerID == rows[i-1].LayerID {
			continue
		}
		drawings = append(drawings, rows[i].toDrawing(false))
	}
	return drawings
}
