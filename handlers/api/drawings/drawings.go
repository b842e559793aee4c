package drawings

import (
	"encoding/json"
	"errors"
	"inkboard/core"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// MaxBodySize bounds an uploaded drawing.
const MaxBodySize = 16 << 20

type (
	// Notifier is told about every stored or removed drawing.
	Notifier interface {
		DrawingSaved(canvasID, layerID string, updatedAt time.Time)
		DrawingDeleted(canvasID, layerID string)
	}

	DrawingResponse struct {
		CanvasID  string    `json:"canvasId"`
		LayerID   string    `json:"layerId"`
		PathCount int       `json:"pathCount"`
		UpdatedAt time.Time `json:"updatedAt"`
	}
)

func renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// keyParams reads and validates the canvasId and layerId URL params.
func keyParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	canvasID := chi.URLParam(r, "canvasId")
	layerID := chi.URLParam(r, "layerId")
	if !core.ValidKey(canvasID) || !core.ValidKey(layerID) {
		renderError(w, r, http.StatusBadRequest, "Invalid canvas or layer id")
		return "", "", false
	}
	return canvasID, layerID, true
}

// HandleGet returns the stored path array of the latest drawing for a layer.
func HandleGet(store core.DrawingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID, layerID, ok := keyParams(w, r)
		if !ok {
			return
		}
		log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID})

		drawing, err := store.Latest(r.Context(), canvasID, layerID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				renderError(w, r, http.StatusNotFound, "Drawing not found")
				return
			}
			log.WithError(err).Error("Failed to get drawing")
			renderError(w, r, http.StatusInternalServerError, "Failed to get drawing")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if !drawing.UpdatedAt.IsZero() {
			w.Header().Set("Last-Modified", drawing.UpdatedAt.UTC().Format(http.TimeFormat))
		}
		w.Write(drawing.Data)
	}
}

// HandlePut replaces the drawing of a layer. The body must be a JSON array.
func HandlePut(store core.DrawingStore, notify Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID, layerID, ok := keyParams(w, r)
		if !ok {
			return
		}
		log := logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID})

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			log.WithError(err).Warn("Failed to read request body")
			renderError(w, r, http.StatusBadRequest, "Failed to read request body")
			return
		}
		defer r.Body.Close()

		var paths []json.RawMessage
		if err := json.Unmarshal(body, &paths); err != nil || paths == nil {
			renderError(w, r, http.StatusBadRequest, "Drawing must be a JSON array")
			return
		}

		drawing := &core.Drawing{CanvasID: canvasID, LayerID: layerID, Data: body}
		if err := store.Upsert(r.Context(), drawing); err != nil {
			log.WithError(err).Error("Failed to save drawing")
			renderError(w, r, http.StatusInternalServerError, "Failed to save drawing")
			return
		}
		if drawing.UpdatedAt.IsZero() {
			drawing.UpdatedAt = time.Now()
		}
		if notify != nil {
			notify.DrawingSaved(canvasID, layerID, drawing.UpdatedAt)
		}

		log.WithField("path_count", len(paths)).Info("Drawing stored")
		render.JSON(w, r, DrawingResponse{
			CanvasID:  canvasID,
			LayerID:   layerID,
			PathCount: len(paths),
			UpdatedAt: drawing.UpdatedAt,
		})
	}
}

// HandleDelete removes the drawing of a layer. Removing a missing drawing succeeds.
func HandleDelete(store core.DrawingStore, notify Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID, layerID, ok := keyParams(w, r)
		if !ok {
			return
		}

		if err := store.Delete(r.Context(), canvasID, layerID); err != nil {
			logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "layer_id": layerID}).
				WithError(err).Error("Failed to delete drawing")
			renderError(w, r, http.StatusInternalServerError, "Failed to delete drawing")
			return
		}
		if notify != nil {
			notify.DrawingDeleted(canvasID, layerID)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleList returns the metadata of every layer drawing of a canvas.
func HandleList(store core.DrawingStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvasID := chi.URLParam(r, "canvasId")
		if !core.ValidKey(canvasID) {
			renderError(w, r, http.StatusBadRequest, "Invalid canvas id")
			return
		}

		drawings, err := store.List(r.Context(), canvasID)
		if err != nil {
			logrus.WithField("canvas_id", canvasID).WithError(err).Error("Failed to list drawings")
			renderError(w, r, http.StatusInternalServerError, "Failed to list drawings")
			return
		}

		resp := make([]DrawingResponse, 0, len(drawings))
		for _, d := range drawings {
			resp = append(resp, DrawingResponse{
				CanvasID:  d.CanvasID,
				LayerID:   d.LayerID,
				PathCount: d.PathCount,
				UpdatedAt: d.UpdatedAt,
			})
		}
		render.JSON(w, r, resp)
	}
}

// Routes mounts the drawing endpoints under /canvases.
func Routes(r chi.Router, store core.DrawingStore, notify Notifier) {
	r.Route("/canvases/{canvasId}", func(r chi.Router) {
		r.Get("/drawings", HandleList(store))
		r.Route("/layers/{layerId}/drawing", func(r chi.Router) {
			r.Get("/", HandleGet(store))
			r.Put("/", HandlePut(store, notify))
			r.Delete("/", HandleDelete(store, notify))
		})
	})
}
