package websocket

import (
	"fmt"
	"inkboard/core"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	EventJoin    = "join-canvas"
	EventLeave   = "leave-canvas"
	EventSaved   = "drawing-saved"
	EventDeleted = "drawing-deleted"
)

// EmitFunc sends an event to every socket in a room.
type EmitFunc func(room, event string, payload map[string]any) error

// Hub tells read-only viewers of a canvas when one of its layer drawings
// changes. Viewers join the room named after the canvas id.
type Hub struct {
	emit    EmitFunc
	mu      sync.RWMutex
	viewers map[string]int
}

func NewHub(emit EmitFunc) *Hub {
	return &Hub{emit: emit, viewers: make(map[string]int)}
}

// DrawingSaved notifies the canvas room of a stored drawing.
func (h *Hub) DrawingSaved(canvasID, layerID string, updatedAt time.Time) {
	h.notify(canvasID, EventSaved, map[string]any{
		"canvasId":  canvasID,
		"layerId":   layerID,
		"updatedAt": updatedAt.UnixMilli(),
	})
}

// DrawingDeleted notifies the canvas room of a removed drawing.
func (h *Hub) DrawingDeleted(canvasID, layerID string) {
	h.notify(canvasID, EventDeleted, map[string]any{
		"canvasId":  canvasID,
		"layerId":   layerID,
		"updatedAt": time.Now().UnixMilli(),
	})
}

func (h *Hub) notify(canvasID, event string, payload map[string]any) {
	if h.emit == nil {
		return
	}
	if err := h.emit(canvasID, event, payload); err != nil {
		logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "event": event}).
			WithError(err).Warn("Failed to notify viewers")
	}
}

// Viewers returns the number of connected viewers per canvas.
func (h *Hub) Viewers() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.viewers))
	for k, v := range h.viewers {
		out[k] = v
	}
	return out
}

func (h *Hub) setViewers(canvasID string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 {
		delete(h.viewers, canvasID)
		return
	}
	h.viewers[canvasID] = n
}

// SetupSocketIO creates the socket.io server and the hub emitting through it.
func SetupSocketIO() (*socketio.Server, *Hub) {
	opts := socketio.DefaultServerOptions()
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	localhostOrigin := regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	opts.SetCors(&types.Cors{
		Origin:      []any{localhostOrigin},
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	hub := NewHub(func(room, event string, payload map[string]any) error {
		return srv.To(socketio.Room(room)).Emit(event, payload)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		countViewers := func(room socketio.Room) {
			srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, err error) {
				if err == nil {
					hub.setViewers(string(room), len(users))
				}
			})
		}

		//nolint:errcheck
		socket.On(EventJoin, func(datas ...any) {
			ack, args := ackOf(datas)
			canvasID, err := canvasArg(args)
			if err != nil {
				reply(ack, map[string]any{"status": "error", "error": err.Error()})
				return
			}
			room := socketio.Room(canvasID)
			socket.Join(room)
			logrus.WithFields(logrus.Fields{"canvas_id": canvasID, "socket_id": socket.Id()}).Debug("Viewer joined canvas")
			countViewers(room)
			reply(ack, map[string]any{"status": "ok", "canvasId": canvasID})
		})

		//nolint:errcheck
		socket.On(EventLeave, func(datas ...any) {
			ack, args := ackOf(datas)
			canvasID, err := canvasArg(args)
			if err != nil {
				reply(ack, map[string]any{"status": "error", "error": err.Error()})
				return
			}
			room := socketio.Room(canvasID)
			socket.Leave(room)
			countViewers(room)
			reply(ack, map[string]any{"status": "ok"})
		})

		//nolint:errcheck
		socket.On("disconnecting", func(...any) {
			me := socket.Id()
			for _, room := range socket.Rooms().Keys() {
				if string(room) == string(me) {
					continue
				}
				srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
					others := 0
					for _, u := range users {
						if u.Id() != me {
							others++
						}
					}
					hub.setViewers(string(room), others)
				})
			}
		})

		//nolint:errcheck
		socket.On("disconnect", func(...any) {
			socket.RemoveAllListeners("")
		})
	})

	return srv, hub
}

// ackOf splits a trailing socket.io acknowledgement callback off the args.
func ackOf(datas []any) (func(map[string]any), []any) {
	if n := len(datas); n > 0 {
		if fn, ok := datas[n-1].(func([]any, error)); ok {
			return func(p map[string]any) { fn([]any{p}, nil) }, datas[:n-1]
		}
	}
	return nil, datas
}

func reply(ack func(map[string]any), payload map[string]any) {
	if ack != nil {
		ack(payload)
	}
}

func canvasArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("canvas id is required")
	}
	id, ok := args[0].(string)
	if !ok || !core.ValidKey(id) {
		return "", fmt.Errorf("invalid canvas id")
	}
	return id, nil
}
