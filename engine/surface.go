// Package engine is the drawing surface: it turns pointer input into document
// mutations according to the active tool, records history snapshots, and
// schedules debounced saves through the persistence bridge.
package engine

import (
	"context"
	"fmt"
	"time"

	"inkboard/drawing"
	"inkboard/geometry"
	"inkboard/history"
	"inkboard/persist"

	"github.com/sirupsen/logrus"
)

const (
	DefaultDebounce = time.Second
	DefaultWidth    = 1200
	DefaultHeight   = 800
)

// Options configures a Surface. Zero values select the defaults.
type Options struct {
	Width, Height float64
	DebounceDelay time.Duration
	HistoryDepth  int
	Brush         Brush

	// Scheduler runs all surface tasks. Defaults to a started Loop.
	Scheduler Scheduler
	// Runner executes blocking remote calls off the scheduler. Defaults to a
	// serial worker owned by the surface.
	Runner func(task func())

	Logger *logrus.Entry

	// OnWarning receives soft save warnings (stored locally only).
	OnWarning func(err error)
	// OnLoad receives the outcome of Load.
	OnLoad func(res persist.LoadResult)
}

// Surface owns the document, history and viewport of one (canvas, layer)
// pair. Its methods must be called from tasks of its Scheduler.
type Surface struct {
	key    persist.Key
	bridge *persist.Bridge
	opts   Options
	sched  Scheduler
	run    func(task func())
	worker *Loop
	loop   *Loop
	log    *logrus.Entry

	doc  *drawing.Document
	hist *history.Manager

	width, height float64
	view          geometry.Viewport

	tool     Tool
	brush    Brush
	active   *gesture
	selected map[string]bool

	cancelSave func() bool
	dirty      bool
	closed     bool
}

// New returns a surface for key. It starts empty; call Load to populate it.
func New(bridge *persist.Bridge, key persist.Key, opts Options) (*Surface, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if bridge == nil {
		bridge = persist.NewBridge(nil, nil)
	}
	if !(opts.Width > 0) || !(opts.Height > 0) {
		opts.Width, opts.Height = DefaultWidth, DefaultHeight
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounce
	}
	if opts.HistoryDepth <= 0 {
		opts.HistoryDepth = history.DefaultDepth
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}

	doc, _ := drawing.NewDocument()
	s := &Surface{
		key:      key,
		bridge:   bridge,
		opts:     opts,
		sched:    opts.Scheduler,
		run:      opts.Runner,
		doc:      doc,
		width:    opts.Width,
		height:   opts.Height,
		view:     geometry.Identity(),
		tool:     ToolDraw,
		brush:    opts.Brush.withDefaults(),
		selected: make(map[string]bool),
		log: opts.Logger.WithFields(logrus.Fields{
			"canvas_id": key.CanvasID,
			"layer_id":  key.LayerID,
		}),
	}
	if s.sched == nil {
		s.loop = NewLoop().Start()
		s.sched = s.loop
	}
	if s.run == nil {
		s.worker = NewLoop().Start()
		s.run = s.worker.Post
	}
	s.hist = history.New(opts.HistoryDepth, s.restore)
	return s, nil
}

// Key returns the (canvas, layer) pair the surface edits.
func (s *Surface) Key() persist.Key { return s.key }

// Document returns a copy of the current document in surface pixels.
func (s *Surface) Document() *drawing.Document { return s.doc.Clone() }

// Size returns the current surface size in pixels.
func (s *Surface) Size() (width, height float64) { return s.width, s.height }

// Tool returns the active tool.
func (s *Surface) Tool() Tool { return s.tool }

// Brush returns the active brush.
func (s *Surface) Brush() Brush { return s.brush }

// History exposes the undo/redo stacks for inspection.
func (s *Surface) History() *history.Manager { return s.hist }

// Viewport returns the active pan/zoom transform.
func (s *Surface) Viewport() geometry.Viewport { return s.view }

// SavePending reports whether a debounced save is waiting to fire.
func (s *Surface) SavePending() bool { return s.dirty }

// Load reads the stored drawing off the scheduler, then replaces the
// document with it. The first state the surface settles on becomes the
// history floor.
func (s *Surface) Load(ctx context.Context) {
	key, w, h := s.key, s.width, s.height
	s.run(func() {
		res := s.bridge.Load(ctx, key, w, h)
		s.sched.Post(func() { s.applyLoad(res, w, h) })
	})
}

func (s *Surface) applyLoad(res persist.LoadResult, w, h float64) {
	if s.closed {
		return
	}
	doc := res.Document
	if w != s.width || h != s.height {
		doc = drawing.Rescale(doc, w, h, s.width, s.height)
	}
	s.selected = make(map[string]bool)
	if !s.hist.HasFloor() {
		s.doc = doc
		s.record()
	} else {
		// Edits made before the load finished stay on top of the loaded
		// drawing; the loaded state becomes the new floor.
		pending := s.doc
		s.doc = doc
		s.hist.Reset()
		s.record()
		if s.keepPending(pending) {
			s.mutated()
		}
	}

	if res.Recovered && !res.Payload.Empty() {
		payload := res.Payload
		s.run(func() {
			out := s.bridge.Reconcile(context.Background(), payload)
			if out.Warning != nil {
				s.log.WithError(out.Warning).Warn("Reconciliation failed, backup kept")
			}
		})
	}
	if s.opts.OnLoad != nil {
		s.opts.OnLoad(res)
	}
}

// keepPending appends the paths of pending that the current document lacks.
func (s *Surface) keepPending(pending *drawing.Document) bool {
	added := 0
	for _, p := range pending.Paths() {
		if s.doc.Has(p.ID) {
			continue
		}
		if _, err := s.doc.Append(p); err != nil {
			s.log.WithError(err).Error("Failed to keep pending path")
			continue
		}
		added++
	}
	if added > 0 {
		s.log.WithField("path_count", added).Info("Kept edits made before load")
	}
	return added > 0
}

// SetTool switches the active tool. Selecting the current tool does nothing;
// leaving select mode drops the selection.
func (s *Surface) SetTool(t Tool) {
	if t == s.tool {
		return
	}
	if s.tool == ToolSelect {
		s.selected = make(map[string]bool)
	}
	s.active = nil
	s.tool = t
	s.log.WithField("tool", string(t)).Debug("Tool changed")
}

// SetBrush replaces the toolbar brush used by later strokes.
func (s *Surface) SetBrush(b Brush) {
	s.brush = b.withDefaults()
}

// PointerDown starts a drag at a screen position.
func (s *Surface) PointerDown(screenX, screenY float64) {
	s.active = &gesture{tool: s.tool, points: []geometry.Point{s.toCanvas(screenX, screenY)}}
}

// PointerMove extends the current drag. Moves without a drag are ignored.
func (s *Surface) PointerMove(screenX, screenY float64) {
	if s.active == nil {
		return
	}
	s.active.points = append(s.active.points, s.toCanvas(screenX, screenY))
}

// PointerUp ends the drag. The commit runs as a follow-up task, never inside
// the pointer handler.
func (s *Surface) PointerUp(screenX, screenY float64) {
	g := s.active
	if g == nil {
		return
	}
	s.active = nil
	p := s.toCanvas(screenX, screenY)
	if last := g.points[len(g.points)-1]; last != p {
		g.points = append(g.points, p)
	}
	s.sched.Post(func() { s.commit(g) })
}

// Dragging reports whether a drag is in progress.
func (s *Surface) Dragging() bool { return s.active != nil }

func (s *Surface) toCanvas(x, y float64) geometry.Point {
	return s.view.ToCanvas(geometry.Pt(x, y)).Sanitized()
}

func (s *Surface) commit(g *gesture) {
	if s.closed || len(g.points) == 0 {
		return
	}
	switch g.tool {
	case ToolDraw:
		s.commitStroke(g.points)
	case ToolErase:
		s.commitErase(g.points)
	case ToolSelect:
		s.commitSelect(g.points)
	}
}

func (s *Surface) commitStroke(points []geometry.Point) {
	s.ensureFloor()
	p, err := s.doc.Append(drawing.NewStroke(points, s.brush.penStyle()))
	if err != nil {
		s.log.WithError(err).Error("Failed to add stroke")
		return
	}
	s.log.WithField("path_id", p.ID).Debug("Stroke committed")
	s.mutated()
}

func (s *Surface) commitErase(points []geometry.Point) {
	eraser := drawing.NewStroke(points, s.brush.eraserStyle())
	ids := erasedBy(s.doc, eraser)
	if len(ids) == 0 {
		return
	}
	s.ensureFloor()
	s.doc.Remove(ids...)
	for _, id := range ids {
		delete(s.selected, id)
	}
	s.log.WithField("removed", len(ids)).Debug("Erase committed")
	s.mutated()
}

func (s *Surface) commitSelect(points []geometry.Point) {
	s.selected = make(map[string]bool)
	for _, id := range hitBy(s.doc, points, selectSlop/s.view.Zoom) {
		s.selected[id] = true
	}
}

// Selected returns the ids of the active paths in z-order.
func (s *Surface) Selected() []string {
	var ids []string
	for _, p := range s.doc.Paths() {
		if s.selected[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// DeleteSelected removes every active path.
func (s *Surface) DeleteSelected() {
	ids := s.Selected()
	s.selected = make(map[string]bool)
	if len(ids) == 0 {
		return
	}
	s.ensureFloor()
	s.doc.Remove(ids...)
	s.mutated()
}

// MoveSelected translates the active paths by (dx, dy) canvas pixels.
func (s *Surface) MoveSelected(dx, dy float64) {
	dx, dy = geometry.Finite(dx), geometry.Finite(dy)
	ids := s.Selected()
	if len(ids) == 0 || (dx == 0 && dy == 0) {
		return
	}
	s.ensureFloor()
	for _, id := range ids {
		p, _ := s.doc.Path(id)
		if err := s.doc.Update(p.Translate(dx, dy)); err != nil {
			s.log.WithError(err).Error("Failed to move path")
		}
	}
	s.mutated()
}

// Undo restores the previous snapshot and schedules a save.
func (s *Surface) Undo() {
	ok, err := s.hist.Undo()
	if err != nil {
		s.log.WithError(err).Error("Undo failed")
	}
	if ok {
		s.scheduleSave()
	}
}

// Redo re-applies the last undone snapshot and schedules a save.
func (s *Surface) Redo() {
	ok, err := s.hist.Redo()
	if err != nil {
		s.log.WithError(err).Error("Redo failed")
	}
	if ok {
		s.scheduleSave()
	}
}

// Clear empties the document, drops the history and starts it again from the
// empty floor. The save that follows deletes the stored drawing.
func (s *Surface) Clear() {
	s.active = nil
	s.selected = make(map[string]bool)
	s.doc.Clear()
	s.hist.Reset()
	s.record()
	s.scheduleSave()
}

// Resize adapts the surface to a new host size. Absolute coordinates are re-derived
// through the normalized form; the viewport is kept.
func (s *Surface) Resize(width, height float64) {
	if !(width > 0) || !(height > 0) {
		s.log.WithFields(logrus.Fields{"width": width, "height": height}).Warn("Ignoring invalid surface size")
		return
	}
	if width == s.width && height == s.height {
		return
	}
	s.doc = drawing.Rescale(s.doc, s.width, s.height, width, height)
	s.width, s.height = width, height
}

// Zoom scales the view by factor around a screen position.
func (s *Surface) Zoom(factor, screenX, screenY float64) {
	s.view = s.view.ZoomAt(factor, geometry.Pt(screenX, screenY))
}

// Pan shifts the view by (dx, dy) screen pixels.
func (s *Surface) Pan(dx, dy float64) {
	s.view = s.view.Panned(dx, dy)
}

// ResetViewport returns to the identity transform.
func (s *Surface) ResetViewport() {
	s.view = geometry.Identity()
}

// Flush fires a pending debounced save now.
func (s *Surface) Flush() {
	if !s.dirty {
		return
	}
	if s.cancelSave != nil {
		s.cancelSave()
		s.cancelSave = nil
	}
	s.save()
}

// Close flushes pending work and waits for outstanding remote calls on the
// surface's own worker. Later calls are ignored.
func (s *Surface) Close() {
	if s.closed {
		return
	}
	s.Flush()
	s.closed = true
	if s.worker != nil {
		s.worker.Stop()
		<-s.worker.Done()
	}
	if s.loop != nil {
		s.loop.Stop()
	}
}

func (s *Surface) snapshot() ([]byte, error) {
	return drawing.Normalize(s.doc, s.width, s.height).Marshal()
}

func (s *Surface) record() {
	snap, err := s.snapshot()
	if err != nil {
		s.log.WithError(err).Error("Failed to snapshot drawing")
		return
	}
	s.hist.Record(snap)
}

// ensureFloor records the pre-mutation state when nothing has been loaded yet.
func (s *Surface) ensureFloor() {
	if !s.hist.HasFloor() {
		s.record()
	}
}

func (s *Surface) mutated() {
	s.record()
	s.scheduleSave()
}

func (s *Surface) restore(snap []byte) error {
	doc, err := drawing.Unmarshal(snap)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	s.doc = drawing.Denormalize(doc, s.width, s.height)
	s.active = nil
	for id := range s.selected {
		if !s.doc.Has(id) {
			delete(s.selected, id)
		}
	}
	return nil
}

func (s *Surface) scheduleSave() {
	if s.closed {
		return
	}
	if s.cancelSave != nil {
		s.cancelSave()
	}
	s.dirty = true
	s.cancelSave = s.sched.After(s.opts.DebounceDelay, func() {
		s.cancelSave = nil
		if s.dirty && !s.closed {
			s.save()
		}
	})
}

// save writes the local backup synchronously and hands the remote push to the
// runner.
func (s *Surface) save() {
	s.dirty = false
	payload, err := s.bridge.Prepare(s.key, s.doc, s.width, s.height)
	if err != nil {
		s.log.WithError(err).Error("Failed to serialize drawing")
		s.warn(&persist.SaveWarning{Key: s.key, Err: err})
		return
	}
	s.run(func() {
		res := s.bridge.Push(context.Background(), payload)
		if res.Warning != nil {
			s.sched.Post(func() { s.warn(res.Warning) })
		}
	})
}

func (s *Surface) warn(err error) {
	if s.opts.OnWarning != nil {
		s.opts.OnWarning(err)
	}
}
