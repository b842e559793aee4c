package engine

import "context"

// Handle is the command capability handed to toolbars and keyboard shortcut
// handlers. Calls return immediately; their effects happen on the surface's
// scheduler.
type Handle interface {
	SetTool(t Tool)
	SetBrush(b Brush)
	Undo()
	Redo()
	Clear()
	DeleteSelected()
	MoveSelected(dx, dy float64)
	Resize(width, height float64)
	Zoom(factor, screenX, screenY float64)
	Pan(dx, dy float64)
	ResetViewport()
	Load(ctx context.Context)
	Flush()
}

// Handle returns a Handle that posts each command to the surface's scheduler,
// so it may be used from any goroutine.
func (s *Surface) Handle() Handle {
	return postingHandle{s: s}
}

type postingHandle struct {
	s *Surface
}

func (h postingHandle) post(fn func()) { h.s.sched.Post(fn) }

func (h postingHandle) SetTool(t Tool)              { h.post(func() { h.s.SetTool(t) }) }
func (h postingHandle) SetBrush(b Brush)            { h.post(func() { h.s.SetBrush(b) }) }
func (h postingHandle) Undo()                       { h.post(h.s.Undo) }
func (h postingHandle) Redo()                       { h.post(h.s.Redo) }
func (h postingHandle) Clear()                      { h.post(h.s.Clear) }
func (h postingHandle) DeleteSelected()             { h.post(h.s.DeleteSelected) }
func (h postingHandle) MoveSelected(dx, dy float64) { h.post(func() { h.s.MoveSelected(dx, dy) }) }
func (h postingHandle) Resize(width, height float64) {
	h.post(func() { h.s.Resize(width, height) })
}
func (h postingHandle) Zoom(factor, screenX, screenY float64) {
	h.post(func() { h.s.Zoom(factor, screenX, screenY) })
}
func (h postingHandle) Pan(dx, dy float64)       { h.post(func() { h.s.Pan(dx, dy) }) }
func (h postingHandle) ResetViewport()           { h.post(h.s.ResetViewport) }
func (h postingHandle) Load(ctx context.Context) { h.post(func() { h.s.Load(ctx) }) }
func (h postingHandle) Flush()                   { h.post(h.s.Flush) }

var (
	_ Handle = (*Surface)(nil)
	_ Handle = postingHandle{}
)
