package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inkboard/core"
	"inkboard/drawing"
	"inkboard/localcache"
	"inkboard/persist"

	"gonum.org/v1/gonum/floats/scalar"
)

// manualScheduler queues tasks and timers until the test runs them.
type manualScheduler struct {
	now    time.Duration
	tasks  []func()
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	task    func()
	stopped bool
	fired   bool
}

func (m *manualScheduler) Post(task func()) {
	m.tasks = append(m.tasks, task)
}

func (m *manualScheduler) After(d time.Duration, task func()) func() bool {
	t := &manualTimer{at: m.now + d, task: task}
	m.timers = append(m.timers, t)
	return func() bool {
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// drain runs queued tasks, including ones queued while draining.
func (m *manualScheduler) drain() {
	for len(m.tasks) > 0 {
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		task()
	}
}

// advance moves the clock forward, firing due timers, then drains.
func (m *manualScheduler) advance(d time.Duration) {
	m.now += d
	m.drain()
	for _, t := range m.timers {
		if !t.stopped && !t.fired && t.at <= m.now {
			t.fired = true
			m.Post(t.task)
		}
	}
	m.drain()
}

type mockRemote struct {
	mu        sync.Mutex
	data      map[string][]byte
	upserts   int
	deletes   int
	upsertErr error
	queryErr  error
}

func newMockRemote() *mockRemote {
	return &mockRemote{data: make(map[string][]byte)}
}

func (m *mockRemote) Upsert(ctx context.Context, canvasID, layerID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.data[canvasID+"/"+layerID] = append([]byte(nil), data...)
	return nil
}

func (m *mockRemote) Delete(ctx context.Context, canvasID, layerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, canvasID+"/"+layerID)
	return nil
}

func (m *mockRemote) QueryLatest(ctx context.Context, canvasID, layerID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	d, ok := m.data[canvasID+"/"+layerID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return d, nil
}

var testKey = persist.Key{CanvasID: "canvas-1", LayerID: "layer-1"}

type fixture struct {
	s        *Surface
	sched    *manualScheduler
	remote   *mockRemote
	cache    *localcache.MemoryCache
	warnings []error
	loads    []persist.LoadResult
}

func newFixture(t *testing.T, width, height float64) *fixture {
	t.Helper()
	f := &fixture{
		sched:  &manualScheduler{},
		remote: newMockRemote(),
		cache:  localcache.NewMemoryCache(),
	}
	bridge := persist.NewBridge(f.remote, f.cache)
	s, err := New(bridge, testKey, Options{
		Width:     width,
		Height:    height,
		Scheduler: f.sched,
		Runner:    func(task func()) { task() },
		OnWarning: func(err error) { f.warnings = append(f.warnings, err) },
		OnLoad:    func(res persist.LoadResult) { f.loads = append(f.loads, res) },
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f.s = s
	return f
}

func (f *fixture) load() {
	f.s.Load(context.Background())
	f.sched.drain()
}

// drag performs a pointer drag through screen points and runs the commit.
func (f *fixture) drag(pts ...[2]float64) {
	f.s.PointerDown(pts[0][0], pts[0][1])
	for _, p := range pts[1 : len(pts)-1] {
		f.s.PointerMove(p[0], p[1])
	}
	last := pts[len(pts)-1]
	f.s.PointerUp(last[0], last[1])
	f.sched.drain()
}

func ids(d *drawing.Document) []string {
	var out []string
	for _, p := range d.Paths() {
		out = append(out, p.ID)
	}
	return out
}

func TestStrokeAndUndo(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()

	if f.s.History().UndoLen() != 1 {
		t.Fatalf("UndoLen() after load = %d, want 1", f.s.History().UndoLen())
	}

	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	doc := f.s.Document()
	if doc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", doc.Len())
	}
	stroke := doc.Paths()[0]
	if stroke.Stroke != drawing.Black || stroke.StrokeWidth != 2 || stroke.Composite != drawing.CompositeNormal {
		t.Errorf("stroke style = %+v", stroke.Style)
	}
	if f.s.History().UndoLen() != 2 {
		t.Errorf("UndoLen() = %d, want 2", f.s.History().UndoLen())
	}

	f.s.Undo()
	if !f.s.Document().Empty() {
		t.Errorf("document after undo = %v, want empty", ids(f.s.Document()))
	}

	f.s.Redo()
	got := f.s.Document()
	if got.Len() != 1 || !got.Has(stroke.ID) {
		t.Errorf("document after redo = %v, want [%s]", ids(got), stroke.ID)
	}
	p, _ := got.Path(stroke.ID)
	if !scalar.EqualWithinAbs(p.Left, 10, 1e-6) || !scalar.EqualWithinAbs(p.Top, 10, 1e-6) {
		t.Errorf("origin after redo = (%v,%v), want (10,10)", p.Left, p.Top)
	}
}

func TestUndoAtFloor(t *testing.T) {
	f := newFixture(t, 100, 100)
	f.load()
	f.s.Undo()
	if !f.s.Document().Empty() || f.s.History().UndoLen() != 1 {
		t.Error("undo at the floor must change nothing")
	}
	if f.s.SavePending() {
		t.Error("undo at the floor must not schedule a save")
	}
}

func TestCommitIsDeferred(t *testing.T) {
	f := newFixture(t, 100, 100)
	f.load()

	f.s.PointerDown(10, 10)
	f.s.PointerMove(15, 15)
	f.s.PointerUp(20, 20)
	if f.s.Document().Len() != 0 {
		t.Fatal("stroke committed inside the pointer handler")
	}
	f.sched.drain()
	if f.s.Document().Len() != 1 {
		t.Error("stroke not committed after the follow-up task ran")
	}
}

func TestEraseRemovesIntersectingPaths(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()

	f.drag([2]float64{10, 10}, [2]float64{100, 10})
	f.drag([2]float64{10, 200}, [2]float64{100, 200})
	both := f.s.Document().Paths()
	a, b := both[0].ID, both[1].ID

	f.s.SetTool(ToolErase)
	f.drag([2]float64{50, 0}, [2]float64{50, 30})

	doc := f.s.Document()
	if doc.Len() != 1 || !doc.Has(b) || doc.Has(a) {
		t.Fatalf("document after erase = %v, want [%s]", ids(doc), b)
	}
	for _, p := range doc.Paths() {
		if p.Composite == drawing.CompositeErase {
			t.Error("erase path left in the document")
		}
	}
	if f.s.History().UndoLen() != 4 {
		t.Errorf("UndoLen() = %d, want 4", f.s.History().UndoLen())
	}

	f.s.Undo()
	if !f.s.Document().Has(a) {
		t.Error("undo should restore the erased path")
	}
}

func TestEraseMissIsNoop(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{100, 10})
	before := f.s.History().UndoLen()

	f.s.SetTool(ToolErase)
	f.drag([2]float64{500, 500}, [2]float64{600, 600})

	if f.s.Document().Len() != 1 {
		t.Error("erase away from every path removed something")
	}
	if f.s.History().UndoLen() != before {
		t.Error("missed erase must not record a snapshot")
	}
}

func TestSelectMoveAndDelete(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{100, 10})
	f.drag([2]float64{10, 200}, [2]float64{100, 200})
	paths := f.s.Document().Paths()
	a, b := paths[0].ID, paths[1].ID

	f.s.SetTool(ToolSelect)
	f.drag([2]float64{50, 5}, [2]float64{50, 15})
	if sel := f.s.Selected(); len(sel) != 1 || sel[0] != a {
		t.Fatalf("Selected() = %v, want [%s]", sel, a)
	}

	f.s.MoveSelected(5, 7)
	p, _ := f.s.Document().Path(a)
	if p.Left != 15 || p.Top != 17 {
		t.Errorf("moved origin = (%v,%v), want (15,17)", p.Left, p.Top)
	}

	f.s.DeleteSelected()
	doc := f.s.Document()
	if doc.Len() != 1 || !doc.Has(b) {
		t.Errorf("document after delete = %v, want [%s]", ids(doc), b)
	}
	if len(f.s.Selected()) != 0 {
		t.Error("selection should be empty after delete")
	}
}

func TestSetTool(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{100, 10})

	f.s.SetTool(ToolSelect)
	f.drag([2]float64{50, 5}, [2]float64{50, 15})
	f.s.SetTool(ToolSelect)
	if len(f.s.Selected()) != 1 {
		t.Error("switching to the active tool must not change anything")
	}

	f.s.SetTool(ToolDraw)
	if len(f.s.Selected()) != 0 {
		t.Error("leaving select mode should drop the selection")
	}

	if _, err := ParseTool("lasso"); err == nil {
		t.Error("ParseTool() accepted an unknown tool")
	}
}

func TestDebouncedSave(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()

	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	f.sched.advance(500 * time.Millisecond)
	f.drag([2]float64{30, 30}, [2]float64{40, 40})
	f.sched.advance(500 * time.Millisecond)
	if f.remote.upserts != 0 {
		t.Fatalf("upserts = %d before the quiet period ended", f.remote.upserts)
	}

	f.sched.advance(500 * time.Millisecond)
	if f.remote.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", f.remote.upserts)
	}
	stored, err := drawing.Unmarshal(f.remote.data["canvas-1/layer-1"])
	if err != nil || stored.Len() != 2 {
		t.Fatalf("stored document = %v, %v", stored, err)
	}
	if drawing.DetectSpace(stored) != drawing.Normalized {
		t.Error("stored document should be normalized")
	}
	if f.cache.Len() != 0 {
		t.Error("local backup should be dropped after a successful save")
	}
}

func TestSaveFailureWarns(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.remote.upsertErr = errors.New("offline")

	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	f.sched.advance(time.Second)

	if len(f.warnings) != 1 || !persist.IsSaveWarning(f.warnings[0]) {
		t.Fatalf("warnings = %v, want one SaveWarning", f.warnings)
	}
	if f.cache.Len() != 1 {
		t.Error("failed save must keep the local backup")
	}
	if f.s.Document().Len() != 1 {
		t.Error("document must stay editable after a failed save")
	}
}

func TestClearDeletesStoredDrawing(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	f.sched.advance(time.Second)

	f.s.Clear()
	f.sched.advance(time.Second)

	if f.remote.deletes != 1 {
		t.Errorf("deletes = %d, want 1", f.remote.deletes)
	}
	if _, ok := f.remote.data["canvas-1/layer-1"]; ok {
		t.Error("remote drawing should be gone")
	}
	if f.s.History().UndoLen() != 1 || f.s.History().CanRedo() {
		t.Error("clear should leave only the empty floor")
	}
	f.s.Undo()
	if !f.s.Document().Empty() {
		t.Error("undo after clear must not bring paths back")
	}
}

func TestFlush(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{20, 20})

	f.s.Flush()
	if f.remote.upserts != 1 {
		t.Fatalf("upserts = %d after Flush, want 1", f.remote.upserts)
	}
	f.sched.advance(time.Second)
	if f.remote.upserts != 1 {
		t.Errorf("debounced save fired again after Flush: %d upserts", f.remote.upserts)
	}
}

func TestResizeRederivesCoordinates(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{600, 400}, [2]float64{700, 500})
	id := f.s.Document().Paths()[0].ID

	f.s.Resize(600, 400)
	p, _ := f.s.Document().Path(id)
	if !scalar.EqualWithinAbs(p.Left, 300, 1e-6) || !scalar.EqualWithinAbs(p.Top, 200, 1e-6) {
		t.Fatalf("origin after resize = (%v,%v), want (300,200)", p.Left, p.Top)
	}

	f.s.Undo()
	f.s.Redo()
	p, _ = f.s.Document().Path(id)
	if !scalar.EqualWithinAbs(p.Left, 300, 1e-6) || !scalar.EqualWithinAbs(p.Top, 200, 1e-6) {
		t.Errorf("origin after undo/redo = (%v,%v), want (300,200)", p.Left, p.Top)
	}

	f.s.Resize(0, 400)
	if w, _ := f.s.Size(); w != 600 {
		t.Error("invalid size must be ignored")
	}
}

func TestZoomMapsPointer(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.s.Zoom(2, 0, 0)
	f.s.Pan(10, 0)

	f.drag([2]float64{110, 100}, [2]float64{210, 200})
	p := f.s.Document().Paths()[0]
	if !scalar.EqualWithinAbs(p.Left, 50, 1e-6) || !scalar.EqualWithinAbs(p.Top, 50, 1e-6) {
		t.Errorf("origin = (%v,%v), want (50,50)", p.Left, p.Top)
	}

	f.s.ResetViewport()
	if f.s.Viewport().Zoom != 1 {
		t.Error("ResetViewport() should restore zoom 1")
	}
}

func TestLoadRecoversAndReconciles(t *testing.T) {
	f := newFixture(t, 1200, 800)
	saved := newFixture(t, 1200, 800)
	saved.remote.upsertErr = errors.New("offline")
	saved.load()
	saved.drag([2]float64{600, 240}, [2]float64{700, 300})
	saved.s.Flush()
	data, ok, _ := saved.cache.Get(testKey.CacheKey())
	if !ok {
		t.Fatal("backup not written")
	}

	f.cache.Set(testKey.CacheKey(), data)
	f.remote.queryErr = errors.New("timeout")
	f.load()

	if len(f.loads) != 1 || !f.loads[0].Recovered {
		t.Fatalf("loads = %+v, want one recovered load", f.loads)
	}
	if f.remote.upserts != 1 {
		t.Errorf("reconciliation upserts = %d, want 1", f.remote.upserts)
	}
	if f.cache.Len() != 0 {
		t.Error("backup should be dropped after reconciliation")
	}
	p := f.s.Document().Paths()[0]
	if !scalar.EqualWithinAbs(p.Left, 600, 1e-6) || !scalar.EqualWithinAbs(p.Top, 240, 1e-6) {
		t.Errorf("origin = (%v,%v), want (600,240)", p.Left, p.Top)
	}
	if f.s.History().UndoLen() != 1 {
		t.Errorf("loaded state should be the floor, UndoLen() = %d", f.s.History().UndoLen())
	}
}

func TestHandlePostsCommands(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	h := f.s.Handle()

	h.SetTool(ToolErase)
	if f.s.Tool() != ToolDraw {
		t.Fatal("handle command ran synchronously")
	}
	f.sched.drain()
	if f.s.Tool() != ToolErase {
		t.Errorf("Tool() = %s, want erase", f.s.Tool())
	}
}

func TestCloseFlushes(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	f.s.Close()
	if f.remote.upserts != 1 {
		t.Errorf("upserts = %d after Close, want 1", f.remote.upserts)
	}
	f.drag([2]float64{30, 30}, [2]float64{40, 40})
	if f.s.Document().Len() != 1 {
		t.Error("closed surface accepted a new stroke")
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	if _, err := New(nil, persist.Key{CanvasID: "../x", LayerID: "l"}, Options{}); err == nil {
		t.Error("New() accepted an invalid key")
	}
}

func TestLoop(t *testing.T) {
	l := NewLoop().Start()
	var got []int
	l.Post(func() { got = append(got, 1) })
	l.Post(func() {
		got = append(got, 2)
		l.Post(func() { got = append(got, 3) })
	})
	l.Do(func() {})
	l.Do(func() {})
	l.Stop()
	<-l.Done()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("tasks ran as %v, want [1 2 3]", got)
	}
	if l.Do(func() {}) {
		t.Error("Do() on a stopped loop should report false")
	}
}

func TestEraseLoadedPathWithoutSelectableFlag(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	f.remote.data[testKey.String()] = []byte(`[{"id":"a","path":[["M",0.1,0.1],["L",0.2,0.2]],` +
		`"left":0.1,"top":0.1,"stroke":"#000000","strokeWidth":2,"composite":"normal"}]`)
	f.load()
	if f.s.Document().Len() != 1 {
		t.Fatalf("loaded %d paths, want 1", f.s.Document().Len())
	}

	f.s.SetTool(ToolErase)
	f.drag([2]float64{100, 200}, [2]float64{200, 100})

	if f.s.Document().Has("a") {
		t.Errorf("erase across a loaded path left %v", ids(f.s.Document()))
	}
}

func TestStrokeBeforeLoadIsKept(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	f.remote.data[testKey.String()] = []byte(`[{"id":"a","path":[["M",0.5,0.5],["L",0.6,0.6]],` +
		`"left":0.5,"top":0.5,"stroke":"#000000","strokeWidth":2,"composite":"normal","selectable":true}]`)

	f.drag([2]float64{10, 10}, [2]float64{40, 40})
	early := f.s.Document().Paths()[0].ID
	f.load()

	doc := f.s.Document()
	if doc.Len() != 2 || !doc.Has("a") || !doc.Has(early) {
		t.Fatalf("document after load = %v, want [a %s]", ids(doc), early)
	}
	if doc.Paths()[0].ID != "a" {
		t.Errorf("loaded path should sit under the early stroke, got %v", ids(doc))
	}
	if !f.s.SavePending() {
		t.Error("merged document should be scheduled for saving")
	}

	f.drag([2]float64{100, 100}, [2]float64{150, 150})
	f.s.Undo()
	f.s.Undo()
	got := f.s.Document()
	if got.Len() != 1 || !got.Has("a") {
		t.Fatalf("undo down to the floor = %v, want [a]", ids(got))
	}
	f.s.Undo()
	if !f.s.Document().Has("a") {
		t.Error("undo past the floor dropped the loaded drawing")
	}
}

func TestTransparentBrushColorIsKept(t *testing.T) {
	f := newFixture(t, 1200, 800)
	f.load()
	transparent := drawing.Color{}
	f.s.SetBrush(Brush{Color: &transparent, Width: 3})

	f.drag([2]float64{10, 10}, [2]float64{20, 20})
	p := f.s.Document().Paths()[0]
	if p.Stroke != transparent {
		t.Errorf("stroke color = %+v, want transparent", p.Stroke)
	}

	f.s.SetBrush(Brush{})
	if f.s.Brush().StrokeColor() != drawing.Black {
		t.Errorf("unset brush color = %+v, want black", f.s.Brush().StrokeColor())
	}
}
