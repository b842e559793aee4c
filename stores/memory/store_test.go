package memory

import (
	"context"
	"errors"
	"inkboard/core"
	"sync"
	"testing"
	"time"
)

func TestLatest_NotFound(t *testing.T) {
	store := NewStore()
	_, err := store.Latest(context.Background(), "c", "l")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Latest() error = %v, want ErrNotFound", err)
	}
}

func TestUpsert_ReplacesDrawing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := &core.Drawing{CanvasID: "c", LayerID: "l", Data: []byte(`[{"id":"a"}]`)}
	if err := store.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
	created := first.CreatedAt
	time.Sleep(time.Millisecond)

	second := &core.Drawing{CanvasID: "c", LayerID: "l", Data: []byte(`[{"id":"a"},{"id":"b"}]`)}
	if err := store.Upsert(ctx, second); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	got, err := store.Latest(ctx, "c", "l")
	if err != nil {
		t.Fatalf("Latest() failed: %v", err)
	}
	if string(got.Data) != string(second.Data) {
		t.Errorf("Data = %s, want %s", got.Data, second.Data)
	}
	if got.PathCount != 2 {
		t.Errorf("PathCount = %d, want 2", got.PathCount)
	}
	if !got.CreatedAt.Equal(created) {
		t.Error("CreatedAt should be kept across upserts")
	}
	if !got.UpdatedAt.After(created) {
		t.Error("UpdatedAt should advance")
	}
}

func TestUpsert_StoresCopy(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	data := []byte(`[]`)
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "l", Data: data})
	data[0] = '{'

	got, _ := store.Latest(ctx, "c", "l")
	if string(got.Data) != "[]" {
		t.Errorf("stored data changed with caller buffer: %s", got.Data)
	}
}

func TestDelete(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "l", Data: []byte(`[1]`)})

	if err := store.Delete(ctx, "c", "l"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Latest(ctx, "c", "l"); !errors.Is(err, core.ErrNotFound) {
		t.Error("drawing still present after Delete()")
	}
	if err := store.Delete(ctx, "c", "l"); err != nil {
		t.Errorf("Delete() of a missing drawing failed: %v", err)
	}
}

func TestList(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "b", Data: []byte(`[1]`)})
	store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "a", Data: []byte(`[1,2]`)})
	store.Upsert(ctx, &core.Drawing{CanvasID: "other", LayerID: "a", Data: []byte(`[1]`)})

	list, err := store.List(ctx, "c")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(list) != 2 || list[0].LayerID != "a" || list[1].LayerID != "b" {
		t.Fatalf("List() = %+v", list)
	}
	if list[0].Data != nil {
		t.Error("List() must not include data")
	}
	if list[0].PathCount != 2 {
		t.Errorf("PathCount = %d, want 2", list[0].PathCount)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Upsert(ctx, &core.Drawing{CanvasID: "c", LayerID: "l", Data: []byte(`[]`)})
			store.Latest(ctx, "c", "l")
			store.List(ctx, "c")
		}()
	}
	wg.Wait()
}
