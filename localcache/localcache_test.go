package localcache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func newFileCache(t *testing.T) *FileCache {
	t.Helper()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileCache() failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestFileCacheSetGet(t *testing.T) {
	c := newFileCache(t)
	value := []byte(`[{"id":"a"}]`)

	if err := c.Set("drawing:1:c:l", value); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	got, ok, err := c.Get("drawing:1:c:l")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v", ok, err)
	}
	if string(got) != string(value) {
		t.Errorf("Get() = %q, want %q", got, value)
	}
}

func TestFileCacheMissing(t *testing.T) {
	c := newFileCache(t)
	_, ok, err := c.Get("nope")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("Get() of a missing key should report not found")
	}
	if err := c.Remove("nope"); err != nil {
		t.Errorf("Remove() of a missing key failed: %v", err)
	}
}

func TestFileCacheOverwriteAndRemove(t *testing.T) {
	c := newFileCache(t)
	c.Set("k", []byte("one"))
	c.Set("k", []byte("two"))

	got, _, _ := c.Get("k")
	if string(got) != "two" {
		t.Errorf("Get() = %q, want two", got)
	}

	if err := c.Remove("k"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, ok, _ := c.Get("k"); ok {
		t.Error("entry still present after Remove()")
	}
}

func TestFileCacheCompresses(t *testing.T) {
	c := newFileCache(t)
	value := []byte(strings.Repeat(`["L",10,10],`, 2000))
	c.Set("big", value)

	info, err := os.Stat(c.fileName("big"))
	if err != nil {
		t.Fatalf("Stat() failed: %v", err)
	}
	if info.Size() >= int64(len(value)) {
		t.Errorf("entry not compressed: %d bytes on disk for %d", info.Size(), len(value))
	}
}

func TestFileCacheKeyCannotEscape(t *testing.T) {
	c := newFileCache(t)
	key := "../../etc/passwd"
	if err := c.Set(key, []byte("x")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if filepath.Dir(c.fileName(key)) != c.basePath {
		t.Errorf("entry written outside base directory: %s", c.fileName(key))
	}
}

func TestFileCacheKeys(t *testing.T) {
	c := newFileCache(t)
	c.Set("a", []byte("1"))
	c.Set("b/c", []byte("2"))

	keys, err := c.Keys()
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b/c" {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestFileCacheLongKey(t *testing.T) {
	c := newFileCache(t)
	key := "drawing:300:" + strings.Repeat("c", 300) + ":" + strings.Repeat("l", 300)
	if err := c.Set(key, []byte("long")); err != nil {
		t.Fatalf("Set() with a long key failed: %v", err)
	}
	if n := len(filepath.Base(c.fileName(key))); n > 255 {
		t.Errorf("file name is %d bytes long", n)
	}
	got, ok, err := c.Get(key)
	if err != nil || !ok || string(got) != "long" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
	keys, _ := c.Keys()
	if len(keys) != 1 || keys[0] != key {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestFileCacheDurable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	first, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache() failed: %v", err)
	}
	first.Set("k", []byte("persisted"))
	first.Close()

	second, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache() failed: %v", err)
	}
	defer second.Close()
	got, ok, _ := second.Get("k")
	if !ok || string(got) != "persisted" {
		t.Errorf("Get() after reopen = %q, %v", got, ok)
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	v := []byte("value")
	c.Set("k", v)
	v[0] = 'X'

	got, ok, _ := c.Get("k")
	if !ok || string(got) != "value" {
		t.Errorf("Get() = %q, %v; stored value must be a copy", got, ok)
	}
	c.Remove("k")
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}
