// Package drawing holds the path model of one (canvas, layer) drawing and the
// coordinate normalization that makes it independent of the surface size.
package drawing

import (
	"encoding/json"
	"fmt"
)

// Document is the ordered path store of one layer. Array order is z-order:
// later paths are drawn on top. Path ids are unique within a document.
type Document struct {
	paths []Path
	index map[string]int
}

// NewDocument returns a document holding copies of paths.
func NewDocument(paths ...Path) (*Document, error) {
	d := &Document{}
	if err := d.Replace(paths); err != nil {
		return nil, err
	}
	return d, nil
}

// Len returns the number of paths.
func (d *Document) Len() int {
	return len(d.paths)
}

// Empty reports whether the document has no paths.
func (d *Document) Empty() bool {
	return len(d.paths) == 0
}

// Paths returns a copy of the paths in z-order.
func (d *Document) Paths() []Path {
	out := make([]Path, len(d.paths))
	for i, p := range d.paths {
		out[i] = p.Clone()
	}
	return out
}

// Path returns the path with the given id.
func (d *Document) Path(id string) (Path, bool) {
	i, ok := d.index[id]
	if !ok {
		return Path{}, false
	}
	return d.paths[i].Clone(), true
}

// Has reports whether a path with the id exists.
func (d *Document) Has(id string) bool {
	_, ok := d.index[id]
	return ok
}

// Append adds p on top of the document. An empty id is replaced by a new one.
func (d *Document) Append(p Path) (Path, error) {
	if p.ID == "" {
		p.ID = NewID()
	}
	if d.Has(p.ID) {
		return Path{}, fmt.Errorf("path %s already exists", p.ID)
	}
	if d.index == nil {
		d.index = make(map[string]int)
	}
	p = p.Clone()
	d.index[p.ID] = len(d.paths)
	d.paths = append(d.paths, p)
	return p.Clone(), nil
}

// Remove deletes the paths with the given ids and returns how many were removed.
// Unknown ids are ignored.
func (d *Document) Remove(ids ...string) int {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if d.Has(id) {
			drop[id] = true
		}
	}
	if len(drop) == 0 {
		return 0
	}

	kept := d.paths[:0]
	for _, p := range d.paths {
		if !drop[p.ID] {
			kept = append(kept, p)
		}
	}
	d.paths = kept
	d.reindex()
	return len(drop)
}

// Update replaces the path with the same id, keeping its z-position.
func (d *Document) Update(p Path) error {
	i, ok := d.index[p.ID]
	if !ok {
		return fmt.Errorf("path %s not found", p.ID)
	}
	d.paths[i] = p.Clone()
	return nil
}

// Replace swaps the whole content of the document.
func (d *Document) Replace(paths []Path) error {
	seen := make(map[string]bool, len(paths))
	next := make([]Path, 0, len(paths))
	for _, p := range paths {
		if p.ID == "" {
			return fmt.Errorf("path without id")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate path id %s", p.ID)
		}
		seen[p.ID] = true
		next = append(next, p.Clone())
	}
	d.paths = next
	d.reindex()
	return nil
}

// Clear removes every path.
func (d *Document) Clear() {
	d.paths = nil
	d.index = nil
}

// Clone returns an independent copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{}
	// ids are already unique
	_ = out.Replace(d.paths)
	return out
}

func (d *Document) reindex() {
	d.index = make(map[string]int, len(d.paths))
	for i, p := range d.paths {
		d.index[p.ID] = i
	}
}

// Marshal serializes the document as a JSON array of path objects.
func (d *Document) Marshal() ([]byte, error) {
	paths := d.paths
	if paths == nil {
		paths = []Path{}
	}
	return json.Marshal(paths)
}

// Unmarshal parses a serialized path array. Every path is validated; a
// malformed document is rejected as a whole.
func Unmarshal(data []byte) (*Document, error) {
	var paths []Path
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("decode drawing: %w", err)
	}
	// Older documents carry no selectable flag; normal paths default to selectable.
	var flags []struct {
		Selectable *bool `json:"selectable"`
	}
	if err := json.Unmarshal(data, &flags); err != nil {
		return nil, fmt.Errorf("decode drawing: %w", err)
	}
	for i := range paths {
		if flags[i].Selectable == nil {
			paths[i].Selectable = true
		}
		if paths[i].Composite == "" {
			paths[i].Composite = CompositeNormal
		}
		if err := paths[i].Validate(); err != nil {
			return nil, fmt.Errorf("decode drawing: %w", err)
		}
		if paths[i].Composite == CompositeErase {
			paths[i].Selectable = false
		}
	}
	return NewDocument(paths...)
}
