package persist

import (
	"bytes"
	"context"
	"errors"

	"inkboard/core"
	"inkboard/drawing"

	"github.com/sirupsen/logrus"
)

// Source tells where a loaded drawing came from.
type Source int

const (
	SourceEmpty Source = iota
	SourceRemote
	SourceCache
)

func (s Source) String() string {
	switch s {
	case SourceRemote:
		return "remote"
	case SourceCache:
		return "local-cache"
	}
	return "empty"
}

type (
	// Payload is a drawing serialized in normalized coordinates, ready to be
	// pushed to the remote store.
	Payload struct {
		Key       Key
		Data      []byte
		PathCount int
		// BackedUp is true when the local cache holds Data.
		BackedUp bool
	}

	// SaveResult is the outcome of a remote push.
	SaveResult struct {
		Key     Key
		Deleted bool
		// Warning is a *SaveWarning when a non-empty document could not be saved remotely.
		Warning error
	}

	// LoadResult is the outcome of Load. Document is always usable: when nothing
	// could be read it is empty.
	LoadResult struct {
		Key      Key
		Document *drawing.Document
		Source   Source
		Space    drawing.Space
		// Recovered is set when the drawing came from the local backup; Payload
		// then holds the normalized form to reconcile with the remote store.
		Recovered bool
		Payload   Payload
	}
)

// Empty reports whether the payload has no paths.
func (p Payload) Empty() bool {
	return p.PathCount == 0
}

// Bridge implements the save and load contracts over a remote store and a
// local cache. Either side may be nil.
type Bridge struct {
	remote Remote
	cache  Cache
	log    *logrus.Entry
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the log entry the bridge writes to.
func WithLogger(log *logrus.Entry) Option {
	return func(b *Bridge) {
		b.log = log
	}
}

// NewBridge returns a bridge over remote and cache.
func NewBridge(remote Remote, cache Cache, opts ...Option) *Bridge {
	b := &Bridge{
		remote: remote,
		cache:  cache,
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) logFor(key Key) *logrus.Entry {
	return b.log.WithFields(logrus.Fields{
		"canvas_id": key.CanvasID,
		"layer_id":  key.LayerID,
	})
}

// Prepare normalizes doc against the surface size and updates the local cache:
// the entry is written when the document has paths and removed when it is
// empty. It runs synchronously so the cache always mirrors the latest state.
func (b *Bridge) Prepare(key Key, doc *drawing.Document, width, height float64) (Payload, error) {
	data, err := drawing.Normalize(doc, width, height).Marshal()
	if err != nil {
		return Payload{}, err
	}
	p := Payload{Key: key, Data: data, PathCount: doc.Len()}
	b.stage(&p)
	return p, nil
}

func (b *Bridge) stage(p *Payload) {
	if b.cache == nil {
		return
	}
	log := b.logFor(p.Key)
	if p.Empty() {
		if err := b.cache.Remove(p.Key.CacheKey()); err != nil {
			log.WithError(err).Warn("Failed to remove local backup")
		}
		return
	}
	if err := b.cache.Set(p.Key.CacheKey(), p.Data); err != nil {
		log.WithError(err).Warn("Failed to write local backup")
		return
	}
	p.BackedUp = true
}

// Push writes the payload to the remote store. Non-empty payloads are
// upserted and the local backup is dropped on success; empty payloads delete
// the remote record, and a failed delete is only logged.
func (b *Bridge) Push(ctx context.Context, p Payload) SaveResult {
	log := b.logFor(p.Key).WithField("path_count", p.PathCount)
	res := SaveResult{Key: p.Key}

	if b.remote == nil {
		if !p.Empty() {
			res.Warning = &SaveWarning{Key: p.Key, BackedUp: p.BackedUp, Err: errors.New("no remote store configured")}
		}
		return res
	}

	if p.Empty() {
		res.Deleted = true
		if err := b.remote.Delete(ctx, p.Key.CanvasID, p.Key.LayerID); err != nil {
			log.WithError(err).Warn("Failed to delete empty drawing")
			return res
		}
		log.Info("Empty drawing deleted")
		return res
	}

	if err := b.remote.Upsert(ctx, p.Key.CanvasID, p.Key.LayerID, p.Data); err != nil {
		log.WithError(err).Warn("Failed to save drawing remotely")
		res.Warning = &SaveWarning{Key: p.Key, BackedUp: p.BackedUp, Err: err}
		return res
	}
	log.WithField("data_length", len(p.Data)).Info("Drawing saved")

	b.dropBackup(p, log)
	return res
}

// dropBackup removes the local backup once p is stored remotely, unless a
// newer Prepare has replaced the entry in the meantime.
func (b *Bridge) dropBackup(p Payload, log *logrus.Entry) {
	if b.cache == nil {
		return
	}
	cached, ok, err := b.cache.Get(p.Key.CacheKey())
	if err != nil {
		log.WithError(err).Warn("Failed to read local backup after save")
		return
	}
	if !ok || !bytes.Equal(cached, p.Data) {
		return
	}
	if err := b.cache.Remove(p.Key.CacheKey()); err != nil {
		log.WithError(err).Warn("Failed to remove local backup after save")
	}
}

// Save runs Prepare and Push back to back.
func (b *Bridge) Save(ctx context.Context, key Key, doc *drawing.Document, width, height float64) SaveResult {
	p, err := b.Prepare(key, doc, width, height)
	if err != nil {
		b.logFor(key).WithError(err).Error("Failed to serialize drawing")
		return SaveResult{Key: key, Warning: &SaveWarning{Key: key, Err: err}}
	}
	return b.Push(ctx, p)
}

// Load reads the drawing for key: the remote store first, then the local
// backup, then an empty document. Stored coordinates are converted to surface
// pixels. Failures never surface; they only move the cascade along.
func (b *Bridge) Load(ctx context.Context, key Key, width, height float64) LoadResult {
	log := b.logFor(key)
	res := LoadResult{Key: key}

	doc, ok := b.loadRemote(ctx, key, log)
	if ok {
		res.Source = SourceRemote
	} else if doc, ok = b.loadCache(key, log); ok {
		res.Source = SourceCache
		res.Recovered = true
	}

	if !ok {
		res.Document, _ = drawing.NewDocument()
		res.Source = SourceEmpty
		log.Debug("No stored drawing, starting empty")
		return res
	}

	res.Document, res.Space = drawing.ToAbsolute(doc, width, height)
	log.WithFields(logrus.Fields{
		"source":     res.Source.String(),
		"space":      res.Space.String(),
		"path_count": res.Document.Len(),
	}).Info("Drawing loaded")

	if res.Recovered {
		data, err := drawing.Normalize(res.Document, width, height).Marshal()
		if err == nil {
			// Rewrite the backup in canonical form so the reconciling push
			// can tell it is still the latest entry.
			res.Payload = Payload{Key: key, Data: data, PathCount: res.Document.Len()}
			b.stage(&res.Payload)
		}
	}
	return res
}

func (b *Bridge) loadRemote(ctx context.Context, key Key, log *logrus.Entry) (*drawing.Document, bool) {
	if b.remote == nil {
		return nil, false
	}
	data, err := b.remote.QueryLatest(ctx, key.CanvasID, key.LayerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Debug("No remote drawing")
		} else {
			log.WithError(err).Warn("Failed to load remote drawing")
		}
		return nil, false
	}
	doc, err := drawing.Unmarshal(data)
	if err != nil {
		log.WithError(err).Warn("Remote drawing is malformed, ignoring it")
		return nil, false
	}
	if doc.Empty() {
		return nil, false
	}
	return doc, true
}

func (b *Bridge) loadCache(key Key, log *logrus.Entry) (*drawing.Document, bool) {
	if b.cache == nil {
		return nil, false
	}
	data, ok, err := b.cache.Get(key.CacheKey())
	if err != nil {
		log.WithError(err).Warn("Failed to read local backup")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	doc, err := drawing.Unmarshal(data)
	if err != nil {
		log.WithError(err).Warn("Local backup is malformed, ignoring it")
		return nil, false
	}
	if doc.Empty() {
		return nil, false
	}
	log.Warn("Drawing recovered from local backup")
	return doc, true
}

// Reconcile pushes a drawing recovered from the local backup to the remote
// store. It is best effort: a failure leaves the backup in place.
func (b *Bridge) Reconcile(ctx context.Context, p Payload) SaveResult {
	b.logFor(p.Key).Info("Reconciling recovered drawing")
	return b.Push(ctx, p)
}
