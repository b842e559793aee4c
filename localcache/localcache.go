// Package localcache provides the durable local key-value store holding
// fallback copies of drawings that could not be saved remotely.
package localcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

const fileSuffix = ".zst"

// FileCache stores each entry as a zstd-compressed file under a base directory.
// Files are named by the SHA-256 of the key and hold the key itself ahead of
// the value, so names stay short and Keys can list what is stored.
type FileCache struct {
	basePath string
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	mu       sync.Mutex
}

// NewFileCache creates the base directory if needed and returns a cache over it.
func NewFileCache(basePath string) (*FileCache, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, err
	}
	return &FileCache{basePath: basePath, encoder: encoder, decoder: decoder}, nil
}

// fileName maps an arbitrary key to a fixed-length name inside the base directory.
func (c *FileCache) fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.basePath, hex.EncodeToString(sum[:])+fileSuffix)
}

func encodeEntry(key string, value []byte) []byte {
	buf := binary.AppendUvarint(make([]byte, 0, binary.MaxVarintLen64+len(key)+len(value)), uint64(len(key)))
	buf = append(buf, key...)
	return append(buf, value...)
}

func decodeEntry(entry []byte) (string, []byte, error) {
	n, read := binary.Uvarint(entry)
	if read <= 0 || uint64(len(entry)-read) < n {
		return "", nil, errors.New("truncated cache entry")
	}
	end := read + int(n)
	return string(entry[read:end]), entry[end:], nil
}

func (c *FileCache) readEntry(path string) (string, []byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	entry, err := c.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", nil, fmt.Errorf("decompress cache entry: %w", err)
	}
	return decodeEntry(entry)
}

// Set writes the value, replacing any previous entry atomically.
func (c *FileCache) Set(key string, value []byte) error {
	path := c.fileName(key)
	log := logrus.WithFields(logrus.Fields{"cache_key": key, "data_length": len(value)})

	compressed := c.encoder.EncodeAll(encodeEntry(key, value), nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	tmp, err := os.CreateTemp(c.basePath, ".entry-*")
	if err != nil {
		log.WithError(err).Error("Failed to create cache entry")
		return err
	}
	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		log.WithError(err).Error("Failed to write cache entry")
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		log.WithError(err).Error("Failed to commit cache entry")
		return err
	}
	log.Debug("Cache entry written")
	return nil
}

// Get returns the value stored under key. A missing entry is not an error.
func (c *FileCache) Get(key string) ([]byte, bool, error) {
	c.mu.Lock()
	stored, value, err := c.readEntry(c.fileName(key))
	c.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache entry %s: %w", key, err)
	}
	if stored != key {
		return nil, false, nil
	}
	return value, true, nil
}

// Remove deletes the entry. Removing a missing entry succeeds.
func (c *FileCache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.fileName(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Keys lists the keys of every stored entry. Unreadable files are skipped.
func (c *FileCache) Keys() ([]string, error) {
	entries, err := os.ReadDir(c.basePath)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		key, _, err := c.readEntry(filepath.Join(c.basePath, name))
		if err != nil {
			logrus.WithField("file", name).WithError(err).Warn("Skipping unreadable cache entry")
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Close releases the compressor resources.
func (c *FileCache) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

// MemoryCache is a process-local cache, used in tests and when no cache
// directory is configured.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string][]byte)}
}

func (c *MemoryCache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = bytes.Clone(value)
	return nil
}

func (c *MemoryCache) Get(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (c *MemoryCache) Remove(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Len returns the number of entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
