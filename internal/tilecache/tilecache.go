// Package tilecache is the on-disk XYZ tile cache with a small in-memory
// LRU in front. The disk layout is deterministic per (layer, z, x, y) and
// shared between the tile server (reads, WMS fills) and the ingestion
// worker (pre-generated pyramids, MBTiles assembly).
package tilecache

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/andromapper/geomapper/internal/observability"
)

type Cache struct {
	baseDir string
	mem     *lru.Cache[string, []byte]
}

// New creates a cache rooted at baseDir. memSize bounds the number of
// tiles kept in memory; <= 0 disables the memory layer.
func New(baseDir string, memSize int) (*Cache, error) {
	c := &Cache{baseDir: baseDir}
	if memSize > 0 {
		mem, err := lru.New[string, []byte](memSize)
		if err != nil {
			return nil, fmt.Errorf("lru: %w", err)
		}
		c.mem = mem
	}
	return c, nil
}

// LayerDir returns the storage directory for a layer.
func (c *Cache) LayerDir(layerID int64) string {
	return filepath.Join(c.baseDir, "layers", fmt.Sprintf("%d", layerID))
}

// TilePath returns the deterministic on-disk path for a tile.
func (c *Cache) TilePath(layerID int64, z, x, y int) string {
	return filepath.Join(c.LayerDir(layerID), "tiles",
		fmt.Sprintf("%d", z), fmt.Sprintf("%d", x), fmt.Sprintf("%d.png", y))
}

func (c *Cache) key(layerID int64, z, x, y int) string {
	return fmt.Sprintf("%d/%d/%d/%d", layerID, z, x, y)
}

// Get returns the cached tile bytes, or ok=false when the tile is absent.
func (c *Cache) Get(layerID int64, z, x, y int) ([]byte, bool, error) {
	key := c.key(layerID, z, x, y)
	if c.mem != nil {
		if data, ok := c.mem.Get(key); ok {
			observability.ObserveTileCache("hit_mem")
			return data, true, nil
		}
	}

	data, err := os.ReadFile(c.TilePath(layerID, z, x, y))
	if os.IsNotExist(err) {
		observability.ObserveTileCache("miss")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read tile: %w", err)
	}
	observability.ObserveTileCache("hit_disk")
	if c.mem != nil {
		c.mem.Add(key, data)
	}
	return data, true, nil
}

// Put persists a tile. Concurrent writers for the same tile are tolerated;
// the rename makes the last writer win with no torn reads.
func (c *Cache) Put(layerID int64, z, x, y int, data []byte) error {
	path := c.TilePath(layerID, z, x, y)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tile dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*")
	if err != nil {
		return fmt.Errorf("temp tile: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write tile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close tile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename tile: %w", err)
	}

	if c.mem != nil {
		c.mem.Add(c.key(layerID, z, x, y), data)
	}
	return nil
}
