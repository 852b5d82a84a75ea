package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/andromapper/geomapper/internal/model"
)

// layerMetadata is the metadata.json written beside each layer's artifacts.
type layerMetadata struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      model.LayerType `json:"type"`
	MinZoom   int             `json:"min_zoom"`
	MaxZoom   int             `json:"max_zoom"`
	Bounds    string          `json:"bounds"`
	Generated string          `json:"generated"`
}

func writeMetadata(layerDir string, layer model.Layer, bounds string) error {
	if bounds == "" {
		bounds = layer.Bounds
	}
	meta := layerMetadata{
		ID:        layer.ID,
		Name:      layer.Name,
		Type:      layer.Type,
		MinZoom:   layer.MinZoom,
		MaxZoom:   layer.MaxZoom,
		Bounds:    bounds,
		Generated: time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(layerDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
