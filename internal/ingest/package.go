package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/andromapper/geomapper/internal/geofilter"
	"github.com/andromapper/geomapper/internal/mbtiles"
	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/tile"
)

// buildPackage assembles an MBTiles archive from the layer's cached tiles
// across the requested zoom range and bbox, then flips the package to ready.
func (w *Worker) buildPackage(ctx context.Context, p model.BuildMBTilesPayload) error {
	layer, err := w.store.GetLayer(ctx, p.LayerID)
	if err != nil {
		return fmt.Errorf("load layer %d: %w", p.LayerID, err)
	}

	if err := w.store.SetPackageStatus(ctx, p.PackageID, model.PackageDownloading); err != nil {
		return err
	}

	bbox, err := geofilter.ParseBBox(p.BBox)
	if err != nil {
		return fmt.Errorf("package bbox: %w", err)
	}
	// Package bboxes are in the EPSG:3857 serving projection, like the
	// tiles they select.
	merc := tile.BBox{MinX: bbox.MinX, MinY: bbox.MinY, MaxX: bbox.MaxX, MaxY: bbox.MaxY}

	outDir := filepath.Join(w.cache.LayerDir(layer.ID), "mbtiles")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create mbtiles dir: %w", err)
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("package_%d.mbtiles", p.PackageID))

	writer, err := mbtiles.Create(outPath)
	if err != nil {
		return err
	}
	defer writer.Close()

	meta := map[string]string{
		"name":    layer.Name,
		"format":  "png",
		"bounds":  p.BBox,
		"minzoom": strconv.Itoa(p.MinZoom),
		"maxzoom": strconv.Itoa(p.MaxZoom),
	}
	for k, v := range meta {
		if err := writer.PutMetadata(k, v); err != nil {
			return err
		}
	}

	tiles := 0
	for z := p.MinZoom; z <= p.MaxZoom; z++ {
		r := tile.CoveringRange(merc, z)
		for x := r.MinX; x <= r.MaxX; x++ {
			for y := r.MinY; y <= r.MaxY; y++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				data, ok, err := w.cache.Get(layer.ID, z, x, y)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if err := writer.PutTile(z, x, y, data); err != nil {
					return err
				}
				tiles++
			}
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}

	w.logger.Info("package built", "package_id", p.PackageID, "layer_id", layer.ID, "tiles", tiles)
	return w.store.SetPackageReady(ctx, p.PackageID, outPath)
}
