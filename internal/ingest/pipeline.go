package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/wms"
)

// pipelineResult is what a per-type pipeline reports back: the primary
// local artifact and the extracted bounds, both optional.
type pipelineResult struct {
	localPath string
	bounds    string
}

func (w *Worker) processLayer(ctx context.Context, layerID int64) error {
	layer, err := w.store.GetLayer(ctx, layerID)
	if err != nil {
		return fmt.Errorf("load layer %d: %w", layerID, err)
	}

	if err := w.store.SetLayerStatus(ctx, layer.ID, model.LayerProcessing); err != nil {
		return err
	}

	layerDir := w.cache.LayerDir(layer.ID)
	if err := os.MkdirAll(filepath.Join(layerDir, "tiles"), 0o755); err != nil {
		return fmt.Errorf("create layer dir: %w", err)
	}

	res, err := w.runPipeline(ctx, layer, layerDir)
	if err != nil {
		if stErr := w.store.SetLayerStatus(ctx, layer.ID, model.LayerError); stErr != nil {
			w.logger.Error("set layer error status failed", "layer_id", layer.ID, "err", stErr)
		}
		return fmt.Errorf("process layer %d (%s): %w", layer.ID, layer.Type, err)
	}

	if err := writeMetadata(layerDir, layer, res.bounds); err != nil {
		if stErr := w.store.SetLayerStatus(ctx, layer.ID, model.LayerError); stErr != nil {
			w.logger.Error("set layer error status failed", "layer_id", layer.ID, "err", stErr)
		}
		return err
	}

	if res.localPath != "" || res.bounds != "" {
		if err := w.store.SetLayerResult(ctx, layer.ID, res.localPath, res.bounds); err != nil {
			return err
		}
	}
	return w.store.SetLayerStatus(ctx, layer.ID, model.LayerReady)
}

// runPipeline routes to the handler for the layer's type. The switch is
// complete over the closed LayerType set; ParseLayerType guarantees no
// other value reaches here.
func (w *Worker) runPipeline(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	switch layer.Type {
	case model.TypeWMS:
		return w.processWMS(layer)
	case model.TypeWFS:
		return w.processWFS(ctx, layer, layerDir)
	case model.TypeGeoTIFF:
		return w.processGeoTIFF(ctx, layer, layerDir)
	case model.TypeGeoPDF:
		return w.processGeoPDF(ctx, layer, layerDir)
	case model.TypeShapefile:
		return w.processShapefile(ctx, layer, layerDir)
	case model.TypeGeoJSON:
		return w.processGeoJSON(ctx, layer, layerDir)
	}
	return pipelineResult{}, fmt.Errorf("unhandled layer type %q", layer.Type)
}

// processWMS writes metadata only; tiles are fetched lazily by the tile
// server on first request.
func (w *Worker) processWMS(layer model.Layer) (pipelineResult, error) {
	if err := wms.ValidateSourceURL(layer.SourceURL); err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{}, nil
}

// processWFS hands the remote feature endpoint straight to the toolchain,
// which reprojects and simplifies it into a single normalized GeoJSON file.
func (w *Worker) processWFS(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	if err := w.fetcher.ValidateURL(ctx, layer.SourceURL); err != nil {
		return pipelineResult{}, err
	}
	out := filepath.Join(layerDir, "output.geojson")
	if err := w.tc.ReprojectVector(ctx, layer.SourceURL, out, true); err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{localPath: out}, nil
}

func (w *Worker) processGeoTIFF(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	local, err := w.fetcher.Download(ctx, layer.SourceURL, layer.ID)
	if err != nil {
		return pipelineResult{}, err
	}
	return w.warpAndTile(ctx, layer, layerDir, local)
}

// processGeoPDF converts the PDF to an intermediate TIFF first, then runs
// the same warp-and-tile path as GeoTIFF.
func (w *Worker) processGeoPDF(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	local, err := w.fetcher.Download(ctx, layer.SourceURL, layer.ID)
	if err != nil {
		return pipelineResult{}, err
	}
	converted := filepath.Join(layerDir, "converted.tif")
	if err := w.tc.Translate(ctx, local, converted); err != nil {
		return pipelineResult{}, err
	}
	return w.warpAndTile(ctx, layer, layerDir, converted)
}

func (w *Worker) warpAndTile(ctx context.Context, layer model.Layer, layerDir, src string) (pipelineResult, error) {
	warped := filepath.Join(layerDir, "warped.tif")
	if err := w.tc.Warp(ctx, src, warped); err != nil {
		return pipelineResult{}, err
	}
	if err := w.tc.AddOverviews(ctx, warped); err != nil {
		return pipelineResult{}, err
	}
	if err := w.tc.GenerateTiles(ctx, warped, filepath.Join(layerDir, "tiles"), layer.MinZoom, layer.MaxZoom); err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{localPath: warped, bounds: w.tc.Bounds(ctx, warped)}, nil
}

func (w *Worker) processShapefile(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	local, err := w.fetcher.Download(ctx, layer.SourceURL, layer.ID)
	if err != nil {
		return pipelineResult{}, err
	}

	shp := local
	if strings.EqualFold(filepath.Ext(local), ".zip") {
		shp, err = extractVectorFile(local, filepath.Join(layerDir, "shp_extract"))
		if err != nil {
			return pipelineResult{}, err
		}
	}

	out := filepath.Join(layerDir, "output.geojson")
	if err := w.tc.ReprojectVector(ctx, shp, out, true); err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{localPath: out}, nil
}

// processGeoJSON fetches (or reads) the source, requires syntactically
// valid JSON before any conversion, then normalizes to EPSG:3857.
func (w *Worker) processGeoJSON(ctx context.Context, layer model.Layer, layerDir string) (pipelineResult, error) {
	local := layer.SourceURL
	if strings.HasPrefix(strings.ToLower(local), "http://") || strings.HasPrefix(strings.ToLower(local), "https://") {
		var err error
		local, err = w.fetcher.Download(ctx, layer.SourceURL, layer.ID)
		if err != nil {
			return pipelineResult{}, err
		}
	}

	raw, err := os.ReadFile(local)
	if err != nil {
		return pipelineResult{}, fmt.Errorf("read geojson source: %w", err)
	}
	if !json.Valid(raw) {
		return pipelineResult{}, fmt.Errorf("source is not valid JSON")
	}

	out := filepath.Join(layerDir, "output.geojson")
	if err := w.tc.ReprojectVector(ctx, local, out, false); err != nil {
		return pipelineResult{}, err
	}
	return pipelineResult{localPath: out}, nil
}
