package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/andromapper/geomapper/internal/geofilter"
	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/store"
)

// handleGeoJSON serves a layer's reprojected GeoJSON. A valid bbox query
// parameter narrows the response to intersecting features; an invalid one
// is ignored and the full collection is returned.
func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	layerID, err := strconv.ParseInt(chi.URLParam(r, "layer"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "layer not found")
		return
	}

	layer, err := s.store.GetLayer(r.Context(), layerID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "layer not found")
		return
	}
	if err != nil {
		s.logger.Error("get layer", "err", err, "id", layerID)
		writeError(w, http.StatusInternalServerError, "failed to load layer")
		return
	}
	if layer.Status != model.LayerReady {
		writeNotReady(w, "layer is not ready", string(layer.Status))
		return
	}

	// Only the normalized output.geojson is servable. LocalPath may point
	// at a raster artifact (warped.tif) for geotiff and geopdf layers.
	path := filepath.Join(s.cache.LayerDir(layerID), "output.geojson")
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, "no GeoJSON data for this layer")
		return
	}
	if err != nil {
		s.logger.Error("read geojson", "err", err, "layer", layerID)
		writeError(w, http.StatusInternalServerError, "failed to read layer data")
		return
	}

	body := raw
	if bboxParam := r.URL.Query().Get("bbox"); bboxParam != "" {
		if bbox, err := geofilter.ParseBBox(bboxParam); err == nil {
			fc, err := geojson.UnmarshalFeatureCollection(raw)
			if err != nil {
				s.logger.Error("parse stored geojson", "err", err, "layer", layerID)
				writeError(w, http.StatusInternalServerError, "stored layer data is not valid GeoJSON")
				return
			}
			filtered, err := geofilter.Filter(fc, bbox).MarshalJSON()
			if err != nil {
				s.logger.Error("encode geojson", "err", err, "layer", layerID)
				writeError(w, http.StatusInternalServerError, "failed to encode layer data")
				return
			}
			body = filtered
		}
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(body)
}
