package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tile"
)

// handleTile serves one XYZ tile. Cached tiles are served from disk or
// memory; for WMS layers a miss is fetched from the upstream, cached and
// served in one pass. Upstream failures never poison the cache.
func (s *Server) handleTile(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if errZ != nil || errX != nil || errY != nil {
		writeError(w, http.StatusBadRequest, "tile coordinates must be integers")
		return
	}
	if err := tile.Validate(z, x, y); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

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

	data, ok, err := s.cache.Get(layerID, z, x, y)
	if err != nil {
		s.logger.Error("tile cache read", "err", err, "layer", layerID)
		writeError(w, http.StatusInternalServerError, "failed to read tile")
		return
	}
	if ok {
		serveTile(w, data)
		return
	}

	if layer.Type != model.TypeWMS {
		writeError(w, http.StatusNotFound, "tile not found")
		return
	}

	data, err = s.wms.FetchTile(r.Context(), layer.SourceURL, layer.Name, z, x, y)
	if err != nil {
		s.logger.Warn("wms upstream fetch", "err", err, "layer", layerID, "z", z, "x", x, "y", y)
		writeError(w, http.StatusBadGateway, "upstream WMS request failed")
		return
	}
	if err := s.cache.Put(layerID, z, x, y, data); err != nil {
		// Serve anyway; the next request retries the write.
		s.logger.Warn("tile cache write", "err", err, "layer", layerID)
	}
	serveTile(w, data)
}

func serveTile(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}
