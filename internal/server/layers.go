package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tile"
)

// maxSourceURLLen matches the longest URL common proxies accept.
const maxSourceURLLen = 2083

type createLayerRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	SourceURL string `json:"source_url"`
	MinZoom   *int   `json:"min_zoom"`
	MaxZoom   *int   `json:"max_zoom"`
}

func (s *Server) handleCreateLayer(w http.ResponseWriter, r *http.Request) {
	var req createLayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	layer, err := buildLayer(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.CreateLayer(r.Context(), layer)
	if err != nil {
		s.logger.Error("create layer", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create layer")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"layerId": id,
		"status":  "processing",
	})
}

func buildLayer(req createLayerRequest) (model.Layer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Layer{}, errors.New("name is required")
	}

	layerType, err := model.ParseLayerType(req.Type)
	if err != nil {
		return model.Layer{}, err
	}

	src := strings.TrimSpace(req.SourceURL)
	if src == "" {
		return model.Layer{}, errors.New("source_url is required")
	}
	if len(src) > maxSourceURLLen {
		return model.Layer{}, fmt.Errorf("source_url exceeds %d characters", maxSourceURLLen)
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") && !strings.HasPrefix(src, "/") {
		return model.Layer{}, errors.New("source_url must be an http(s) URL or an absolute path")
	}

	minZoom, maxZoom := 0, 18
	if req.MinZoom != nil {
		minZoom = *req.MinZoom
	}
	if req.MaxZoom != nil {
		maxZoom = *req.MaxZoom
	}
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		return model.Layer{}, err
	}

	return model.Layer{
		Name:      name,
		Type:      layerType,
		SourceURL: src,
		MinZoom:   minZoom,
		MaxZoom:   maxZoom,
	}, nil
}

func validateZoomRange(minZoom, maxZoom int) error {
	if minZoom < tile.ZoomMin || minZoom > tile.ZoomMax {
		return fmt.Errorf("min_zoom %d out of range [%d,%d]", minZoom, tile.ZoomMin, tile.ZoomMax)
	}
	if maxZoom < tile.ZoomMin || maxZoom > tile.ZoomMax {
		return fmt.Errorf("max_zoom %d out of range [%d,%d]", maxZoom, tile.ZoomMin, tile.ZoomMax)
	}
	if minZoom > maxZoom {
		return fmt.Errorf("min_zoom %d exceeds max_zoom %d", minZoom, maxZoom)
	}
	return nil
}

func (s *Server) handleListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := s.store.ListLayers(r.Context())
	if err != nil {
		s.logger.Error("list layers", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list layers")
		return
	}
	// Clients decode a bare array; an empty database must yield [].
	if layers == nil {
		layers = []model.Layer{}
	}
	writeJSON(w, http.StatusOK, layers)
}

func (s *Server) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "layer not found")
		return
	}

	layer, err := s.store.GetLayer(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "layer not found")
		return
	}
	if err != nil {
		s.logger.Error("get layer", "err", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load layer")
		return
	}
	writeJSON(w, http.StatusOK, layer)
}
