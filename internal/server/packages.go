package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andromapper/geomapper/internal/geofilter"
	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/store"
)

// createPackageRequest uses the camelCase field names the map clients
// send, matching the packageId/layerId casing in responses.
type createPackageRequest struct {
	LayerID int64  `json:"layerId"`
	MinZoom *int   `json:"minZoom"`
	MaxZoom *int   `json:"maxZoom"`
	BBox    string `json:"bbox"`
}

// handleCreatePackage enqueues an MBTiles build for a ready layer and
// answers 202 immediately; the archive is produced by a worker.
func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	layer, err := s.store.GetLayer(r.Context(), req.LayerID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "layer not found")
		return
	}
	if err != nil {
		s.logger.Error("get layer", "err", err, "id", req.LayerID)
		writeError(w, http.StatusInternalServerError, "failed to load layer")
		return
	}
	if layer.Status != model.LayerReady {
		writeNotReady(w, "layer is not ready for packaging", string(layer.Status))
		return
	}

	minZoom, maxZoom := 0, 14
	if req.MinZoom != nil {
		minZoom = *req.MinZoom
	}
	if req.MaxZoom != nil {
		maxZoom = *req.MaxZoom
	}
	if err := validateZoomRange(minZoom, maxZoom); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := geofilter.ParseBBox(req.BBox); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.store.CreatePackage(r.Context(), model.OfflinePackage{
		LayerID: layer.ID,
		MinZoom: minZoom,
		MaxZoom: maxZoom,
		BBox:    req.BBox,
	})
	if err != nil {
		s.logger.Error("create package", "err", err, "layer", layer.ID)
		writeError(w, http.StatusInternalServerError, "failed to create package")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"packageId": id,
		"status":    string(model.PackagePending),
	})
}

func (s *Server) loadPackage(w http.ResponseWriter, r *http.Request) (model.OfflinePackage, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "package not found")
		return model.OfflinePackage{}, false
	}
	pkg, err := s.store.GetPackage(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "package not found")
		return model.OfflinePackage{}, false
	}
	if err != nil {
		s.logger.Error("get package", "err", err, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to load package")
		return model.OfflinePackage{}, false
	}
	return pkg, true
}

func (s *Server) handlePackageStatus(w http.ResponseWriter, r *http.Request) {
	pkg, ok := s.loadPackage(w, r)
	if !ok {
		return
	}

	resp := map[string]any{
		"packageId": pkg.ID,
		"layerId":   pkg.LayerID,
		"status":    string(pkg.Status),
	}
	if pkg.Status == model.PackageReady {
		resp["fileName"] = packageFileName(pkg)
		if info, err := os.Stat(pkg.FilePath); err == nil {
			resp["sizeBytes"] = info.Size()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePackageDownload streams the finished archive. Until the package
// is ready the response is the same JSON status shape the poll endpoint
// returns, so clients can hit one URL in a loop.
func (s *Server) handlePackageDownload(w http.ResponseWriter, r *http.Request) {
	pkg, ok := s.loadPackage(w, r)
	if !ok {
		return
	}

	if pkg.Status != model.PackageReady {
		writeJSON(w, http.StatusOK, map[string]any{
			"packageId": pkg.ID,
			"status":    string(pkg.Status),
		})
		return
	}

	f, err := os.Open(pkg.FilePath)
	if err != nil {
		s.logger.Error("open package file", "err", err, "id", pkg.ID)
		writeError(w, http.StatusInternalServerError, "package file is missing")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.logger.Error("stat package file", "err", err, "id", pkg.ID)
		writeError(w, http.StatusInternalServerError, "package file is unreadable")
		return
	}

	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", packageFileName(pkg)))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Cache-Control", "private, no-cache")
	_, _ = io.Copy(w, f)
}

func packageFileName(pkg model.OfflinePackage) string {
	return fmt.Sprintf("offline_layer%d_pkg%d.mbtiles", pkg.LayerID, pkg.ID)
}
