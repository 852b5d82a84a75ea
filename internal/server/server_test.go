package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/andromapper/geomapper/internal/config"
	"github.com/andromapper/geomapper/internal/logger"
	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tilecache"
	"github.com/andromapper/geomapper/internal/wms"
)

type testServer struct {
	srv      *Server
	router   http.Handler
	store    *store.Store
	cache    *tilecache.Cache
	upstream *httptest.Server
	hits     *atomic.Int64
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestServer(t *testing.T, upstream http.HandlerFunc) *testServer {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cache, err := tilecache.New(dir, 64)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	var hits atomic.Int64
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if upstream != nil {
			upstream(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(up.Close)

	zl := zerolog.Nop()
	srv := New(config.Config{Addr: ":0"}, st, cache, wms.New(up.Client()), logger.NewSlog(&zl))

	return &testServer{
		srv:      srv,
		router:   srv.Router(),
		store:    st,
		cache:    cache,
		upstream: up,
		hits:     &hits,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) readyLayer(t *testing.T, layerType model.LayerType, sourceURL string) int64 {
	t.Helper()
	id, err := ts.store.CreateLayer(context.Background(), model.Layer{
		Name:      "test layer",
		Type:      layerType,
		SourceURL: sourceURL,
		MaxZoom:   18,
	})
	if err != nil {
		t.Fatalf("CreateLayer: %v", err)
	}
	if err := ts.store.SetLayerStatus(context.Background(), id, model.LayerReady); err != nil {
		t.Fatalf("SetLayerStatus: %v", err)
	}
	return id
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestCreateLayer(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/layers", map[string]any{
		"name":       "osm base",
		"type":       "wms",
		"source_url": "https://maps.example.com/wms",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["status"] != "processing" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["layerId"] == nil {
		t.Error("no layerId in response")
	}

	// The accepted layer is persisted as pending with default zooms.
	layer, err := ts.store.GetLayer(context.Background(), int64(resp["layerId"].(float64)))
	if err != nil {
		t.Fatalf("GetLayer: %v", err)
	}
	if layer.Status != model.LayerPending || layer.MinZoom != 0 || layer.MaxZoom != 18 {
		t.Errorf("persisted layer = %+v", layer)
	}
}

func TestCreateLayerValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"type": "wms", "source_url": "https://x.example.com/wms"}},
		{"blank name", map[string]any{"name": "  ", "type": "wms", "source_url": "https://x.example.com/wms"}},
		{"unknown type", map[string]any{"name": "x", "type": "raster", "source_url": "https://x.example.com/wms"}},
		{"missing source", map[string]any{"name": "x", "type": "wms"}},
		{"bad scheme", map[string]any{"name": "x", "type": "wms", "source_url": "ftp://x.example.com/wms"}},
		{"relative path", map[string]any{"name": "x", "type": "geojson", "source_url": "data/parks.geojson"}},
		{"overlong url", map[string]any{"name": "x", "type": "wms", "source_url": "https://x.example.com/" + strings.Repeat("a", 2100)}},
		{"min above max", map[string]any{"name": "x", "type": "wms", "source_url": "https://x.example.com/wms", "min_zoom": 10, "max_zoom": 5}},
		{"zoom out of range", map[string]any{"name": "x", "type": "wms", "source_url": "https://x.example.com/wms", "max_zoom": 30}},
		{"negative zoom", map[string]any{"name": "x", "type": "wms", "source_url": "https://x.example.com/wms", "min_zoom": -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/layers", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}

	// A local absolute path is a valid source for file-based types.
	rec := ts.do(t, http.MethodPost, "/api/layers", map[string]any{
		"name": "parks", "type": "geojson", "source_url": "/data/parks.geojson",
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("absolute path rejected: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetAndListLayers(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeWMS, "https://maps.example.com/wms")

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/layers/%d", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var layer model.Layer
	if err := json.Unmarshal(rec.Body.Bytes(), &layer); err != nil {
		t.Fatalf("decode layer: %v", err)
	}
	if layer.ID != id || layer.Status != model.LayerReady {
		t.Errorf("layer = %+v", layer)
	}

	if rec := ts.do(t, http.MethodGet, "/api/layers/999", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing layer status = %d", rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/layers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var layers []model.Layer
	if err := json.Unmarshal(rec.Body.Bytes(), &layers); err != nil {
		t.Fatalf("list is not a bare array: %v; body = %s", err, rec.Body.String())
	}
	if len(layers) != 1 || layers[0].ID != id {
		t.Errorf("layers = %+v", layers)
	}
}

// The list endpoint answers a bare JSON array, [] when empty; clients
// decode it directly into a slice.
func TestListLayersBareArray(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/api/layers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("empty list body = %q, want []", body)
	}

	ts.readyLayer(t, model.TypeWMS, "https://maps.example.com/wms")
	rec = ts.do(t, http.MethodGet, "/api/layers", nil)
	var layers []model.Layer
	if err := json.Unmarshal(rec.Body.Bytes(), &layers); err != nil {
		t.Fatalf("list is not a bare array: %v; body = %s", err, rec.Body.String())
	}
	if len(layers) != 1 {
		t.Errorf("got %d layers, want 1", len(layers))
	}
}

func TestTileValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	for _, path := range []string{
		fmt.Sprintf("/tiles/%d/23/0/0.png", id),
		fmt.Sprintf("/tiles/%d/3/8/0.png", id),
		fmt.Sprintf("/tiles/%d/3/0/-1.png", id),
		fmt.Sprintf("/tiles/%d/abc/0/0.png", id),
	} {
		if rec := ts.do(t, http.MethodGet, path, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, rec.Code)
		}
	}
	if ts.hits.Load() != 0 {
		t.Errorf("invalid tile requests reached upstream %d times", ts.hits.Load())
	}

	if rec := ts.do(t, http.MethodGet, "/tiles/999/3/1/1.png", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown layer = %d, want 404", rec.Code)
	}
}

func TestTileLayerNotReady(t *testing.T) {
	ts := newTestServer(t, nil)
	id, _ := ts.store.CreateLayer(context.Background(), model.Layer{
		Name: "pending", Type: model.TypeWMS, SourceURL: ts.upstream.URL, MaxZoom: 18,
	})

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/tiles/%d/3/1/1.png", id), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	resp := decode(t, rec)
	if resp["status"] != "pending" {
		t.Errorf("echoed status = %v", resp["status"])
	}
}

func TestTileServedFromCache(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeGeoTIFF, "https://files.example.com/relief.tif")

	tileData := pngBytes(t)
	if err := ts.cache.Put(id, 3, 1, 2, tileData); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/tiles/%d/3/1/2.png", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=86400" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !bytes.Equal(rec.Body.Bytes(), tileData) {
		t.Error("tile bytes differ")
	}
	if ts.hits.Load() != 0 {
		t.Error("cached tile request reached upstream")
	}

	// Non-WMS layers have no fallback for uncached tiles.
	if rec := ts.do(t, http.MethodGet, fmt.Sprintf("/tiles/%d/3/1/3.png", id), nil); rec.Code != http.StatusNotFound {
		t.Errorf("uncached raster tile = %d, want 404", rec.Code)
	}
}

func TestTileWMSFetchAndCache(t *testing.T) {
	tileData := []byte{}
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(tileData)
	})
	tileData = pngBytes(t)
	id := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	path := fmt.Sprintf("/tiles/%d/4/5/6.png", id)
	rec := ts.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ts.hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", ts.hits.Load())
	}

	// Second request is a cache hit and never leaves the server.
	rec = ts.do(t, http.MethodGet, path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if ts.hits.Load() != 1 {
		t.Errorf("upstream hits = %d after cached request, want 1", ts.hits.Load())
	}
}

func TestTileWMSUpstreamFailure(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "exception", http.StatusInternalServerError)
	})
	id := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/tiles/%d/4/5/6.png", id), nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	// The failure must not leave anything in the cache.
	if _, ok, _ := ts.cache.Get(id, 4, 5, 6); ok {
		t.Error("failed upstream response was cached")
	}
}

func TestGeoJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeGeoJSON, "/data/parks.geojson")

	fc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[5,5]}},
		{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[50,50]}}
	]}`
	layerDir := ts.cache.LayerDir(id)
	if err := os.MkdirAll(layerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(layerDir, "output.geojson"), []byte(fc), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", cc)
	}
	full := decode(t, rec)
	if feats := full["features"].([]any); len(feats) != 2 {
		t.Errorf("unfiltered features = %d, want 2", len(feats))
	}

	// A bbox narrows the response.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d?bbox=0,0,10,10", id), nil)
	filtered := decode(t, rec)
	if feats := filtered["features"].([]any); len(feats) != 1 {
		t.Errorf("filtered features = %d, want 1", len(feats))
	}

	// An unparseable bbox falls back to the full collection.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d?bbox=bogus", id), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bogus bbox status = %d", rec.Code)
	}
	full = decode(t, rec)
	if feats := full["features"].([]any); len(feats) != 2 {
		t.Errorf("bogus bbox features = %d, want 2", len(feats))
	}
}

func TestGeoJSONMissingData(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeGeoJSON, "/data/parks.geojson")

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// A raster layer's local_path points at warped.tif; the endpoint must
// answer 404 rather than stream the raster as GeoJSON.
func TestGeoJSONRasterLayer(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	id := ts.readyLayer(t, model.TypeGeoTIFF, "https://files.example.com/relief.tif")

	layerDir := ts.cache.LayerDir(id)
	if err := os.MkdirAll(layerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	warped := filepath.Join(layerDir, "warped.tif")
	if err := os.WriteFile(warped, []byte("II*\x00not-geojson"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ts.store.SetLayerResult(ctx, id, warped, "1,2,3,4"); err != nil {
		t.Fatalf("SetLayerResult: %v", err)
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("raster layer status = %d, want 404; body = %q", rec.Code, rec.Body.String())
	}
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/geojson/%d?bbox=0,0,10,10", id), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("raster layer with bbox status = %d, want 404", rec.Code)
	}
}

func TestCreatePackage(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	rec := ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": id,
		"minZoom": 0,
		"maxZoom": 5,
		"bbox":    "-100,-100,100,100",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decode(t, rec)
	if resp["status"] != "pending" || resp["packageId"] == nil {
		t.Errorf("response = %v", resp)
	}
}

func TestCreatePackageValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	readyID := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)
	pendingID, _ := ts.store.CreateLayer(context.Background(), model.Layer{
		Name: "pending", Type: model.TypeWMS, SourceURL: ts.upstream.URL, MaxZoom: 18,
	})

	rec := ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": int64(999), "bbox": "-1,-1,1,1",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown layer = %d, want 404", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": pendingID, "bbox": "-1,-1,1,1",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("pending layer = %d, want 503", rec.Code)
	}
	if resp := decode(t, rec); resp["status"] != "pending" {
		t.Errorf("echoed status = %v", resp["status"])
	}

	rec = ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": readyID, "bbox": "1,1,-1,-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted bbox = %d, want 400", rec.Code)
	}

	rec = ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": readyID, "bbox": "-1,-1,1,1", "minZoom": 9, "maxZoom": 2,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("inverted zooms = %d, want 400", rec.Code)
	}
}

// The request body casing matches what the map clients serialize; snake
// case keys are not part of the contract and decode to zero values.
func TestCreatePackageBodyCasing(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	rec := ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layerId": id, "minZoom": 1, "maxZoom": 3, "bbox": "-1,-1,1,1",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("camelCase body = %d, want 202; body = %s", rec.Code, rec.Body.String())
	}
	pkgID := int64(decode(t, rec)["packageId"].(float64))
	pkg, err := ts.store.GetPackage(context.Background(), pkgID)
	if err != nil {
		t.Fatalf("GetPackage: %v", err)
	}
	if pkg.LayerID != id || pkg.MinZoom != 1 || pkg.MaxZoom != 3 {
		t.Errorf("persisted package = %+v", pkg)
	}

	rec = ts.do(t, http.MethodPost, "/api/offline-package", map[string]any{
		"layer_id": id, "bbox": "-1,-1,1,1",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("snake_case layer_id = %d, want 404 (layerId absent)", rec.Code)
	}
}

func TestPackageStatusAndDownload(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	layerID := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	pkgID, err := ts.store.CreatePackage(ctx, model.OfflinePackage{
		LayerID: layerID, MinZoom: 0, MaxZoom: 2, BBox: "-1,-1,1,1",
	})
	if err != nil {
		t.Fatalf("CreatePackage: %v", err)
	}

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/offline-package/%d", pkgID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint = %d", rec.Code)
	}
	if resp := decode(t, rec); resp["status"] != "pending" {
		t.Errorf("status = %v", resp["status"])
	}

	// Downloading before the build finishes answers with the poll shape,
	// not a broken attachment.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/offline-package/%d/download", pkgID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("early download = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("early download Content-Type = %q", ct)
	}

	archive := []byte("sqlite archive bytes")
	archivePath := filepath.Join(t.TempDir(), "package_1.mbtiles")
	if err := os.WriteFile(archivePath, archive, 0o644); err != nil {
		t.Fatal(err)
	}
	ts.store.SetPackageStatus(ctx, pkgID, model.PackageDownloading)
	if err := ts.store.SetPackageReady(ctx, pkgID, archivePath); err != nil {
		t.Fatalf("SetPackageReady: %v", err)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/offline-package/%d", pkgID), nil)
	resp := decode(t, rec)
	if resp["status"] != "ready" {
		t.Fatalf("status = %v", resp["status"])
	}
	wantName := fmt.Sprintf("offline_layer%d_pkg%d.mbtiles", layerID, pkgID)
	if resp["fileName"] != wantName {
		t.Errorf("fileName = %v, want %s", resp["fileName"], wantName)
	}

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/offline-package/%d/download", pkgID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("download = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-sqlite3" {
		t.Errorf("download Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, wantName) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if cl := rec.Header().Get("Content-Length"); cl != fmt.Sprintf("%d", len(archive)) {
		t.Errorf("Content-Length = %q, want %d", cl, len(archive))
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !bytes.Equal(rec.Body.Bytes(), archive) {
		t.Error("downloaded bytes differ")
	}
}

func TestPackageDownloadMissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	layerID := ts.readyLayer(t, model.TypeWMS, ts.upstream.URL)

	pkgID, _ := ts.store.CreatePackage(ctx, model.OfflinePackage{
		LayerID: layerID, MaxZoom: 2, BBox: "-1,-1,1,1",
	})
	ts.store.SetPackageReady(ctx, pkgID, filepath.Join(t.TempDir(), "vanished.mbtiles"))

	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/offline-package/%d/download", pkgID), nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", v)
	}
	if v := rec.Header().Get("X-Frame-Options"); v != "DENY" {
		t.Errorf("X-Frame-Options = %q", v)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}
