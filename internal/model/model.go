// Package model defines the persistent entities of the geomapper server:
// layers, jobs and offline packages, with their status state machines.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// LayerType is the closed set of ingestible source kinds. Values outside
// the set are rejected at the API boundary by ParseLayerType, so code past
// the model never sees an unknown type.
type LayerType string

const (
	TypeWMS       LayerType = "wms"
	TypeWFS       LayerType = "wfs"
	TypeGeoTIFF   LayerType = "geotiff"
	TypeGeoPDF    LayerType = "geopdf"
	TypeShapefile LayerType = "shapefile"
	TypeGeoJSON   LayerType = "geojson"
)

// LayerTypes lists every valid layer type, in the order they are documented.
var LayerTypes = []LayerType{TypeWMS, TypeWFS, TypeGeoTIFF, TypeGeoPDF, TypeShapefile, TypeGeoJSON}

func ParseLayerType(s string) (LayerType, error) {
	for _, t := range LayerTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown layer type %q", s)
}

// LayerStatus advances pending → processing → ready|error and never
// reverts without a new job.
type LayerStatus string

const (
	LayerPending    LayerStatus = "pending"
	LayerProcessing LayerStatus = "processing"
	LayerReady      LayerStatus = "ready"
	LayerError      LayerStatus = "error"
)

type Layer struct {
	ID        int64       `json:"id"`
	Name      string      `json:"name"`
	Type      LayerType   `json:"type"`
	SourceURL string      `json:"source_url"`
	MinZoom   int         `json:"min_zoom"`
	MaxZoom   int         `json:"max_zoom"`
	Status    LayerStatus `json:"status"`
	LocalPath string      `json:"local_path,omitempty"`
	Bounds    string      `json:"bounds,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

type JobType string

const (
	JobProcessLayer JobType = "process_layer"
	JobBuildMBTiles JobType = "build_mbtiles"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

// Job is one unit of background work. Payload is immutable after creation.
type Job struct {
	ID        int64           `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Status    JobStatus       `json:"status"`
	WorkerID  string          `json:"worker_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProcessLayerPayload is the payload of a process_layer job.
type ProcessLayerPayload struct {
	LayerID int64 `json:"layer_id"`
}

// BuildMBTilesPayload is the payload of a build_mbtiles job.
type BuildMBTilesPayload struct {
	PackageID int64  `json:"package_id"`
	LayerID   int64  `json:"layer_id"`
	MinZoom   int    `json:"min_zoom"`
	MaxZoom   int    `json:"max_zoom"`
	BBox      string `json:"bbox"`
}

type PackageStatus string

const (
	PackagePending     PackageStatus = "pending"
	PackageDownloading PackageStatus = "downloading"
	PackageReady       PackageStatus = "ready"
)

// OfflinePackage tracks one MBTiles build request. FilePath is set only
// once Status is ready.
type OfflinePackage struct {
	ID        int64         `json:"id"`
	LayerID   int64         `json:"layer_id"`
	MinZoom   int           `json:"min_zoom"`
	MaxZoom   int           `json:"max_zoom"`
	BBox      string        `json:"bbox"`
	Status    PackageStatus `json:"status"`
	FilePath  string        `json:"file_path,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}
