// Package toolchain invokes the external GDAL programs that perform raster
// warping, tile-pyramid generation and vector reprojection. Arguments are
// always passed as a literal vector, never through a shell.
package toolchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes one external command and returns its standard output.
// The ingestion pipelines depend on this interface so tests can substitute
// a fake without GDAL installed.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands via os/exec. Non-zero exit is an error carrying
// the captured standard-error text.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return stdout.Bytes(), nil
}

type Toolchain struct {
	run Runner
}

func New(r Runner) *Toolchain {
	return &Toolchain{run: r}
}

// Warp reprojects a raster into the EPSG:3857 serving projection.
func (t *Toolchain) Warp(ctx context.Context, src, dst string) error {
	_, err := t.run.Run(ctx, "gdalwarp", "-t_srs", "EPSG:3857", src, dst)
	return err
}

// AddOverviews builds raster overviews for faster tiling.
func (t *Toolchain) AddOverviews(ctx context.Context, file string) error {
	_, err := t.run.Run(ctx, "gdaladdo", file, "2", "4", "8", "16")
	return err
}

// GenerateTiles renders the XYZ pyramid for the zoom range into dstDir.
func (t *Toolchain) GenerateTiles(ctx context.Context, src, dstDir string, minZoom, maxZoom int) error {
	_, err := t.run.Run(ctx, "gdal2tiles.py",
		"-z", fmt.Sprintf("%d-%d", minZoom, maxZoom),
		"--xyz",
		"--processes=4",
		src, dstDir)
	return err
}

// Translate converts between raster formats (GeoPDF to TIFF).
func (t *Toolchain) Translate(ctx context.Context, src, dst string) error {
	_, err := t.run.Run(ctx, "gdal_translate", src, dst)
	return err
}

// ReprojectVector converts any vector source to EPSG:3857 GeoJSON,
// optionally simplifying geometries.
func (t *Toolchain) ReprojectVector(ctx context.Context, src, dst string, simplify bool) error {
	args := []string{"-f", "GeoJSON", "-t_srs", "EPSG:3857"}
	if simplify {
		args = append(args, "-simplify", "1")
	}
	args = append(args, dst, src)
	_, err := t.run.Run(ctx, "ogr2ogr", args...)
	return err
}

// Bounds extracts a "minlon,minlat,maxlon,maxlat" string from gdalinfo's
// wgs84Extent. Failure to parse degrades to an empty string, never an error:
// bounds are advisory metadata.
func (t *Toolchain) Bounds(ctx context.Context, file string) string {
	out, err := t.run.Run(ctx, "gdalinfo", "-json", file)
	if err != nil {
		return ""
	}

	var info struct {
		WGS84Extent struct {
			Coordinates [][][2]float64 `json:"coordinates"`
		} `json:"wgs84Extent"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return ""
	}
	if len(info.WGS84Extent.Coordinates) == 0 || len(info.WGS84Extent.Coordinates[0]) < 4 {
		return ""
	}

	ring := info.WGS84Extent.Coordinates[0]
	minLon, minLat := ring[0][0], ring[0][1]
	maxLon, maxLat := minLon, minLat
	for _, c := range ring[1:] {
		if c[0] < minLon {
			minLon = c[0]
		}
		if c[0] > maxLon {
			maxLon = c[0]
		}
		if c[1] < minLat {
			minLat = c[1]
		}
		if c[1] > maxLat {
			maxLat = c[1]
		}
	}
	return fmt.Sprintf("%g,%g,%g,%g", minLon, minLat, maxLon, maxLat)
}
