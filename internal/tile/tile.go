// Package tile holds XYZ tile addressing: coordinate validation,
// Web-Mercator bounding boxes for WMS requests, and the TMS row flip
// used by MBTiles archives.
package tile

import (
	"fmt"
	"math"
)

const (
	Size    = 256
	ZoomMin = 0
	ZoomMax = 22

	// Half the Web-Mercator earth circumference in metres. EPSG:3857
	// spans [-halfCircumference, halfCircumference] on both axes.
	halfCircumference = 20037508.3427892
)

// BBox is an axis-aligned bounding box in EPSG:3857 metres.
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

func (b BBox) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// Validate checks z, x, y against the XYZ addressing scheme. A violation
// is a client error and must never reach storage or the network.
func Validate(z, x, y int) error {
	if z < ZoomMin || z > ZoomMax {
		return fmt.Errorf("zoom %d out of range [%d,%d]", z, ZoomMin, ZoomMax)
	}
	max := (1 << z) - 1
	if x < 0 || x > max || y < 0 || y > max {
		return fmt.Errorf("tile %d/%d out of range for zoom %d", x, y, z)
	}
	return nil
}

// MercatorBBox converts an XYZ tile address to its EPSG:3857 bounding box.
// XYZ y=0 is the north edge while WMS BBOX runs south to north, so the
// y-to-latitude mapping inverts.
func MercatorBBox(z, x, y int) BBox {
	n := float64(int64(1) << z)
	return BBox{
		MinX: (float64(x)/n)*2*halfCircumference - halfCircumference,
		MaxX: (float64(x+1)/n)*2*halfCircumference - halfCircumference,
		MaxY: halfCircumference - (float64(y)/n)*2*halfCircumference,
		MinY: halfCircumference - (float64(y+1)/n)*2*halfCircumference,
	}
}

// FlipY converts between XYZ (north-up) and TMS (south-up) row numbering
// at a given zoom. The mapping is its own inverse.
func FlipY(z, y int) int {
	return (1 << z) - 1 - y
}

// Range is an inclusive rectangle of tile coordinates at one zoom level.
type Range struct {
	Zoom                   int
	MinX, MinY, MaxX, MaxY int
}

// CoveringRange returns the tiles at zoom z whose extents intersect the
// given Web-Mercator bbox, clamped to the valid tile grid.
func CoveringRange(b BBox, z int) Range {
	n := float64(int64(1) << z)
	toX := func(m float64) int {
		return int(math.Floor((m + halfCircumference) / (2 * halfCircumference) * n))
	}
	toY := func(m float64) int {
		return int(math.Floor((halfCircumference - m) / (2 * halfCircumference) * n))
	}

	r := Range{
		Zoom: z,
		MinX: toX(b.MinX),
		MaxX: toX(b.MaxX),
		MinY: toY(b.MaxY), // north edge has the smaller XYZ row
		MaxY: toY(b.MinY),
	}

	max := (1 << z) - 1
	r.MinX = clamp(r.MinX, 0, max)
	r.MaxX = clamp(r.MaxX, 0, max)
	r.MinY = clamp(r.MinY, 0, max)
	r.MaxY = clamp(r.MaxY, 0, max)
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
