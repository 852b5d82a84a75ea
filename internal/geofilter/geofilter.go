// Package geofilter applies the bbox pre-filter to stored GeoJSON layers.
// The filter is inclusive and non-clipping: a feature is kept iff at least
// one coordinate anywhere in its geometry falls inside the bbox, and kept
// geometries are never truncated at the boundary.
package geofilter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type BBox struct {
	MinX, MinY, MaxX, MaxY float64
}

// ParseBBox parses "minx,miny,maxx,maxy". Exactly four comma-separated
// numbers with minx<maxx and miny<maxy are required.
func ParseBBox(raw string) (BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("bbox must be four comma-separated numbers, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("bbox value %d: %w", i+1, err)
		}
		vals[i] = v
	}
	b := BBox{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
		return BBox{}, fmt.Errorf("bbox must satisfy minx<maxx and miny<maxy")
	}
	return b, nil
}

func (b BBox) contains(p orb.Point) bool {
	return p[0] >= b.MinX && p[0] <= b.MaxX && p[1] >= b.MinY && p[1] <= b.MaxY
}

// Filter returns a FeatureCollection holding only the features with at
// least one coordinate inside b. Feature order is preserved.
func Filter(fc *geojson.FeatureCollection, b BBox) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry != nil && anyInside(f.Geometry, b) {
			out.Append(f)
		}
	}
	return out
}

// anyInside recurses through the geometry the way GeoJSON nests
// coordinates per type, including GeometryCollection members.
func anyInside(g orb.Geometry, b BBox) bool {
	switch geom := g.(type) {
	case orb.Point:
		return b.contains(geom)
	case orb.MultiPoint:
		for _, p := range geom {
			if b.contains(p) {
				return true
			}
		}
	case orb.LineString:
		for _, p := range geom {
			if b.contains(p) {
				return true
			}
		}
	case orb.MultiLineString:
		for _, ls := range geom {
			for _, p := range ls {
				if b.contains(p) {
					return true
				}
			}
		}
	case orb.Ring:
		for _, p := range geom {
			if b.contains(p) {
				return true
			}
		}
	case orb.Polygon:
		for _, ring := range geom {
			for _, p := range ring {
				if b.contains(p) {
					return true
				}
			}
		}
	case orb.MultiPolygon:
		for _, poly := range geom {
			for _, ring := range poly {
				for _, p := range ring {
					if b.contains(p) {
						return true
					}
				}
			}
		}
	case orb.Collection:
		for _, member := range geom {
			if anyInside(member, b) {
				return true
			}
		}
	}
	return false
}
