// Package wms builds and executes WMS GetMap requests for single XYZ tiles.
package wms

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/andromapper/geomapper/internal/observability"
	"github.com/andromapper/geomapper/internal/tile"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// maxTileBytes bounds a single GetMap response; a 256px PNG tile is far
// smaller, anything bigger is a misbehaving upstream.
const maxTileBytes = 8 << 20

type Client struct {
	http *http.Client
}

func New(httpClient *http.Client) *Client {
	return &Client{http: httpClient}
}

// GetMapURL builds the GetMap request URL for one tile of the given layer.
// layerName is passed as the WMS LAYERS parameter.
func GetMapURL(sourceURL, layerName string, b tile.BBox) (string, error) {
	if err := ValidateSourceURL(sourceURL); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("SERVICE", "WMS")
	params.Set("VERSION", "1.3.0")
	params.Set("REQUEST", "GetMap")
	params.Set("LAYERS", layerName)
	params.Set("STYLES", "")
	params.Set("CRS", "EPSG:3857")
	params.Set("BBOX", b.String())
	params.Set("WIDTH", strconv.Itoa(tile.Size))
	params.Set("HEIGHT", strconv.Itoa(tile.Size))
	params.Set("FORMAT", "image/png")
	params.Set("TRANSPARENT", "TRUE")

	sep := "?"
	if strings.Contains(sourceURL, "?") {
		sep = "&"
	}
	return sourceURL + sep + params.Encode(), nil
}

// ValidateSourceURL enforces the http(s)-only rule shared with ingestion.
func ValidateSourceURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse source url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("source url must use http or https scheme, got %q", u.Scheme)
	}
}

// FetchTile requests one tile from the upstream WMS and verifies that the
// body both starts with the PNG signature and decodes as a structurally
// valid PNG before trusting it. Any failure returns an error and no bytes.
func (c *Client) FetchTile(ctx context.Context, sourceURL, layerName string, z, x, y int) ([]byte, error) {
	reqURL, err := GetMapURL(sourceURL, layerName, tile.MercatorBBox(z, x, y))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wms fetch: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveWMSUpstream(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wms upstream returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read wms body: %w", err)
	}
	if len(data) > maxTileBytes {
		return nil, fmt.Errorf("wms response exceeds %d bytes", maxTileBytes)
	}

	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("wms response is not a PNG image")
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("wms response failed PNG decode: %w", err)
	}

	return data, nil
}
