// Package fetch downloads remote layer sources with SSRF defenses: scheme
// and extension allowlists, resolved-address range checks and a hard size cap.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// allowedExtensions are the only source file types the worker will pull.
// Checked before any bytes move.
var allowedExtensions = map[string]bool{
	".tif":     true,
	".tiff":    true,
	".pdf":     true,
	".shp":     true,
	".zip":     true,
	".geojson": true,
	".json":    true,
}

type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

type Fetcher struct {
	http      *http.Client
	uploadDir string
	maxBytes  int64
	lookup    LookupFunc
}

func New(client *http.Client, uploadDir string, maxBytes int64) *Fetcher {
	return &Fetcher{
		http:      client,
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, len(addrs))
			for i, a := range addrs {
				ips[i] = a.IP
			}
			return ips, nil
		},
	}
}

// WithLookup overrides hostname resolution; tests use it to avoid DNS.
func (f *Fetcher) WithLookup(fn LookupFunc) *Fetcher {
	f.lookup = fn
	return f
}

// ValidateURL enforces the http(s)-only rule and rejects URLs whose host
// resolves to a private, loopback or otherwise reserved address. A literal
// IP host is run through the same range filter without resolution.
func (f *Fetcher) ValidateURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("url must use http or https scheme, got %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return fmt.Errorf("url host %s is a private or reserved address", host)
		}
		return nil
	}

	ips, err := f.lookup(ctx, host)
	if err != nil {
		return fmt.Errorf("resolve host %s: %w", host, err)
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("url host %s resolves to a private or reserved address", host)
		}
	}
	return nil
}

func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsUnspecified()
}

// CheckExtension rejects disallowed source file extensions. The extension
// is taken from the URL path, before download.
func CheckExtension(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("disallowed file extension %q", ext)
	}
	return ext, nil
}

// Download validates the URL, streams the body to the upload directory and
// enforces the size cap. Exceeding the cap aborts the transfer and deletes
// the partial file. Returns the local path.
func (f *Fetcher) Download(ctx context.Context, rawURL string, layerID int64) (string, error) {
	if err := f.ValidateURL(ctx, rawURL); err != nil {
		return "", err
	}
	ext, err := CheckExtension(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(f.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	// Stable name per (layer, source URL) so re-runs overwrite instead of piling up.
	dest := filepath.Join(f.uploadDir, fmt.Sprintf("%d_%016x%s", layerID, xxhash.Sum64String(rawURL), ext))

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}

	written, err := io.Copy(out, io.LimitReader(resp.Body, f.maxBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("write download: %w", err)
	}
	if written > f.maxBytes {
		os.Remove(dest)
		return "", fmt.Errorf("download exceeds maximum size of %d bytes", f.maxBytes)
	}

	return dest, nil
}
