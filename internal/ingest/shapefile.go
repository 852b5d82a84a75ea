package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// extractVectorFile unpacks a ZIP archive and returns the first .shp file
// inside, searching in lexicographic path order so the choice is
// deterministic regardless of archive ordering.
func extractVectorFile(zipPath, destDir string) (string, error) {
	if err := os.RemoveAll(destDir); err != nil {
		return "", fmt.Errorf("clean extract dir: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create extract dir: %w", err)
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("open zip archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if err := extractOne(f, destDir); err != nil {
			return "", err
		}
	}

	var candidates []string
	err = filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".shp") {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("search extracted archive: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no .shp file found in archive")
	}

	sort.Strings(candidates)
	return candidates[0], nil
}

func extractOne(f *zip.File, destDir string) error {
	// Reject entries that would escape the extraction directory.
	dest := filepath.Join(destDir, filepath.Clean(f.Name))
	rel, err := filepath.Rel(destDir, dest)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create entry dir: %w", err)
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("open archive entry %q: %w", f.Name, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %q: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("extract %q: %w", f.Name, err)
	}
	return nil
}
