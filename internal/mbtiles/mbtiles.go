// Package mbtiles writes offline tile packages in the MBTiles format: a
// SQLite database with a metadata table and a tiles table keyed by
// (zoom_level, tile_column, tile_row) using the south-up TMS row convention.
package mbtiles

import (
	"database/sql"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/andromapper/geomapper/internal/tile"
)

type Writer struct {
	db *sql.DB
}

// Create starts a new archive at path, replacing any previous file.
func Create(path string) (*Writer, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove old archive: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	schema := `
	CREATE TABLE metadata (name TEXT, value TEXT);
	CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
	CREATE UNIQUE INDEX tile_index ON tiles (zoom_level, tile_column, tile_row);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Writer{db: db}, nil
}

func (w *Writer) PutMetadata(name, value string) error {
	if _, err := w.db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, name, value); err != nil {
		return fmt.Errorf("write metadata %s: %w", name, err)
	}
	return nil
}

// PutTile stores one tile addressed in XYZ coordinates; the row is flipped
// to TMS on the way in.
func (w *Writer) PutTile(z, x, xyzY int, data []byte) error {
	if _, err := w.db.Exec(
		`INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
		z, x, tile.FlipY(z, xyzY), data); err != nil {
		return fmt.Errorf("write tile %d/%d/%d: %w", z, x, xyzY, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.db.Close()
}
