package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andromapper/geomapper/internal/model"
)

// CreatePackage inserts a pending offline package together with its
// build_mbtiles job, in one transaction.
func (s *Store) CreatePackage(ctx context.Context, p model.OfflinePackage) (int64, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO offline_packages (layer_id, min_zoom, max_zoom, bbox, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.LayerID, p.MinZoom, p.MaxZoom, p.BBox, model.PackagePending, now)
	if err != nil {
		return 0, fmt.Errorf("insert package: %w", err)
	}
	packageID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("package id: %w", err)
	}

	payload, err := json.Marshal(model.BuildMBTilesPayload{
		PackageID: packageID,
		LayerID:   p.LayerID,
		MinZoom:   p.MinZoom,
		MaxZoom:   p.MaxZoom,
		BBox:      p.BBox,
	})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (type, payload, status, created_at) VALUES (?, ?, ?, ?)`,
		model.JobBuildMBTiles, string(payload), model.JobPending, now); err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return packageID, nil
}

func (s *Store) GetPackage(ctx context.Context, id int64) (model.OfflinePackage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, layer_id, min_zoom, max_zoom, bbox, status, file_path, created_at
		 FROM offline_packages WHERE id = ?`, id)

	var p model.OfflinePackage
	var status string
	err := row.Scan(&p.ID, &p.LayerID, &p.MinZoom, &p.MaxZoom, &p.BBox, &status, &p.FilePath, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.OfflinePackage{}, ErrNotFound
	}
	if err != nil {
		return model.OfflinePackage{}, fmt.Errorf("get package: %w", err)
	}
	p.Status = model.PackageStatus(status)
	return p, nil
}

// SetPackageStatus moves a package to downloading when the build starts.
func (s *Store) SetPackageStatus(ctx context.Context, id int64, status model.PackageStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE offline_packages SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update package status: %w", err)
	}
	return nil
}

// SetPackageReady records the built archive and flips the package to ready.
func (s *Store) SetPackageReady(ctx context.Context, id int64, filePath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE offline_packages SET status = ?, file_path = ? WHERE id = ?`,
		model.PackageReady, filePath, id)
	if err != nil {
		return fmt.Errorf("update package ready: %w", err)
	}
	return nil
}
