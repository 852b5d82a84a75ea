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

// CreateLayer inserts a pending layer together with its process_layer job.
// Both rows commit or neither does.
func (s *Store) CreateLayer(ctx context.Context, l model.Layer) (int64, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO layers (name, type, source_url, min_zoom, max_zoom, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.Name, l.Type, l.SourceURL, l.MinZoom, l.MaxZoom, model.LayerPending, now)
	if err != nil {
		return 0, fmt.Errorf("insert layer: %w", err)
	}
	layerID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("layer id: %w", err)
	}

	payload, err := json.Marshal(model.ProcessLayerPayload{LayerID: layerID})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (type, payload, status, created_at) VALUES (?, ?, ?, ?)`,
		model.JobProcessLayer, string(payload), model.JobPending, now); err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return layerID, nil
}

// ListLayers returns all layers, newest first.
func (s *Store) ListLayers(ctx context.Context) ([]model.Layer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, type, source_url, min_zoom, max_zoom, status, local_path, bounds, created_at
		 FROM layers ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	layers := []model.Layer{}
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

func (s *Store) GetLayer(ctx context.Context, id int64) (model.Layer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, type, source_url, min_zoom, max_zoom, status, local_path, bounds, created_at
		 FROM layers WHERE id = ?`, id)
	l, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Layer{}, ErrNotFound
	}
	return l, err
}

// SetLayerStatus moves a layer through its state machine. Only the
// ingestion worker calls this.
func (s *Store) SetLayerStatus(ctx context.Context, id int64, status model.LayerStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE layers SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update layer status: %w", err)
	}
	return nil
}

// SetLayerResult records the ingestion output before the layer is marked ready.
func (s *Store) SetLayerResult(ctx context.Context, id int64, localPath, bounds string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE layers SET local_path = ?, bounds = ? WHERE id = ?`, localPath, bounds, id)
	if err != nil {
		return fmt.Errorf("update layer result: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLayer(r rowScanner) (model.Layer, error) {
	var l model.Layer
	var typ, status string
	if err := r.Scan(&l.ID, &l.Name, &typ, &l.SourceURL, &l.MinZoom, &l.MaxZoom,
		&status, &l.LocalPath, &l.Bounds, &l.CreatedAt); err != nil {
		return model.Layer{}, err
	}
	l.Type = model.LayerType(typ)
	l.Status = model.LayerStatus(status)
	return l, nil
}
