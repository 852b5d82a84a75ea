// Package ingest runs the background dispatcher: it claims jobs from the
// queue, routes them through the per-type pipelines or the offline package
// builder, and advances the owning entity's state machine.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/andromapper/geomapper/internal/fetch"
	"github.com/andromapper/geomapper/internal/model"
	"github.com/andromapper/geomapper/internal/observability"
	"github.com/andromapper/geomapper/internal/store"
	"github.com/andromapper/geomapper/internal/tilecache"
	"github.com/andromapper/geomapper/internal/toolchain"
)

type Worker struct {
	id      string
	store   *store.Store
	fetcher *fetch.Fetcher
	tc      *toolchain.Toolchain
	cache   *tilecache.Cache
	logger  *slog.Logger
	poll    time.Duration
}

func NewWorker(id string, st *store.Store, f *fetch.Fetcher, tc *toolchain.Toolchain, cache *tilecache.Cache, logger *slog.Logger, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Worker{
		id:      id,
		store:   st,
		fetcher: f,
		tc:      tc,
		cache:   cache,
		logger:  logger,
		poll:    poll,
	}
}

// Run claims and executes jobs until ctx is cancelled. A failing job is
// recorded and the loop continues; nothing a job does can halt the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "worker_id", w.id, "poll", w.poll)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping", "worker_id", w.id)
			return ctx.Err()
		default:
		}

		job, err := w.store.ClaimNext(ctx, w.id)
		if err != nil {
			w.logger.Error("claim failed", "err", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.execute(ctx, job)
	}
}

// RunOnce claims and executes at most one job. Tests and operator tooling
// use it to drive the queue deterministically.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNext(ctx, w.id)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.execute(ctx, job)
	return true, nil
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.poll)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (w *Worker) execute(ctx context.Context, job *model.Job) {
	logger := w.logger.With("job_id", job.ID, "job_type", string(job.Type))
	logger.Info("job started")

	err := w.dispatch(ctx, job)
	observability.ObserveJob(string(job.Type), err)

	if err != nil {
		logger.Error("job failed", "err", err)
		if markErr := w.store.MarkError(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error("mark error failed", "err", markErr)
		}
		return
	}

	if err := w.store.MarkDone(ctx, job.ID); err != nil {
		logger.Error("mark done failed", "err", err)
		return
	}
	logger.Info("job done")
}

func (w *Worker) dispatch(ctx context.Context, job *model.Job) error {
	switch job.Type {
	case model.JobProcessLayer:
		var p model.ProcessLayerPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode process_layer payload: %w", err)
		}
		return w.processLayer(ctx, p.LayerID)
	case model.JobBuildMBTiles:
		var p model.BuildMBTilesPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode build_mbtiles payload: %w", err)
		}
		return w.buildPackage(ctx, p)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}
