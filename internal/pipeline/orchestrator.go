// Package pipeline turns a list of items into a zip of batch PDFs while
// reporting progress for the job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frontier-design/projectory-web-to-print/internal/progress"
	"github.com/frontier-design/projectory-web-to-print/internal/render"
	"github.com/frontier-design/projectory-web-to-print/pkg/jobid"
	"github.com/frontier-design/projectory-web-to-print/pkg/models"
)

const (
	DefaultBatchSize      = 12
	DefaultImageChunkSize = 3
	DefaultJobTimeout     = 5 * time.Minute
)

// Config tunes an Orchestrator. Zero fields take the defaults.
type Config struct {
	BatchSize      int
	ImageChunkSize int
	JobTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.ImageChunkSize <= 0 {
		c.ImageChunkSize = DefaultImageChunkSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	return c
}

// AssetSource supplies the embedded page resources for a job.
type AssetSource interface {
	Load(step func(msg string)) (*render.Assets, error)
}

// Result summarizes a finished job.
type Result struct {
	JobID        string
	Archive      []byte
	TotalItems   int
	TotalBatches int
	SuccessCount int
	FailedCount  int
	// Failed lists failed batches in batch order.
	Failed []models.BatchFailure
}

// Orchestrator runs PDF generation jobs. It is safe for concurrent use;
// each job launches its own browser.
type Orchestrator struct {
	cfg      Config
	engine   render.Engine
	assets   AssetSource
	images   models.ImageAugmenter
	registry progress.Registry
	now      func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config, engine render.Engine, assets AssetSource, images models.ImageAugmenter, registry progress.Registry) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		engine:   engine,
		assets:   assets,
		images:   images,
		registry: registry,
		now:      time.Now,
	}
}

func (o *Orchestrator) BatchSize() int { return o.cfg.BatchSize }

// Generate renders items into an archive. An empty jobID is replaced with a
// fresh one; Result.JobID reports the ID used.
//
// A failing batch is recorded in Result.Failed and does not stop the job.
// When every batch fails, Generate returns the Result together with
// ErrAllBatchesFailed. When JobTimeout elapses first, the browser is closed
// and ErrJobTimeout is returned with a nil Result.
func (o *Orchestrator) Generate(ctx context.Context, jobID string, items []models.Item) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if jobID == "" {
		jobID = jobid.New()
	} else if !jobid.Valid(jobID) {
		return nil, ErrInvalidJobID
	}

	em := progress.NewEmitter(o.registry, jobID)
	defer em.Done()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := newBrowserHandle(jobID)

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.run(jobCtx, em, items, h)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(o.cfg.JobTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil && !errors.Is(out.err, ErrAllBatchesFailed) {
			h.release()
			slog.Error("pdf generation failed", "job_id", jobID, "error", out.err)
			em.Emit(progress.EventError, "Error: "+out.err.Error(), nil)
		}
		return out.res, out.err

	case <-timer.C:
		cancel()
		h.release()
		err := fmt.Errorf("%w after %s", ErrJobTimeout, o.cfg.JobTimeout)
		slog.Error("pdf generation timed out", "job_id", jobID, "timeout", o.cfg.JobTimeout.String())
		em.Emit(progress.EventError, "Error: "+err.Error(), nil)
		return nil, err

	case <-ctx.Done():
		cancel()
		h.release()
		slog.Warn("pdf generation cancelled", "job_id", jobID, "error", ctx.Err())
		em.Emit(progress.EventError, "Error: "+ctx.Err().Error(), nil)
		return nil, ctx.Err()
	}
}

// run is the batch loop. It owns the browser until it calls h.release.
func (o *Orchestrator) run(ctx context.Context, em *progress.Emitter, items []models.Item, h *browserHandle) (*Result, error) {
	jobID := em.JobID()
	logMemory(jobID, "start")
	em.Emit(progress.EventStart, "Starting PDF generation...", map[string]any{"totalItems": len(items)})
	slog.Info("generating pdfs", "job_id", jobID, "items", len(items))

	assets, err := o.assets.Load(func(msg string) {
		em.Emit(progress.EventProgress, msg, nil)
	})
	if err != nil {
		return nil, err
	}

	batches := Partition(items, o.cfg.BatchSize)
	total := len(batches)
	em.Emit(progress.EventProgress, fmt.Sprintf("Prepared %d batch(es) for %d items", total, len(items)), nil)

	logMemory(jobID, "before browser launch")
	em.Emit(progress.EventProgress, "Launching browser...", nil)
	browser, err := o.engine.Launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	if !h.set(browser) {
		// The job was abandoned while the browser was starting.
		if err := browser.Close(); err != nil {
			slog.Warn("closing late browser", "job_id", jobID, "error", err)
		}
		return nil, context.Cause(ctx)
	}
	em.Emit(progress.EventProgress, "Browser launched successfully", nil)
	logMemory(jobID, "after browser launch")

	res := &Result{JobID: jobID, TotalItems: len(items), TotalBatches: total}
	var docs []document

	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}
		pdf, err := o.processBatch(ctx, em, browser, assets, batch, total)
		if err != nil {
			rows := batch.Rows()
			msg := fmt.Sprintf("Batch %d failed: %s. Rows in this batch: %s", batch.Number(), err, joinRows(rows))
			slog.Error("batch failed", "job_id", jobID, "batch", batch.Number(), "rows", rows, "error", err)
			em.Emit(progress.EventWarning, msg, nil)
			res.Failed = append(res.Failed, models.BatchFailure{
				Batch:    batch.Number(),
				Error:    err.Error(),
				Rows:     rows,
				RowCount: len(rows),
			})
			continue
		}
		docs = append(docs, document{batchNumber: batch.Number(), data: pdf})
		logMemory(jobID, fmt.Sprintf("after batch %d", batch.Number()))
	}

	h.release()
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}

	res.SuccessCount = len(docs)
	res.FailedCount = len(res.Failed)

	if res.SuccessCount == 0 {
		em.Emit(progress.EventError, "All batches failed. No PDFs generated.", map[string]any{
			"totalBatches": total,
			"failedCount":  res.FailedCount,
		})
		return res, ErrAllBatchesFailed
	}

	em.Emit(progress.EventProgress, "Creating ZIP file...", nil)
	logMemory(jobID, "before zip")
	res.Archive, err = buildArchive(docs, o.now())
	if err != nil {
		return nil, err
	}
	logMemory(jobID, "after zip")

	em.Emit(progress.EventComplete,
		fmt.Sprintf("PDFs generated: %d successful, %d failed", res.SuccessCount, res.FailedCount),
		map[string]any{
			"totalBatches": total,
			"successCount": res.SuccessCount,
			"failedCount":  res.FailedCount,
			"totalItems":   len(items),
		})
	slog.Info("pdf generation complete", "job_id", jobID,
		"success", res.SuccessCount, "failed", res.FailedCount, "batches", total)
	return res, nil
}

// processBatch augments and renders one batch. A panic inside the batch is
// reported as the batch's error.
func (o *Orchestrator) processBatch(ctx context.Context, em *progress.Emitter, browser render.Browser, assets *render.Assets, batch Batch, total int) (pdf []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("batch panicked", "job_id", em.JobID(), "batch", batch.Number(),
				"panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()

	n := batch.Number()
	size := len(batch.Items)
	em.Emit(progress.EventBatchStart, fmt.Sprintf("Starting batch %d/%d", n, total), map[string]any{
		"batchNumber":  n,
		"totalBatches": total,
		"itemsInBatch": size,
	})

	if o.images.Enabled() {
		em.Emit(progress.EventProgress, fmt.Sprintf("Generating AI images for batch %d...", n), nil)
	} else {
		em.Emit(progress.EventWarning, fmt.Sprintf("Skipping AI image generation for batch %d - API key not configured", n), nil)
	}
	em.Emit(progress.EventImageGen, fmt.Sprintf("Generating %d AI images...", size), map[string]any{
		"current": 0,
		"total":   size,
	})

	items := o.augment(ctx, em, batch)

	generated := 0
	for _, it := range items {
		if it.AIImage != "" {
			generated++
		}
	}
	em.Emit(progress.EventImageComplete, fmt.Sprintf("Generated %d/%d images for batch %d", generated, size, n), map[string]any{
		"imagesGenerated": generated,
		"total":           size,
	})

	em.Emit(progress.EventProgress, fmt.Sprintf("Generating PDF for batch %d...", n), nil)
	html := render.BuildHTML(items, assets)

	em.Emit(progress.EventProgress, fmt.Sprintf("Rendering batch %d...", n), nil)
	pdf, err = browser.Render(ctx, html)
	if err != nil {
		return nil, err
	}

	em.Emit(progress.EventBatchComplete, fmt.Sprintf("Completed batch %d/%d", n, total), map[string]any{
		"batchNumber":  n,
		"totalBatches": total,
	})
	return pdf, nil
}

// augment fetches images for a copy of the batch's items. Items inside a
// chunk run concurrently; chunks run one after another. A failed item keeps
// an empty AIImage.
func (o *Orchestrator) augment(ctx context.Context, em *progress.Emitter, batch Batch) []models.Item {
	items := slices.Clone(batch.Items)
	if !o.images.Enabled() {
		return items
	}

	var (
		mu        sync.Mutex
		completed int
	)
	for start := 0; start < len(items); start += o.cfg.ImageChunkSize {
		end := min(start+o.cfg.ImageChunkSize, len(items))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				img, err := o.augmentOne(ctx, items[i].FreeText)
				if err != nil {
					slog.Warn("image generation failed", "job_id", em.JobID(), "row", batch.Start+i+1, "error", err)
					em.Emit(progress.EventWarning, fmt.Sprintf("Image generation failed for item %d: %s", i+1, err), nil)
					return nil
				}
				items[i].AIImage = img
				if img == "" && strings.TrimSpace(items[i].FreeText) != "" {
					em.Emit(progress.EventWarning, fmt.Sprintf("No image generated for item %d", i+1), nil)
				}

				mu.Lock()
				completed++
				em.Emit(progress.EventImageProgress, fmt.Sprintf("Generated image %d/%d", completed, len(items)), map[string]any{
					"current": completed,
					"total":   len(items),
				})
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return items
}

// augmentOne calls the augmenter and turns a panic into an error.
func (o *Orchestrator) augmentOne(ctx context.Context, text string) (img string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return o.images.Augment(ctx, text)
}

// browserHandle makes sure a job's browser is closed exactly once, whether
// the batch loop finishes or the job is abandoned.
type browserHandle struct {
	jobID    string
	mu       sync.Mutex
	browser  render.Browser
	released bool
	release  func()
}

func newBrowserHandle(jobID string) *browserHandle {
	h := &browserHandle{jobID: jobID}
	h.release = sync.OnceFunc(h.close)
	return h
}

// set stores b unless the handle was already released.
func (h *browserHandle) set(b render.Browser) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.browser = b
	return true
}

func (h *browserHandle) close() {
	h.mu.Lock()
	h.released = true
	b := h.browser
	h.browser = nil
	h.mu.Unlock()

	if b == nil {
		return
	}
	if err := b.Close(); err != nil {
		slog.Warn("closing browser", "job_id", h.jobID, "error", err)
	}
	logMemory(h.jobID, "after browser close")
}
