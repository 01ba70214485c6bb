// Package intake runs batch photo intake: uploaded photos become drafts
// that a background worker fills in by extraction, and volunteers confirm
// drafts into the inventory.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/reuse/internal/extraction"
	"github.com/kalambet/reuse/internal/gemini"
	"github.com/kalambet/reuse/internal/inventory"
	"github.com/kalambet/reuse/internal/storage"
)

// JobType is the queue type of extraction jobs.
const JobType = "extract_item"

// JobStore abstracts the job queue and draft operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	RequeueRunningJobs(types []string) (int, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string, permanent bool) (bool, error)
	GetImage(id string) (storage.Image, error)
	MarkDraftReady(id, itemJSON string) error
	MarkDraftFailed(id, errMsg string) error
}

// ItemExtractor turns a photo into a record. Implemented by *extraction.Extractor.
type ItemExtractor interface {
	Extract(ctx context.Context, image []byte, mimeType, note string) (inventory.Item, error)
}

// Worker processes extract_item jobs from the SQLite job queue.
type Worker struct {
	store     JobStore
	extractor ItemExtractor
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extractor ItemExtractor, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		extractor: extractor,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run requeues jobs interrupted by a previous shutdown, then polls for jobs
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if _, err := w.RequeueStale(); err != nil {
		w.logger.Error("requeueing interrupted intake jobs", "error", err)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("intake worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// Start runs the worker on its own goroutine. The returned stop cancels it
// and blocks until the job in progress has been recorded.
func (w *Worker) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// RequeueStale puts extract_item jobs still marked running back in the
// queue. Only one worker runs per data directory, so any such job was
// interrupted.
func (w *Worker) RequeueStale() (int, error) {
	n, err := w.store.RequeueRunningJobs([]string{JobType})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Info("requeued interrupted intake jobs", "count", n)
	}
	return n, nil
}

// RunOnce claims and processes a single extract_item job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	var payload jobPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		w.fail(job, "", fmt.Errorf("parsing payload: %w", err), true)
		return true, nil
	}

	if err := w.processJob(ctx, payload); err != nil {
		w.logger.Warn("intake job failed", "job_id", job.ID, "draft_id", payload.DraftID, "error", err)
		w.fail(job, payload.DraftID, err, !retryable(err))
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type jobPayload struct {
	DraftID string `json:"draft_id"`
	ImageID string `json:"image_id"`
	Note    string `json:"note,omitempty"`
}

func (w *Worker) processJob(ctx context.Context, p jobPayload) error {
	img, err := w.store.GetImage(p.ImageID)
	if err != nil {
		return fmt.Errorf("loading image %s: %w", p.ImageID, err)
	}

	it, err := w.extractor.Extract(ctx, img.Data, img.MIME, p.Note)
	if err != nil {
		return err
	}
	it.ImageURL = ImageURL(img.ID)

	data, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("encoding draft item: %w", err)
	}
	if err := w.store.MarkDraftReady(p.DraftID, string(data)); err != nil {
		return fmt.Errorf("updating draft %s: %w", p.DraftID, err)
	}
	w.logger.Info("draft ready", "draft_id", p.DraftID, "name", it.Name)
	return nil
}

// fail records the failed attempt and, once the job will not run again,
// marks its draft failed with the readable cause.
func (w *Worker) fail(job *storage.Job, draftID string, cause error, permanent bool) {
	failed, err := w.store.FailJob(job.ID, cause.Error(), permanent)
	if err != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", err)
		return
	}
	if !failed || draftID == "" {
		return
	}
	if err := w.store.MarkDraftFailed(draftID, cause.Error()); err != nil {
		w.logger.Error("failed to mark draft as failed", "draft_id", draftID, "error", err)
	}
}

// retryable reports whether a later attempt could succeed. Missing keys,
// upstream rejections and malformed model output will not change on retry.
func retryable(err error) bool {
	if errors.Is(err, storage.ErrNotFound) {
		return false
	}
	var xe *extraction.Error
	if !errors.As(err, &xe) {
		return true
	}
	switch xe.Reason {
	case gemini.ReasonTransport, gemini.ReasonNoResponseBody, gemini.ReasonCanceled, gemini.ReasonUnknown:
		return true
	default:
		return false
	}
}

// ImageURL is the API path serving a stored photo.
func ImageURL(imageID string) string {
	return "/images/" + imageID
}
