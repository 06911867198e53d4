package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/job"
	"github.com/geocoder89/learnhub/internal/jobs"
	"github.com/geocoder89/learnhub/internal/notifications"
)

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent job failure")

// ProcessOne claims and runs at most one job. processed is false when the
// queue had nothing ready.
func (w *Worker) ProcessOne(ctx context.Context) (processed bool, err error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("claim job: %w", err)
	}

	// a claimed job is finished even if shutdown starts mid-run
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.JobTimeout)
	defer cancel()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := w.now()
	execErr := w.execute(runCtx, j)

	if execErr != nil {
		result := w.handleFailure(runCtx, j, execErr)
		w.prom.ObserveJob(j.Type, result, w.now().Sub(start))
		return true, nil
	}

	if err := w.repo.MarkDone(runCtx, j.ID); err != nil {
		w.prom.ObserveJob(j.Type, "failed", w.now().Sub(start))
		_ = w.repo.MarkFailed(runCtx, j.ID, "mark_done_failed: "+err.Error())
		return true, fmt.Errorf("mark job %s done: %w", j.ID, err)
	}

	w.prom.ObserveJob(j.Type, "done", w.now().Sub(start))
	w.log.InfoContext(runCtx, "job done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	t := jobs.JobType(j.Type)

	payload, err := jobs.DecodePayload(t, j.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	if err := jobs.ValidatePayload(t, payload); err != nil {
		return fmt.Errorf("%w: %v", errPermanent, err)
	}

	switch p := payload.(type) {
	case jobs.EnrollmentConfirmationPayload:
		return w.notifier.SendEnrollmentConfirmation(ctx, notifications.EnrollmentConfirmation{
			Email:       p.Email,
			UserID:      p.UserID,
			ModuleID:    p.ModuleID,
			ModuleTitle: p.ModuleTitle,
		})
	default:
		return fmt.Errorf("%w: no handler for %s", errPermanent, j.Type)
	}
}

// handleFailure either schedules a retry or fails the job for good and
// returns the metric result label.
func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	msg := cause.Error()

	if errors.Is(cause, errPermanent) || j.Exhausted() {
		if err := w.repo.MarkFailed(ctx, j.ID, msg); err != nil {
			w.log.ErrorContext(ctx, "mark job failed", "job_id", j.ID, "err", err)
		}
		w.log.WarnContext(ctx, "job failed", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "err", msg)
		return "failed"
	}

	runAt := w.now().Add(w.backoff(j.Attempts))

	if err := w.repo.Reschedule(ctx, j.ID, runAt, msg); err != nil {
		w.log.ErrorContext(ctx, "reschedule job", "job_id", j.ID, "err", err)
	}

	w.log.InfoContext(ctx, "job retry scheduled", "job_id", j.ID, "attempt", j.Attempts+1, "run_at", runAt, "err", msg)
	return "retry"
}
