package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/job"
	"github.com/geocoder89/learnhub/internal/jobs"
	"github.com/geocoder89/learnhub/internal/notifications"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRepo struct {
	mu sync.Mutex

	queue    []job.Job
	claimErr error

	done        []string
	failed      map[string]string
	rescheduled map[string]time.Time
}

func newFakeRepo(js ...job.Job) *fakeRepo {
	return &fakeRepo{queue: js, failed: map[string]string{}, rescheduled: map[string]time.Time{}}
}

func (f *fakeRepo) ClaimNext(context.Context, string) (job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.claimErr != nil {
		return job.Job{}, f.claimErr
	}
	if len(f.queue) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}
	j := f.queue[0]
	f.queue = f.queue[1:]
	return j, nil
}

func (f *fakeRepo) MarkDone(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done = append(f.done, id)
	return nil
}

func (f *fakeRepo) MarkFailed(_ context.Context, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = msg
	return nil
}

func (f *fakeRepo) Reschedule(_ context.Context, id string, runAt time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescheduled[id] = runAt
	return nil
}

func (f *fakeRepo) RequeueStaleProcessing(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.EnrollmentConfirmation
	err  error
}

func (n *recordingNotifier) SendEnrollmentConfirmation(_ context.Context, in notifications.EnrollmentConfirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, in)
	return nil
}

func confirmationJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()

	raw, err := jobs.EncodePayload(jobs.JobEnrollmentConfirmation, jobs.EnrollmentConfirmationPayload{
		ModuleID:    "m1",
		ModuleTitle: "Go",
		UserID:      "u1",
		Email:       "a@example.com",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	j := job.New(job.CreateRequest{Type: string(jobs.JobEnrollmentConfirmation), Payload: raw, MaxAttempts: maxAttempts})
	j.Attempts = attempts
	return j
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestWorker(repo JobsRepository, n notifications.Notifier) *Worker {
	w := New(Config{WorkerID: "test-worker", PollInterval: 5 * time.Millisecond}, repo, n, nil, nil)
	w.now = func() time.Time { return fixedNow }
	w.backoff = func(attempt int) time.Duration { return time.Duration(attempt+1) * time.Second }
	return w
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	w := newTestWorker(newFakeRepo(), &recordingNotifier{})

	processed, err := w.ProcessOne(context.Background())
	if processed || err != nil {
		t.Fatalf("expected nothing processed, got processed=%v err=%v", processed, err)
	}
}

func TestProcessOne_ClaimError(t *testing.T) {
	repo := newFakeRepo()
	repo.claimErr = errors.New("db down")

	_, err := newTestWorker(repo, &recordingNotifier{}).ProcessOne(context.Background())
	if err == nil {
		t.Fatalf("expected claim error")
	}
}

func TestProcessOne_Success(t *testing.T) {
	j := confirmationJob(t, 0, 5)
	repo := newFakeRepo(j)
	n := &recordingNotifier{}

	processed, err := newTestWorker(repo, n).ProcessOne(context.Background())
	if !processed || err != nil {
		t.Fatalf("processed=%v err=%v", processed, err)
	}

	if len(repo.done) != 1 || repo.done[0] != j.ID {
		t.Fatalf("expected job marked done, got %v", repo.done)
	}
	if len(n.sent) != 1 || n.sent[0].Email != "a@example.com" || n.sent[0].ModuleTitle != "Go" {
		t.Fatalf("unexpected notifications: %+v", n.sent)
	}
}

func TestProcessOne_Failures(t *testing.T) {
	tests := []struct {
		name        string
		job         func(t *testing.T) job.Job
		notifyErr   error
		wantRetryAt time.Time
		wantFailed  bool
	}{
		{
			name:        "transient failure retries with backoff",
			job:         func(t *testing.T) job.Job { return confirmationJob(t, 2, 5) },
			notifyErr:   errors.New("smtp timeout"),
			wantRetryAt: fixedNow.Add(3 * time.Second),
		},
		{
			name:       "last attempt fails for good",
			job:        func(t *testing.T) job.Job { return confirmationJob(t, 4, 5) },
			notifyErr:  errors.New("smtp timeout"),
			wantFailed: true,
		},
		{
			name:        "open circuit still retries",
			job:         func(t *testing.T) job.Job { return confirmationJob(t, 0, 5) },
			notifyErr:   notifications.ErrCircuitOpen,
			wantRetryAt: fixedNow.Add(time.Second),
		},
		{
			name: "bad payload is permanent",
			job: func(t *testing.T) job.Job {
				j := confirmationJob(t, 0, 5)
				j.Payload = json.RawMessage(`{"moduleId":""}`)
				return j
			},
			wantFailed: true,
		},
		{
			name: "unknown type is permanent",
			job: func(t *testing.T) job.Job {
				j := confirmationJob(t, 0, 5)
				j.Type = "something.else"
				return j
			},
			wantFailed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := tt.job(t)
			repo := newFakeRepo(j)

			processed, err := newTestWorker(repo, &recordingNotifier{err: tt.notifyErr}).ProcessOne(context.Background())
			if !processed || err != nil {
				t.Fatalf("processed=%v err=%v", processed, err)
			}

			if len(repo.done) != 0 {
				t.Fatalf("failed job must not be marked done")
			}

			_, failed := repo.failed[j.ID]
			if failed != tt.wantFailed {
				t.Fatalf("failed=%v want %v (failed=%v rescheduled=%v)", failed, tt.wantFailed, repo.failed, repo.rescheduled)
			}

			if !tt.wantFailed {
				if got := repo.rescheduled[j.ID]; !got.Equal(tt.wantRetryAt) {
					t.Fatalf("retry at %v, want %v", got, tt.wantRetryAt)
				}
			}
		})
	}
}

func TestRun_DrainsQueueAndStops(t *testing.T) {
	repo := newFakeRepo(confirmationJob(t, 0, 5), confirmationJob(t, 0, 5), confirmationJob(t, 0, 5))
	n := &recordingNotifier{}
	w := newTestWorker(repo, n)
	w.cfg.Concurrency = 2

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		repo.mu.Lock()
		done := len(repo.done)
		repo.mu.Unlock()
		if done == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out, done=%d", done)
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !w.Ready() {
		t.Fatalf("running worker should be ready")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if w.Ready() {
		t.Fatalf("stopped worker should not be ready")
	}
}

func TestHealthHandler(t *testing.T) {
	w := newTestWorker(newFakeRepo(), &recordingNotifier{})
	pingErr := error(nil)
	h := w.HealthHandler(func(context.Context) error { return pingErr })

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	if got := get("/healthz"); got != http.StatusOK {
		t.Fatalf("healthz: %d", got)
	}
	if got := get("/readyz"); got != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start: %d", got)
	}

	w.setReady(true)
	if got := get("/readyz"); got != http.StatusOK {
		t.Fatalf("readyz when ready: %d", got)
	}

	pingErr = errors.New("db down")
	if got := get("/readyz"); got != http.StatusServiceUnavailable {
		t.Fatalf("readyz with db down: %d", got)
	}
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{10, 5 * time.Minute},
		{64, 5 * time.Minute},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)
		if got < tt.min || got >= tt.min+250*time.Millisecond {
			t.Errorf("attempt %d: got %v, want [%v, %v)", tt.attempt, got, tt.min, tt.min+250*time.Millisecond)
		}
	}
}
