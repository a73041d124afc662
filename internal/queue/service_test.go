package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
	"github.com/JFenderson/BandHub-sub007/internal/priority"
)

// memStore is an in-memory Store for facade tests.
type memStore struct {
	jobs   map[string]*domain.Job
	dedupe map[string]bool
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*domain.Job{}, dedupe: map[string]bool{}}
}

func (m *memStore) Enqueue(ctx context.Context, queueName, jobType string, payload json.RawMessage, opts Options) (*domain.Job, error) {
	id := opts.JobID
	if id == "" {
		id = "random"
	} else {
		if m.dedupe[id] {
			return nil, ErrDuplicate
		}
		m.dedupe[id] = true
	}
	job := &domain.Job{
		ID:          id,
		Queue:       queueName,
		Type:        jobType,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		State:       domain.StateWaiting,
	}
	if opts.Delay > 0 {
		job.State = domain.StateDelayed
		job.ReadyAt = time.Now().Add(opts.Delay)
	}
	m.jobs[id] = job
	return job, nil
}

func (m *memStore) Dequeue(ctx context.Context, queueName string, block time.Duration) (*domain.Job, error) {
	return nil, nil
}
func (m *memStore) Complete(ctx context.Context, job *domain.Job) error { return nil }
func (m *memStore) Release(ctx context.Context, job *domain.Job) error  { return nil }
func (m *memStore) Fail(ctx context.Context, job *domain.Job, cause error) error {
	return nil
}

func (m *memStore) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

func (m *memStore) State(ctx context.Context, queueName, id string) (domain.State, error) {
	job, ok := m.jobs[id]
	if !ok {
		return "", ErrNotFound
	}
	return job.State, nil
}

func (m *memStore) Remove(ctx context.Context, queueName, id string) error {
	delete(m.jobs, id)
	return nil
}

func (m *memStore) ListByState(ctx context.Context, queueName string, state domain.State, limit int) ([]*domain.Job, error) {
	var out []*domain.Job
	for _, j := range m.jobs {
		if j.Queue == queueName && j.State == state {
			out = append(out, j)
		}
	}
	return out, nil
}

func (m *memStore) CountByTier(ctx context.Context, queueName string, state domain.State) (map[domain.Tier]int, error) {
	counts := map[domain.Tier]int{}
	for _, j := range m.jobs {
		if j.Queue == queueName && j.State == state {
			counts[domain.TierOf(j.Priority)]++
		}
	}
	return counts, nil
}

func (m *memStore) MoveDue(ctx context.Context, queueName string, now time.Time, batch int64) (int, error) {
	return 0, nil
}
func (m *memStore) RegisterRepeatable(ctx context.Context, queueName string, spec RepeatableSpec) error {
	return nil
}
func (m *memStore) ListRepeatable(ctx context.Context, queueName string) ([]RepeatableSpec, error) {
	return nil, nil
}
func (m *memStore) RemoveRepeatable(ctx context.Context, queueName, pattern, jobType string) error {
	return nil
}

type fakeSnapshot map[string]bool

func (f fakeSnapshot) Contains(id string) bool { return f[id] }

func newTestService(store Store, featured ...string) *Service {
	snap := fakeSnapshot{}
	for _, id := range featured {
		snap[id] = true
	}
	svc := NewService(store, priority.NewResolver(snap), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 10, 4, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestSubmitWithPriority_UnknownQueue(t *testing.T) {
	svc := newTestService(newMemStore())
	_, err := svc.SubmitWithPriority(context.Background(), "nope", domain.TypeSyncBand, struct{}{}, nil)
	if err == nil {
		t.Fatal("expected error for unknown queue")
	}
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("got %T, want *domain.ConfigurationError", err)
	}
}

func TestSubmitWithPriority_QueueDefaults(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	job, err := svc.SubmitWithPriority(context.Background(), domain.QueueSync, domain.TypeSyncBand,
		domain.SyncBandPayload{BandID: "band-1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if job.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want sync default 3", job.MaxAttempts)
	}
	if job.Backoff.Type != domain.BackoffExponential || job.Backoff.Delay != 30*time.Second {
		t.Errorf("Backoff = %+v, want exponential 30s", job.Backoff)
	}
	if domain.TierOf(job.Priority) != domain.TierNormal {
		t.Errorf("priority tier = %v, want normal", domain.TierOf(job.Priority))
	}
}

func TestSubmitWithPriority_ExplicitOptionsWin(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, "band-1")
	job, err := svc.SubmitWithPriority(context.Background(), domain.QueueSync, domain.TypeSyncBand,
		domain.SyncBandPayload{BandID: "band-1"},
		&Options{Priority: int(domain.TierLow), Attempts: 5})
	if err != nil {
		t.Fatal(err)
	}
	if job.Priority != int(domain.TierLow) {
		t.Errorf("priority = %d, want explicit low even for a featured band", job.Priority)
	}
	if job.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", job.MaxAttempts)
	}
}

func TestSubmitBandSync_FeaturedIsCritical(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, "band-1")
	job, err := svc.SubmitBandSync(context.Background(), "band-1", domain.SyncModeIncremental, "admin", nil)
	if err != nil {
		t.Fatal(err)
	}
	if domain.TierOf(job.Priority) != domain.TierCritical {
		t.Errorf("featured band sync tier = %v, want critical", domain.TierOf(job.Priority))
	}
	if !strings.HasPrefix(job.ID, "sync-band-1-") {
		t.Errorf("job ID %q missing sync-{band}-{ts} shape", job.ID)
	}
}

func TestSubmitBandSync_DuplicateSameSecond(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	if _, err := svc.SubmitBandSync(context.Background(), "band-1", domain.SyncModeIncremental, "admin", nil); err != nil {
		t.Fatal(err)
	}
	// clock is pinned, so the derived job ID collides
	_, err := svc.SubmitBandSync(context.Background(), "band-1", domain.SyncModeIncremental, "admin", nil)
	if err != ErrDuplicate {
		t.Fatalf("second submit err = %v, want ErrDuplicate", err)
	}
}

func TestSubmitVideoProcessing_Defaults(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	published := time.Date(2025, 10, 4, 6, 0, 0, 0, time.UTC)
	job, err := svc.SubmitVideoProcessing(context.Background(),
		domain.ProcessVideoPayload{VideoID: "v1", PublishedAt: &published}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if job.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", job.MaxAttempts)
	}
	if job.Backoff.Delay != 5*time.Second || job.Backoff.Type != domain.BackoffExponential {
		t.Errorf("Backoff = %+v, want exponential 5s", job.Backoff)
	}
}

func TestUpdateJobPriority_ActiveJobRejected(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	job, err := svc.SubmitBandSync(context.Background(), "band-1", domain.SyncModeIncremental, "admin", nil)
	if err != nil {
		t.Fatal(err)
	}
	store.jobs[job.ID].State = domain.StateActive

	err = svc.UpdateJobPriority(context.Background(), domain.QueueSync, job.ID, domain.TierCritical)
	var stateErr *domain.InvalidStateError
	if !errors.As(err, &stateErr) {
		t.Fatalf("got %v, want *domain.InvalidStateError", err)
	}
	if _, ok := store.jobs[job.ID]; !ok {
		t.Error("rejected reprioritization must not mutate the store")
	}
}

func TestUpdateJobPriority_WaitingJobReinserted(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	job, err := svc.SubmitBandSync(context.Background(), "band-1", domain.SyncModeIncremental, "admin", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.UpdateJobPriority(context.Background(), domain.QueueSync, job.ID, domain.TierCritical); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.jobs[job.ID]; ok {
		t.Error("original job should be removed")
	}

	var replacement *domain.Job
	for id, j := range store.jobs {
		if strings.HasPrefix(id, job.ID+"-r") {
			replacement = j
		}
	}
	if replacement == nil {
		t.Fatal("no replacement job with derived ID suffix")
	}
	if replacement.Priority != int(domain.TierCritical) {
		t.Errorf("replacement priority = %d, want critical", replacement.Priority)
	}
	if replacement.MaxAttempts != job.MaxAttempts {
		t.Errorf("replacement attempts = %d, want %d", replacement.MaxAttempts, job.MaxAttempts)
	}
}
