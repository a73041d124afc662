package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	r "github.com/redis/go-redis/v9"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

func newTestQ(t *testing.T) (*RedisQ, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := r.NewClient(&r.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func enqueueOne(t *testing.T, q *RedisQ, opts Options) *domain.Job {
	t.Helper()
	job, err := q.Enqueue(context.Background(), domain.QueueSync, domain.TypeSyncBand,
		json.RawMessage(`{"bandId":"band-1"}`), opts)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRedisQ_DequeueServesPriorityOrder(t *testing.T) {
	q, _ := newTestQ(t)
	ctx := context.Background()

	enqueueOne(t, q, Options{Priority: int(domain.TierNormal), Attempts: 1, JobID: "normal"})
	enqueueOne(t, q, Options{Priority: int(domain.TierCritical), Attempts: 1, JobID: "critical"})
	enqueueOne(t, q, Options{Priority: int(domain.TierLow), Attempts: 1, JobID: "low"})

	for _, want := range []string{"critical", "normal", "low"} {
		job, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond)
		if err != nil {
			t.Fatal(err)
		}
		if job == nil || job.ID != want {
			t.Fatalf("dequeued %+v, want %s", job, want)
		}
	}
}

func TestRedisQ_ExpiredLeaseIsRequeued(t *testing.T) {
	q, _ := newTestQ(t)
	ctx := context.Background()

	enqueueOne(t, q, Options{Priority: int(domain.TierNormal), Attempts: 3, JobID: "j1"})
	job, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if job.Attempt != 1 || job.LeaseExpiresAt.IsZero() {
		t.Fatalf("active job = %+v, want attempt 1 with a lease", job)
	}

	// worker dies here: Complete/Fail never run. Before the lease runs
	// out the job must stay put.
	if n, err := q.MoveDue(ctx, domain.QueueSync, time.Now(), 100); err != nil || n != 0 {
		t.Fatalf("MoveDue before expiry = %d, %v, want 0, nil", n, err)
	}

	after := time.Now().Add(leaseTTL + time.Minute)
	n, err := q.MoveDue(ctx, domain.QueueSync, after, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("MoveDue after expiry moved %d, want 1", n)
	}

	st, err := q.State(ctx, domain.QueueSync, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateWaiting {
		t.Fatalf("state after requeue = %q, want waiting", st)
	}
	again, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.ID != "j1" || again.Attempt != 2 {
		t.Fatalf("redequeued = %+v, want j1 on attempt 2", again)
	}
}

func TestRedisQ_ExpiredLeaseWithNoAttemptsLeftFails(t *testing.T) {
	q, _ := newTestQ(t)
	ctx := context.Background()

	enqueueOne(t, q, Options{Priority: int(domain.TierLow), Attempts: 1, JobID: "once"})
	if _, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	after := time.Now().Add(leaseTTL + time.Minute)
	if _, err := q.MoveDue(ctx, domain.QueueSync, after, 100); err != nil {
		t.Fatal(err)
	}

	st, err := q.State(ctx, domain.QueueSync, "once")
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateFailed {
		t.Fatalf("state = %q, want failed (attempts exhausted)", st)
	}
	if job, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond); err != nil || job != nil {
		t.Fatalf("exhausted job must not be requeued, got %+v, %v", job, err)
	}
}

func TestRedisQ_FailedEnqueueDropsIdempotencyMarker(t *testing.T) {
	q, mr := newTestQ(t)
	ctx := context.Background()

	// wrong-typed wait key makes the enqueue transaction fail after the
	// marker is set
	mr.Set(waitKey(domain.QueueSync), "oops")
	if _, err := q.Enqueue(ctx, domain.QueueSync, domain.TypeCleanupVideos,
		json.RawMessage(`{}`), Options{Attempts: 1, JobID: "cleanup-2026-08-30"}); err == nil {
		t.Fatal("enqueue against a corrupt wait key should fail")
	}

	mr.Del(waitKey(domain.QueueSync))
	job, err := q.Enqueue(ctx, domain.QueueSync, domain.TypeCleanupVideos,
		json.RawMessage(`{}`), Options{Attempts: 1, JobID: "cleanup-2026-08-30"})
	if err != nil {
		t.Fatalf("retry under the same key = %v, want success (marker must not outlive a failed enqueue)", err)
	}
	if job.ID != "cleanup-2026-08-30" {
		t.Fatalf("job ID = %s", job.ID)
	}

	// and a genuine duplicate is still rejected
	if _, err := q.Enqueue(ctx, domain.QueueSync, domain.TypeCleanupVideos,
		json.RawMessage(`{}`), Options{Attempts: 1, JobID: "cleanup-2026-08-30"}); err != ErrDuplicate {
		t.Fatalf("third enqueue = %v, want ErrDuplicate", err)
	}
}

func TestRedisQ_ReleaseReturnsJobWithoutAttemptPenalty(t *testing.T) {
	q, _ := newTestQ(t)
	ctx := context.Background()

	enqueueOne(t, q, Options{Priority: int(domain.TierHigh), Attempts: 2, JobID: "j1"})
	job, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Release(ctx, job); err != nil {
		t.Fatal(err)
	}

	st, err := q.State(ctx, domain.QueueSync, "j1")
	if err != nil {
		t.Fatal(err)
	}
	if st != domain.StateWaiting {
		t.Fatalf("state after release = %q, want waiting", st)
	}
	again, err := q.Dequeue(ctx, domain.QueueSync, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.Attempt != 1 {
		t.Fatalf("redequeued = %+v, want attempt still 1", again)
	}
}
