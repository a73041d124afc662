package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/JFenderson/BandHub-sub007/internal/domain"
)

const (
	// Waiting-set score = priority*prioStep + submission sequence, so the
	// store services lower ordinals first and FIFO within a tier. prioStep
	// leaves 12 decimal digits of sequence inside float64 precision.
	prioStep = 1e12

	dedupeTTL          = 48 * time.Hour
	completedRetention = time.Hour
	failedRetention    = 7 * 24 * time.Hour

	// leaseTTL bounds how long a dequeued job may sit in the active set
	// before it is presumed orphaned by a dead worker and requeued. Must
	// outlive the worker's per-job timeout.
	leaseTTL = 15 * time.Minute
)

// RedisQ implements Store on Redis. Layout per queue q:
//
//	q:{q}:wait     ZSET  score = priority*prioStep + seq
//	q:{q}:delayed  ZSET  score = ready-at unix ms
//	q:{q}:active   ZSET  score = lease deadline unix ms
//	q:{q}:completed, q:{q}:failed  ZSET  score = finished-at unix, trimmed
//	q:{q}:repeat   HASH  {pattern}~{type} -> spec JSON
//	job:{id}       HASH  job record
type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func waitKey(q string) string    { return "q:" + q + ":wait" }
func delayedKey(q string) string { return "q:" + q + ":delayed" }
func activeKey(q string) string  { return "q:" + q + ":active" }
func doneKey(q string) string    { return "q:" + q + ":completed" }
func failedKey(q string) string  { return "q:" + q + ":failed" }
func seqKey(q string) string     { return "q:" + q + ":seq" }
func repeatKey(q string) string  { return "q:" + q + ":repeat" }
func jobKey(id string) string    { return "job:" + id }
func dedupeKey(id string) string { return "dedupe:" + id }

func (q *RedisQ) Enqueue(ctx context.Context, queue, jobType string, payload json.RawMessage, opts Options) (*domain.Job, error) {
	id := opts.JobID
	dedupe := id != ""
	if id == "" {
		id = uuid.NewString()
	} else {
		// caller-supplied IDs are idempotency keys: first writer wins
		ok, err := q.rdb.SetNX(ctx, dedupeKey(id), 1, dedupeTTL).Result()
		if err != nil {
			return nil, errors.Wrap(err, "dedupe check")
		}
		if !ok {
			return nil, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          id,
		Queue:       queue,
		Type:        jobType,
		Payload:     payload,
		Priority:    opts.Priority,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
		State:       domain.StateWaiting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	pipe := q.rdb.TxPipeline()
	if opts.Delay > 0 {
		job.State = domain.StateDelayed
		job.ReadyAt = now.Add(opts.Delay)
		writeJob(ctx, pipe, job)
		pipe.ZAdd(ctx, delayedKey(queue), r.Z{Score: float64(job.ReadyAt.UnixMilli()), Member: id})
	} else {
		seq, err := q.rdb.Incr(ctx, seqKey(queue)).Result()
		if err != nil {
			q.releaseDedupe(ctx, dedupe, id)
			return nil, errors.Wrap(err, "seq")
		}
		writeJob(ctx, pipe, job)
		pipe.ZAdd(ctx, waitKey(queue), r.Z{Score: waitScore(opts.Priority, seq), Member: id})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		// a failed enqueue must not leave a marker with no job behind it,
		// or the next submission under the same key is wrongly rejected
		q.releaseDedupe(ctx, dedupe, id)
		return nil, errors.Wrap(err, "enqueue")
	}
	return job, nil
}

func (q *RedisQ) releaseDedupe(ctx context.Context, dedupe bool, id string) {
	if dedupe {
		q.rdb.Del(ctx, dedupeKey(id))
	}
}

func waitScore(priority int, seq int64) float64 {
	return float64(priority)*prioStep + float64(seq)
}

func (q *RedisQ) Dequeue(ctx context.Context, queue string, block time.Duration) (*domain.Job, error) {
	z, err := q.rdb.BZPopMin(ctx, block, waitKey(queue)).Result()
	if err == r.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "dequeue")
	}
	id, _ := z.Member.(string)
	job, err := q.loadJob(ctx, id)
	if err == ErrNotFound {
		// record expired out from under the queue entry; drop it
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lease := now.Add(leaseTTL)
	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, activeKey(queue), r.Z{Score: float64(lease.UnixMilli()), Member: id})
	pipe.HIncrBy(ctx, jobKey(id), "attempt", 1)
	pipe.HSet(ctx, jobKey(id), "state", string(domain.StateActive),
		"lease_expires_at", lease.UnixMilli(), "updated_at", now.UnixMilli())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "activate")
	}
	job.Attempt++
	job.State = domain.StateActive
	job.LeaseExpiresAt = lease
	return job, nil
}

func (q *RedisQ) Complete(ctx context.Context, job *domain.Job) error {
	now := time.Now().UTC()
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(job.Queue), job.ID)
	pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.StateCompleted), "updated_at", now.UnixMilli())
	pipe.ZAdd(ctx, doneKey(job.Queue), r.Z{Score: float64(now.Unix()), Member: job.ID})
	pipe.ZRemRangeByScore(ctx, doneKey(job.Queue), "-inf", fmt.Sprintf("%d", now.Add(-completedRetention).Unix()))
	pipe.Expire(ctx, jobKey(job.ID), completedRetention)
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "complete")
}

// Fail retries with backoff while attempts remain, else parks the job in
// the failed set where it is retained for manual diagnosis.
func (q *RedisQ) Fail(ctx context.Context, job *domain.Job, cause error) error {
	now := time.Now().UTC()
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(job.Queue), job.ID)
	pipe.HDel(ctx, jobKey(job.ID), "lease_expires_at")
	pipe.HSet(ctx, jobKey(job.ID), "error", cause.Error(), "updated_at", now.UnixMilli())

	if job.Attempt < job.MaxAttempts {
		readyAt := now.Add(job.Backoff.Next(job.Attempt))
		pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.StateDelayed), "ready_at", readyAt.UnixMilli())
		pipe.ZAdd(ctx, delayedKey(job.Queue), r.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	} else {
		pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.StateFailed))
		pipe.ZAdd(ctx, failedKey(job.Queue), r.Z{Score: float64(now.Unix()), Member: job.ID})
		pipe.ZRemRangeByScore(ctx, failedKey(job.Queue), "-inf", fmt.Sprintf("%d", now.Add(-failedRetention).Unix()))
		pipe.Expire(ctx, jobKey(job.ID), failedRetention)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "fail")
}

// Release hands an active job back to the waiting set without counting
// the attempt. Used when the worker is shutting down mid-handler rather
// than because the job itself failed.
func (q *RedisQ) Release(ctx context.Context, job *domain.Job) error {
	seq, err := q.rdb.Incr(ctx, seqKey(job.Queue)).Result()
	if err != nil {
		return errors.Wrap(err, "seq")
	}
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, activeKey(job.Queue), job.ID)
	pipe.HIncrBy(ctx, jobKey(job.ID), "attempt", -1)
	pipe.HDel(ctx, jobKey(job.ID), "lease_expires_at")
	pipe.HSet(ctx, jobKey(job.ID), "state", string(domain.StateWaiting), "updated_at", time.Now().UTC().UnixMilli())
	pipe.ZAdd(ctx, waitKey(job.Queue), r.Z{Score: waitScore(job.Priority, seq), Member: job.ID})
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "release")
}

func (q *RedisQ) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return q.loadJob(ctx, id)
}

func (q *RedisQ) State(ctx context.Context, queue, id string) (domain.State, error) {
	st, err := q.rdb.HGet(ctx, jobKey(id), "state").Result()
	if err == r.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "state")
	}
	return domain.State(st), nil
}

// Remove deletes a waiting or delayed job. Callers guard the state; the
// store just removes every trace.
func (q *RedisQ) Remove(ctx context.Context, queue, id string) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, waitKey(queue), id)
	pipe.ZRem(ctx, delayedKey(queue), id)
	pipe.Del(ctx, jobKey(id))
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "remove")
}

func (q *RedisQ) ListByState(ctx context.Context, queue string, state domain.State, limit int) ([]*domain.Job, error) {
	ids, err := q.idsByState(ctx, queue, state, limit)
	if err != nil {
		return nil, err
	}
	jobs := make([]*domain.Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisQ) CountByTier(ctx context.Context, queue string, state domain.State) (map[domain.Tier]int, error) {
	ids, err := q.idsByState(ctx, queue, state, 5000)
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.Tier]int, len(domain.Tiers))
	if len(ids) == 0 {
		return counts, nil
	}
	pipe := q.rdb.Pipeline()
	cmds := make([]*r.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGet(ctx, jobKey(id), "priority")
	}
	if _, err := pipe.Exec(ctx); err != nil && err != r.Nil {
		return nil, errors.Wrap(err, "count by tier")
	}
	for _, cmd := range cmds {
		p, err := cmd.Int()
		if err != nil {
			continue
		}
		counts[domain.TierOf(p)]++
	}
	return counts, nil
}

func (q *RedisQ) idsByState(ctx context.Context, queue string, state domain.State, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	switch state {
	case domain.StateWaiting:
		return q.rdb.ZRange(ctx, waitKey(queue), 0, int64(limit-1)).Result()
	case domain.StateDelayed:
		return q.rdb.ZRange(ctx, delayedKey(queue), 0, int64(limit-1)).Result()
	case domain.StateActive:
		return q.rdb.ZRange(ctx, activeKey(queue), 0, int64(limit-1)).Result()
	case domain.StateCompleted:
		return q.rdb.ZRange(ctx, doneKey(queue), 0, int64(limit-1)).Result()
	case domain.StateFailed:
		return q.rdb.ZRange(ctx, failedKey(queue), 0, int64(limit-1)).Result()
	}
	return nil, domain.NewConfigurationError("unknown state %q", state)
}

// MoveDue promotes delayed jobs whose ready time has passed into the
// waiting set, preserving each job's priority ordinal. It also requeues
// active jobs whose lease expired: a worker that died mid-job never
// calls Complete or Fail, so the lease deadline is the only signal the
// job is orphaned.
func (q *RedisQ) MoveDue(ctx context.Context, queue string, now time.Time, batch int64) (int, error) {
	requeued, err := q.requeueExpiredLeases(ctx, queue, now, batch)
	if err != nil {
		return requeued, err
	}

	ids, err := q.rdb.ZRangeByScore(ctx, delayedKey(queue), &r.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return requeued, errors.Wrap(err, "move due")
	}

	moved := requeued
	for _, id := range ids {
		prio, err := q.rdb.HGet(ctx, jobKey(id), "priority").Int()
		if err != nil {
			// dangling entry; drop it
			q.rdb.ZRem(ctx, delayedKey(queue), id)
			continue
		}
		seq, err := q.rdb.Incr(ctx, seqKey(queue)).Result()
		if err != nil {
			return moved, errors.Wrap(err, "seq")
		}
		pipe := q.rdb.TxPipeline()
		pipe.ZAdd(ctx, waitKey(queue), r.Z{Score: waitScore(prio, seq), Member: id})
		pipe.ZRem(ctx, delayedKey(queue), id)
		pipe.HSet(ctx, jobKey(id), "state", string(domain.StateWaiting), "updated_at", now.UnixMilli())
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, errors.Wrap(err, "move due")
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQ) requeueExpiredLeases(ctx context.Context, queue string, now time.Time, batch int64) (int, error) {
	ids, err := q.rdb.ZRangeByScore(ctx, activeKey(queue), &r.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli()), Offset: 0, Count: batch,
	}).Result()
	if err != nil || len(ids) == 0 {
		return 0, errors.Wrap(err, "expired leases")
	}

	moved := 0
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err == ErrNotFound {
			q.rdb.ZRem(ctx, activeKey(queue), id)
			continue
		}
		if err != nil {
			return moved, err
		}
		// the dequeue that took the lease already counted the attempt
		if job.Attempt >= job.MaxAttempts {
			pipe := q.rdb.TxPipeline()
			pipe.ZRem(ctx, activeKey(queue), id)
			pipe.HSet(ctx, jobKey(id), "state", string(domain.StateFailed),
				"error", "lease expired", "updated_at", now.UnixMilli())
			pipe.ZAdd(ctx, failedKey(queue), r.Z{Score: float64(now.Unix()), Member: id})
			pipe.Expire(ctx, jobKey(id), failedRetention)
			if _, err := pipe.Exec(ctx); err != nil {
				return moved, errors.Wrap(err, "expire lease")
			}
			continue
		}
		seq, err := q.rdb.Incr(ctx, seqKey(queue)).Result()
		if err != nil {
			return moved, errors.Wrap(err, "seq")
		}
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, activeKey(queue), id)
		pipe.HDel(ctx, jobKey(id), "lease_expires_at")
		pipe.HSet(ctx, jobKey(id), "state", string(domain.StateWaiting), "updated_at", now.UnixMilli())
		pipe.ZAdd(ctx, waitKey(queue), r.Z{Score: waitScore(job.Priority, seq), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return moved, errors.Wrap(err, "requeue lease")
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQ) RegisterRepeatable(ctx context.Context, queue string, spec RepeatableSpec) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "marshal repeatable")
	}
	return errors.Wrap(q.rdb.HSet(ctx, repeatKey(queue), spec.Key(), raw).Err(), "register repeatable")
}

func (q *RedisQ) ListRepeatable(ctx context.Context, queue string) ([]RepeatableSpec, error) {
	raw, err := q.rdb.HGetAll(ctx, repeatKey(queue)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list repeatable")
	}
	specs := make([]RepeatableSpec, 0, len(raw))
	for _, v := range raw {
		var s RepeatableSpec
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func (q *RedisQ) RemoveRepeatable(ctx context.Context, queue, pattern, jobType string) error {
	key := RepeatableSpec{Pattern: pattern, JobType: jobType}.Key()
	return errors.Wrap(q.rdb.HDel(ctx, repeatKey(queue), key).Err(), "remove repeatable")
}

func writeJob(ctx context.Context, pipe r.Pipeliner, j *domain.Job) {
	fields := map[string]interface{}{
		"queue":            j.Queue,
		"type":             j.Type,
		"payload":          string(j.Payload),
		"priority":         j.Priority,
		"attempt":          j.Attempt,
		"max_attempts":     j.MaxAttempts,
		"backoff_type":     j.Backoff.Type,
		"backoff_delay_ms": j.Backoff.Delay.Milliseconds(),
		"state":            string(j.State),
		"created_at":       j.CreatedAt.UnixMilli(),
		"updated_at":       j.UpdatedAt.UnixMilli(),
	}
	if !j.ReadyAt.IsZero() {
		fields["ready_at"] = j.ReadyAt.UnixMilli()
	}
	pipe.HSet(ctx, jobKey(j.ID), fields)
}

func (q *RedisQ) loadJob(ctx context.Context, id string) (*domain.Job, error) {
	h, err := q.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load job")
	}
	if len(h) == 0 {
		return nil, ErrNotFound
	}
	job := &domain.Job{
		ID:      id,
		Queue:   h["queue"],
		Type:    h["type"],
		Payload: json.RawMessage(h["payload"]),
		State:   domain.State(h["state"]),
		Error:   h["error"],
	}
	job.Priority, _ = strconv.Atoi(h["priority"])
	job.Attempt, _ = strconv.Atoi(h["attempt"])
	job.MaxAttempts, _ = strconv.Atoi(h["max_attempts"])
	job.Backoff.Type = h["backoff_type"]
	if ms, err := strconv.ParseInt(h["backoff_delay_ms"], 10, 64); err == nil {
		job.Backoff.Delay = time.Duration(ms) * time.Millisecond
	}
	job.CreatedAt = msTime(h["created_at"])
	job.UpdatedAt = msTime(h["updated_at"])
	job.ReadyAt = msTime(h["ready_at"])
	job.LeaseExpiresAt = msTime(h["lease_expires_at"])
	return job, nil
}

func msTime(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
