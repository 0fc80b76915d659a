// Package jobs hands declarative job descriptions to the external scheduler.
// Nothing here runs jobs; the scheduler drains the queue on its own clock.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/dispatch-engine/internal/domain"
)

// Job types produced by the dispatch engines.
const (
	TypeAppointmentReminder = "appointment_reminder"
	TypeLeadFollowUp        = "lead_follow_up"
)

// Job is an enqueued request with its assigned id.
type Job struct {
	ID string `json:"id"`
	domain.JobRequest
}

// Queue is the job-scheduling collaborator. The engine only enqueues; the
// external job runner polls Due, and dispatchctl jobs due lists the backlog.
type Queue interface {
	Enqueue(ctx context.Context, req domain.JobRequest) (string, error)
	// Due lists up to limit jobs whose run time is at or before now, earliest
	// first. A limit of zero or less means no limit.
	Due(ctx context.Context, now time.Time, limit int) ([]Job, error)
}

// Memory keeps jobs in process.
type Memory struct {
	mu   sync.Mutex
	jobs []Job
	fail error
}

func NewMemory() *Memory {
	return &Memory{}
}

// Fail makes every later Enqueue return err; nil restores normal operation.
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) Enqueue(_ context.Context, req domain.JobRequest) (string, error) {
	if req.Type == "" {
		return "", errors.New("job type is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return "", m.fail
	}
	job := Job{ID: uuid.NewString(), JobRequest: req}
	m.jobs = append(m.jobs, job)
	return job.ID, nil
}

func (m *Memory) Due(_ context.Context, now time.Time, limit int) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Job
	for _, j := range m.jobs {
		if !j.RunAt.After(now) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].RunAt.Before(out[k].RunAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every enqueued job in enqueue order.
func (m *Memory) All() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Job(nil), m.jobs...)
}

// Redis stores jobs in a sorted set scored by run time in unix milliseconds.
type Redis struct {
	client redis.UniversalClient
	key    string
}

func NewRedis(client redis.UniversalClient, key string) *Redis {
	return &Redis{client: client, key: key}
}

func (r *Redis) Enqueue(ctx context.Context, req domain.JobRequest) (string, error) {
	if req.Type == "" {
		return "", errors.New("job type is required")
	}
	job := Job{ID: uuid.NewString(), JobRequest: req}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("encode job: %w", err)
	}
	if err := r.client.ZAdd(ctx, r.key, redis.Z{Score: float64(req.RunAt.UnixMilli()), Member: body}).Err(); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (r *Redis) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	opt := &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now.UnixMilli())}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	members, err := r.client.ZRangeByScore(ctx, r.key, opt).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(members))
	for _, m := range members {
		var j Job
		if err := json.Unmarshal([]byte(m), &j); err != nil {
			return nil, fmt.Errorf("decode job: %w", err)
		}
		out = append(out, j)
	}
	return out, nil
}
