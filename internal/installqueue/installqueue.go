// Package installqueue implements the async install job queue: enqueue a
// bundle install, poll its status, retry it, or cancel it, backed by
// Redis instead of the rq.Queue the original host used. Job state lives
// as a JSON string under installjob:{id}; a ZSET (score = enqueue time)
// holds the pending queue,
// giving cheap FIFO ordering and introspection over what rq's internal
// list gave for free.
//
// A fixed worker pool (grounded on the command dispatcher's
// channel-draining goroutines) pops jobs, runs the installer, and writes
// the resulting state transition back to the job's key.
package installqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hiagent/plugin-host/internal/errors"
	"github.com/hiagent/plugin-host/internal/installer"
	"github.com/hiagent/plugin-host/internal/logger"
)

// Status mirrors rq.job.JobStatus's values used by this host.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
	StatusStopped  Status = "stopped"
)

// cancellable lists the states CancelInstallPackage accepts; any other
// state (finished, failed, stopped) is terminal and rejected.
var cancellable = map[Status]bool{
	StatusQueued:  true,
	StatusStarted: true,
}

// Job is one install attempt's persisted state.
type Job struct {
	ID       string                  `json:"id"`
	URI      string                  `json:"uri"`
	Filename string                  `json:"filename"`
	Force    bool                    `json:"force"`
	Status   Status                  `json:"status"`
	Reason   string                  `json:"reason,omitempty"`
	Result   *installer.PackageBrief `json:"result,omitempty"`
}

func jobKey(id string) string { return "installjob:" + id }

const pendingZSet = "installjob:pending"

// Installer is the subset of installer.Installer the queue depends on,
// narrowed to one method so tests can substitute a fake bundle installer.
type Installer interface {
	Install(uri, filename string, force bool) (installer.PackageBrief, error)
}

// Queue is the Redis-backed install job queue and its worker pool.
type Queue struct {
	rdb        *redis.Client
	installer  Installer
	jobTimeout time.Duration
	resultTTL  time.Duration

	jobs chan string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a queue backed by rdb, with `workers` goroutines draining
// jobs, each bounded by jobTimeout. Completed job state is kept for
// jobTimeout*4, mirroring rq's result-ttl-follows-timeout convention.
func New(rdb *redis.Client, inst Installer, workers int, jobTimeout time.Duration) *Queue {
	q := &Queue{
		rdb:        rdb,
		installer:  inst,
		jobTimeout: jobTimeout,
		resultTTL:  jobTimeout * 4,
		jobs:       make(chan string, 1000),
		cancels:    make(map[string]context.CancelFunc),
	}
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue creates a new queued job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, uri, filename string, force bool) (string, error) {
	id := uuid.New().String()
	job := Job{ID: id, URI: uri, Filename: filename, Force: force, Status: StatusQueued}

	if err := q.save(ctx, job); err != nil {
		return "", err
	}
	if err := q.rdb.ZAdd(ctx, pendingZSet, redis.Z{Score: float64(nowUnix()), Member: id}).Err(); err != nil {
		return "", errors.Wrap(err)
	}

	select {
	case q.jobs <- id:
	default:
		logger.InstallQueue().Warn().Str("job_id", id).Msg("worker channel full, job remains queued for next drain")
	}
	return id, nil
}

// Status returns a job's current state.
func (q *Queue) Status(ctx context.Context, id string) (Job, error) {
	return q.load(ctx, id)
}

// Retry stops a job if running and re-enqueues it under the same id.
func (q *Queue) Retry(ctx context.Context, id string) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	q.stopIfRunning(id)

	job.Status = StatusQueued
	job.Reason = ""
	if err := q.save(ctx, job); err != nil {
		return err
	}
	select {
	case q.jobs <- id:
	default:
	}
	return nil
}

// Cancel stops a queued or running job. A job already in a terminal state
// cannot be cancelled.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	job, err := q.load(ctx, id)
	if err != nil {
		return err
	}
	if !cancellable[job.Status] {
		return errors.JobNotCancellable(id, string(job.Status))
	}
	q.stopIfRunning(id)

	job.Status = StatusStopped
	return q.save(ctx, job)
}

func (q *Queue) stopIfRunning(id string) {
	q.mu.Lock()
	cancel, ok := q.cancels[id]
	q.mu.Unlock()
	if ok {
		cancel()
	}
}

func (q *Queue) worker() {
	for id := range q.jobs {
		q.run(id)
	}
}

func (q *Queue) run(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.jobTimeout)
	q.mu.Lock()
	q.cancels[id] = cancel
	q.mu.Unlock()
	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, id)
		q.mu.Unlock()
	}()

	job, err := q.load(ctx, id)
	if err != nil {
		return
	}
	if job.Status != StatusQueued {
		return
	}

	job.Status = StatusStarted
	if err := q.save(ctx, job); err != nil {
		logger.InstallQueue().Error().Err(err).Str("job_id", id).Msg("failed to persist started state")
		return
	}

	resultCh := make(chan installResult, 1)
	go func() {
		brief, err := q.installer.Install(job.URI, job.Filename, job.Force)
		resultCh <- installResult{brief: brief, err: err}
	}()

	select {
	case <-ctx.Done():
		job.Status = StatusStopped
		job.Reason = ctx.Err().Error()
	case r := <-resultCh:
		if r.err != nil {
			job.Status = StatusFailed
			job.Reason = r.err.Error()
		} else {
			job.Status = StatusFinished
			job.Result = &r.brief
		}
	}

	if err := q.save(context.Background(), job); err != nil {
		logger.InstallQueue().Error().Err(err).Str("job_id", id).Msg("failed to persist final state")
	}
	_ = q.rdb.ZRem(context.Background(), pendingZSet, id)
}

type installResult struct {
	brief installer.PackageBrief
	err   error
}

func (q *Queue) save(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), data, q.ttlFor(job.Status)).Err(); err != nil {
		return errors.Wrap(err)
	}
	return nil
}

func (q *Queue) ttlFor(status Status) time.Duration {
	switch status {
	case StatusFinished, StatusFailed, StatusStopped:
		return q.resultTTL
	default:
		return 0
	}
}

func (q *Queue) load(ctx context.Context, id string) (Job, error) {
	data, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return Job{}, errors.JobNotFound(id)
	}
	if err != nil {
		return Job{}, errors.Wrap(err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, errors.Wrap(err)
	}
	return job, nil
}

func nowUnix() int64 {
	return time.Now().Unix()
}
