package drive

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pidrive-backend/internal/metrics"
	"pidrive-backend/internal/models"
)

type JobKind string

const (
	KindUpload   JobKind = "upload"
	KindDownload JobKind = "download"
)

type JobState string

const (
	StatePending    JobState = "pending"
	StateInProgress JobState = "in_progress"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
)

// Job tracks one transfer. The byte counters are atomics so the
// presentation layer can sample progress at any moment without
// observing a torn value; transferred and bundled only ever grow.
type Job struct {
	ID      string
	Kind    JobKind
	Created time.Time

	total       atomic.Int64
	transferred atomic.Int64
	bundled     atomic.Int64

	mu    sync.Mutex
	state JobState
	err   error

	done chan struct{}
}

func newJob(kind JobKind) *Job {
	return &Job{
		ID:      uuid.New().String(),
		Kind:    kind,
		Created: time.Now(),
		state:   StatePending,
		done:    make(chan struct{}),
	}
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the terminal error, nil while running or on success.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) TotalBytes() int64       { return j.total.Load() }
func (j *Job) TransferredBytes() int64 { return j.transferred.Load() }
func (j *Job) BundledBytes() int64     { return j.bundled.Load() }

// Status snapshots the job for the API.
func (j *Job) Status() models.JobStatus {
	s := models.JobStatus{
		ID:               j.ID,
		Kind:             string(j.Kind),
		State:            string(j.State()),
		TotalBytes:       j.total.Load(),
		TransferredBytes: j.transferred.Load(),
		BundledBytes:     j.bundled.Load(),
	}
	if err := j.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (j *Job) setTotal(n int64) {
	j.total.Store(n)
}

func (j *Job) setTransferred(n int64) {
	j.transferred.Store(n)
}

func (j *Job) addTransferred(n int64) int64 {
	return j.transferred.Add(n)
}

func (j *Job) addBundled(n int64) int64 {
	return j.bundled.Add(n)
}

func (j *Job) start() {
	j.mu.Lock()
	j.state = StateInProgress
	j.mu.Unlock()
}

func (j *Job) complete() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCompleted || j.state == StateFailed {
		return
	}
	j.state = StateCompleted
	close(j.done)
	metrics.RecordTransferJob(string(j.Kind), string(StateCompleted))
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCompleted || j.state == StateFailed {
		return
	}
	j.state = StateFailed
	j.err = err
	close(j.done)
	metrics.RecordTransferJob(string(j.Kind), string(StateFailed))
}

// register makes a job visible to status lookups.
func (e *Engine) register(j *Job) {
	e.jobsMu.Lock()
	e.jobs[j.ID] = j
	e.jobsMu.Unlock()
}

// Job returns the tracked job with the given ID.
func (e *Engine) Job(id string) (*Job, bool) {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	j, ok := e.jobs[id]
	return j, ok
}

// Jobs lists every tracked job, newest first.
func (e *Engine) Jobs() []*Job {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	jobs := make([]*Job, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].Created.After(jobs[k].Created) })
	return jobs
}

// RemoveJob drops a terminal job from the table; running jobs stay.
func (e *Engine) RemoveJob(id string) bool {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return false
	}
	switch j.State() {
	case StateCompleted, StateFailed:
		delete(e.jobs, id)
		return true
	}
	return false
}
