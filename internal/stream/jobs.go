package stream

import (
	"sync"

	"github.com/google/uuid"

	"aether_monitor/internal/activity"
)

// JobRegistry tracks background jobs for the current session. Entries are
// created on a job start event, moved to a terminal status on completion or
// failure, and never deleted.
type JobRegistry struct {
	mu    sync.Mutex
	order []string
	jobs  map[string]activity.Job
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]activity.Job)}
}

// Start registers a running job. A missing id gets a generated one so the
// entry is still addressable; re-announcing a known id refreshes its
// metadata without resetting the start time.
func (r *JobRegistry) Start(id, jobType, title string, ts int64) activity.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if existing, ok := r.jobs[id]; ok {
		if title != "" {
			existing.Title = title
		}
		if jobType != "" {
			existing.Type = jobType
		}
		r.jobs[id] = existing
		return existing
	}

	job := activity.Job{
		ID:        id,
		Type:      jobType,
		Title:     title,
		Status:    activity.JobRunning,
		StartedAt: ts,
	}
	r.jobs[id] = job
	r.order = append(r.order, id)
	return job
}

// Finish moves a job to a terminal status. Unknown ids are ignored; a job
// already terminal keeps its first outcome.
func (r *JobRegistry) Finish(id string, status activity.JobStatus) (activity.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return activity.Job{}, false
	}
	if job.Status != activity.JobRunning {
		return job, true
	}
	job.Status = status
	r.jobs[id] = job
	return job, true
}

func (r *JobRegistry) Get(id string) (activity.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// List returns every job in registration order.
func (r *JobRegistry) List() []activity.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Job, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.jobs[id])
	}
	return out
}
