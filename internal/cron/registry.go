package cron

import "context"

// Job is one sweep the cron worker runs every cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds jobs in registration order. A name registers once.
type Registry struct {
	jobs  []Job
	names map[string]bool
}

func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{names: map[string]bool{}}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

func (r *Registry) Register(job Job) {
	if job == nil || r.names[job.Name()] {
		return
	}
	r.names[job.Name()] = true
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy so callers cannot reorder the schedule.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
