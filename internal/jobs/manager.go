package jobs

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

func (s JobStatus) Done() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is a unit of background work, typically a training run started from
// the REPL. All accessors are safe for concurrent use.
type Job struct {
	ID          string
	Type        string
	Description string

	mu         sync.RWMutex
	status     JobStatus
	progress   float64
	startTime  time.Time
	endTime    time.Time
	err        error
	result     any
	logs       []string
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Func is the body of a job. It should return promptly once ctx is
// cancelled.
type Func func(ctx context.Context, job *Job) (any, error)

type Manager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	nextID int
}

func NewManager() *Manager {
	return &Manager{
		jobs: make(map[string]*Job),
	}
}

func (m *Manager) CreateJob(jobType, description string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	job := &Job{
		ID:          fmt.Sprintf("%s-%d", jobType, m.nextID),
		Type:        jobType,
		Description: description,
		status:      JobPending,
		startTime:   time.Now(),
		done:        make(chan struct{}),
	}
	m.jobs[job.ID] = job
	return job
}

// Start creates a job and runs fn in its own goroutine under a context
// derived from parent.
func (m *Manager) Start(parent context.Context, jobType, description string, fn Func) *Job {
	job := m.CreateJob(jobType, description)
	ctx, cancel := context.WithCancel(parent)
	job.SetCancelFunc(cancel)
	job.SetStatus(JobRunning)

	go func() {
		defer cancel()
		result, err := fn(ctx, job)
		switch {
		case errors.Is(err, context.Canceled):
			job.AddLog("cancelled")
			job.SetStatus(JobCancelled)
		case err != nil:
			job.AddLog(fmt.Sprintf("failed: %v", err))
			job.SetError(err)
		default:
			job.SetResult(result)
			job.SetProgress(1)
			job.SetStatus(JobCompleted)
		}
	}()
	return job
}

func (m *Manager) GetJob(jobID string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	return job, exists
}

// ListJobs returns all jobs, oldest first.
func (m *Manager) ListJobs() []*Job {
	m.mu.RLock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *Job) int {
		return a.StartTime().Compare(b.StartTime())
	})
	return jobs
}

func (m *Manager) CancelJob(jobID string) error {
	job, exists := m.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job %s not found", jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status != JobRunning {
		return fmt.Errorf("job %s is not running", jobID)
	}
	if job.cancelFunc == nil {
		return fmt.Errorf("job %s cannot be cancelled", jobID)
	}
	job.cancelFunc()
	return nil
}

func (j *Job) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setStatusLocked(status)
}

func (j *Job) setStatusLocked(status JobStatus) {
	if j.status.Done() {
		return
	}
	j.status = status
	if status.Done() {
		j.endTime = time.Now()
		close(j.done)
	}
}

func (j *Job) SetProgress(progress float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = progress
}

func (j *Job) AddLog(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	timestamp := time.Now().Format("15:04:05")
	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", timestamp, message))
}

// Write lets a job serve as the output of a log.Logger.
func (j *Job) Write(p []byte) (int, error) {
	msg := string(p)
	for len(msg) > 0 && msg[len(msg)-1] == '\n' {
		msg = msg[:len(msg)-1]
	}
	j.AddLog(msg)
	return len(p), nil
}

func (j *Job) SetError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
	j.setStatusLocked(JobFailed)
}

func (j *Job) SetResult(result any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = result
}

func (j *Job) SetCancelFunc(cancelFunc context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelFunc = cancelFunc
}

func (j *Job) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

func (j *Job) GetError() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

func (j *Job) GetResult() any {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

func (j *Job) StartTime() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.startTime
}

// Duration is the running time so far, or the total once the job is done.
func (j *Job) Duration() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.endTime.IsZero() {
		return time.Since(j.startTime)
	}
	return j.endTime.Sub(j.startTime)
}

func (j *Job) GetLogs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return slices.Clone(j.logs)
}

// Done is closed when the job reaches a final status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}
