package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/tracelify/tracelify/internal/domain"
	"github.com/tracelify/tracelify/internal/service"
)

// Job states.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobError    = "error"
)

// JobStatus represents the current state of a directory ingestion job.
type JobStatus struct {
	ID          string    `json:"id"`
	Dir         string    `json:"dir"`
	Status      string    `json:"status"` // running, complete, error
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	Current     string    `json:"current_file"`
	Indexed     []string  `json:"indexed_documents"`
	Chunks      int       `json:"chunks"`
	Failures    []string  `json:"failures"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

func (s JobStatus) done() bool { return s.Status == JobComplete || s.Status == JobError }

// JobTracker manages ingestion jobs in memory.
type JobTracker struct {
	mu   sync.RWMutex
	jobs map[string]*JobStatus
	subs map[string][]chan JobStatus // subscribers per job
}

// NewJobTracker creates a new job tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{
		jobs: make(map[string]*JobStatus),
		subs: make(map[string][]chan JobStatus),
	}
}

// CreateJob creates a new job entry.
func (t *JobTracker) CreateJob(id, dir string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &JobStatus{
		ID:        id,
		Dir:       dir,
		Status:    JobRunning,
		Indexed:   []string{},
		Failures:  []string{},
		StartedAt: time.Now(),
	}
}

// UpdateJob applies fn to a job and notifies subscribers. Sends happen under
// the lock so Unsubscribe never closes a channel mid-send.
func (t *JobTracker) UpdateJob(id string, fn func(*JobStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return
	}
	fn(job)
	if job.done() && job.CompletedAt.IsZero() {
		job.CompletedAt = time.Now()
	}
	snapshot := job.clone()

	for _, ch := range t.subs[id] {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

func (s *JobStatus) clone() JobStatus {
	c := *s
	c.Indexed = append([]string(nil), s.Indexed...)
	c.Failures = append([]string(nil), s.Failures...)
	return c
}

// GetJob returns a job status.
func (t *JobTracker) GetJob(id string) (*JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := job.clone()
	return &snapshot, true
}

// Subscribe returns a channel that receives job updates.
func (t *JobTracker) Subscribe(id string) chan JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan JobStatus, 10)
	t.subs[id] = append(t.subs[id], ch)
	return ch
}

// Unsubscribe removes a channel from subscribers.
func (t *JobTracker) Unsubscribe(id string, ch chan JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	subs := t.subs[id]
	for i, s := range subs {
		if s == ch {
			t.subs[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	close(ch)
}

// JobsHandler starts directory ingestion jobs and reports on them.
type JobsHandler struct {
	tracker    *JobTracker
	ragService *service.RAGService
	dataDir    string
	wg         sync.WaitGroup
}

// NewJobsHandler creates a new jobs handler. Jobs ingest every supported
// file under dataDir.
func NewJobsHandler(tracker *JobTracker, ragService *service.RAGService, dataDir string) *JobsHandler {
	return &JobsHandler{tracker: tracker, ragService: ragService, dataDir: dataDir}
}

// Register sets up job routes.
func (h *JobsHandler) Register(router fiber.Router) {
	router.Post("/ingest/jobs", h.StartIngest)
	jobs := router.Group("/jobs")
	jobs.Get("/:id", h.GetStatus)
	jobs.Get("/:id/stream", h.StreamSSE)
}

// Wait blocks until every started job has finished.
func (h *JobsHandler) Wait() { h.wg.Wait() }

// StartIngest launches a background ingestion of the data directory.
func (h *JobsHandler) StartIngest(c fiber.Ctx) error {
	id := uuid.NewString()
	h.tracker.CreateJob(id, h.dataDir)

	// Run ingestion in background, no HTTP connection held
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(context.Background(), id)
	}()

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id": id,
		"status": JobRunning,
	})
}

func (h *JobsHandler) run(ctx context.Context, id string) {
	results, err := h.ragService.IngestDirectory(ctx, h.dataDir, func(path string, done, total int, ferr error) {
		h.tracker.UpdateJob(id, func(j *JobStatus) {
			j.Progress = done
			j.Total = total
			j.Current = path
			if ferr != nil {
				j.Failures = append(j.Failures, fmt.Sprintf("%s: %v", path, ferr))
			}
		})
	})

	h.tracker.UpdateJob(id, func(j *JobStatus) {
		for _, r := range results {
			j.Indexed = append(j.Indexed, r.DocID)
			j.Chunks += r.Chunks
		}
		j.Current = ""
		if err != nil && len(results) == 0 {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobComplete
	})
	slog.Info("ingest job finished", "job_id", id, "documents", len(results), "error", err)
}

func jobNotFound(id string) error {
	return domain.NotFound("jobs", domain.CodeJobNotFound, "job %q not found", id)
}

// GetStatus returns the current job status.
func (h *JobsHandler) GetStatus(c fiber.Ctx) error {
	id := c.Params("id")
	job, ok := h.tracker.GetJob(id)
	if !ok {
		return jobNotFound(id)
	}
	return c.JSON(job)
}

// StreamSSE streams job updates via Server-Sent Events.
func (h *JobsHandler) StreamSSE(c fiber.Ctx) error {
	id := c.Params("id")

	job, ok := h.tracker.GetJob(id)
	if !ok {
		return jobNotFound(id)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// If already finished, just return the final status
	if job.done() {
		data, _ := json.Marshal(job)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", job.Status, string(data)))
	}

	ch := h.tracker.Subscribe(id)
	// the job may have finished before the subscription was registered
	if latest, ok := h.tracker.GetJob(id); ok {
		job = latest
	}

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.tracker.Unsubscribe(id, ch)

		// Send initial status
		data, _ := json.Marshal(job)
		eventType := "progress"
		if job.done() {
			eventType = job.Status
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(data))
		w.Flush()
		if job.done() {
			return
		}

		timeout := time.After(5 * time.Minute)
		for {
			select {
			case update, ok := <-ch:
				if !ok {
					return
				}
				data, _ := json.Marshal(update)
				eventType := "progress"
				if update.done() {
					eventType = update.Status
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(data))
				if err := w.Flush(); err != nil {
					return
				}

				if update.done() {
					return
				}
			case <-timeout:
				slog.Warn("SSE timeout", "job_id", id)
				return
			}
		}
	})
}
