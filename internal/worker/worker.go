// Package worker runs import tasks against a file processor with retries.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sm2p/internal/models"
)

// Default behavior of a worker
const (
	defaultRetries = 2
	backoffBase    = 500 * time.Millisecond
)

// FileProcessor files the PDF at path and returns where it went.
type FileProcessor interface {
	ProcessFile(ctx context.Context, path string) (string, error)
}

// Worker takes tasks from a channel until it is closed or ctx ends.
type Worker struct {
	id          int
	taskChan    <-chan models.Task
	statusChan  chan<- models.StatusUpdate
	processor   FileProcessor
	maxRetries  int
	backoffBase time.Duration
	done        chan struct{}
	log         zerolog.Logger
}

// Option customizes a Worker.
type Option func(*Worker)

// WithRetries sets how often a failed task is tried again.
func WithRetries(n int) Option {
	return func(w *Worker) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between retries. Retry n waits n times
// the base.
func WithBackoff(d time.Duration) Option {
	return func(w *Worker) { w.backoffBase = d }
}

// WithLogger sets the worker logger.
func WithLogger(log zerolog.Logger) Option {
	return func(w *Worker) { w.log = log }
}

// NewWorker creates a new worker
func NewWorker(id int, taskChan <-chan models.Task, statusChan chan<- models.StatusUpdate,
	processor FileProcessor, opts ...Option) *Worker {
	w := &Worker{
		id:          id,
		taskChan:    taskChan,
		statusChan:  statusChan,
		processor:   processor,
		maxRetries:  defaultRetries,
		backoffBase: backoffBase,
		done:        make(chan struct{}),
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With().Int("worker", id).Logger()
	return w
}

// Start begins the worker's processing loop
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				return
			case task, ok := <-w.taskChan:
				if !ok {
					return
				}
				w.processTask(ctx, task)
			}
		}
	}()
}

// Done returns a channel that is closed when the worker completes
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// processTask handles a single task with retries. Exactly one final update
// (complete or failed) is sent per task.
func (w *Worker) processTask(ctx context.Context, task models.Task) {
	start := time.Now()
	w.sendStatus(ctx, models.StatusUpdate{TaskID: task.ID, Status: models.StatusProcessing})

	var (
		dest string
		err  error
	)
	retries := 0
	for {
		dest, err = w.processor.ProcessFile(ctx, task.FilePath)
		if err == nil || ctx.Err() != nil || retries >= w.maxRetries {
			break
		}
		retries++

		backoff := time.Duration(retries) * w.backoffBase
		w.log.Debug().Err(err).Str("file", task.FilePath).Dur("backoff", backoff).Msg("Retrying")
		w.sendStatus(ctx, models.StatusUpdate{
			TaskID:  task.ID,
			Status:  models.StatusRetrying,
			Message: fmt.Sprintf("Retrying (%d/%d) after %v: %v", retries, w.maxRetries, backoff, err),
			Retries: retries,
		})

		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}

	update := models.StatusUpdate{
		TaskID:   task.ID,
		Dest:     dest,
		Retries:  retries,
		Duration: time.Since(start),
	}
	if err != nil {
		update.Status = models.StatusFailed
		update.Error = err
		update.Message = "All retries failed"
	} else {
		update.Status = models.StatusComplete
		update.Message = fmt.Sprintf("Filed in %s", update.Duration.Round(time.Millisecond))
	}
	w.sendStatus(ctx, update)
}

// sendStatus delivers an update to the manager. Final updates are never
// dropped; the manager drains the channel until all workers are done.
func (w *Worker) sendStatus(ctx context.Context, update models.StatusUpdate) {
	update.WorkerID = w.id
	if !update.Status.Done() {
		select {
		case w.statusChan <- update:
		case <-ctx.Done():
		default:
			w.log.Debug().Str("task", update.TaskID).Msg("Status channel full, update dropped")
		}
		return
	}
	w.statusChan <- update
}
