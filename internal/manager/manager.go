// Package manager runs import mode: it discovers the PDFs in a directory and
// files them through a pool of OCR workers.
package manager

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"sm2p/internal/config"
	"sm2p/internal/models"
	"sm2p/internal/worker"
)

// Section is the config section of import mode.
const Section = "import"

var schema = map[string]config.Option{
	"workers":   {Type: config.TypeInteger, Default: 1},
	"recursive": {Type: config.TypeBoolean, Default: false},
	"retries":   {Type: config.TypeInteger, Default: 2},
}

// maximum number of failures listed in the final report
const maxReportedFailures = 10

// Manager handles task discovery and distribution
type Manager struct {
	sourceDir string
	workers   int
	recursive bool
	retries   int
	backoff   time.Duration

	processor worker.FileProcessor
	progress  io.Writer
	log       zerolog.Logger

	stats       models.Stats
	failedTasks []models.StatusUpdate
	progressBar *progressbar.ProgressBar
}

// Option customizes a Manager.
type Option func(*Manager)

// WithProgressWriter sets where the progress bar is drawn. The default is
// stderr.
func WithProgressWriter(w io.Writer) Option {
	return func(m *Manager) { m.progress = w }
}

// WithBackoff sets the base delay between retries of a task.
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.backoff = d }
}

// NewManager declares the import settings on store and returns a manager for
// the PDFs in sourceDir.
func NewManager(store *config.Store, sourceDir string, processor worker.FileProcessor,
	log zerolog.Logger, opts ...Option) (*Manager, error) {
	if err := Declare(store); err != nil {
		return nil, err
	}
	r := store.Section(Section)
	m := &Manager{
		sourceDir: sourceDir,
		workers:   r.Int("workers"),
		recursive: r.Bool("recursive"),
		retries:   r.Int("retries"),
		backoff:   500 * time.Millisecond,
		processor: processor,
		progress:  os.Stderr,
		log:       log,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if m.workers < 1 {
		return nil, fmt.Errorf("%w: %s.workers must be at least 1", config.ErrInvalidValue, Section)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Declare adds the import settings to store.
func Declare(store *config.Store) error {
	return store.Declare(Section, schema)
}

// FileInfo represents a discovered file
type FileInfo struct {
	Path string
	Size int64
}

// Run files every discovered PDF and returns the statistics. Failed files are
// counted, not returned as an error; an error means discovery failed or ctx
// was cancelled.
func (m *Manager) Run(ctx context.Context) (models.Stats, error) {
	m.stats = models.Stats{StartTime: time.Now()}
	m.failedTasks = nil

	files, err := m.discoverFiles()
	if err != nil {
		return m.stats, fmt.Errorf("file discovery failed: %w", err)
	}
	m.stats.Discovered = len(files)
	for _, f := range files {
		m.stats.TotalFileSize += f.Size
	}
	m.log.Info().
		Int("files", len(files)).
		Str("size", humanize.Bytes(uint64(m.stats.TotalFileSize))).
		Str("dir", m.sourceDir).
		Msg("Found PDF files to import")
	if len(files) == 0 {
		m.stats.EndTime = time.Now()
		return m.stats, nil
	}

	m.progressBar = progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(m.progress),
		progressbar.OptionSetDescription("Filing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	taskChan := make(chan models.Task, len(files))
	for _, f := range files {
		taskChan <- models.Task{ID: f.Path, FilePath: f.Path, FileSize: f.Size}
	}
	close(taskChan)

	statusChan := make(chan models.StatusUpdate, 100)
	workers := m.initWorkers(ctx, taskChan, statusChan, min(m.workers, len(files)))

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for update := range statusChan {
			m.handleStatusUpdate(update)
		}
	}()

	for _, w := range workers {
		<-w.Done()
	}
	close(statusChan)
	<-collected

	m.stats.EndTime = time.Now()
	m.reportFailures()
	if err := ctx.Err(); err != nil {
		return m.stats, err
	}
	return m.stats, nil
}

// discoverFiles finds the PDF files in the source directory
func (m *Manager) discoverFiles() ([]FileInfo, error) {
	var files []FileInfo

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !m.recursive && path != m.sourceDir {
				return filepath.SkipDir
			}
			return nil
		}
		if ext := filepath.Ext(path); ext != ".pdf" && ext != ".PDF" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	}

	if err := filepath.WalkDir(m.sourceDir, walkFn); err != nil {
		return nil, err
	}
	return files, nil
}

// initWorkers creates and starts the worker pool
func (m *Manager) initWorkers(ctx context.Context, taskChan <-chan models.Task,
	statusChan chan<- models.StatusUpdate, n int) []*worker.Worker {
	m.stats.Workers = n
	workers := make([]*worker.Worker, n)
	for i := range workers {
		workers[i] = worker.NewWorker(i, taskChan, statusChan, m.processor,
			worker.WithRetries(m.retries),
			worker.WithBackoff(m.backoff),
			worker.WithLogger(m.log))
		workers[i].Start(ctx)
	}
	return workers
}

// handleStatusUpdate processes a worker status update
func (m *Manager) handleStatusUpdate(update models.StatusUpdate) {
	log := m.log.With().Int("worker", update.WorkerID).Str("file", update.TaskID).Logger()

	switch update.Status {
	case models.StatusRetrying:
		m.stats.Retried++
		log.Warn().Msg(update.Message)
	case models.StatusComplete:
		m.stats.Successful++
		log.Info().Str("dest", update.Dest).Dur("took", update.Duration).Msg("Filed document")
		_ = m.progressBar.Add(1)
	case models.StatusFailed:
		m.stats.Failed++
		m.failedTasks = append(m.failedTasks, update)
		log.Error().Err(update.Error).Int("retries", update.Retries).Msg("Failed to file document")
		_ = m.progressBar.Add(1)
	}
}

func (m *Manager) reportFailures() {
	for i, task := range m.failedTasks {
		if i == maxReportedFailures {
			m.log.Error().Msgf("... and %d more", len(m.failedTasks)-maxReportedFailures)
			break
		}
		m.log.Error().Err(task.Error).Str("file", task.TaskID).Msg("Not imported")
	}
}
