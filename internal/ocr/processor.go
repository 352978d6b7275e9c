// Package ocr recognizes the text of scanned PDFs and files them under a
// name guessed from that text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/otiai10/copy"
	"github.com/rs/zerolog"

	"sm2p/internal/config"
	"sm2p/internal/guess"
)

// Section is the config section of the processor.
const Section = "ocr"

var schema = map[string]config.Option{
	"tmpPath":          {Type: config.TypeString, Default: "/tmp"},
	"tagIn":            {Type: config.TypeString, Default: ".in"},
	"tagOut":           {Type: config.TypeString, Default: ".out"},
	"tagSidecar":       {Type: config.TypeString, Default: ".sidecar.txt"},
	"suffix":           {Type: config.TypeString, Default: ".pdf"},
	"deskew":           {Type: config.TypeBoolean, Default: true},
	"removeBackground": {Type: config.TypeBoolean, Default: true},
	"language":         {Type: config.TypeString, Default: "deu"},
	"command":          {Type: config.TypeString, Default: "ocrmypdf"},
	"destPath":         {Type: config.TypeString, Default: "/root/doc"},
}

// Processor stages a PDF, runs OCR on it and moves the result into the
// destination directory. It is safe for concurrent use.
type Processor struct {
	tmpPath          string
	tagIn            string
	tagOut           string
	tagSidecar       string
	suffix           string
	destPath         string
	language         string
	deskew           bool
	removeBackground bool

	engine  Engine
	guesser *guess.Guesser
	log     zerolog.Logger

	// serializes picking a free destination name and moving into it
	fileMu sync.Mutex
}

// Option customizes a Processor.
type Option func(*Processor)

// WithEngine replaces the ocrmypdf command.
func WithEngine(e Engine) Option {
	return func(p *Processor) { p.engine = e }
}

// WithGuesser replaces the name guesser.
func WithGuesser(g *guess.Guesser) Option {
	return func(p *Processor) { p.guesser = g }
}

// New declares the OCR settings on store and returns a processor configured
// from them.
func New(store *config.Store, log zerolog.Logger, opts ...Option) (*Processor, error) {
	if err := store.Declare(Section, schema); err != nil {
		return nil, err
	}

	r := store.Section(Section)
	p := &Processor{
		tmpPath:          r.String("tmpPath"),
		tagIn:            r.String("tagIn"),
		tagOut:           r.String("tagOut"),
		tagSidecar:       r.String("tagSidecar"),
		suffix:           r.String("suffix"),
		deskew:           r.Bool("deskew"),
		removeBackground: r.Bool("removeBackground"),
		language:         r.String("language"),
		destPath:         r.String("destPath"),
		engine:           CommandEngine{Command: r.String("command")},
		guesser:          guess.New(),
		log:              log,
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DestPath returns the directory documents are filed into.
func (p *Processor) DestPath() string {
	return p.destPath
}

// ProcessFile files the PDF at path. The source file is left in place.
func (p *Processor) ProcessFile(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.Process(ctx, data)
}

// Process runs OCR on pdf and files the result. It returns the path of the
// filed document.
func (p *Processor) Process(ctx context.Context, pdf []byte) (string, error) {
	job, err := p.stage(pdf)
	if err != nil {
		return "", err
	}
	defer p.cleanup(job)

	p.log.Info().
		Str("file", job.Output).
		Str("size", humanize.Bytes(uint64(len(pdf)))).
		Msg("Creating file")
	if err := p.engine.Run(ctx, job); err != nil {
		return "", fmt.Errorf("ocr failed: %w", err)
	}

	text, err := os.ReadFile(job.Sidecar)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read sidecar: %w", err)
	}
	name := p.guesser.Guess(string(text))

	dest, err := p.file(job.Output, name.String())
	if err != nil {
		return "", err
	}
	p.log.Info().Str("dest", dest).Msg("Filed document")
	return dest, nil
}

// stage writes pdf to a fresh input file in the temp directory.
func (p *Processor) stage(pdf []byte) (Job, error) {
	base := filepath.Join(p.tmpPath, uuid.NewString())
	job := Job{
		Input:            base + p.tagIn + p.suffix,
		Output:           base + p.tagOut + p.suffix,
		Sidecar:          base + p.tagSidecar,
		Language:         p.language,
		Deskew:           p.deskew,
		RemoveBackground: p.removeBackground,
	}
	if err := os.WriteFile(job.Input, pdf, 0600); err != nil {
		return Job{}, fmt.Errorf("failed to stage pdf: %w", err)
	}
	return job, nil
}

func (p *Processor) cleanup(job Job) {
	for _, path := range []string{job.Input, job.Output, job.Sidecar} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.Warn().Err(err).Str("file", path).Msg("Failed to remove temp file")
		}
	}
}

// file moves src into the destination directory as "<base><suffix>", or
// "<base> NN<suffix>" with NN counting up from 02 when the name is taken.
func (p *Processor) file(src, base string) (string, error) {
	p.fileMu.Lock()
	defer p.fileMu.Unlock()

	if err := os.MkdirAll(p.destPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create destination: %w", err)
	}
	dest := uniquePath(filepath.Join(p.destPath, base), p.suffix)
	if err := move(src, dest); err != nil {
		return "", fmt.Errorf("failed to file %s: %w", dest, err)
	}
	return dest, nil
}

// uniquePath returns base+suffix, or the first free base+" NN"+suffix.
func uniquePath(base, suffix string) string {
	path := base + suffix
	for idx := 2; exists(path); idx++ {
		path = fmt.Sprintf("%s %02d%s", base, idx, suffix)
	}
	return path
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// move renames src to dest, copying when they are on different filesystems.
func move(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copy.Copy(src, dest); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
