package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Job describes one OCR run.
type Job struct {
	Input            string
	Output           string
	Sidecar          string // plain text of the recognized document
	Language         string
	Deskew           bool
	RemoveBackground bool
}

// Engine runs OCR on a PDF file.
type Engine interface {
	Run(ctx context.Context, job Job) error
}

// CommandEngine runs the ocrmypdf command line tool.
type CommandEngine struct {
	Command string
}

// Args returns the command line arguments for job.
func (e CommandEngine) Args(job Job) []string {
	args := []string{"--sidecar", job.Sidecar}
	if job.Language != "" {
		args = append(args, "-l", job.Language)
	}
	if job.Deskew {
		args = append(args, "--deskew")
	}
	if job.RemoveBackground {
		args = append(args, "--remove-background")
	}
	return append(args, job.Input, job.Output)
}

// Run executes the command and reports its output on failure.
func (e CommandEngine) Run(ctx context.Context, job Job) error {
	cmd := exec.CommandContext(ctx, e.Command, e.Args(job)...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("%s failed: %w: %s", e.Command, err, msg)
	}
	return nil
}
