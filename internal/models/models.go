// Package models holds the types shared by the import manager and its
// workers.
package models

import "time"

// TaskStatus represents the current status of an import task
type TaskStatus string

const (
	StatusProcessing TaskStatus = "processing"
	StatusRetrying   TaskStatus = "retrying"
	StatusComplete   TaskStatus = "complete"
	StatusFailed     TaskStatus = "failed"
)

// Done reports whether no further updates follow for the task.
func (s TaskStatus) Done() bool {
	return s == StatusComplete || s == StatusFailed
}

// Task is one PDF to run through OCR and file.
type Task struct {
	ID       string
	FilePath string
	FileSize int64
}

// StatusUpdate represents a message from a worker about task status
type StatusUpdate struct {
	WorkerID int
	TaskID   string
	Status   TaskStatus
	Message  string
	Dest     string
	Error    error
	Retries  int
	Duration time.Duration
}

// Stats tracks overall import statistics
type Stats struct {
	Discovered    int
	Successful    int
	Failed        int
	Retried       int
	TotalFileSize int64
	StartTime     time.Time
	EndTime       time.Time
	Workers       int
}

// Processed returns the number of finished tasks.
func (s Stats) Processed() int {
	return s.Successful + s.Failed
}
