package worker

import (
	"errors"

	"dsatutor/internal/models"
)

var (
	// ErrDispatcherBusy is returned when the job queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrDispatcherClosed is returned for jobs submitted or pending after Close.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

type JobType int

const (
	Stop JobType = iota
	Stream
	Title
)

func (t JobType) String() string {
	switch t {
	case Stream:
		return "stream"
	case Title:
		return "title"
	default:
		return "stop"
	}
}

// Job is a unit of work executed by a pooled worker.
type Job struct {
	Type       JobType
	StreamTask *streamTask
	TitleTask  *titleTask
}

type streamTask struct {
	sessionID string
	history   []models.Message
}

type titleTask struct {
	sessionID string
	seed      string
}

// queueKey groups jobs that must run in submission order. Title jobs get their
// own key so they never wait behind a stream of the same session.
func (job Job) queueKey() string {
	switch job.Type {
	case Stream:
		return job.StreamTask.sessionID
	case Title:
		return "title/" + job.TitleTask.sessionID
	default:
		return ""
	}
}
