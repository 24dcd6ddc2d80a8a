// Package stream folds incremental model output into a session.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dsatutor/internal/logger"
)

// GenericErrorMessage replaces the pending model turn when a response fails.
const GenericErrorMessage = "Sorry, I encountered an error. Please check the console or try again."

// Source yields response fragments in order. Recv returns io.EOF after the last one.
type Source interface {
	Recv() (string, error)
	Close()
}

// Sink receives the folded stream. store.Store implements it.
type Sink interface {
	AppendStreamFragment(id, fragment string) error
	FailActiveResponse(id, errorText string) error
	CompleteResponse(id string) error
}

// Reducer drives one Source into a Sink for a fixed session id.
type Reducer struct {
	sink Sink
}

func NewReducer(sink Sink) *Reducer {
	return &Reducer{sink: sink}
}

// Run consumes src until it ends or fails. The session is completed exactly
// once either way. The returned error is the stream failure, if any.
func (r *Reducer) Run(ctx context.Context, id string, src Source) error {
	defer src.Close()

	var count int
	for {
		if err := ctx.Err(); err != nil {
			return r.fail(id, fmt.Errorf("stream %s cancelled: %w", id, err))
		}
		fragment, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.fail(id, fmt.Errorf("receive fragment: %w", err))
		}
		if err := r.sink.AppendStreamFragment(id, fragment); err != nil {
			return r.fail(id, fmt.Errorf("append fragment: %w", err))
		}
		count++
	}

	logger.Log.Debugf("stream %s finished after %d fragments", id, count)
	if err := r.sink.CompleteResponse(id); err != nil {
		logger.Log.Warnf("complete response %s: %v", id, err)
	}
	return nil
}

// Abort fails a submission whose stream never started.
func (r *Reducer) Abort(id string, cause error) error {
	return r.fail(id, fmt.Errorf("start stream: %w", cause))
}

func (r *Reducer) fail(id string, cause error) error {
	logger.ErrorWithFields("response stream failed", logger.Fields{"session": id, "error": cause.Error()})
	if err := r.sink.FailActiveResponse(id, GenericErrorMessage); err != nil {
		logger.Log.Warnf("fail response %s: %v", id, err)
	}
	if err := r.sink.CompleteResponse(id); err != nil {
		logger.Log.Warnf("complete response %s: %v", id, err)
	}
	return cause
}
