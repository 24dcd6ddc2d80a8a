package worker

import (
	"context"
	"time"

	"dsatutor/internal/logger"
	"dsatutor/internal/models"
	"dsatutor/internal/store"
	"dsatutor/internal/stream"
)

const defaultTitleTimeout = 30 * time.Second

// Completer starts a streamed model response. ai.Service implements it.
type Completer interface {
	StreamCompletion(ctx context.Context, history []models.Message) (stream.Source, error)
}

// Titler names a session from its first message. assistant.TitleGenerator implements it.
type Titler interface {
	SummarizeTitle(ctx context.Context, seed string) string
}

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
	StreamTimeout     time.Duration
	TitleTimeout      time.Duration
}

// Manager turns user submissions into stream and title jobs and runs them
// against the store.
type Manager struct {
	ctx           context.Context
	store         *store.Store
	reducer       *stream.Reducer
	completer     Completer
	titler        Titler
	dispatcher    *Dispatcher
	streamTimeout time.Duration
	titleTimeout  time.Duration
}

// NewManager starts the dispatcher. Jobs run under ctx; cancelling it fails
// the running streams.
func NewManager(ctx context.Context, st *store.Store, completer Completer, titler Titler, cfg DispatcherConfig) *Manager {
	if ctx == nil {
		ctx = context.Background()
	}
	titleTimeout := cfg.TitleTimeout
	if titleTimeout <= 0 {
		titleTimeout = defaultTitleTimeout
	}
	m := &Manager{
		ctx:           ctx,
		store:         st,
		reducer:       stream.NewReducer(st),
		completer:     completer,
		titler:        titler,
		streamTimeout: cfg.StreamTimeout,
		titleTimeout:  titleTimeout,
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.WorkerIdleTimeout)
	return m
}

// Submit records the user message and schedules the response. When the job
// cannot be queued the session is failed and returned to idle before the
// error is returned.
func (m *Manager) Submit(sessionID, text string) (store.Submission, error) {
	sub, err := m.store.SubmitUserMessage(sessionID, text)
	if err != nil {
		return sub, err
	}

	if err := m.dispatcher.Submit(Job{
		Type:       Stream,
		StreamTask: &streamTask{sessionID: sessionID, history: sub.History},
	}); err != nil {
		_ = m.reducer.Abort(sessionID, err)
		return sub, err
	}

	if sub.FirstTurn {
		seed := sub.History[len(sub.History)-1].Content
		if err := m.dispatcher.Submit(Job{
			Type:      Title,
			TitleTask: &titleTask{sessionID: sessionID, seed: seed},
		}); err != nil {
			logger.Log.Warnf("queue title for %s: %v", sessionID, err)
		}
	}
	return sub, nil
}

// Close stops the dispatcher. Queued streams are failed and running jobs are
// waited for until ctx is done, so every stream has settled in the store when
// it returns nil.
func (m *Manager) Close(ctx context.Context) error {
	return m.dispatcher.Close(ctx)
}

func (m *Manager) handleStream(task *streamTask) {
	ctx := m.ctx
	if m.streamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.streamTimeout)
		defer cancel()
	}

	src, err := m.completer.StreamCompletion(ctx, task.history)
	if err != nil {
		_ = m.reducer.Abort(task.sessionID, err)
		return
	}
	if err := m.reducer.Run(ctx, task.sessionID, src); err != nil {
		debugLog("[manager] stream %s ended with error: %v", task.sessionID, err)
	}
}

func (m *Manager) handleTitle(task *titleTask) {
	if m.titler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.titleTimeout)
	defer cancel()

	title := m.titler.SummarizeTitle(ctx, task.seed)
	if title == "" || title == models.DefaultTitle {
		return
	}
	if err := m.store.UpdateTitle(task.sessionID, title); err != nil {
		logger.Log.Warnf("update title for %s: %v", task.sessionID, err)
	}
}

// discard settles a job that will never run.
func (m *Manager) discard(job Job, cause error) {
	if job.Type != Stream || job.StreamTask == nil {
		return
	}
	_ = m.reducer.Abort(job.StreamTask.sessionID, cause)
}
