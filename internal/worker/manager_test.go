package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"dsatutor/internal/models"
	"dsatutor/internal/store"
	"dsatutor/internal/stream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSource waits on release before each fragment, or fails when ctx ends.
type gatedSource struct {
	ctx       context.Context
	fragments []string
	release   <-chan struct{}
	pos       int
}

func (s *gatedSource) Recv() (string, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if s.pos >= len(s.fragments) {
		return "", io.EOF
	}
	f := s.fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *gatedSource) Close() {}

type fakeCompleter struct {
	mu        sync.Mutex
	fragments []string
	startErr  error
	release   chan struct{}
	histories [][]models.Message
}

func (f *fakeCompleter) StreamCompletion(ctx context.Context, history []models.Message) (stream.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &gatedSource{ctx: ctx, fragments: f.fragments, release: f.release}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.histories)
}

type fakeTitler struct {
	mu    sync.Mutex
	title string
	seeds []string
}

func (f *fakeTitler) SummarizeTitle(_ context.Context, seed string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeds = append(f.seeds, seed)
	return f.title
}

func (f *fakeTitler) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seeds...)
}

func newTestManager(t *testing.T, ctx context.Context, completer Completer, titler Titler, cfg DispatcherConfig) (*Manager, *store.Store) {
	t.Helper()
	st := store.New(nil)
	require.NoError(t, st.Bootstrap(context.Background(), nil))
	if cfg.MaxWorkers == 0 {
		cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize = 1, 2, 8
	}
	m := NewManager(ctx, st, completer, titler, cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, st
}

func waitIdle(t *testing.T, st *store.Store, id string) models.ChatSession {
	t.Helper()
	var sess models.ChatSession
	require.Eventually(t, func() bool {
		var err error
		sess, err = st.Session(id)
		return err == nil && !sess.IsLoading
	}, 2*time.Second, 5*time.Millisecond)
	return sess
}

func TestSubmitStreamsResponseAndTitle(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"Big", " O", " notation..."}}
	titler := &fakeTitler{title: "Big O Explained"}
	m, st := newTestManager(t, context.Background(), completer, titler, DispatcherConfig{})
	id := st.ActiveID()

	sub, err := m.Submit(id, "Explain Big O")
	require.NoError(t, err)
	assert.True(t, sub.FirstTurn)

	sess := waitIdle(t, st, id)
	assert.Equal(t, "Big O notation...", sess.Messages[1].Content)

	require.Eventually(t, func() bool {
		s, _ := st.Session(id)
		return s.Title == "Big O Explained"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Explain Big O"}, titler.seen())
	require.Equal(t, 1, completer.calls())
	assert.Equal(t, []models.Message{{Role: models.RoleUser, Content: "Explain Big O"}}, completer.histories[0])
}

func TestSecondTurnRequestsNoTitle(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"ok"}}
	titler := &fakeTitler{title: "First"}
	m, st := newTestManager(t, context.Background(), completer, titler, DispatcherConfig{})
	id := st.ActiveID()

	_, err := m.Submit(id, "one")
	require.NoError(t, err)
	waitIdle(t, st, id)
	require.Eventually(t, func() bool { return len(titler.seen()) == 1 }, time.Second, 5*time.Millisecond)

	sub, err := m.Submit(id, "two")
	require.NoError(t, err)
	assert.False(t, sub.FirstTurn)
	sess := waitIdle(t, st, id)
	require.Len(t, sess.Messages, 4)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, titler.seen(), 1)
}

func TestSubmitPreconditionErrors(t *testing.T) {
	release := make(chan struct{})
	completer := &fakeCompleter{fragments: []string{"x"}, release: release}
	m, st := newTestManager(t, context.Background(), completer, &fakeTitler{}, DispatcherConfig{})
	id := st.ActiveID()

	_, err := m.Submit(id, "   ")
	assert.ErrorIs(t, err, store.ErrEmptyMessage)
	_, err = m.Submit("missing", "hi")
	assert.ErrorIs(t, err, store.ErrSessionNotFound)

	_, err = m.Submit(id, "hi")
	require.NoError(t, err)
	_, err = m.Submit(id, "again")
	assert.ErrorIs(t, err, store.ErrSessionBusy)

	close(release)
	waitIdle(t, st, id)
}

func TestStartFailureReturnsSessionToIdle(t *testing.T) {
	completer := &fakeCompleter{startErr: errors.New("invalid api key")}
	m, st := newTestManager(t, context.Background(), completer, &fakeTitler{}, DispatcherConfig{})
	id := st.ActiveID()

	_, err := m.Submit(id, "hello")
	require.NoError(t, err)

	sess := waitIdle(t, st, id)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, stream.GenericErrorMessage, sess.Messages[1].Content)
}

func TestTitleFailureKeepsPlaceholder(t *testing.T) {
	titler := &fakeTitler{title: models.DefaultTitle}
	m, st := newTestManager(t, context.Background(), &fakeCompleter{fragments: []string{"a"}}, titler, DispatcherConfig{})
	id := st.ActiveID()

	_, err := m.Submit(id, "hello")
	require.NoError(t, err)
	waitIdle(t, st, id)
	require.Eventually(t, func() bool { return len(titler.seen()) == 1 }, time.Second, 5*time.Millisecond)

	sess, _ := st.Session(id)
	assert.Equal(t, models.DefaultTitle, sess.Title)
}

func TestStreamTimeoutFailsResponse(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"never"}, release: make(chan struct{})}
	m, st := newTestManager(t, context.Background(), completer, nil, DispatcherConfig{
		MinWorkers: 1, MaxWorkers: 1, QueueSize: 4, StreamTimeout: 20 * time.Millisecond,
	})
	id := st.ActiveID()

	_, err := m.Submit(id, "slow")
	require.NoError(t, err)
	sess := waitIdle(t, st, id)
	assert.Equal(t, stream.GenericErrorMessage, sess.Messages[1].Content)
}

func TestSwitchingSessionsDoesNotCancelStream(t *testing.T) {
	release := make(chan struct{})
	completer := &fakeCompleter{fragments: []string{"Hash", " maps"}, release: release}
	m, st := newTestManager(t, context.Background(), completer, nil, DispatcherConfig{})
	a := st.ActiveID()

	_, err := m.Submit(a, "How does a hash map work?")
	require.NoError(t, err)
	b := st.CreateSession()
	require.NoError(t, st.SelectSession(b))

	close(release)
	sess := waitIdle(t, st, a)
	assert.Equal(t, "Hash maps", sess.Messages[1].Content)
	assert.Equal(t, b, st.ActiveID())
}

func TestDispatcherBusyFailsSubmission(t *testing.T) {
	release := make(chan struct{})
	completer := &fakeCompleter{fragments: []string{"x"}, release: release}
	m, st := newTestManager(t, context.Background(), completer, nil, DispatcherConfig{
		MinWorkers: 1, MaxWorkers: 1, QueueSize: 1,
	})
	defer close(release)

	var busyID string
	for i := 0; i < 20 && busyID == ""; i++ {
		id := st.CreateSession()
		if _, err := m.Submit(id, "q"); err != nil {
			require.ErrorIs(t, err, ErrDispatcherBusy)
			busyID = id
		}
	}
	require.NotEmpty(t, busyID, "queue never saturated")

	sess, err := st.Session(busyID)
	require.NoError(t, err)
	assert.False(t, sess.IsLoading)
	assert.Equal(t, stream.GenericErrorMessage, sess.Messages[1].Content)
}

func TestCloseFailsQueuedAndCancelledStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := &fakeCompleter{fragments: []string{"x"}, release: make(chan struct{})}
	m, st := newTestManager(t, ctx, completer, nil, DispatcherConfig{
		MinWorkers: 1, MaxWorkers: 1, QueueSize: 8,
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id := st.CreateSession()
		_, err := m.Submit(id, "q")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.Eventually(t, func() bool { return completer.calls() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, m.Close(context.Background()))

	for _, id := range ids {
		sess, err := st.Session(id)
		require.NoError(t, err)
		assert.False(t, sess.IsLoading, "session %s still streaming after Close", id)
		assert.Equal(t, stream.GenericErrorMessage, sess.Messages[1].Content)
	}
	_, err := m.Submit(st.CreateSession(), "late")
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

// lateSource notices cancellation only after a delay.
type lateSource struct {
	ctx   context.Context
	delay time.Duration
}

func (s *lateSource) Recv() (string, error) {
	<-s.ctx.Done()
	time.Sleep(s.delay)
	return "", s.ctx.Err()
}

func (s *lateSource) Close() {}

type lateCompleter struct {
	started chan struct{}
	delay   time.Duration
}

func (c *lateCompleter) StreamCompletion(ctx context.Context, _ []models.Message) (stream.Source, error) {
	close(c.started)
	return &lateSource{ctx: ctx, delay: c.delay}, nil
}

func TestCloseWaitsForRunningStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := &lateCompleter{started: make(chan struct{}), delay: 20 * time.Millisecond}
	m, st := newTestManager(t, ctx, completer, nil, DispatcherConfig{
		MinWorkers: 1, MaxWorkers: 1, QueueSize: 4,
	})
	id := st.ActiveID()

	_, err := m.Submit(id, "Explain tries")
	require.NoError(t, err)
	<-completer.started

	cancel()
	require.NoError(t, m.Close(context.Background()))

	sess, err := st.Session(id)
	require.NoError(t, err)
	assert.False(t, sess.IsLoading)
	assert.Equal(t, stream.GenericErrorMessage, sess.Messages[1].Content)
}

func TestCloseGivesUpWhenContextEnds(t *testing.T) {
	completer := &fakeCompleter{fragments: []string{"x"}, release: make(chan struct{})}
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	m, st := newTestManager(t, streamCtx, completer, nil, DispatcherConfig{
		MinWorkers: 1, MaxWorkers: 1, QueueSize: 4,
	})
	id := st.ActiveID()
	_, err := m.Submit(id, "q")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return completer.calls() == 1 }, time.Second, 5*time.Millisecond)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Close(closeCtx), context.DeadlineExceeded)

	cancelStreams()
	waitIdle(t, st, id)
}
