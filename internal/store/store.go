// Package store owns the chat session collection and is its only mutator.
//
// Every operation locks the store, so mutations are applied one at a time and
// callers only ever see deep copies. The trailing message of a session is the
// target of all streaming operations: while a session is loading, its last
// message is the model placeholder of the pending submission.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"dsatutor/internal/logger"
	"dsatutor/internal/models"
	"dsatutor/internal/stream"

	"github.com/google/uuid"
)

const saveTimeout = 5 * time.Second

// Loader supplies the persisted collection at startup.
type Loader interface {
	Load(ctx context.Context) models.Collection
}

// Persister mirrors the collection to durable storage. persist.Adapter implements it.
type Persister interface {
	Loader
	Save(ctx context.Context, c models.Collection)
}

// Snapshot is a read-only view of the collection in presentation order.
// ActiveID is empty only when there are no sessions.
type Snapshot struct {
	Sessions []models.ChatSession `json:"sessions"`
	ActiveID string               `json:"activeId"`
}

// Submission is what the caller needs to request a response.
type Submission struct {
	SessionID string
	// History ends with the submitted user message; the placeholder is excluded.
	History   []models.Message
	FirstTurn bool
}

type Option func(*Store)

// WithClock overrides the time source used for lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithSaveInterval bounds how often fragment appends are written. Zero writes
// every append.
func WithSaveInterval(d time.Duration) Option {
	return func(s *Store) { s.saveInterval = d }
}

type Store struct {
	mu sync.Mutex
	// order is most recently touched first
	order        []*models.ChatSession
	byID         map[string]*models.ChatSession
	activeID     string
	bootstrapped bool

	now          func() time.Time
	newID        func() string
	persister    Persister
	saveInterval time.Duration

	revision         uint64
	capturedRevision uint64
	lastCapture      time.Time
	timer            *time.Timer

	saveMu        sync.Mutex
	savedRevision uint64

	subs    map[int]chan Event
	nextSub int
}

var _ stream.Sink = (*Store)(nil)

// New creates an empty store. A nil persister keeps state in memory only.
func New(persister Persister, opts ...Option) *Store {
	s := &Store{
		byID:         make(map[string]*models.ChatSession),
		now:          time.Now,
		newID:        uuid.NewString,
		persister:    persister,
		saveInterval: 250 * time.Millisecond,
		subs:         make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bootstrap loads the persisted collection once. Sessions left loading by a
// previous process are returned to idle, and an empty trailing placeholder
// receives the error text. An empty collection gets one fresh session. The
// most recent session becomes active.
func (s *Store) Bootstrap(ctx context.Context, loader Loader) error {
	if loader == nil {
		loader = s.persister
	}
	var loaded models.Collection
	if loader != nil {
		loaded = loader.Load(ctx)
	}

	s.mu.Lock()
	if s.bootstrapped {
		s.mu.Unlock()
		return ErrAlreadyBootstrapped
	}
	s.bootstrapped = true

	sessions := loaded.Sessions
	models.SortByRecency(sessions)
	recovered := 0
	for i := range sessions {
		sess := sessions[i].Clone()
		if _, dup := s.byID[sess.ID]; dup {
			continue
		}
		if sess.IsLoading {
			sess.IsLoading = false
			// an interrupted turn reads like a failed one
			if last := sess.LastMessage(); last != nil && last.Role == models.RoleModel {
				last.Content = stream.GenericErrorMessage
			}
			recovered++
		}
		s.order = append(s.order, &sess)
		s.byID[sess.ID] = &sess
	}

	var w *pendingWrite
	if len(s.order) == 0 {
		id := s.createLocked()
		w = s.commitLocked(id, EventCreated, true)
	} else {
		s.activeID = s.order[0].ID
		if recovered > 0 {
			logger.Log.Warnf("recovered %d sessions interrupted while streaming", recovered)
			w = s.commitLocked(s.activeID, EventCompleted, true)
		}
	}
	logger.InfoWithFields("store bootstrapped", logger.Fields{
		"sessions":  len(s.order),
		"active":    s.activeID,
		"recovered": recovered,
	})
	s.mu.Unlock()

	s.write(ctx, w)
	return nil
}

// CreateSession adds an empty session and makes it active.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	id := s.createLocked()
	w := s.commitLocked(id, EventCreated, true)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return id
}

func (s *Store) createLocked() string {
	id := s.newID()
	for s.byID[id] != nil {
		id = s.newID()
	}
	sess := &models.ChatSession{
		ID:       id,
		Title:    models.DefaultTitle,
		Messages: []models.Message{},
	}
	sess.Touch(s.now())
	s.byID[id] = sess
	s.order = append([]*models.ChatSession{sess}, s.order...)
	s.activeID = id
	return id
}

// SelectSession makes id the active session. It does not change recency.
func (s *Store) SelectSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return ErrSessionNotFound
	}
	s.activeID = id
	s.notifyLocked(Event{SessionID: id, Kind: EventSelected})
	return nil
}

// SubmitUserMessage appends the user turn and an empty model placeholder and
// marks the session loading. Nothing is mutated when an error is returned.
func (s *Store) SubmitUserMessage(id, text string) (Submission, error) {
	if strings.TrimSpace(text) == "" {
		return Submission{}, ErrEmptyMessage
	}

	s.mu.Lock()
	sess, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Submission{}, ErrSessionNotFound
	}
	if sess.IsLoading {
		s.mu.Unlock()
		return Submission{}, ErrSessionBusy
	}

	first := len(sess.Messages) == 0
	sess.Messages = append(sess.Messages, models.Message{Role: models.RoleUser, Content: text})
	history := make([]models.Message, len(sess.Messages))
	copy(history, sess.Messages)
	sess.Messages = append(sess.Messages, models.Message{Role: models.RoleModel, Content: ""})
	sess.IsLoading = true
	s.touchLocked(sess)
	w := s.commitLocked(id, EventSubmitted, true)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return Submission{SessionID: id, History: history, FirstTurn: first}, nil
}

// UpdateTitle replaces the session title. Blank titles are ignored.
func (s *Store) UpdateTitle(id, title string) error {
	title = strings.TrimSpace(title)

	s.mu.Lock()
	sess, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if title == "" {
		s.mu.Unlock()
		return nil
	}
	sess.Title = title
	s.touchLocked(sess)
	w := s.commitLocked(id, EventTitle, true)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return nil
}

// AppendStreamFragment concatenates fragment onto the last message of a loading session.
func (s *Store) AppendStreamFragment(id, fragment string) error {
	s.mu.Lock()
	sess, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if !sess.IsLoading {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	last := sess.LastMessage()
	if last == nil {
		s.mu.Unlock()
		return ErrNoMessages
	}
	last.Content += fragment
	s.touchLocked(sess)
	w := s.commitLocked(id, EventFragment, false)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return nil
}

// FailActiveResponse replaces the pending model turn with errorText.
func (s *Store) FailActiveResponse(id, errorText string) error {
	s.mu.Lock()
	sess, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if !sess.IsLoading {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	last := sess.LastMessage()
	if last == nil {
		s.mu.Unlock()
		return ErrNoMessages
	}
	last.Content = errorText
	s.touchLocked(sess)
	w := s.commitLocked(id, EventFailed, true)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return nil
}

// CompleteResponse returns the session to idle and writes the collection.
func (s *Store) CompleteResponse(id string) error {
	s.mu.Lock()
	sess, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if !sess.IsLoading {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	sess.IsLoading = false
	s.touchLocked(sess)
	w := s.commitLocked(id, EventCompleted, true)
	s.mu.Unlock()

	s.write(context.Background(), w)
	return nil
}

// Snapshot returns a deep copy of all sessions, most recent first.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Sessions: s.sortedLocked(), ActiveID: s.activeID}
}

// Session returns a deep copy of one session.
func (s *Store) Session(id string) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return models.ChatSession{}, ErrSessionNotFound
	}
	return sess.Clone(), nil
}

// ActiveID returns the active session id.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Flush writes pending fragment state immediately.
func (s *Store) Flush(ctx context.Context) {
	s.mu.Lock()
	w := s.captureLocked()
	s.mu.Unlock()
	s.write(ctx, w)
}

func (s *Store) touchLocked(sess *models.ChatSession) {
	sess.Touch(s.now())
	for i, p := range s.order {
		if p == sess {
			copy(s.order[1:i+1], s.order[:i])
			s.order[0] = sess
			break
		}
	}
}

func (s *Store) sortedLocked() []models.ChatSession {
	out := make([]models.ChatSession, len(s.order))
	for i, sess := range s.order {
		out[i] = sess.Clone()
	}
	models.SortByRecency(out)
	return out
}
