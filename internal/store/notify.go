package store

// EventKind names the mutation behind a change notification.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventSelected  EventKind = "selected"
	EventSubmitted EventKind = "submitted"
	EventTitle     EventKind = "title"
	EventFragment  EventKind = "fragment"
	EventFailed    EventKind = "failed"
	EventCompleted EventKind = "completed"
)

// Event tells subscribers which session changed. Receivers re-read state
// through Session or Snapshot.
type Event struct {
	SessionID string    `json:"sessionId"`
	Kind      EventKind `json:"kind"`
}

const subscriberBuffer = 64

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel. Events are dropped for subscribers whose buffer is full.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	s.nextSub++
	subID := s.nextSub
	s.subs[subID] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[subID]; ok {
			delete(s.subs, subID)
			close(c)
		}
	}
	return ch, cancel
}

// notifyLocked must be called with s.mu held.
func (s *Store) notifyLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
