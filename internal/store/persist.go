package store

import (
	"context"
	"time"

	"dsatutor/internal/models"
)

type pendingWrite struct {
	revision uint64
	coll     models.Collection
}

// commitLocked records a mutation, notifies subscribers and returns the write
// to perform once the lock is released. Fragment appends (immediate=false)
// are coalesced to one write per save interval.
func (s *Store) commitLocked(id string, kind EventKind, immediate bool) *pendingWrite {
	s.revision++
	s.notifyLocked(Event{SessionID: id, Kind: kind})
	if s.persister == nil {
		return nil
	}
	if !immediate && s.saveInterval > 0 {
		if wait := s.saveInterval - time.Since(s.lastCapture); wait > 0 {
			if s.timer == nil {
				s.timer = time.AfterFunc(wait, s.flushPending)
			}
			return nil
		}
	}
	return s.captureLocked()
}

// captureLocked snapshots the collection if it changed since the last capture.
func (s *Store) captureLocked() *pendingWrite {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.persister == nil || s.revision == s.capturedRevision {
		return nil
	}
	s.capturedRevision = s.revision
	s.lastCapture = time.Now()
	return &pendingWrite{
		revision: s.revision,
		coll:     models.Collection{Sessions: s.sortedLocked()},
	}
}

func (s *Store) flushPending() {
	s.mu.Lock()
	s.timer = nil
	w := s.captureLocked()
	s.mu.Unlock()
	s.write(context.Background(), w)
}

// write persists w unless a newer revision has already been written.
func (s *Store) write(ctx context.Context, w *pendingWrite) {
	if w == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if w.revision <= s.savedRevision {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()
	s.persister.Save(ctx, w.coll)
	s.savedRevision = w.revision
}
