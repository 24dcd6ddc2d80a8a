// Package persist mirrors the session collection to a key-value backend.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"dsatutor/internal/logger"
	"dsatutor/internal/models"
)

// DefaultKey is the record name the collection is stored under.
const DefaultKey = "dsa-instructor-chats"

// KV is the durable key-value surface. storage.KVStore and redis.Client satisfy it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Adapter loads and saves the whole collection under one key.
type Adapter struct {
	kv  KV
	key string
}

func NewAdapter(kv KV, key string) *Adapter {
	if key == "" {
		key = DefaultKey
	}
	return &Adapter{kv: kv, key: key}
}

// Key returns the record name.
func (a *Adapter) Key() string { return a.key }

// Load returns the persisted collection. Missing, unreadable or corrupt data
// yields an empty collection.
func (a *Adapter) Load(ctx context.Context) models.Collection {
	raw, found, err := a.kv.Get(ctx, a.key)
	if err != nil {
		logger.ErrorWithFields("load sessions failed", logger.Fields{"key": a.key, "error": err.Error()})
		return models.Collection{Sessions: []models.ChatSession{}}
	}
	if !found || raw == "" {
		logger.Log.Debugf("no persisted sessions under %s", a.key)
		return models.Collection{Sessions: []models.ChatSession{}}
	}
	c, err := Decode([]byte(raw))
	if err != nil {
		logger.ErrorWithFields("decode sessions failed", logger.Fields{"key": a.key, "error": err.Error()})
		return models.Collection{Sessions: []models.ChatSession{}}
	}
	return c
}

// Save writes the full collection. A failed write leaves the previous record in place.
func (a *Adapter) Save(ctx context.Context, c models.Collection) {
	data, err := Encode(c)
	if err != nil {
		logger.ErrorWithFields("encode sessions failed", logger.Fields{"key": a.key, "error": err.Error()})
		return
	}
	if err := a.kv.Set(ctx, a.key, string(data)); err != nil {
		logger.ErrorWithFields("save sessions failed", logger.Fields{"key": a.key, "error": err.Error()})
	}
}

// Clear removes the stored record; the next Load starts empty.
func (a *Adapter) Clear(ctx context.Context) error {
	if err := a.kv.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("clear %s: %w", a.key, err)
	}
	return nil
}

// Encode renders the collection in its wire layout.
func Encode(c models.Collection) ([]byte, error) {
	if c.Sessions == nil {
		c.Sessions = []models.ChatSession{}
	}
	out := models.Collection{Sessions: make([]models.ChatSession, len(c.Sessions))}
	for i := range c.Sessions {
		s := c.Sessions[i].Clone()
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}
		out.Sessions[i] = s
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return data, nil
}

var errInvalidLayout = errors.New("unrecognized collection layout")

// Decode parses either the object layout or the legacy bare array.
func Decode(data []byte) (models.Collection, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.Collection{}, errInvalidLayout
	}

	var c models.Collection
	switch trimmed[0] {
	case '{':
		if err := json.Unmarshal(trimmed, &c); err != nil {
			return models.Collection{}, fmt.Errorf("decode collection: %w", err)
		}
	case '[':
		if err := json.Unmarshal(trimmed, &c.Sessions); err != nil {
			return models.Collection{}, fmt.Errorf("decode legacy collection: %w", err)
		}
	default:
		return models.Collection{}, errInvalidLayout
	}

	if c.Sessions == nil {
		c.Sessions = []models.ChatSession{}
	}
	seen := make(map[string]struct{}, len(c.Sessions))
	for i := range c.Sessions {
		s := &c.Sessions[i]
		if s.ID == "" {
			return models.Collection{}, fmt.Errorf("decode collection: session %d has no id", i)
		}
		if _, dup := seen[s.ID]; dup {
			return models.Collection{}, fmt.Errorf("decode collection: duplicate session %s", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Messages == nil {
			s.Messages = []models.Message{}
		}
		for j, m := range s.Messages {
			if m.Role != models.RoleUser && m.Role != models.RoleModel {
				return models.Collection{}, fmt.Errorf("decode collection: session %s message %d has role %q", s.ID, j, m.Role)
			}
		}
	}
	return c, nil
}

// MemoryKV is an in-process KV, used by tests and as a fallback backend.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.data, key)
	return nil
}

// SetErr toggles failure injection.
func (m *MemoryKV) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
