package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// KVStore keeps string values by key in the kv_store table.
type KVStore struct {
	db     *sql.DB
	driver string
}

// NewKVStore wraps an opened and migrated database.
func NewKVStore(db *sql.DB, driver string) *KVStore {
	return &KVStore{db: db, driver: strings.ToLower(driver)}
}

// Get returns the value stored under key. found is false when the key is absent.
func (s *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.selectStmt(), key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *KVStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, s.upsertStmt(), key, value, now); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing keys are not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.deleteStmt(), key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) selectStmt() string {
	if s.driver == "mysql" {
		return "SELECT value FROM kv_store WHERE `key` = ?"
	}
	return `SELECT value FROM kv_store WHERE key = ?`
}

func (s *KVStore) upsertStmt() string {
	if s.driver == "mysql" {
		return "INSERT INTO kv_store (`key`, value, updated_at) VALUES (?, ?, ?) " +
			"ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)"
	}
	return `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
}

func (s *KVStore) deleteStmt() string {
	if s.driver == "mysql" {
		return "DELETE FROM kv_store WHERE `key` = ?"
	}
	return `DELETE FROM kv_store WHERE key = ?`
}
