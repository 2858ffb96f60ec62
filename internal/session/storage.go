package session

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"chemviz/internal/crypto"
)

// Storage is the client-local key/value store the token lives in.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// MemoryStore keeps values for the life of the process.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SQLStore persists values in the kv table of the client database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database that already has the kv table.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// SealedStore encrypts values before handing them to the wrapped store.
// A value that fails to open is reported as absent so a rotated key
// behaves like a logged-out client instead of a hard error.
type SealedStore struct {
	inner Storage
	key   *crypto.SealKey
}

// NewSealedStore wraps inner with secretbox encryption under key.
func NewSealedStore(inner Storage, key *crypto.SealKey) *SealedStore {
	return &SealedStore{inner: inner, key: key}
}

func (s *SealedStore) Get(key string) (string, bool, error) {
	sealed, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return "", false, err
	}
	plain, err := s.key.Open(sealed)
	if err != nil {
		return "", false, nil
	}
	return string(plain), true, nil
}

func (s *SealedStore) Set(key, value string) error {
	sealed, err := s.key.Seal([]byte(value))
	if err != nil {
		return err
	}
	return s.inner.Set(key, sealed)
}

func (s *SealedStore) Delete(key string) error {
	return s.inner.Delete(key)
}
