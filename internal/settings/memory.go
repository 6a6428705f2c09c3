package settings

import (
	"fmt"
	"sync"
)

// MemoryStore is a Store backed by maps. Settings are lost on exit.
type MemoryStore struct {
	mu      sync.Mutex
	track   map[string]string
	session map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{track: map[string]string{}, session: map[string]string{}}
}

func trackKey(projectID string, trackID int, f Field) string {
	return fmt.Sprintf("%s/%d/%s", projectID, trackID, f)
}

func (m *MemoryStore) Get(projectID string, trackID int, f Field) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.track[trackKey(projectID, trackID, f)]
	return v, ok, nil
}

func (m *MemoryStore) Set(projectID string, trackID int, f Field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track[trackKey(projectID, trackID, f)] = value
	return nil
}

func (m *MemoryStore) Delete(projectID string, trackID int, f Field) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.track, trackKey(projectID, trackID, f))
	return nil
}

func (m *MemoryStore) GetSession(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.session[key]
	return v, ok, nil
}

func (m *MemoryStore) SetSession(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session[key] = value
	return nil
}

func (m *MemoryStore) DeleteSession(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.session, key)
	return nil
}
