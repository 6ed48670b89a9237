package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps users and documents in process memory. It has no job
// queue and no rendition cache.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string // normalized email -> user id
	docs    map[string]Document
	seq     map[string]int // document id -> insertion order
	next    int
}

var _ Backend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		docs:    make(map[string]Document),
		seq:     make(map[string]int),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) CreateUser(u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Email = NormalizeEmail(u.Email)
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrDuplicateEmail
	}
	if _, ok := m.users[u.ID]; ok {
		return fmt.Errorf("user %s already exists", u.ID)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(id string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) GetUserByEmail(email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) CreateDocument(d Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[d.UserID]; !ok {
		return fmt.Errorf("user %s: %w", d.UserID, ErrNotFound)
	}
	if _, ok := m.docs[d.ID]; ok {
		return fmt.Errorf("document %s already exists", d.ID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.next++
	m.docs[d.ID] = d
	m.seq[d.ID] = m.next
	return nil
}

func (m *MemoryStore) GetDocument(id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return d, nil
}

// ListDocumentsForUser returns the user's documents, newest first.
func (m *MemoryStore) ListDocumentsForUser(userID string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Document
	for _, d := range m.docs {
		if d.UserID == userID {
			results = append(results, d)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return m.seq[a.ID] > m.seq[b.ID]
	})
	return results, nil
}

func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	delete(m.seq, id)
	return nil
}
