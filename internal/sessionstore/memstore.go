package sessionstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-process Store backed by mutex-protected maps, grounded
// on the teacher's task/repository/memory.go idiom. Used by supervisor unit
// tests that don't want a real database.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logs     map[string][]*LogEntry
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: make(map[string]*Session),
		logs:     make(map[string][]*LogEntry),
	}
}

func (m *MemStore) InsertSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if _, exists := m.sessions[s.ID]; exists {
		return ErrDuplicate
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *MemStore) UpdateSessionStatus(ctx context.Context, id string, status Status, finishedAt *time.Time, exitCode *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Status = status
	s.FinishedAt = finishedAt
	if exitCode != nil {
		s.ExitCode = exitCode
	}
	return nil
}

func (m *MemStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemStore) ListSessionsByTask(ctx context.Context, taskID string) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Session
	for _, s := range m.sessions {
		if s.TaskID == taskID {
			cp := *s
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemStore) InsertLogEntry(ctx context.Context, sessionID string, logType LogType, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logs[sessionID] = append(m.logs[sessionID], &LogEntry{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		LogType:   logType,
		Content:   content,
	})
	return nil
}

func (m *MemStore) ListLogs(ctx context.Context, sessionID string) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.logs[sessionID]
	result := make([]*LogEntry, len(entries))
	copy(result, entries)
	return result, nil
}

var _ Store = (*MemStore)(nil)
