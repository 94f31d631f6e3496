package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/warren/pkg/hosterrors"
)

// Session is one opaque, plugin-created session record.
type Session struct {
	ID         string         `json:"id"`
	PluginName string         `json:"pluginName"`
	CreatedAt  time.Time      `json:"createdAt"`
	Data       map[string]any `json:"data"`
}

// Manager is a thread-safe in-memory session store.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewManager constructs an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]Session)}
}

// Create satisfies rpc.SessionManager.
func (m *Manager) Create(pluginName string, args map[string]any) (any, error) {
	s := Session{ID: uuid.NewString(), PluginName: pluginName, CreatedAt: time.Now(), Data: args}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get satisfies rpc.SessionManager.
func (m *Manager) Get(sessionID string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, hosterrors.New(hosterrors.KindProtocol, "", "Get", fmt.Errorf("session %q not found", sessionID))
	}
	return s, nil
}

// Destroy satisfies rpc.SessionManager.
func (m *Manager) Destroy(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return hosterrors.New(hosterrors.KindProtocol, "", "Destroy", fmt.Errorf("session %q not found", sessionID))
	}
	delete(m.sessions, sessionID)
	return nil
}

// List satisfies rpc.SessionManager.
func (m *Manager) List() ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]any, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out, nil
}
