package llm

import (
	"sort"
	"sync"
)

// SessionManager manages multiple conversation histories isolated by session ID.
// Histories live in memory only; a restart starts every session fresh.
type SessionManager struct {
	histories map[string]*ChatHistory
	mu        sync.RWMutex
}

// NewSessionManager initializes an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		histories: make(map[string]*ChatHistory),
	}
}

// GetHistory retrieves an existing ChatHistory for a session or creates a new one.
func (sm *SessionManager) GetHistory(sessionID string) *ChatHistory {
	sm.mu.RLock()
	h, ok := sm.histories[sessionID]
	sm.mu.RUnlock()

	if ok {
		return h
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Double check under lock
	if h, ok = sm.histories[sessionID]; ok {
		return h
	}

	h = NewChatHistory()
	sm.histories[sessionID] = h
	return h
}

// Lookup returns the history for a session without creating it.
func (sm *SessionManager) Lookup(sessionID string) (*ChatHistory, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	h, ok := sm.histories[sessionID]
	return h, ok
}

// Drop forgets a session.
func (sm *SessionManager) Drop(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.histories, sessionID)
}

// Sessions lists the known session IDs in sorted order.
func (sm *SessionManager) Sessions() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	ids := make([]string, 0, len(sm.histories))
	for id := range sm.histories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
