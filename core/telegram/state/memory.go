package state

import "sync"

type memoryManager struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewMemoryManager constructs an in-memory Manager. State is lost on restart.
func NewMemoryManager() Manager {
	return &memoryManager{states: make(map[int64]State)}
}

// SetState sets the dialog state for the given chat. Setting StateIdle clears it.
func (m *memoryManager) SetState(chatID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st == "" || st == StateIdle {
		delete(m.states, chatID)
		return
	}
	m.states[chatID] = st
}

// GetState returns the current dialog state of a chat, or StateIdle if none exists.
func (m *memoryManager) GetState(chatID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[chatID]; ok {
		return st
	}
	return StateIdle
}

// ClearState resets the chat to idle.
func (m *memoryManager) ClearState(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, chatID)
}

// InProgress reports whether the chat currently has an active dialog.
func (m *memoryManager) InProgress(chatID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[chatID]
	return ok
}

func (m *memoryManager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
