package timeline

import (
	"sync"

	"MiniMixLab/core/render"
	"MiniMixLab/logger"
	"MiniMixLab/model"

	"github.com/google/uuid"
)

// CoordinatorFactory 为新会话创建渲染协调器
type CoordinatorFactory func(sessionID string) *render.Coordinator

// Manager 管理进程内的全部编排会话。
// 会话只存在于内存中，进程结束即销毁（工程持久化不在范围内）。
type Manager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	defaults       model.Project
	newCoordinator CoordinatorFactory
}

// NewManager 创建会话管理器
func NewManager(defaults model.Project, factory CoordinatorFactory) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		defaults:       defaults,
		newCoordinator: factory,
	}
}

// Create 为用户创建新会话
func (m *Manager) Create(userID int64) *Session {
	id := uuid.NewString()

	var renderer *render.Coordinator
	if m.newCoordinator != nil {
		renderer = m.newCoordinator(id)
	}

	sess := NewSession(id, userID, m.defaults, renderer)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	logger.Info("会话已创建",
		logger.String("sessionId", id),
		logger.Int64("userId", userID))

	return sess
}

// Get 按ID取会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Destroy 销毁会话并停掉其渲染轮询
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		sess.Close()
		logger.Info("会话已销毁", logger.String("sessionId", id))
	}
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CloseAll 服务关停时销毁所有会话
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
