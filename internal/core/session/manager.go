package session

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/service"
)

// ============================================================================
//                              Manager
// ============================================================================

// Manager 会话登记表
type Manager struct {
	e   service.Engine
	reg *service.Registry
	clk clock.Clock

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager 创建会话登记表；clk 为 nil 时使用系统时钟
func NewManager(e service.Engine, reg *service.Registry, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		e:        e,
		reg:      reg,
		clk:      clk,
		sessions: make(map[string]*Session),
	}
}

// Open 为客户端打开新会话
func (m *Manager) Open(owner string) (*Session, error) {
	s := &Session{
		id:        uuid.New().String(),
		owner:     owner,
		opened:    m.clk.Now(),
		e:         m.e,
		reg:       m.reg,
		onDone:    m.remove,
		records:   make(map[engine.Handle]struct{}),
		questions: make(map[engine.QuestionID]struct{}),
		services:  make(map[*service.Registration]struct{}),
		stoppers:  make(map[stopper]struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.sessions[s.id] = s
	logger.Debug("会话已打开", "id", s.id, "owner", owner)
	return s, nil
}

// Get 按 ID 查找会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// CloseSession 按 ID 关闭会话
func (m *Manager) CloseSession(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.Close()
}

// Sessions 返回全部会话快照，按打开时间排序
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Info, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Opened.Equal(out[j].Opened) {
			return out[i].ID < out[j].ID
		}
		return out[i].Opened.Before(out[j].Opened)
	})
	return out
}

// Len 当前会话数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
}

// Close 关闭全部会话，之后不能再打开新会话
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	var errs error
	for _, s := range list {
		errs = multierr.Append(errs, ignore(s.Close(), ErrClosed))
	}
	if len(list) > 0 {
		logger.Info("全部会话已关闭", "count", len(list))
	}
	return errs
}

