package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ============================================================================
//                              MockSender
// ============================================================================

// MockSender 模拟 Sender 接口实现
type MockSender struct {
	mu sync.Mutex

	// 可覆盖的方法
	SendFunc func(msg *rr.Message)

	// 调用记录
	Messages []*rr.Message
}

var _ interfaces.Sender = (*MockSender)(nil)

// NewMockSender 创建 MockSender
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send 记录消息
func (m *MockSender) Send(msg *rr.Message) {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	fn := m.SendFunc
	m.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Take 取出并清空已记录的消息
func (m *MockSender) Take() []*rr.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.Messages
	m.Messages = nil
	return out
}

// Count 已记录的消息数
func (m *MockSender) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// ============================================================================
//                              MockWaker
// ============================================================================

// MockWaker 模拟 Waker 接口实现
type MockWaker struct {
	mu sync.Mutex

	ScheduleWakeFunc func(at time.Time)

	// 调用记录
	Wakes []time.Time
}

var _ interfaces.Waker = (*MockWaker)(nil)

// NewMockWaker 创建 MockWaker
func NewMockWaker() *MockWaker {
	return &MockWaker{}
}

// ScheduleWake 记录唤醒请求
func (m *MockWaker) ScheduleWake(at time.Time) {
	m.mu.Lock()
	m.Wakes = append(m.Wakes, at)
	fn := m.ScheduleWakeFunc
	m.mu.Unlock()
	if fn != nil {
		fn(at)
	}
}

// Last 最近一次唤醒请求，没有时返回零值
func (m *MockWaker) Last() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Wakes) == 0 {
		return time.Time{}
	}
	return m.Wakes[len(m.Wakes)-1]
}

// ============================================================================
//                              MockGrower
// ============================================================================

// MockGrower 模拟 Grower 接口实现
//
// 默认每次追加 Step 个条目，最多 Allow 次。
type MockGrower struct {
	Step  int
	Allow int

	GrowCacheFunc func(current int) int

	// 调用记录
	Calls []int
}

var _ interfaces.Grower = (*MockGrower)(nil)

// GrowCache 实现 Grower
func (m *MockGrower) GrowCache(current int) int {
	m.Calls = append(m.Calls, current)
	if m.GrowCacheFunc != nil {
		return m.GrowCacheFunc(current)
	}
	if len(m.Calls) > m.Allow {
		return 0
	}
	return m.Step
}

// ============================================================================
//                              MockTransport
// ============================================================================

// MockTransport 模拟 Transport 接口实现
type MockTransport struct {
	MockSender

	IfaceList []types.InterfaceID

	StartFunc func(ctx context.Context, handler interfaces.PacketHandler) error
	CloseFunc func() error

	handlerMu sync.Mutex
	handler   interfaces.PacketHandler
	started   chan struct{}
	closed    bool
}

var _ interfaces.Transport = (*MockTransport)(nil)

// NewMockTransport 创建 MockTransport
func NewMockTransport(ifaces ...types.InterfaceID) *MockTransport {
	return &MockTransport{IfaceList: ifaces, started: make(chan struct{})}
}

// Start 保存处理器并阻塞到 ctx 取消
func (m *MockTransport) Start(ctx context.Context, handler interfaces.PacketHandler) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, handler)
	}
	m.handlerMu.Lock()
	m.handler = handler
	m.handlerMu.Unlock()
	close(m.started)
	<-ctx.Done()
	return nil
}

// Started 处理器就绪后关闭的通道
func (m *MockTransport) Started() <-chan struct{} { return m.started }

// Inject 向处理器注入一个入站包，未启动时返回 false
func (m *MockTransport) Inject(pkt *rr.Packet) bool {
	m.handlerMu.Lock()
	h := m.handler
	m.handlerMu.Unlock()
	if h == nil {
		return false
	}
	h(pkt)
	return true
}

// Interfaces 实现 Transport
func (m *MockTransport) Interfaces() []types.InterfaceID { return m.IfaceList }

// Close 实现 Transport
func (m *MockTransport) Close() error {
	m.handlerMu.Lock()
	m.closed = true
	m.handlerMu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Closed 是否已关闭
func (m *MockTransport) Closed() bool {
	m.handlerMu.Lock()
	defer m.handlerMu.Unlock()
	return m.closed
}
