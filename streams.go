package mdns

import (
	"sync"

	"github.com/dep2p/go-mdns/pkg/lib/log"
)

var logger = log.Logger("mdns")

// DefaultStreamBuffer 事件通道的默认缓冲
const DefaultStreamBuffer = 64

// stream 把引擎回调转成只读通道
//
// 回调在引擎冲刷阶段执行，不能阻塞：缓冲满时丢弃普通事件并记录日志；
// 终止事件与撤销事件从不丢弃，缓冲满时挤掉最旧的一条。
type stream[T any] struct {
	name string

	mu      sync.Mutex
	ch      chan T
	closed  bool
	dropped int
}

func newStream[T any](name string, size int) *stream[T] {
	if size <= 0 {
		size = DefaultStreamBuffer
	}
	return &stream[T]{name: name, ch: make(chan T, size)}
}

// C 只读通道，关闭后读取立即返回
func (s *stream[T]) C() <-chan T { return s.ch }

// push 非阻塞投递普通事件，返回是否投递成功
func (s *stream[T]) push(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- v:
		return true
	default:
		s.drop()
		return false
	}
}

// pushMust 投递不能丢失的事件
func (s *stream[T]) pushMust(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.force(v)
	return true
}

// finish 投递终止事件并关闭通道
func (s *stream[T]) finish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.force(v)
	s.closed = true
	close(s.ch)
}

// force 缓冲满时挤掉最旧的事件，直到 v 进入缓冲
func (s *stream[T]) force(v T) {
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		select {
		case <-s.ch:
			s.drop()
		default:
		}
	}
}

func (s *stream[T]) drop() {
	s.dropped++
	if s.dropped == 1 || s.dropped%100 == 0 {
		logger.Warn("事件通道已满，丢弃事件", "stream", s.name, "dropped", s.dropped)
	}
}

// close 关闭通道，可重复调用
func (s *stream[T]) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
