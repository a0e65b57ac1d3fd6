package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/service"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/session")

// Info 会话快照
type Info struct {
	ID        string
	Owner     string
	Opened    time.Time
	Records   int
	Questions int
	Services  int
}

type stopper interface {
	Stop() error
}

// Session 一个客户端的资源集合
//
// 记录回调在引擎冲刷阶段执行并会获取 mu；其余路径调用引擎前必须释放 mu。
type Session struct {
	id     string
	owner  string
	opened time.Time
	e      service.Engine
	reg    *service.Registry
	onDone func(*Session)

	mu        sync.Mutex
	closed    bool
	records   map[engine.Handle]struct{}
	questions map[engine.QuestionID]struct{}
	services  map[*service.Registration]struct{}
	stoppers  map[stopper]struct{}
}

// ID 会话 ID
func (s *Session) ID() string { return s.id }

// Owner 会话所属客户端的描述
func (s *Session) Owner() string { return s.owner }

// Info 返回会话快照
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		Owner:     s.owner,
		Opened:    s.opened,
		Records:   len(s.records),
		Questions: len(s.questions),
		Services:  len(s.services),
	}
}

// ============================================================================
//                              记录
// ============================================================================

// Register 注册一条记录并归入会话
//
// 记录收到 Final 事件后自动移出会话。
func (s *Session) Register(spec engine.RecordSpec) (engine.Handle, error) {
	if s.isClosed() {
		return engine.Handle{}, ErrClosed
	}
	user := spec.Callback
	spec.Callback = func(ev engine.RecordEvent) {
		if ev.Final {
			s.mu.Lock()
			delete(s.records, ev.Handle)
			s.mu.Unlock()
		}
		if user != nil {
			user(ev)
		}
	}

	h, err := s.e.Register(spec)
	if err != nil {
		return engine.Handle{}, err
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.records[h] = struct{}{}
	}
	s.mu.Unlock()
	if closed {
		_ = s.e.Deregister(h)
		return engine.Handle{}, ErrClosed
	}
	return h, nil
}

// Update 替换会话内记录的数据
func (s *Session) Update(h engine.Handle, rec rr.Record) error {
	if err := s.owns(h); err != nil {
		return err
	}
	return s.e.Update(h, rec)
}

// Deregister 撤销会话内的一条记录
func (s *Session) Deregister(h engine.Handle) error {
	if err := s.owns(h); err != nil {
		return err
	}
	return s.e.Deregister(h)
}

func (s *Session) owns(h engine.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.records[h]; !ok {
		return ErrNotOwned
	}
	return nil
}

// ============================================================================
//                              问题
// ============================================================================

// StartQuestion 启动问题并归入会话
func (s *Session) StartQuestion(spec engine.QuestionSpec) (engine.QuestionID, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	id, err := s.e.StartQuestion(spec)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.questions[id] = struct{}{}
	}
	s.mu.Unlock()
	if closed {
		_ = s.e.StopQuestion(id)
		return 0, ErrClosed
	}
	return id, nil
}

// StopQuestion 停止会话内的问题
func (s *Session) StopQuestion(id engine.QuestionID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.questions[id]; !ok {
		s.mu.Unlock()
		return ErrNotOwned
	}
	delete(s.questions, id)
	s.mu.Unlock()
	return s.e.StopQuestion(id)
}

// ============================================================================
//                              服务
// ============================================================================

// RegisterService 注册服务实例并归入会话
func (s *Session) RegisterService(inst service.Instance, cb service.Callback) (*service.Registration, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	g, err := s.reg.Register(inst, cb)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.services[g] = struct{}{}
	}
	s.mu.Unlock()
	if closed {
		_ = g.Close()
		return nil, ErrClosed
	}
	return g, nil
}

// Browse 浏览服务类型并归入会话
func (s *Session) Browse(svc, domain string, iface types.InterfaceID, cb func(service.BrowseEvent)) (*service.Browser, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	b, err := service.Browse(s.e, svc, domain, iface, cb)
	if err != nil {
		return nil, err
	}
	return b, s.track(b)
}

// Resolve 解析服务实例并归入会话
func (s *Session) Resolve(instance string, iface types.InterfaceID, cb func(service.Resolved)) (*service.Resolver, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	r, err := service.Resolve(s.e, instance, iface, cb)
	if err != nil {
		return nil, err
	}
	return r, s.track(r)
}

// Stop 停止会话内的浏览或解析
func (s *Session) Stop(st stopper) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.stoppers[st]; !ok {
		s.mu.Unlock()
		return ErrNotOwned
	}
	delete(s.stoppers, st)
	s.mu.Unlock()
	return st.Stop()
}

// CloseService 撤销会话内的服务注册
func (s *Session) CloseService(g *service.Registration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if _, ok := s.services[g]; !ok {
		s.mu.Unlock()
		return ErrNotOwned
	}
	delete(s.services, g)
	s.mu.Unlock()
	return g.Close()
}

func (s *Session) track(st stopper) error {
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.stoppers[st] = struct{}{}
	}
	s.mu.Unlock()
	if closed {
		_ = st.Stop()
		return ErrClosed
	}
	return nil
}

// ============================================================================
//                              关闭
// ============================================================================

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close 撤销会话持有的全部资源
//
// 已被引擎释放的记录与已停止的问题不算错误。
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	records := make([]engine.Handle, 0, len(s.records))
	for h := range s.records {
		records = append(records, h)
	}
	questions := make([]engine.QuestionID, 0, len(s.questions))
	for id := range s.questions {
		questions = append(questions, id)
	}
	services := make([]*service.Registration, 0, len(s.services))
	for g := range s.services {
		services = append(services, g)
	}
	stoppers := make([]stopper, 0, len(s.stoppers))
	for st := range s.stoppers {
		stoppers = append(stoppers, st)
	}
	s.records, s.questions = map[engine.Handle]struct{}{}, map[engine.QuestionID]struct{}{}
	s.services, s.stoppers = map[*service.Registration]struct{}{}, map[stopper]struct{}{}
	s.mu.Unlock()

	var errs error
	for _, st := range stoppers {
		errs = multierr.Append(errs, ignore(st.Stop(), service.ErrClosed))
	}
	for _, id := range questions {
		errs = multierr.Append(errs, ignore(s.e.StopQuestion(id), types.ErrBadReference))
	}
	for _, g := range services {
		errs = multierr.Append(errs, ignore(g.Close(), service.ErrClosed))
	}
	for _, h := range records {
		errs = multierr.Append(errs, ignore(s.e.Deregister(h), types.ErrBadReference))
	}

	if s.onDone != nil {
		s.onDone(s)
	}
	logger.Info("会话已关闭", "id", s.id, "owner", s.owner,
		"records", len(records), "questions", len(questions), "services", len(services))
	return errs
}

func ignore(err, target error) error {
	if errors.Is(err, target) {
		return nil
	}
	return err
}
