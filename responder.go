package mdns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/session"
)

// DefaultStopTimeout Close 等待停止的时长
const DefaultStopTimeout = 10 * time.Second

type state int

const (
	stateNew state = iota
	stateRunning
	stateStopped
)

// Responder mDNS 应答器
//
// 持有一个引擎实例及其收发、驱动与会话组件。
// 通过 New 创建，Start 之后才能注册记录与发起查询。
//
// 示例：
//
//	r, err := mdns.New(mdns.WithInterfaces("eth0"))
//	if err != nil { ... }
//	if err := r.Start(ctx); err != nil { ... }
//	defer r.Close()
//
//	reg, err := r.Register(mdns.Service{Name: "Office Printer", Service: "_ipp._tcp", Host: "printer.local.", Port: 631})
type Responder struct {
	cfg  *config.Config
	app  *fx.App
	comp components

	mu    sync.Mutex
	state state
	sess  *session.Session
	done  chan struct{}
}

// New 创建应答器，不启动
func New(opts ...Option) (*Responder, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	cfg, err := o.buildConfig()
	if err != nil {
		return nil, err
	}

	r := &Responder{
		cfg:  cfg,
		done: make(chan struct{}),
	}
	r.app = buildFxApp(cfg, o, &r.comp)
	if err := r.app.Err(); err != nil {
		return nil, fmt.Errorf("build fx app: %w", err)
	}
	return r, nil
}

// Config 生效的配置
func (r *Responder) Config() *config.Config { return r.cfg }

// Engine 底层引擎，高级用法
func (r *Responder) Engine() *engine.Engine { return r.comp.engine }

// Sessions 会话登记表
func (r *Responder) Sessions() *session.Manager { return r.comp.sessions }

// Done 应答器停止后关闭
func (r *Responder) Done() <-chan struct{} { return r.done }

// Start 启动收发与驱动，打开默认会话
func (r *Responder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case stateRunning:
		return ErrAlreadyStarted
	case stateStopped:
		return ErrClosed
	}

	if err := r.app.Start(ctx); err != nil {
		return fmt.Errorf("start responder: %w", err)
	}
	sess, err := r.comp.sessions.Open("local")
	if err != nil {
		_ = r.app.Stop(ctx)
		return fmt.Errorf("open default session: %w", err)
	}
	r.sess = sess
	r.state = stateRunning
	logger.Info("应答器已启动", "interfaces", len(r.comp.engine.Interfaces()))
	return nil
}

// Stop 撤销全部记录并停止；停止后不能再启动
func (r *Responder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case stateNew:
		return ErrNotStarted
	case stateStopped:
		return ErrClosed
	}
	r.state = stateStopped
	r.sess = nil
	close(r.done)

	if err := r.app.Stop(ctx); err != nil {
		return fmt.Errorf("stop responder: %w", err)
	}
	logger.Info("应答器已停止")
	return nil
}

// Close 停止应答器，可重复调用
func (r *Responder) Close() error {
	r.mu.Lock()
	st := r.state
	if st == stateNew {
		r.state = stateStopped
		close(r.done)
	}
	r.mu.Unlock()
	if st != stateRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancel()
	err := r.Stop(ctx)
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// session 返回默认会话；未运行时返回错误
func (r *Responder) session() (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case stateNew:
		return nil, ErrNotStarted
	case stateStopped:
		return nil, ErrClosed
	}
	return r.sess, nil
}
