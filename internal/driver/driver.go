package driver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-mdns/internal/core/engine"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
)

var logger = log.Logger("driver")

// DefaultQueueSize 默认入站队列长度
const DefaultQueueSize = 256

var (
	// ErrRunning 驱动已在运行
	ErrRunning = errors.New("driver: already running")
	// ErrNotRunning 驱动未运行
	ErrNotRunning = errors.New("driver: not running")
)

// Driver 引擎的事件循环
type Driver struct {
	engine    *engine.Engine
	transport pkgif.Transport
	clk       clock.Clock

	wake    chan time.Time
	packets chan *rr.Packet
	dropped atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

var _ pkgif.Waker = (*Driver)(nil)

// New 创建驱动并挂接为引擎的唤醒协作者
func New(e *engine.Engine, t pkgif.Transport, queueSize int) *Driver {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Driver{
		engine:    e,
		transport: t,
		clk:       e.Clock(),
		wake:      make(chan time.Time, 1),
		packets:   make(chan *rr.Packet, queueSize),
	}
	e.AttachWaker(d)
	return d
}

// ScheduleWake 实现 Waker；后一次请求覆盖前一次
func (d *Driver) ScheduleWake(at time.Time) {
	for {
		select {
		case d.wake <- at:
			return
		default:
		}
		select {
		case <-d.wake:
		default:
		}
	}
}

// Dropped 因队列满而丢弃的入站包数
func (d *Driver) Dropped() uint64 { return d.dropped.Load() }

// ============================================================================
//                              运行
// ============================================================================

// Run 启动收发器与事件循环，阻塞直到 ctx 取消或出错
func (d *Driver) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.transport.Start(ctx, d.enqueue(ctx))
	})
	g.Go(func() error {
		return d.loop(ctx)
	})
	err := g.Wait()
	return multierr.Append(err, d.transport.Close())
}

// enqueue 返回交给收发器的入站处理函数
func (d *Driver) enqueue(ctx context.Context) pkgif.PacketHandler {
	return func(pkt *rr.Packet) {
		select {
		case d.packets <- pkt:
		case <-ctx.Done():
		default:
			if n := d.dropped.Add(1); n == 1 || n%100 == 0 {
				logger.Warn("入站队列已满，丢弃包", "dropped", n)
			}
		}
	}
}

// loop 串行处理入站包与定时唤醒
func (d *Driver) loop(ctx context.Context) error {
	timer := d.clk.Timer(time.Hour)
	stopTimer(timer)
	defer timer.Stop()

	d.reset(timer, d.engine.Tick())
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt := <-d.packets:
			d.engine.Receive(pkt)
		case at := <-d.wake:
			d.reset(timer, at)
		case <-timer.C:
			d.reset(timer, d.engine.Tick())
		}
	}
}

// reset 重新设定定时器；零值表示无需唤醒
func (d *Driver) reset(timer *clock.Timer, at time.Time) {
	stopTimer(timer)
	if at.IsZero() {
		return
	}
	delay := at.Sub(d.clk.Now())
	if delay < 0 {
		delay = 0
	}
	timer.Reset(delay)
}

func stopTimer(timer *clock.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 在后台运行
//
// 不使用调用方的 ctx：Fx 的 OnStart ctx 在钩子返回后即被取消。
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan error, 1)
	go func(done chan<- error) {
		err := d.Run(ctx)
		if err != nil {
			logger.Error("驱动异常退出", "err", err)
		}
		done <- err
	}(d.done)
	logger.Info("驱动已启动")
	return nil
}

// Stop 停止并等待退出
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}

	cancel()
	select {
	case err := <-done:
		logger.Info("驱动已停止")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
