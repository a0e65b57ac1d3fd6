package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-mdns/config"
	"github.com/dep2p/go-mdns/internal/wire"
	pkgif "github.com/dep2p/go-mdns/pkg/interfaces"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("transport")

var (
	groupIPv4 = net.IPv4(224, 0, 0, 251)
	groupIPv6 = net.ParseIP("ff02::fb")
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNoInterface 没有可用的组播网卡
	ErrNoInterface = errors.New("transport: no usable multicast interface")
	// ErrClosed 已关闭
	ErrClosed = errors.New("transport: closed")
	// ErrNotStarted 尚未打开套接字
	ErrNotStarted = errors.New("transport: not started")
	// ErrAlreadyStarted 重复启动
	ErrAlreadyStarted = errors.New("transport: already started")
)

// SendErrorFunc 发送失败回调
type SendErrorFunc func(msg *rr.Message, err error)

// Option 构造选项
type Option func(*Transport)

// WithClock 使用指定时钟给入站包打时间戳
func WithClock(clk clock.Clock) Option {
	return func(t *Transport) { t.clk = clk }
}

// WithInterfaces 直接指定网卡，跳过按名字选择
func WithInterfaces(ifaces []net.Interface) Option {
	return func(t *Transport) { t.ifaces = ifaces }
}

// ============================================================================
//                              Transport
// ============================================================================

// Transport 组播收发
type Transport struct {
	cfg  config.TransportConfig
	clk  clock.Clock
	echo *echoFilter

	ifaces  []net.Interface
	byIndex map[int]*net.Interface

	mu      sync.RWMutex
	conn4   *ipv4.PacketConn
	conn6   *ipv6.PacketConn
	started bool
	closed  bool
	onError SendErrorFunc
}

var _ pkgif.Transport = (*Transport)(nil)

// New 创建收发器，此时不打开套接字
func New(cfg config.TransportConfig, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &Transport{cfg: cfg}
	for _, opt := range opts {
		opt(t)
	}
	if t.clk == nil {
		t.clk = clock.New()
	}

	if t.ifaces == nil {
		all, err := net.Interfaces()
		if err != nil {
			return nil, fmt.Errorf("list interfaces: %w", err)
		}
		if t.ifaces, err = selectInterfaces(all, cfg.Interfaces); err != nil {
			return nil, err
		}
	}
	if len(t.ifaces) == 0 {
		return nil, ErrNoInterface
	}

	t.byIndex = make(map[int]*net.Interface, len(t.ifaces))
	for i := range t.ifaces {
		t.byIndex[t.ifaces[i].Index] = &t.ifaces[i]
	}
	t.echo = newEchoFilter(nil)
	return t, nil
}

// OnSendError 设置发送失败回调
func (t *Transport) OnSendError(fn SendErrorFunc) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// Interfaces 返回参与收发的接口
func (t *Transport) Interfaces() []types.InterfaceID {
	return interfaceIDs(t.ifaces)
}

// ============================================================================
//                              接收
// ============================================================================

// Start 打开套接字并接收，阻塞直到 ctx 取消或读出错
func (t *Transport) Start(ctx context.Context, handler pkgif.PacketHandler) error {
	if err := t.open(); err != nil {
		return err
	}
	t.echo.setLocal(localAddrs(t.ifaces))

	t.mu.RLock()
	conn4, conn6 := t.conn4, t.conn6
	t.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	if conn4 != nil {
		g.Go(func() error { return t.recv4(ctx, conn4, handler) })
	}
	if conn6 != nil {
		g.Go(func() error { return t.recv6(ctx, conn6, handler) })
	}
	g.Go(func() error {
		<-ctx.Done()
		return t.Close()
	})

	logger.Info("组播收发已启动", "interfaces", len(t.ifaces), "ipv4", conn4 != nil, "ipv6", conn6 != nil)
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// open 打开两个地址族的套接字，至少一个成功
func (t *Transport) open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.started {
		return ErrAlreadyStarted
	}

	var errs error
	if t.cfg.EnableIPv4 {
		conn, err := t.open4()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ipv4: %w", err))
		}
		t.conn4 = conn
	}
	if t.cfg.EnableIPv6 {
		conn, err := t.open6()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ipv6: %w", err))
		}
		t.conn6 = conn
	}
	if t.conn4 == nil && t.conn6 == nil {
		return multierr.Append(ErrNoInterface, errs)
	}
	if errs != nil {
		logger.Warn("部分地址族不可用", "err", errs)
	}
	t.started = true
	return nil
}

func (t *Transport) open4() (*ipv4.PacketConn, error) {
	udp, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: t.cfg.Port})
	if err != nil {
		return nil, err
	}
	pc := ipv4.NewPacketConn(udp)

	joined := 0
	for i := range t.ifaces {
		if err := pc.JoinGroup(&t.ifaces[i], &net.UDPAddr{IP: groupIPv4}); err != nil {
			logger.Debug("加入 IPv4 组播组失败", "iface", t.ifaces[i].Name, "err", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = pc.Close()
		return nil, ErrNoInterface
	}

	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		logger.Warn("无法获取入站网卡", "err", err)
	}
	if err := pc.SetMulticastTTL(t.cfg.MulticastTTL); err != nil {
		logger.Debug("设置组播 TTL 失败", "err", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logger.Debug("设置组播回环失败", "err", err)
	}
	return pc, nil
}

func (t *Transport) open6() (*ipv6.PacketConn, error) {
	udp, err := net.ListenUDP("udp6", &net.UDPAddr{IP: net.IPv6unspecified, Port: t.cfg.Port})
	if err != nil {
		return nil, err
	}
	pc := ipv6.NewPacketConn(udp)

	joined := 0
	for i := range t.ifaces {
		if err := pc.JoinGroup(&t.ifaces[i], &net.UDPAddr{IP: groupIPv6}); err != nil {
			logger.Debug("加入 IPv6 组播组失败", "iface", t.ifaces[i].Name, "err", err)
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = pc.Close()
		return nil, ErrNoInterface
	}

	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		logger.Warn("无法获取入站网卡", "err", err)
	}
	if err := pc.SetMulticastHopLimit(t.cfg.MulticastTTL); err != nil {
		logger.Debug("设置组播跳数失败", "err", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logger.Debug("设置组播回环失败", "err", err)
	}
	return pc, nil
}

func (t *Transport) recv4(ctx context.Context, conn *ipv4.PacketConn, handler pkgif.PacketHandler) error {
	buf := make([]byte, t.cfg.MaxPacketSize)
	for {
		n, cm, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ipv4 read: %w", err)
		}
		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}
		t.handle(buf[:n], from, ifIndex, handler)
	}
}

func (t *Transport) recv6(ctx context.Context, conn *ipv6.PacketConn, handler pkgif.PacketHandler) error {
	buf := make([]byte, t.cfg.MaxPacketSize)
	for {
		n, cm, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ipv6 read: %w", err)
		}
		ifIndex := 0
		if cm != nil {
			ifIndex = cm.IfIndex
		}
		t.handle(buf[:n], from, ifIndex, handler)
	}
}

// handle 过滤并解码一个入站包；包序号留给引擎分配
func (t *Transport) handle(b []byte, from net.Addr, ifIndex int, handler pkgif.PacketHandler) {
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return
	}
	src := udp.AddrPort()
	src = netip.AddrPortFrom(src.Addr().Unmap(), src.Port())

	if ifIndex != 0 {
		if _, ok := t.byIndex[ifIndex]; !ok {
			return
		}
	}
	now := t.clk.Now()
	if t.echo.isEcho(b, src.Addr(), now) {
		return
	}

	pkt, err := wire.Parse(b, src, types.InterfaceID(ifIndex), now, 0)
	if err != nil {
		logger.Debug("丢弃入站包", "src", src, "err", err)
		return
	}
	handler(pkt)
}

// ============================================================================
//                              发送
// ============================================================================

// Send 编码并发送；失败通过 OnSendError 回调上报
func (t *Transport) Send(msg *rr.Message) {
	if err := t.send(msg); err != nil {
		logger.Debug("发送失败", "kind", msg.Kind, "iface", msg.Interface, "err", err)
		t.mu.RLock()
		fn := t.onError
		t.mu.RUnlock()
		if fn != nil {
			fn(msg, err)
		}
	}
}

func (t *Transport) send(msg *rr.Message) error {
	packets, err := wire.Encode(msg, t.cfg.MaxPacketSize)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	if !t.started {
		return ErrNotStarted
	}

	targets, err := t.targets(msg.Interface)
	if err != nil {
		return err
	}
	if msg.Destination.IsValid() && len(targets) > 1 {
		// 单播只需发一次
		targets = targets[:1]
	}
	var errs error
	for _, ifi := range targets {
		for _, b := range packets {
			errs = multierr.Append(errs, t.write(b, ifi, msg.Destination))
		}
	}
	return errs
}

// targets InterfaceAny 表示全部网卡
func (t *Transport) targets(id types.InterfaceID) ([]*net.Interface, error) {
	if id == types.InterfaceAny {
		out := make([]*net.Interface, 0, len(t.ifaces))
		for i := range t.ifaces {
			out = append(out, &t.ifaces[i])
		}
		return out, nil
	}
	ifi, ok := t.byIndex[int(id)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown interface %s", types.ErrBadParam, id)
	}
	return []*net.Interface{ifi}, nil
}

// write 在一个网卡上发送；dst 为零值时发往两个地址族的组播组
func (t *Transport) write(b []byte, ifi *net.Interface, dst netip.AddrPort) error {
	t.echo.remember(b, t.clk.Now())

	if dst.IsValid() {
		addr := dst.Addr().Unmap()
		to := net.UDPAddrFromAddrPort(netip.AddrPortFrom(addr, dst.Port()))
		switch {
		case addr.Is4() && t.conn4 != nil:
			_, err := t.conn4.WriteTo(b, &ipv4.ControlMessage{IfIndex: ifi.Index}, to)
			return err
		case addr.Is6() && t.conn6 != nil:
			_, err := t.conn6.WriteTo(b, &ipv6.ControlMessage{IfIndex: ifi.Index}, to)
			return err
		default:
			return fmt.Errorf("no socket for destination %s", dst)
		}
	}

	var errs error
	if t.conn4 != nil {
		_, err := t.conn4.WriteTo(b, &ipv4.ControlMessage{IfIndex: ifi.Index}, &net.UDPAddr{IP: groupIPv4, Port: t.cfg.Port})
		errs = multierr.Append(errs, err)
	}
	if t.conn6 != nil {
		_, err := t.conn6.WriteTo(b, &ipv6.ControlMessage{IfIndex: ifi.Index}, &net.UDPAddr{IP: groupIPv6, Port: t.cfg.Port})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Close 关闭全部套接字，可重复调用
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var errs error
	if t.conn4 != nil {
		errs = multierr.Append(errs, t.conn4.Close())
		t.conn4 = nil
	}
	if t.conn6 != nil {
		errs = multierr.Append(errs, t.conn6.Close())
		t.conn6 = nil
	}
	if errs != nil {
		return errs
	}
	logger.Info("组播收发已关闭")
	return nil
}
