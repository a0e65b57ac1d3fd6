//go:generate mockgen -source=mdns.go -destination=mock/mock_mdns.go -package=mock

package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// 引擎消费的协作者接口
// ════════════════════════════════════════════════════════════════════════════

// Sender 出站发送
//
// 发送是"发出即忘"的：实现可以排队，失败通过 Engine.ReportSendError 异步上报，
// 不作为返回值。引擎在释放锁之后调用 Send。
//
// 实现位置：internal/transport/
type Sender interface {
	Send(msg *rr.Message)
}

// Waker 单次唤醒请求
//
// 引擎每次进入结束时给出下一次需要被调用的时刻，零值表示无需唤醒。
// 后一次请求覆盖前一次。
//
// 实现位置：internal/driver/
type Waker interface {
	ScheduleWake(at time.Time)
}

// Grower 缓存扩容
//
// 缓存已满时调用，返回愿意追加的条目数；返回 0 表示拒绝，
// 此时新记录的插入失败（已有记录的刷新不受影响）。
type Grower interface {
	GrowCache(current int) int
}

// GrowerFunc 函数形式的 Grower
type GrowerFunc func(current int) int

// GrowCache 实现 Grower
func (f GrowerFunc) GrowCache(current int) int { return f(current) }

// ════════════════════════════════════════════════════════════════════════════
// 协作者：收发
// ════════════════════════════════════════════════════════════════════════════

// PacketHandler 处理已解码的入站包
type PacketHandler func(pkt *rr.Packet)

// Transport 组播收发协作者
//
// 实现位置：internal/transport/
type Transport interface {
	Sender

	// Start 打开套接字并开始接收，阻塞直到 ctx 取消或出错
	Start(ctx context.Context, handler PacketHandler) error

	// Interfaces 返回参与收发的接口
	Interfaces() []types.InterfaceID

	// Close 关闭全部套接字
	Close() error
}
