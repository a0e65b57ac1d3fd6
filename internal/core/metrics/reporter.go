package metrics

import "github.com/dep2p/go-mdns/pkg/lib/rr"

// CacheEvent 缓存事件种类
type CacheEvent string

const (
	CacheNew       CacheEvent = "new"
	CacheRefreshed CacheEvent = "refreshed"
	CacheGoodbye   CacheEvent = "goodbye"
	CacheFlushed   CacheEvent = "flushed"
	CacheExpired   CacheEvent = "expired"
	CacheRejected  CacheEvent = "rejected"
	CachePurged    CacheEvent = "purged"
)

// Suppression 应答或查询被抑制的原因
type Suppression string

const (
	// SuppressKnownAnswer 提问方已知答案
	SuppressKnownAnswer Suppression = "known_answer"
	// SuppressRateLimit 1 秒内已在该接口组播过
	SuppressRateLimit Suppression = "rate_limit"
	// SuppressDuplicateQuestion 他人刚问过相同问题
	SuppressDuplicateQuestion Suppression = "duplicate_question"
)

// Reporter 引擎上报指标的接口
//
// 引擎在锁内调用，实现不得阻塞。
type Reporter interface {
	// PacketReceived 收到一个包
	PacketReceived(query bool)

	// MessageSent 交给发送协作者一条消息
	MessageSent(kind rr.MessageKind)

	// SendError 发送协作者报告失败
	SendError()

	// Cache 缓存事件
	Cache(ev CacheEvent, n int)

	// Suppressed 一次抑制
	Suppressed(reason Suppression)

	// Conflict 一次名字冲突
	Conflict()

	// Delivered 一次问题投递
	Delivered(added bool)

	// Gauges 更新规模指标
	Gauges(cacheEntries, records, questions int)
}

// Nop 空实现
type Nop struct{}

var _ Reporter = Nop{}

func (Nop) PacketReceived(bool) {}
func (Nop) MessageSent(rr.MessageKind) {}
func (Nop) SendError() {}
func (Nop) Cache(CacheEvent, int) {}
func (Nop) Suppressed(Suppression) {}
func (Nop) Conflict() {}
func (Nop) Delivered(bool) {}
func (Nop) Gauges(int, int, int) {}
