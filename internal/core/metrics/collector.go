package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
)

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool
	// Namespace 指标名前缀
	Namespace string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Enabled: true, Namespace: "mdns"}
}

// Collector 基于 prometheus 的 Reporter
type Collector struct {
	packets    *prometheus.CounterVec
	sent       *prometheus.CounterVec
	sendErrors prometheus.Counter
	cache      *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	conflicts  prometheus.Counter
	delivered  *prometheus.CounterVec

	cacheEntries prometheus.Gauge
	records      prometheus.Gauge
	questions    prometheus.Gauge
}

var _ Reporter = (*Collector)(nil)

// New 创建并注册收集器
//
// cfg.Enabled 为 false 时返回 Nop。
func New(cfg Config, reg prometheus.Registerer) (Reporter, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	c := newCollector(cfg.Namespace)
	if reg == nil {
		return c, nil
	}
	var err error
	for _, col := range c.collectors() {
		err = multierr.Append(err, reg.Register(col))
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newCollector(ns string) *Collector {
	return &Collector{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "packets_received_total",
			Help: "Packets handed to the engine, by kind.",
		}, []string{"kind"}),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_sent_total",
			Help: "Messages handed to the sender, by kind.",
		}, []string{"kind"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "send_errors_total",
			Help: "Send failures reported by the transport.",
		}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "cache", Name: "events_total",
			Help: "Cache entry events, by kind.",
		}, []string{"event"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "suppressed_total",
			Help: "Answers or queries not sent, by reason.",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "name_conflicts_total",
			Help: "Name conflicts detected for owned records.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "question", Name: "deliveries_total",
			Help: "Add/remove events delivered to questions.",
		}, []string{"added"}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "cache", Name: "entries",
			Help: "Current cache entries.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "authority", Name: "records",
			Help: "Registered authoritative records.",
		}),
		questions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "question", Name: "active",
			Help: "Active questions.",
		}),
	}
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.packets, c.sent, c.sendErrors, c.cache, c.suppressed,
		c.conflicts, c.delivered, c.cacheEntries, c.records, c.questions,
	}
}

// PacketReceived 实现 Reporter
func (c *Collector) PacketReceived(query bool) {
	kind := "response"
	if query {
		kind = "query"
	}
	c.packets.WithLabelValues(kind).Inc()
}

// MessageSent 实现 Reporter
func (c *Collector) MessageSent(kind rr.MessageKind) {
	c.sent.WithLabelValues(kind.String()).Inc()
}

// SendError 实现 Reporter
func (c *Collector) SendError() { c.sendErrors.Inc() }

// Cache 实现 Reporter
func (c *Collector) Cache(ev CacheEvent, n int) {
	if n > 0 {
		c.cache.WithLabelValues(string(ev)).Add(float64(n))
	}
}

// Suppressed 实现 Reporter
func (c *Collector) Suppressed(reason Suppression) {
	c.suppressed.WithLabelValues(string(reason)).Inc()
}

// Conflict 实现 Reporter
func (c *Collector) Conflict() { c.conflicts.Inc() }

// Delivered 实现 Reporter
func (c *Collector) Delivered(added bool) {
	c.delivered.WithLabelValues(strconv.FormatBool(added)).Inc()
}

// Gauges 实现 Reporter
func (c *Collector) Gauges(cacheEntries, records, questions int) {
	c.cacheEntries.Set(float64(cacheEntries))
	c.records.Set(float64(records))
	c.questions.Set(float64(questions))
}
