// Package introspect 提供本地自省 HTTP 服务
//
// 该服务运行在本地端口，提供 JSON 格式的诊断信息，用于调试和监控。
// 默认绑定到 127.0.0.1，不暴露到网络。
//
// 端点：
//   - GET /debug/introspect           - 完整诊断报告 (JSON)
//   - GET /debug/introspect/records   - 权威记录
//   - GET /debug/introspect/cache     - 缓存记录，可用 ?name= 过滤
//   - GET /debug/introspect/questions - 活动问题
//   - GET /debug/introspect/sessions  - 客户端会话
//   - GET /metrics                    - Prometheus 指标
//   - GET /debug/pprof/*              - Go pprof 端点
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/internal/core/session"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// Engine 自省服务读取的引擎快照
type Engine interface {
	Stats() engine.Stats
	Records() []engine.RecordInfo
	Questions() []engine.QuestionInfo
	CacheDump() []engine.CachedRecord
	Interfaces() []types.InterfaceID
}

// Sessions 会话快照来源
type Sessions interface {
	Sessions() []session.Info
}

// Server 本地自省 HTTP 服务
type Server struct {
	engine   Engine
	sessions Sessions
	gatherer prometheus.Gatherer

	addr string

	server   *http.Server
	listener net.Listener

	running bool
	mu      sync.Mutex
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Engine 必需
	Engine Engine

	// Sessions 可选
	Sessions Sessions

	// Gatherer 可选，为空时不提供 /metrics
	Gatherer prometheus.Gatherer
}

// New 创建自省服务
func New(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		engine:   cfg.Engine,
		sessions: cfg.Sessions,
		gatherer: cfg.Gatherer,
		addr:     addr,
	}
}

// Handler 返回路由，供测试与嵌入使用
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/records", s.handleRecords)
	mux.HandleFunc("/debug/introspect/cache", s.handleCache)
	mux.HandleFunc("/debug/introspect/questions", s.handleQuestions)
	mux.HandleFunc("/debug/introspect/sessions", s.handleSessions)

	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("自省服务异常退出", "error", err)
		}
	}()

	s.running = true
	logger.Info("自省服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭自省服务失败", "error", err)
		return err
	}

	s.running = false
	logger.Info("自省服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ============================================================================
//                              视图
// ============================================================================

// RecordView 权威记录
type RecordView struct {
	Record    string `json:"record"`
	Policy    string `json:"policy"`
	State     string `json:"state"`
	Interface string `json:"interface"`
	Announced int    `json:"announced"`
	Held      bool   `json:"held,omitempty"`
}

// CacheView 缓存记录
type CacheView struct {
	Record    string `json:"record"`
	Interface string `json:"interface"`
	Source    string `json:"source"`
	Remaining string `json:"remaining"`
}

// QuestionView 活动问题
type QuestionView struct {
	ID        uint64    `json:"id"`
	Key       string    `json:"key"`
	Interface string    `json:"interface"`
	Kind      string    `json:"kind"`
	Answers   int       `json:"answers"`
	Interval  string    `json:"interval"`
	Next      time.Time `json:"next,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// StatsView 引擎规模
type StatsView struct {
	CacheEntries  int       `json:"cache_entries"`
	CacheCapacity int       `json:"cache_capacity"`
	Records       int       `json:"records"`
	Questions     int       `json:"questions"`
	Interfaces    []string  `json:"interfaces"`
	NextWake      time.Time `json:"next_wake,omitempty"`
}

// IntrospectResponse 完整诊断响应
type IntrospectResponse struct {
	Stats     StatsView      `json:"stats"`
	Records   []RecordView   `json:"records"`
	Questions []QuestionView `json:"questions"`
	Cache     []CacheView    `json:"cache"`
	Sessions  []session.Info `json:"sessions,omitempty"`
}

func (s *Server) stats() StatsView {
	st := s.engine.Stats()
	ifaces := s.engine.Interfaces()
	names := make([]string, len(ifaces))
	for i, id := range ifaces {
		names[i] = id.String()
	}
	return StatsView{
		CacheEntries:  st.CacheEntries,
		CacheCapacity: st.CacheCapacity,
		Records:       st.Records,
		Questions:     st.Questions,
		Interfaces:    names,
		NextWake:      st.NextWake,
	}
}

func (s *Server) records() []RecordView {
	infos := s.engine.Records()
	out := make([]RecordView, 0, len(infos))
	for _, r := range infos {
		out = append(out, RecordView{
			Record:    r.Record.String(),
			Policy:    r.Policy.String(),
			State:     r.State.String(),
			Interface: r.Interface.String(),
			Announced: r.Announced,
			Held:      r.Held,
		})
	}
	return out
}

func (s *Server) cache(name string) []CacheView {
	name = strings.ToLower(strings.TrimSuffix(name, ".")) + "."
	var out []CacheView
	for _, c := range s.engine.CacheDump() {
		if name != "." && c.Record.Name.Canonical() != name {
			continue
		}
		out = append(out, CacheView{
			Record:    c.Record.String(),
			Interface: c.Interface.String(),
			Source:    c.Source,
			Remaining: c.Remaining.Round(time.Millisecond).String(),
		})
	}
	return out
}

func (s *Server) questions() []QuestionView {
	infos := s.engine.Questions()
	out := make([]QuestionView, 0, len(infos))
	for _, q := range infos {
		out = append(out, QuestionView{
			ID:        uint64(q.ID),
			Key:       q.Key.String(),
			Interface: q.Interface.String(),
			Kind:      q.Kind.String(),
			Answers:   q.Answers,
			Interval:  q.Interval.String(),
			Next:      q.Next,
			Duplicate: q.Duplicate,
		})
	}
	return out
}

func (s *Server) sessionList() []session.Info {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Sessions()
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !s.get(w, r) {
		return
	}
	s.writeJSON(w, IntrospectResponse{
		Stats:     s.stats(),
		Records:   s.records(),
		Questions: s.questions(),
		Cache:     s.cache(""),
		Sessions:  s.sessionList(),
	})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	if s.get(w, r) {
		s.writeJSON(w, s.records())
	}
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if s.get(w, r) {
		s.writeJSON(w, s.cache(r.URL.Query().Get("name")))
	}
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if s.get(w, r) {
		s.writeJSON(w, s.questions())
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.get(w, r) {
		return
	}
	if s.sessions == nil {
		http.Error(w, "Sessions not available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, s.sessionList())
}

// handleHealth 处理健康检查请求
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.get(w, r) {
		return
	}
	health := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    "ok",
		Timestamp: time.Now(),
	}
	if len(s.engine.Interfaces()) == 0 {
		health.Status = "degraded"
	}
	s.writeJSON(w, health)
}

// ============================================================================
//                              辅助方法
// ============================================================================

func (s *Server) get(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("JSON 编码失败", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
