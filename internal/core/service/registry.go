package service

import (
	"errors"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dep2p/go-mdns/internal/core/engine"
	"github.com/dep2p/go-mdns/pkg/lib/log"
	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

var logger = log.Logger("core/service")

// maxLocalRenames 本机已占用名字时的最大改名次数
const maxLocalRenames = 32

// Engine 服务层依赖的引擎能力
type Engine interface {
	Register(spec engine.RecordSpec) (engine.Handle, error)
	RegisterSet(specs ...engine.RecordSpec) ([]engine.Handle, error)
	Update(h engine.Handle, rec rr.Record) error
	Deregister(h engine.Handle) error
	DeregisterSet(h engine.Handle) error
	Link(handles ...engine.Handle) error
	StartQuestion(spec engine.QuestionSpec) (engine.QuestionID, error)
	StopQuestion(id engine.QuestionID) error
}

var _ Engine = (*engine.Engine)(nil)

// ============================================================================
//                              Registry
// ============================================================================

type enumRef struct {
	handle engine.Handle
	refs   int
}

// Registry 服务注册表
//
// 同一服务类型的多个实例共用一条 "_services._dns-sd._udp" 枚举 PTR，
// 它在首个实例的 SRV 与 TXT 可见之前不通告。记录回调从不获取 Registry.mu。
type Registry struct {
	e Engine

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu   sync.Mutex
	enum map[string]*enumRef
}

// NewRegistry 创建注册表
func NewRegistry(e Engine) *Registry {
	return &Registry{
		e:    e,
		rnd:  rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // 改名后缀不需要加密级随机
		enum: make(map[string]*enumRef),
	}
}

func (r *Registry) intn(n int) int {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Intn(n)
}

// Register 注册服务实例
//
// 实例名在本机已被占用时自动改名。cb 可以为 nil。
func (r *Registry) Register(inst Instance, cb Callback) (*Registration, error) {
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	g := &Registration{reg: r, inst: inst, cb: cb, label: inst.Name}
	if err := g.publish(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	var deps []engine.Handle
	if len(g.handles) > txtIndex {
		deps = []engine.Handle{g.handles[srvIndex], g.handles[txtIndex]}
	}
	g.mu.Unlock()

	key, err := r.acquireEnum(inst, deps)
	if err != nil {
		logger.Warn("服务类型枚举记录注册失败", "service", inst.Service, "err", err)
	}
	g.mu.Lock()
	closed := g.closed
	if !closed {
		g.enumKey = key
	}
	g.mu.Unlock()
	if closed {
		r.releaseEnum(key)
	}
	return g, nil
}

func enumKey(inst Instance) string {
	return strings.ToLower(ServiceName(inst.Service, inst.domain())) + "|" + strconv.FormatUint(uint64(inst.Interface), 10)
}

func (r *Registry) acquireEnum(inst Instance, deps []engine.Handle) (string, error) {
	key := enumKey(inst)
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.enum[key]; ok {
		ref.refs++
		return key, nil
	}
	rec, err := rr.NewPTR(EnumerationName(inst.domain()), ServiceName(inst.Service, inst.domain()), inst.ttl())
	if err != nil {
		return "", err
	}
	h, err := r.e.Register(engine.RecordSpec{Record: rec, Policy: types.PolicyShared, Interface: inst.Interface, DependsOn: deps})
	if err != nil {
		return "", err
	}
	r.enum[key] = &enumRef{handle: h, refs: 1}
	return key, nil
}

func (r *Registry) releaseEnum(key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.enum[key]
	if !ok {
		return
	}
	if ref.refs--; ref.refs > 0 {
		return
	}
	delete(r.enum, key)
	if err := r.e.Deregister(ref.handle); err != nil {
		logger.Debug("撤销服务类型枚举记录失败", "key", key, "err", err)
	}
}

// ============================================================================
//                              Registration
// ============================================================================

// Event 注册状态变化
type Event struct {
	// Status Verified：全部唯一记录探测通过；
	// NameConflict：已改名并重新注册，Err 非空时放弃注册；
	// MemFree：关闭后全部记录已释放
	Status types.Status
	// Name 当前实例名（未转义）
	Name string
	// Previous 改名前的实例名
	Previous string
	Err      error
}

// Callback 注册回调，在引擎释放锁之后执行
type Callback func(Event)

// ExtraRecord 附加在实例名下的额外记录，随整组撤销与改名
type ExtraRecord struct {
	Type rr.Type
	Data []byte
	TTL  uint32

	handle engine.Handle
}

// recordTag 组内记录的回调上下文
type recordTag struct {
	gen   int
	extra bool
}

// Registration 一次服务注册
type Registration struct {
	reg *Registry
	cb  Callback

	mu      sync.Mutex
	inst    Instance
	label   string
	gen     int
	handles []engine.Handle // SRV、TXT、PTR，随后是额外记录
	extras  []*ExtraRecord
	pending int // 本代尚未验证的唯一记录数（不含额外记录）
	live    int // 尚未释放的记录数（跨代）
	closed  bool
	done    bool
	enumKey string
}

// Name 当前实例名（未转义）
func (g *Registration) Name() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.label
}

// FullName 当前实例的完整域名
func (g *Registration) FullName() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return InstanceName(g.label, g.inst.Service, g.inst.domain())
}

// publish 以当前标签注册新一代记录组；本机已占用时递增后缀重试
//
// TXT 依赖 SRV，PTR 与额外记录依赖 SRV 与 TXT，唯一记录全部探测通过之前不通告 PTR。
func (g *Registration) publish() error {
	g.mu.Lock()
	g.gen++
	gen, label, inst := g.gen, g.label, g.inst
	extras := append([]*ExtraRecord(nil), g.extras...)
	g.mu.Unlock()

	for attempt := 0; ; attempt++ {
		recs, policies, err := inst.records(label)
		if err != nil {
			return err
		}
		specs := make([]engine.RecordSpec, 0, len(recs)+len(extras))
		unique := 0
		for i := range recs {
			spec := engine.RecordSpec{
				Record:    recs[i],
				Policy:    policies[i],
				Interface: inst.Interface,
				Context:   recordTag{gen: gen},
				Callback:  g.onRecord,
			}
			switch {
			case i == txtIndex:
				spec.After = []int{srvIndex}
			case i > txtIndex:
				spec.After = []int{srvIndex, txtIndex}
			}
			specs = append(specs, spec)
			if policies[i].IsUnique() {
				unique++
			}
		}
		name := InstanceName(label, inst.Service, inst.domain())
		for _, x := range extras {
			rec, err := rr.NewRecord(name, x.Type, x.Data, x.TTL)
			if err != nil {
				return err
			}
			specs = append(specs, g.extraSpec(rec, gen, nil))
		}

		g.mu.Lock()
		g.label, g.pending = label, unique
		g.live += len(specs)
		g.mu.Unlock()

		handles, err := g.reg.e.RegisterSet(specs...)
		if err == nil {
			g.adopt(handles, len(recs), extras)
			logger.Info("服务已注册，开始探测", "instance", label, "service", inst.Service)
			return nil
		}

		g.mu.Lock()
		g.live -= len(specs)
		g.mu.Unlock()
		if !errors.Is(err, types.ErrAlreadyRegistered) || attempt >= maxLocalRenames {
			return err
		}
		label = rr.IncrementLabelSuffix(label, true, g.reg.intn)
		logger.Debug("实例名本机已占用，改名", "instance", label)
	}
}

// extraSpec 额外记录的注册参数；deps 为空时在同组内按下标依赖 SRV 与 TXT
func (g *Registration) extraSpec(rec rr.Record, gen int, deps []engine.Handle) engine.RecordSpec {
	spec := engine.RecordSpec{
		Record:    rec,
		Policy:    types.PolicyUnique,
		Interface: g.inst.Interface,
		Context:   recordTag{gen: gen, extra: true},
		Callback:  g.onRecord,
		DependsOn: deps,
	}
	if deps == nil {
		spec.After = []int{srvIndex, txtIndex}
	}
	return spec
}

// adopt 记下新一代句柄；注册期间已被移除的额外记录立即撤销
func (g *Registration) adopt(handles []engine.Handle, base int, extras []*ExtraRecord) {
	var stale []engine.Handle
	g.mu.Lock()
	g.handles = handles[:base:base]
	for i, x := range extras {
		h := handles[base+i]
		if !containsExtra(g.extras, x) {
			stale = append(stale, h)
			continue
		}
		x.handle = h
		g.handles = append(g.handles, h)
	}
	g.mu.Unlock()

	for _, h := range stale {
		_ = g.reg.e.Deregister(h)
	}
}

func containsExtra(xs []*ExtraRecord, x *ExtraRecord) bool {
	for _, y := range xs {
		if y == x {
			return true
		}
	}
	return false
}

// onRecord 处理组内记录的完成回调
func (g *Registration) onRecord(ev engine.RecordEvent) {
	tag, _ := ev.Context.(recordTag)

	g.mu.Lock()
	if ev.Final {
		g.live--
	}
	current := tag.gen == g.gen && !g.closed

	switch {
	case ev.Status == types.StatusVerified && current && !tag.extra:
		g.pending--
		name := g.label
		verified := g.pending == 0
		g.mu.Unlock()
		if verified {
			logger.Info("服务已验证", "instance", name)
			g.emit(Event{Status: types.StatusVerified, Name: name})
		}

	case ev.Status == types.StatusNameConflict && current:
		old := g.label
		handles := g.handles
		g.handles = nil
		g.label = rr.IncrementLabelSuffix(old, true, g.reg.intn)
		g.mu.Unlock()

		logger.Info("服务名冲突，整组改名", "old", old, "record", ev.Record.Key)
		g.withdraw(handles)
		err := g.publish()
		g.emit(Event{Status: types.StatusNameConflict, Name: g.Name(), Previous: old, Err: err})
		if err != nil {
			logger.Warn("改名后重新注册失败", "instance", old, "err", err)
			g.finish()
		}

	default:
		finished := g.closed && g.live == 0 && !g.done
		if finished {
			g.done = true
		}
		name := g.label
		g.mu.Unlock()
		if finished {
			g.emit(Event{Status: types.StatusMemFree, Name: name})
		}
	}
}

// withdraw 撤销一代记录组；组内任一存活句柄即可撤销整组
func (g *Registration) withdraw(handles []engine.Handle) {
	for _, h := range handles {
		if err := g.reg.e.DeregisterSet(h); err == nil {
			return
		}
	}
}

// SetText 替换 TXT 记录并重新通告
func (g *Registration) SetText(text ...string) error {
	g.mu.Lock()
	if g.closed || len(g.handles) == 0 {
		g.mu.Unlock()
		return ErrClosed
	}
	g.inst.Text = text
	h := g.handles[txtIndex]
	name := InstanceName(g.label, g.inst.Service, g.inst.domain())
	ttl := g.inst.ttl()
	g.mu.Unlock()

	rec, err := rr.NewTXT(name, ttl, text...)
	if err != nil {
		return err
	}
	return g.reg.e.Update(h, rec)
}

// AddRecord 在实例名下附加一条唯一记录
//
// 记录在 SRV 与 TXT 可见之后才通告，随整组改名与撤销。ttl 为 0 时使用实例 TTL。
func (g *Registration) AddRecord(t rr.Type, rdata []byte, ttl uint32) (*ExtraRecord, error) {
	x := &ExtraRecord{Type: t, Data: append([]byte(nil), rdata...), TTL: ttl}
	for {
		g.mu.Lock()
		if g.closed || len(g.handles) <= txtIndex {
			g.mu.Unlock()
			return nil, ErrClosed
		}
		if x.TTL == 0 {
			x.TTL = g.inst.ttl()
		}
		gen := g.gen
		name := InstanceName(g.label, g.inst.Service, g.inst.domain())
		siblings := append([]engine.Handle(nil), g.handles...)
		g.live++
		g.mu.Unlock()

		h, err := g.register(x, name, gen, siblings)
		if err != nil {
			g.mu.Lock()
			g.live--
			renamed := g.gen != gen && !g.closed
			g.mu.Unlock()
			if renamed {
				continue
			}
			return nil, err
		}

		g.mu.Lock()
		closed, renamed := g.closed, g.gen != gen
		if !closed && !renamed {
			x.handle = h
			g.extras = append(g.extras, x)
			g.handles = append(g.handles, h)
		}
		g.mu.Unlock()

		switch {
		case closed:
			_ = g.reg.e.Deregister(h)
			return nil, ErrClosed
		case renamed:
			// 注册期间整组已改名，以新名字重来
			_ = g.reg.e.Deregister(h)
			continue
		}
		if err := g.reg.e.Link(append(siblings, h)...); err != nil {
			logger.Debug("额外记录加入记录组失败", "instance", name, "err", err)
		}
		logger.Debug("附加额外记录", "instance", name, "type", t)
		return x, nil
	}
}

func (g *Registration) register(x *ExtraRecord, name string, gen int, siblings []engine.Handle) (engine.Handle, error) {
	rec, err := rr.NewRecord(name, x.Type, x.Data, x.TTL)
	if err != nil {
		return engine.Handle{}, err
	}
	return g.reg.e.Register(g.extraSpec(rec, gen, []engine.Handle{siblings[srvIndex], siblings[txtIndex]}))
}

// RemoveRecord 撤销 AddRecord 附加的记录
func (g *Registration) RemoveRecord(x *ExtraRecord) error {
	g.mu.Lock()
	idx := -1
	for i, y := range g.extras {
		if y == x {
			idx = i
			break
		}
	}
	switch {
	case g.closed:
		g.mu.Unlock()
		return ErrClosed
	case idx < 0:
		g.mu.Unlock()
		return ErrUnknownRecord
	}
	g.extras = append(g.extras[:idx], g.extras[idx+1:]...)
	h := x.handle
	x.handle = engine.Handle{}
	kept := g.handles[:0]
	for _, y := range g.handles {
		if y != h {
			kept = append(kept, y)
		}
	}
	g.handles = kept
	g.mu.Unlock()

	if h.IsZero() {
		return nil
	}
	return g.reg.e.Deregister(h)
}

// Close 撤销注册；全部记录释放后回调 StatusMemFree
func (g *Registration) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return ErrClosed
	}
	g.closed = true
	handles := g.handles
	g.handles = nil
	g.mu.Unlock()

	g.withdraw(handles)
	g.finish()
	return nil
}

// finish 标记结束并释放枚举记录；没有存活记录时立即回调 MemFree
func (g *Registration) finish() {
	g.mu.Lock()
	g.closed = true
	key := g.enumKey
	g.enumKey = ""
	finished := g.live == 0 && !g.done
	if finished {
		g.done = true
	}
	name := g.label
	g.mu.Unlock()

	g.reg.releaseEnum(key)
	if finished {
		g.emit(Event{Status: types.StatusMemFree, Name: name})
	}
}

func (g *Registration) emit(ev Event) {
	if g.cb != nil {
		g.cb(ev)
	}
}
