package mdns

import (
	"errors"

	"github.com/dep2p/go-mdns/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 应答器未启动
	ErrNotStarted = errors.New("responder not started")

	// ErrAlreadyStarted 应答器已启动
	ErrAlreadyStarted = errors.New("responder already started")

	// ErrClosed 应答器已关闭
	ErrClosed = errors.New("responder closed")

	// ────────────────────────────────────────────────────────────────────────
	// 引擎错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrBadParam 参数不合法
	ErrBadParam = types.ErrBadParam

	// ErrAlreadyRegistered 与已注册的记录矛盾
	ErrAlreadyRegistered = types.ErrAlreadyRegistered

	// ErrNameConflict 名字冲突
	ErrNameConflict = types.ErrNameConflict

	// ErrNoCache 缓存已禁用或已满
	ErrNoCache = types.ErrNoCache
)
