// Package types 定义 go-mdns 的基础类型
//
// 本文件定义所有公共错误类型。
package types

import "errors"

// ============================================================================
//                              请求错误（同步返回，不改变状态）
// ============================================================================

var (
	// ErrBadParam 请求携带的身份或数据不合法
	ErrBadParam = errors.New("mdns: bad parameter")

	// ErrAlreadyRegistered 重复注册
	ErrAlreadyRegistered = errors.New("mdns: already registered")

	// ErrBadReference 句柄未知或已被移除
	ErrBadReference = errors.New("mdns: bad reference")

	// ErrNoSuchRecord 与 ErrBadReference 同义，面向记录操作
	ErrNoSuchRecord = ErrBadReference
)

// ============================================================================
//                              生命周期错误（通过回调异步投递）
// ============================================================================

var (
	// ErrNameConflict 唯一性被破坏
	ErrNameConflict = errors.New("mdns: name conflict")
)

// ============================================================================
//                              容量信号
// ============================================================================

var (
	// ErrNoCache 缓存不可用或已满且协作者拒绝扩容
	ErrNoCache = errors.New("mdns: no cache space")

	// ErrGrowCache 缓存需要更多存储（信号，不是失败）
	ErrGrowCache = errors.New("mdns: cache needs more storage")

	// ErrNoMemory 协作者报告的非核心资源分配失败
	ErrNoMemory = errors.New("mdns: no memory")
)
