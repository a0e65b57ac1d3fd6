package types

// ============================================================================
//                              Status - 回调状态
// ============================================================================

// Status 权威记录完成回调携带的状态
//
// 每个终止状态对每次注册只投递一次。
type Status int

const (
	// StatusVerified 唯一记录探测通过
	StatusVerified Status = iota + 1
	// StatusKnownUnique 已知唯一记录已激活（未探测）
	StatusKnownUnique
	// StatusNameConflict 名字冲突，记录已撤回
	StatusNameConflict
	// StatusMemFree 记录已完全释放，调用方可以回收相关资源
	StatusMemFree
)

// String 返回状态名
func (s Status) String() string {
	switch s {
	case StatusVerified:
		return "verified"
	case StatusKnownUnique:
		return "known-unique"
	case StatusNameConflict:
		return "name-conflict"
	case StatusMemFree:
		return "mem-free"
	default:
		return "unknown"
	}
}

// Err 返回状态对应的错误（成功状态返回 nil）
func (s Status) Err() error {
	if s == StatusNameConflict {
		return ErrNameConflict
	}
	return nil
}

// Terminal 是否为释放所有权的终止状态
//
// NameConflict 在开启自动改名时不是终止状态，由调用方结合上下文判断。
func (s Status) Terminal() bool {
	return s == StatusMemFree
}
