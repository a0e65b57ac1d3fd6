package session

import "errors"

var (
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("session: closed")
	// ErrNotFound 会话不存在
	ErrNotFound = errors.New("session: not found")
	// ErrNotOwned 句柄不属于该会话
	ErrNotOwned = errors.New("session: handle not owned by session")
)
