package service

import "errors"

var (
	// ErrInvalidInstance 实例描述不完整
	ErrInvalidInstance = errors.New("service: invalid instance")
	// ErrClosed 注册或解析已结束
	ErrClosed = errors.New("service: closed")
	// ErrUnknownRecord 额外记录不属于该注册
	ErrUnknownRecord = errors.New("service: unknown record")
)
