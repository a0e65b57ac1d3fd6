// Package session 客户端会话
//
// 会话记录一个客户端通过它创建的全部问题、权威记录与服务注册，
// 客户端断开时 Close 一次性撤销这些资源：记录照常发送 goodbye，
// 问题立即停止，尚未执行的回调不再投递。
//
// 会话 ID 使用 UUID，由 Manager 统一登记。
package session
