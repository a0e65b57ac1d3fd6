// Package driver 驱动引擎运行
//
// 驱动实现引擎的 Waker：一个 goroutine 串行处理定时唤醒与入站包，
// 另一组 goroutine 由收发器负责读取套接字。入站队列满时丢包。
package driver
