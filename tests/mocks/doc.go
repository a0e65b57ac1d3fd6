// Package mocks 提供引擎协作者的测试 Mock
//
// # 核心 Mock
//
//   - MockSender: 模拟 interfaces.Sender，记录所有出站消息
//   - MockWaker: 模拟 interfaces.Waker，记录唤醒请求
//   - MockGrower: 模拟 interfaces.Grower，可按次数允许扩容
//   - MockTransport: 模拟 interfaces.Transport，可注入入站包
//
// # 设计原则
//
// 1. 函数式注入: 每个 Mock 都支持通过 XxxFunc 字段注入自定义行为
// 2. 调用记录: 记录调用历史，便于验证测试行为
// 3. 并发安全: 记录受互斥锁保护，可被驱动协程调用
//
// # 使用示例
//
//	sender := mocks.NewMockSender()
//	e, _ := engine.New(engine.Options{Sender: sender, Clock: clk})
//	...
//	msgs := sender.Take()
package mocks
