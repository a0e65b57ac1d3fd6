// Package interfaces 定义引擎与协作者之间的接口
//
// 引擎本身不做 I/O，也不持有定时器；出站发送、唤醒调度、缓存扩容与
// 组播收发都通过本包的接口交给协作者实现：
//
//   - Sender      出站消息（internal/transport）
//   - Waker       单次唤醒请求（internal/driver）
//   - Grower      缓存扩容
//   - Transport   组播收发（internal/transport）
//
// mock/ 目录下是 mockgen 生成的 gomock 实现。
package interfaces
