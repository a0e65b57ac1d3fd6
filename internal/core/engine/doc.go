// Package engine 实现 mDNS 记录生命周期与缓存一致性引擎
//
// 引擎把三个部件串在一把锁下：
//   - cache: 从网络学到的记录
//   - authority: 本机发布的权威记录状态机
//   - question: 活动问题与投递
//
// # 调用模型
//
// 驱动在启动时、收到包时、收到客户端请求时以及上一次给出的唤醒时刻到达时
// 调用引擎。每次进入都在锁内运行到完成，计算新的唤醒时刻，
// 并把出站消息与回调推迟到释放锁之后：先发送，再回调。
//
// 回调可以重新进入引擎。嵌套进入产生的副作用追加到同一个队列，
// 由最外层的冲刷循环按顺序执行。
//
// 在锁内被调用的协作者（Grower、metrics.Reporter）不得重新进入引擎。
//
// # 应答
//
// 查询由处于活动状态的权威记录应答。提问方已知答案中 TTL 不低于我方一半的
// 记录不再应答；同一记录在同一接口上 1 秒内只组播一次。
package engine
