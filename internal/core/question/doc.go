// Package question 活动问题集合
//
// 问题是对 (name, type, class) 的持续兴趣。Deliver 是调用问题回调的唯一入口：
// 每个问题按记录引用计数，存在型问题只在 0→1、1→0 时触发，
// 枚举型问题在每条不同记录出现与消失时各触发一次，
// 同一条记录不会连续两次 Added。
//
// 查询退避从初始间隔翻倍到上限；查询发出后 1 秒内收到两条应答时
// 退避重置。他人发出的相同问题记录在固定大小的环中（最旧的先淘汰），
// 窗口内见过的接口上本方查询视为已发送。
//
// 同 key、同接口、同目标的本地问题共享网络流量：只有第一个（主问题）
// 发送查询，主问题停止后由下一个接替。
package question
