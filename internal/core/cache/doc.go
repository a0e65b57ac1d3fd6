// Package cache 网络学习到的资源记录缓存
//
// 缓存是按名字分组的哈希表：同名记录落在同一个组里，一次按名查找
// 就能覆盖同名下的全部地址/指针记录。
//
// # TTL
//
// 剩余 TTL 总是由接收时间推导：remaining = original - (now - received)，
// 不存储、不递减。两次刷新之间剩余 TTL 单调不增。
//
// # cache-flush
//
// 带 cache-flush 位的记录表示"这是该名字/类型/类别的完整集合"。
// 同一包内的记录共享同一个包序号，刷新过的条目带上本包序号，
// Flush 只删除本包未刷新的同身份条目，因此同一包内的多条应答共存。
//
// # 容量
//
// 缓存满时询问 Grower 扩容；被拒绝时新记录插入失败（ErrNoCache），
// 不做任何淘汰。
package cache
