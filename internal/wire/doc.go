// Package wire 在引擎的包元组与 DNS 报文之间转换
//
// 编码与解码基于 github.com/miekg/dns。mDNS 在类别字段的最高位上
// 复用了两个标志：问题中的 QU（请求单播应答）与记录中的 cache-flush，
// 本包负责剥离与设置。
//
// 按 RFC 6762 §18，操作码或响应码非 0 的报文被丢弃。
package wire
