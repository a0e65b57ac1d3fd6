// Package transport 实现 mDNS 组播收发
//
// 每个地址族一个 UDP 套接字，绑定组播端口并在选定的网卡上加入
// 224.0.0.251 / ff02::fb。入站包的网卡由控制消息中的 IfIndex 给出，
// 出站包通过控制消息指定网卡。
//
// 收到自己刚发出的组播回环包时直接丢弃。
package transport
