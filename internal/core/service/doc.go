// Package service 在引擎之上实现 DNS-SD 服务
//
// 注册：一个服务实例由一组互为兄弟的记录组成
//
//	_services._dns-sd._udp.<domain>  PTR  <service>.<domain>          共享
//	<service>.<domain>               PTR  <instance>                  共享
//	<sub>._sub.<service>.<domain>    PTR  <instance>                  共享
//	<instance>                       SRV  <priority weight port host> 唯一
//	<instance>                       TXT  <text>                      唯一
//
// 任一唯一记录冲突时整组撤销，实例名按 "Name (2)" 形式改名后重新注册。
//
// 解析：SRV 与 TXT 问题得到答案后，再为 SRV 目标主机启动地址问题。
// 解析链独立于发起者，停止时整条链一起停止。
package service
