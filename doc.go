// Package mdns 提供组播 DNS 应答器与解析器
//
// 核心是记录生命周期与缓存一致性引擎：权威记录的探测、冲突与改名、
// goodbye 与撤销；按名字分组的资源记录缓存；绑定到缓存与本地记录的活动问题。
// 根包把引擎、组播收发、事件循环与会话管理用 Fx 组装为一个 Responder。
//
// # 快速开始
//
//	r, err := mdns.New(mdns.WithInterfaces("eth0"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := r.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	// 注册服务
//	reg, _ := r.Register(mdns.Service{
//	    Name:    "Office Printer",
//	    Service: "_ipp._tcp",
//	    Host:    "printer.local.",
//	    Port:    631,
//	})
//	for ev := range reg.Events() {
//	    fmt.Println(ev.Status, ev.Name)
//	}
//
//	// 浏览服务
//	events, _ := r.Browse(ctx, "_ipp._tcp")
//	for ev := range events {
//	    fmt.Println(ev.Added, ev.Name)
//	}
//
// # 回调与通道
//
// 引擎的回调在释放锁之后执行。根包把回调转换为带缓冲的通道，
// 通道满时丢弃事件并记录日志，引擎从不因为调用方读得慢而阻塞。
//
// # 文件组织
//
//   - responder.go: Responder 生命周期
//   - api.go: 注册、浏览、解析与查询
//   - streams.go: 回调到通道的转换
//   - options.go: 用户选项
//   - fx.go: 模块组装
//   - errors.go: 公共错误
//   - version.go: 版本信息
package mdns
