// Package metrics 提供 mDNS 引擎的监控指标
//
// 指标基于 prometheus/client_golang，覆盖：
//   - 收发包计数（按消息种类）
//   - 缓存事件（新增/刷新/goodbye/flush/过期/拒绝）与缓存规模
//   - 权威记录与活动问题数量
//   - 名字冲突、应答抑制、问题投递
//
// # 快速开始
//
//	reg := prometheus.NewRegistry()
//	m, err := metrics.New(metrics.Config{Enabled: true, Namespace: "mdns"}, reg)
//	if err != nil {
//	    return err
//	}
//	m.PacketReceived(true)
//
// Enabled 为 false 时 New 返回 Nop，所有方法为空操作。
//
// # Fx 模块
//
//	app := fx.New(
//	    metrics.Module,
//	    fx.Invoke(func(r metrics.Reporter) { ... }),
//	)
//
// 未提供 prometheus.Registerer 时使用 prometheus.DefaultRegisterer。
package metrics
