// Package lib 包含基础设施工具库
//
//   - log: 子系统日志封装
//   - rr: 资源记录、域名与包结构
//
// # 使用示例
//
//	import (
//	    "github.com/dep2p/go-mdns/pkg/lib/log"
//	    "github.com/dep2p/go-mdns/pkg/lib/rr"
//	)
package lib
