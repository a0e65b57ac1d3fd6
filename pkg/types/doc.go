// Package types 定义 go-mdns 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 go-mdns 内部包。
// 所有类型都是纯值类型，用于在引擎、协作者和门面之间传递数据。
//
// # 文件组织
//
//   - enums.go   - InterfaceID, RecordPolicy, RecordState, QuestionKind
//   - status.go  - Status 回调状态码
//   - errors.go  - 公共错误定义（BadParam / AlreadyRegistered / NameConflict ...）
package types
