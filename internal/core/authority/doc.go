// Package authority 本机发布的权威记录状态机
//
// 状态转换：
//
//	Unregistered → {Shared, Advisory, Unique, KnownUnique} → Deregistering → Unregistered
//	Unique → Verified（探测通过）
//
// Unique 记录注册后先探测；探测期间收到同身份不同数据的应答即冲突，
// 记录被撤销（从未通告，不发 goodbye）。Verified/KnownUnique 记录冲突时，
// 若已通告过则先发 goodbye。允许自动改名的记录递增首个标签的数字后缀，
// 以原句柄重新探测。
//
// 声明了依赖的记录在全部依赖可见之前保持等待：不通告、不应答，
// 也不出现在本地问题的答案中。依赖因冲突被撤销时，等待它的兄弟记录
// 一直隐藏到整组撤销。
//
// 记录保存在带代际校验的 arena 中：句柄失效后任何操作都返回
// ErrBadReference，兄弟记录之间只保存句柄，不保存指针。
//
// 所有操作把出站发送、回调事件、可见性变化追加到 Effects，
// 由引擎在释放锁之后按顺序执行。
package authority
