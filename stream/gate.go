package stream

import "sync/atomic"

// Gate 是所有会话共享的全局产出开关（PAUSE/RESUME 的实现机制）。
// 关闭时各会话的节拍循环停止生成数据但不拆除会话，重新打开后立即恢复。
type Gate struct {
	enabled atomic.Bool
}

// NewGate 创建一个产出开关。
// 参数：
// - enabled: 初始是否放行
func NewGate(enabled bool) *Gate {
	g := &Gate{}
	g.enabled.Store(enabled)
	return g
}

// Enable 打开开关（幂等）。
func (g *Gate) Enable() { g.enabled.Store(true) }

// Disable 关闭开关（幂等）。
func (g *Gate) Disable() { g.enabled.Store(false) }

// Enabled 返回当前开关状态。
func (g *Gate) Enabled() bool { return g.enabled.Load() }
