package stream

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"daq-x/config"
	daqerrors "daq-x/errors"
	daqlog "daq-x/log"
	"daq-x/status"
	"daq-x/wire"
)

// SessionInfo 是对外（遥测/健康检查）暴露的会话摘要。
type SessionInfo struct {
	SessionID  string               `json:"session_id"`
	ClientID   string               `json:"client_id"`
	State      status.SessionStatus `json:"state"`
	Seq        uint32               `json:"seq"`
	Channels   uint32               `json:"channels"`
	SampleRate uint32               `json:"sample_rate"`
	BufferSize uint32               `json:"buffer_size"`
	Waveform   string               `json:"waveform"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Manager 持有全部会话的生命周期：订阅校验、全局控制命令分发、
// 会话登记/移除与计数条目回收。
type Manager struct {
	cfg config.Config

	gate    *Gate
	metrics *Registry

	mu       sync.RWMutex
	sessions map[string]*Session

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started time.Time
}

// NewManager 创建会话管理器。
// 职责：
// - Subscribe 校验与会话分配/拆除
// - 全局控制命令（START/STOP/PAUSE/RESUME/RESET）分发
// - 周期性回收闲置会话的计数条目
// 参数：
// - cfg: 全局配置
func NewManager(cfg config.Config) *Manager {
	return &Manager{
		cfg:      cfg,
		gate:     NewGate(true),
		metrics:  NewRegistry(),
		sessions: make(map[string]*Session),
		started:  time.Now(),
	}
}

// Start 启动后台回收任务。
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.evictLoop()
	}()
}

// Stop 终止所有会话并等待后台任务退出（幂等）。
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.stopAllSessions()
	m.wg.Wait()
}

// Gate 返回全局产出开关（注入各会话的节拍循环）。
func (m *Manager) Gate() *Gate { return m.gate }

// Metrics 返回性能计数注册表。
func (m *Manager) Metrics() *Registry { return m.metrics }

// StartedAt 返回管理器启动时间。
func (m *Manager) StartedAt() time.Time { return m.started }

// Subscribe 校验订阅请求并分配一条会话。
// 行为：
// - channels/sample_rate/buffer_size 必须为正，选项集封闭校验
// - 会话数达到上限时拒绝（CodeUnavailable）
// - 返回的会话已登记但未启动；调用方负责 Start 并在结束后 Release
// 参数：
// - clientID: 客户端标识（为空时自动生成）
// - req: 订阅请求
// 返回：
// - *Session: 新会话
// - error: 校验失败或容量不足原因
func (m *Manager) Subscribe(clientID string, req wire.StreamRequest) (*Session, error) {
	spec, err := buildSpec(m.cfg.Stream, req)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = newID()
	}

	m.mu.Lock()
	if len(m.sessions) >= m.cfg.Server.MaxSessions {
		m.mu.Unlock()
		return nil, daqerrors.New(daqerrors.CodeUnavailable, "max sessions reached")
	}
	id := newID()
	sess := newSession(id, clientID, req, spec, m.gate, m.metrics, m.cfg.Stream)
	m.sessions[id] = sess
	m.mu.Unlock()

	daqlog.With(map[string]any{
		"sessionID":   id,
		"clientID":    clientID,
		"status":      "subscribed",
		"channels":    req.Channels,
		"sample_rate": req.SampleRate,
		"buffer_size": req.BufferSize,
		"waveform":    spec.Kind.String(),
	}).Info("会话已创建")
	return sess, nil
}

// Release 将会话从登记表移除并确保其已终止（幂等）。
// 参数：
// - sess: 待释放会话
func (m *Manager) Release(sess *Session) {
	if sess == nil {
		return
	}
	sess.Stop()
	m.mu.Lock()
	if cur, ok := m.sessions[sess.id]; ok && cur == sess {
		delete(m.sessions, sess.id)
	}
	m.mu.Unlock()
	daqlog.With(map[string]any{
		"sessionID": sess.id,
		"clientID":  sess.clientID,
		"status":    "released",
		"chunks":    sess.Seq(),
	}).Info("会话已拆除")
}

// Control 执行一条全局控制命令并返回确认。
// 规则：
// - START/RESUME 打开全局开关；PAUSE 关闭开关；均为幂等
// - STOP 关闭开关并终止所有会话
// - RESET 等价于 STOP 后经过短暂静默期再 START，新会话序号从 0 开始
// - 合法的“无操作或状态推进”一律 success=true；未知命令 success=false
// 参数：
// - cmd: 控制命令
// 返回：
// - wire.Ack: 执行结果确认
func (m *Manager) Control(cmd wire.ControlCommand) wire.Ack {
	switch cmd.Command {
	case wire.CmdStart:
		m.gate.Enable()
		return ack(true, "streaming enabled")
	case wire.CmdResume:
		m.gate.Enable()
		return ack(true, "streaming resumed")
	case wire.CmdPause:
		m.gate.Disable()
		return ack(true, "streaming paused")
	case wire.CmdStop:
		m.gate.Disable()
		n := m.stopAllSessions()
		return ack(true, fmt.Sprintf("stopped %d sessions", n))
	case wire.CmdReset:
		m.gate.Disable()
		n := m.stopAllSessions()
		time.Sleep(m.cfg.Stream.ResetDelay)
		m.metrics.Reset()
		m.gate.Enable()
		return ack(true, fmt.Sprintf("reset complete, %d sessions stopped", n))
	default:
		daqlog.With(map[string]any{
			"command": string(cmd.Command),
			"status":  "unknown_command",
		}).Warn("控制命令不可识别")
		return ack(false, fmt.Sprintf("unknown command: %q", cmd.Command))
	}
}

// Sessions 返回当前会话摘要快照（用于遥测与健康检查）。
func (m *Manager) Sessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, SessionInfo{
			SessionID:  s.id,
			ClientID:   s.clientID,
			State:      s.State(),
			Seq:        s.Seq(),
			Channels:   s.req.Channels,
			SampleRate: s.req.SampleRate,
			BufferSize: s.req.BufferSize,
			Waveform:   s.Spec().Kind.String(),
			CreatedAt:  s.created,
		})
	}
	return out
}

// SessionCount 返回当前在线会话数。
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// stopAllSessions 终止所有在线会话并清空登记表。
// 返回：
// - int: 被终止的会话数
func (m *Manager) stopAllSessions() int {
	m.mu.Lock()
	stopped := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		stopped = append(stopped, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range stopped {
		s.Stop()
	}
	return len(stopped)
}

// evictLoop 周期性回收闲置会话的计数条目（30s 一次）。
func (m *Manager) evictLoop() {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			for _, id := range m.metrics.EvictIdle(m.cfg.Stream.MetricsEvictIdle) {
				daqlog.With(map[string]any{"sessionID": id, "status": "metrics_evicted"}).Info("闲置会话计数已回收")
			}
		}
	}
}

// ack 构造一条控制命令确认。
func ack(success bool, msg string) wire.Ack {
	return wire.Ack{Success: success, Message: msg, Timestamp: uint64(time.Now().UnixMilli())}
}

// newID 生成用于会话的随机 ID。
func newID() string {
	const letters = "0123456789abcdef"
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		now := time.Now().UnixNano()
		return fmt.Sprintf("s%x", now)
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b)
}
