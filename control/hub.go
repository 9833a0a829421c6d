package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"daq-x/config"
	daqerrors "daq-x/errors"
	daqlog "daq-x/log"
	"daq-x/status"
	"daq-x/stream"
)

const observerWriteWait = 5 * time.Second

// Observer 是一条控制面订阅连接（命令下发 + 遥测接收）。
// 注册不持有任何会话状态，断开重连不会产生重复状态。
type Observer struct {
	conn *websocket.Conn
	mu   sync.Mutex

	ID string

	closed atomic.Bool
}

// Send 向观察者发送一条控制面消息（线程安全）。
// 参数：
// - env: 消息信封（type + payload）
// 返回：
// - error: 发送失败原因
func (o *Observer) Send(env Envelope) error {
	if o.closed.Load() {
		return net.ErrClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(observerWriteWait))
	return o.conn.WriteJSON(env)
}

// Close 关闭观察者连接（幂等）。
func (o *Observer) Close() {
	if o.closed.Swap(true) {
		return
	}
	_ = o.conn.Close()
}

// Hub 是控制平面：观察者注册、控制命令分发与周期遥测广播。
type Hub struct {
	cfg config.Config
	mgr *stream.Manager

	upgrader websocket.Upgrader
	srv      *http.Server

	mu        sync.RWMutex
	observers map[*websocket.Conn]*Observer

	svStatus status.ServerStatus
	started  time.Time
	sampler  *hostSampler
}

// NewHub 创建控制平面 Hub。
// 职责：
// - 管理控制连接注册、在线列表与广播
// - 把控制命令转交会话管理器并回发确认
// - 每 5s 广播一次聚合遥测
// 参数：
// - cfg: 全局配置
// - mgr: 会话管理器
func NewHub(cfg config.Config, mgr *stream.Manager) *Hub {
	return &Hub{
		cfg: cfg,
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		observers: make(map[*websocket.Conn]*Observer),
		svStatus:  status.ServerStarting,
		started:   time.Now(),
		sampler:   newHostSampler(),
	}
}

// Start 启动控制平面 HTTP 服务并阻塞（ctx 取消后退出）。
// 使用说明：
// - /control 为 WebSocket 端点，首条消息必须是 register
// - /status 为 HTTP 健康检查，返回 JSON
// 参数：
// - ctx: 上下文，用于关闭监听与后台循环
// 返回：
// - error: 监听失败原因；正常关闭返回 nil
func (h *Hub) Start(ctx context.Context) error {
	addr := fmt.Sprintf("0.0.0.0:%d", h.cfg.Server.ControlPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.setStatus(status.ServerRunning)

	mux := http.NewServeMux()
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) { h.handleWS(ctx, w, r) })
	mux.HandleFunc("/status", h.handleStatus)
	h.srv = &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		h.setStatus(status.ServerStopping)
		_ = h.srv.Close()
	}()
	go h.telemetryLoop(ctx)

	daqlog.With(map[string]any{"addr": addr, "status": "listen_ok"}).Info("控制平面开始监听")
	err = h.srv.Serve(ln)
	h.setStatus(status.ServerStopped)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setStatus 更新服务状态（与观察者表共用一把锁）。
func (h *Hub) setStatus(st status.ServerStatus) {
	h.mu.Lock()
	h.svStatus = st
	h.mu.Unlock()
}

// handleWS 处理单条控制连接：register -> (command ...)。
func (h *Hub) handleWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var first Envelope
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return
	}
	if first.Type != MsgRegister {
		_ = conn.WriteJSON(Envelope{Type: MsgRegisterAck, Payload: RegisterAckPayload{
			Status: "error", Code: daqerrors.CodeBadCommand, Error: "first message must be register",
		}})
		_ = conn.Close()
		return
	}
	var reg RegisterPayload
	raw, _ := json.Marshal(first.Payload)
	_ = json.Unmarshal(raw, &reg)
	_ = conn.SetReadDeadline(time.Time{})

	obs := &Observer{conn: conn, ID: strings.TrimSpace(reg.ObserverID)}
	if obs.ID == "" {
		obs.ID = r.RemoteAddr
	}

	h.mu.Lock()
	h.observers[conn] = obs
	h.mu.Unlock()
	_ = obs.Send(Envelope{Type: MsgRegisterAck, Payload: RegisterAckPayload{Status: "ok"}})

	defer func() {
		h.mu.Lock()
		delete(h.observers, conn)
		h.mu.Unlock()
		obs.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		switch env.Type {
		case MsgCommand:
			var cp CommandPayload
			b, _ := json.Marshal(env.Payload)
			if err := json.Unmarshal(b, &cp); err != nil {
				_ = obs.Send(Envelope{Type: MsgError, Payload: ErrorPayload{Code: daqerrors.CodeBadCommand, Error: "invalid command payload"}})
				continue
			}
			a := h.mgr.Control(cp.Command)
			daqlog.With(map[string]any{
				"observerID": obs.ID,
				"command":    string(cp.Command.Command),
				"success":    a.Success,
			}).Info("控制命令已执行")
			_ = obs.Send(Envelope{Type: MsgCommandAck, Payload: CommandAckPayload{RequestID: cp.RequestID, Ack: a}})
		default:
		}
	}
}

// Broadcast 向所有在线观察者广播一条消息（发送失败则关闭连接）。
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	obs := make([]*Observer, 0, len(h.observers))
	for _, o := range h.observers {
		if o != nil && !o.closed.Load() {
			obs = append(obs, o)
		}
	}
	h.mu.RUnlock()

	for _, o := range obs {
		if err := o.Send(env); err != nil {
			o.Close()
		}
	}
}

// telemetryLoop 定期广播聚合遥测（5s 一次）。
func (h *Hub) telemetryLoop(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.Broadcast(Envelope{Type: MsgTelemetry, Payload: h.telemetryPayload()})
		}
	}
}

// telemetryPayload 汇总当前遥测快照为协议字段。
func (h *Hub) telemetryPayload() TelemetryPayload {
	return TelemetryPayload{
		GateEnabled: h.mgr.Gate().Enabled(),
		Global:      h.mgr.Metrics().Global(),
		Sessions:    h.mgr.Sessions(),
		PerSession:  h.mgr.Metrics().Sessions(),
		CPUPercent:  h.sampler.CPUPercent(),
		MemMB:       h.sampler.MemMB(),
		NowUnixMs:   time.Now().UnixMilli(),
	}
}

// handleStatus 处理 HTTP GET /status 健康检查。
func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	observers := len(h.observers)
	sv := h.svStatus
	h.mu.RUnlock()

	hs := HealthStatusPayload{
		Status:          sv.String(),
		StartedAtUnixMs: h.started.UnixMilli(),
		NowUnixMs:       time.Now().UnixMilli(),
		GateEnabled:     h.mgr.Gate().Enabled(),
		Sessions:        h.mgr.SessionCount(),
		Observers:       observers,
		Global:          h.mgr.Metrics().Global(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(hs)
}
