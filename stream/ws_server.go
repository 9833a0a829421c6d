package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"daq-x/config"
	daqlog "daq-x/log"
	"daq-x/wire"
)

// WSServer 是面向浏览器的流式订阅端点。
// 协议：
// - 客户端连接 /stream?client_id=... 后，第一条二进制消息为 CBOR StreamRequest
// - 服务端回一条 CBOR Ack；success 时随后持续推送 CBOR Chunk 二进制消息
type WSServer struct {
	cfg config.Config
	mgr *Manager

	upgrader websocket.Upgrader
	srv      *http.Server
}

const wsWriteWait = 10 * time.Second

// NewWSServer 创建 WebSocket 数据面服务。
// 参数：
// - cfg: 全局配置
// - mgr: 会话管理器
func NewWSServer(cfg config.Config, mgr *Manager) *WSServer {
	return &WSServer{
		cfg: cfg,
		mgr: mgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start 启动 WebSocket 监听并阻塞服务（ctx 取消后退出）。
// 参数：
// - ctx: 上下文，用于关闭监听
// 返回：
// - error: 监听失败原因；正常关闭返回 nil
func (s *WSServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Server.WSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	s.srv = &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		_ = s.srv.Close()
	}()

	daqlog.With(map[string]any{"addr": addr, "status": "listen_ok"}).Info("WebSocket 数据面开始监听")
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleStream 处理单条订阅连接：
// - 读取首条 CBOR StreamRequest 并执行 Subscribe 校验
// - 校验失败回 Ack{success:false} 后关闭；成功回 Ack 并进入传输循环
// - 读泵检测客户端断开并触发会话拆除
func (s *WSServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		daqlog.With(map[string]any{"remote": r.RemoteAddr, "status": "upgrade_error"}).WithError(err).Warn("WebSocket 升级失败")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		daqlog.With(map[string]any{"remote": r.RemoteAddr, "status": "request_read_error"}).WithError(err).Warn("订阅请求读取失败")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	var req wire.StreamRequest
	if err := wire.Unmarshal(raw, &req); err != nil {
		s.writeAck(conn, wire.Ack{Success: false, Message: "invalid stream request", Timestamp: uint64(time.Now().UnixMilli())})
		return
	}

	sess, err := s.mgr.Subscribe(r.URL.Query().Get("client_id"), req)
	if err != nil {
		daqlog.With(map[string]any{"remote": r.RemoteAddr, "status": "subscribe_rejected"}).WithError(err).Warn("订阅请求被拒绝")
		s.writeAck(conn, wire.Ack{Success: false, Message: err.Error(), Timestamp: uint64(time.Now().UnixMilli())})
		return
	}
	s.writeAck(conn, wire.Ack{Success: true, Message: sess.ID(), Timestamp: uint64(time.Now().UnixMilli())})

	sess.Start(func() { s.mgr.Release(sess) })

	// 读泵只为感知对端断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sess.Stop()
				return
			}
		}
	}()

	if err := sess.RunTransport(&wsChunkWriter{conn: conn}); err != nil {
		daqlog.With(map[string]any{
			"sessionID": sess.ID(),
			"remote":    r.RemoteAddr,
			"status":    "transport_error",
		}).WithError(err).Warn("WebSocket 会话传输失败")
	}
}

// writeAck 写出一条 CBOR Ack（失败仅记录日志）。
func (s *WSServer) writeAck(conn *websocket.Conn, a wire.Ack) {
	b, err := wire.Marshal(a)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		daqlog.With(map[string]any{"status": "ack_write_error"}).WithError(err).Warn("Ack 写出失败")
	}
}

// wsChunkWriter 把块编码为 CBOR 二进制消息写入 WebSocket 连接。
type wsChunkWriter struct {
	conn *websocket.Conn
}

// WriteChunk 写出一块（带写超时）。
func (w *wsChunkWriter) WriteChunk(c wire.Chunk) error {
	b, err := wire.Marshal(c)
	if err != nil {
		return err
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteMessage(websocket.BinaryMessage, b)
}
