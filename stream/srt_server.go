package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	srt "github.com/datarhei/gosrt"

	"daq-x/config"
	daqlog "daq-x/log"
	"daq-x/wire"
)

// SRTServer 是面向仪器级原生客户端的数据面出口。
// 协议：
// - 连接首行为 DAQHELLO 握手（客户端标识 + 订阅请求）
// - 服务端回一帧 CBOR Ack；success 时随后持续写长度前缀 CBOR Chunk 帧
type SRTServer struct {
	cfg config.Config
	mgr *Manager

	mu sync.Mutex
	ln srt.Listener
}

// NewSRTServer 创建 SRT 数据面服务（基于 goSRT）。
// 参数：
// - cfg: 全局配置
// - mgr: 会话管理器
func NewSRTServer(cfg config.Config, mgr *Manager) *SRTServer {
	return &SRTServer{cfg: cfg, mgr: mgr}
}

// Start 启动 SRT 监听并阻塞接受连接（ctx 取消后退出）。
// 参数：
// - ctx: 上下文
// 返回：
// - error: 监听失败原因；正常关闭返回 nil
func (s *SRTServer) Start(ctx context.Context) error {
	scfg := srt.DefaultConfig()
	scfg.PeerIdleTimeout = 8 * time.Second

	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Server.SRTPort)
	ln, err := srt.Listen("srt", addr, scfg)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	daqlog.With(map[string]any{"addr": addr, "status": "listen_ok"}).Info("SRT 数据面开始监听")
	for {
		req, err := ln.Accept2()
		if err != nil {
			return nil
		}
		conn, err := req.Accept()
		if err != nil {
			continue
		}
		go s.handleConn(conn)
	}
}

// Stop 关闭监听（幂等；在线会话由 Manager 统一终止）。
func (s *SRTServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
}

// handleConn 处理单条 SRT 数据面连接：
// - 读取 DAQHELLO 握手并执行 Subscribe 校验
// - 校验失败回 Ack{success:false} 帧后关闭；成功进入传输循环
// - 读泵以短读超时轮询感知对端断开
func (s *SRTServer) handleConn(conn net.Conn) {
	defer conn.Close()

	h, r, err := wire.ReadHello(conn, 2*time.Second)
	if err != nil {
		daqlog.With(map[string]any{"remote": conn.RemoteAddr().String(), "status": "hello_error"}).WithError(err).Warn("SRT 连接被拒绝")
		return
	}

	sess, err := s.mgr.Subscribe(h.ClientID, h.Request)
	if err != nil {
		daqlog.With(map[string]any{"clientID": h.ClientID, "status": "subscribe_rejected"}).WithError(err).Warn("订阅请求被拒绝")
		s.writeAck(conn, wire.Ack{Success: false, Message: err.Error(), Timestamp: uint64(time.Now().UnixMilli())})
		return
	}
	s.writeAck(conn, wire.Ack{Success: true, Message: sess.ID(), Timestamp: uint64(time.Now().UnixMilli())})

	sess.Start(func() { s.mgr.Release(sess) })

	// 读泵只为感知对端断开（250ms 读超时轮询）
	go func() {
		buf := make([]byte, 256)
		for {
			select {
			case <-sess.Done():
				return
			default:
			}
			_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
			if _, err := r.Read(buf); err != nil {
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					continue
				}
				sess.Stop()
				return
			}
		}
	}()

	if err := sess.RunTransport(&srtChunkWriter{conn: conn}); err != nil {
		daqlog.With(map[string]any{
			"sessionID": sess.ID(),
			"clientID":  h.ClientID,
			"status":    "transport_error",
		}).WithError(err).Warn("SRT 会话传输失败")
	}
}

// writeAck 写出一帧 CBOR Ack（失败仅记录日志）。
func (s *SRTServer) writeAck(conn net.Conn, a wire.Ack) {
	b, err := wire.Marshal(a)
	if err != nil {
		return
	}
	if err := wire.WriteFrame(conn, b); err != nil {
		daqlog.With(map[string]any{"status": "ack_write_error"}).WithError(err).Warn("Ack 写出失败")
	}
}

// srtChunkWriter 把块编码为长度前缀 CBOR 帧写入 SRT 连接。
type srtChunkWriter struct {
	conn net.Conn
}

// WriteChunk 写出一块。
func (w *srtChunkWriter) WriteChunk(c wire.Chunk) error {
	b, err := wire.Marshal(c)
	if err != nil {
		return err
	}
	return wire.WriteFrame(w.conn, b)
}
