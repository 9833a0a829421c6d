package client

import (
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	daqerrors "daq-x/errors"
	"daq-x/wire"
)

// WSClient 是面向 /stream 端点的订阅客户端。
// 使用说明：
// - DialStream 成功后循环调用 ReadChunk 拉取数据块
// - 连接断开后不自动重连，调用方重新订阅即可
type WSClient struct {
	conn *websocket.Conn
}

// DialStream 建立订阅连接并完成请求/确认握手。
// 参数：
// - addr: 服务端地址（host:port）
// - clientID: 客户端标识（可为空，由服务端生成）
// - req: 订阅请求
// 返回：
// - *WSClient: 已就绪的客户端
// - wire.Ack: 服务端确认（success=false 时连接已关闭）
// - error: 连接或握手失败原因
func DialStream(addr, clientID string, req wire.StreamRequest) (*WSClient, wire.Ack, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/stream"}
	if clientID != "" {
		u.RawQuery = url.Values{"client_id": {clientID}}.Encode()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "dial stream failed", err)
	}

	raw, err := wire.Marshal(req)
	if err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "send stream request failed", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, ackRaw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "read ack failed", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var ack wire.Ack
	if err := wire.Unmarshal(ackRaw, &ack); err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "decode ack failed", err)
	}
	if !ack.Success {
		_ = conn.Close()
		return nil, ack, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("subscribe rejected: %s", ack.Message))
	}
	return &WSClient{conn: conn}, ack, nil
}

// ReadChunk 阻塞读取下一块数据。
// 返回：
// - wire.Chunk: 数据块
// - error: 连接关闭或解码失败原因
func (c *WSClient) ReadChunk() (wire.Chunk, error) {
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return wire.Chunk{}, err
	}
	var chunk wire.Chunk
	if err := wire.Unmarshal(raw, &chunk); err != nil {
		return wire.Chunk{}, err
	}
	return chunk, nil
}

// Close 关闭连接（幂等安全）。
func (c *WSClient) Close() {
	_ = c.conn.Close()
}
