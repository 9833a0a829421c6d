package client

import (
	"bufio"
	"fmt"
	"net"
	"time"

	srt "github.com/datarhei/gosrt"

	daqerrors "daq-x/errors"
	"daq-x/wire"
)

// SRTClient 是面向 SRT 数据面的订阅客户端（长度前缀 CBOR 帧）。
type SRTClient struct {
	conn net.Conn
	r    *bufio.Reader
}

// DialSRT 建立 SRT 订阅连接并完成 DAQHELLO 握手。
// 参数：
// - addr: 服务端地址（host:port）
// - clientID: 客户端标识（必填，握手要求非空）
// - req: 订阅请求
// 返回：
// - *SRTClient: 已就绪的客户端
// - wire.Ack: 服务端确认（success=false 时连接已关闭）
// - error: 连接或握手失败原因
func DialSRT(addr, clientID string, req wire.StreamRequest) (*SRTClient, wire.Ack, error) {
	scfg := srt.DefaultConfig()
	conn, err := srt.Dial("srt", addr, scfg)
	if err != nil {
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "dial srt failed", err)
	}

	if err := wire.WriteHello(conn, wire.SubscribeHello{ClientID: clientID, Request: req}); err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "send hello failed", err)
	}

	r := bufio.NewReaderSize(conn, 64*1024)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	raw, err := wire.ReadFrame(r)
	if err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "read ack failed", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var ack wire.Ack
	if err := wire.Unmarshal(raw, &ack); err != nil {
		_ = conn.Close()
		return nil, wire.Ack{}, daqerrors.Wrap(daqerrors.CodeTransport, "decode ack failed", err)
	}
	if !ack.Success {
		_ = conn.Close()
		return nil, ack, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("subscribe rejected: %s", ack.Message))
	}
	return &SRTClient{conn: conn, r: r}, ack, nil
}

// ReadChunk 阻塞读取下一块数据。
// 返回：
// - wire.Chunk: 数据块
// - error: 连接关闭或解码失败原因
func (c *SRTClient) ReadChunk() (wire.Chunk, error) {
	raw, err := wire.ReadFrame(c.r)
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
func (c *SRTClient) Close() {
	_ = c.conn.Close()
}
