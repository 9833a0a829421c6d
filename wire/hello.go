package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	daqerrors "daq-x/errors"
)

const HelloPrefix = "DAQHELLO "

type SubscribeHello struct {
	ClientID string        `json:"client_id"`
	Request  StreamRequest `json:"request"`
}

// WriteHello 写出数据面连接的首行握手（DAQHELLO + JSON）。
// 参数：
// - conn: 连接对象
// - h: 握手信息（客户端标识与订阅请求）
// 返回：
// - error: 写入失败原因
func WriteHello(conn net.Conn, h SubscribeHello) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return err
	}
	_, err = conn.Write(append(append([]byte(HelloPrefix), raw...), '\n'))
	return err
}

// ReadHello 读取数据面连接的首行握手（DAQHELLO + JSON）。
// 使用说明：
// - 数据连接建立后，第一行必须发送：DAQHELLO {"client_id":"...","request":{...}}\n
// 参数：
// - conn: 连接对象
// - timeout: 读取首行超时时间
// 返回：
// - SubscribeHello: 握手信息
// - *bufio.Reader: 复用的 Reader（避免丢失已读缓冲）
// - error: 握手失败原因
func ReadHello(conn net.Conn, timeout time.Duration) (SubscribeHello, *bufio.Reader, error) {
	r := bufio.NewReaderSize(conn, 4096)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	line, err := r.ReadString('\n')
	if err != nil {
		return SubscribeHello{}, r, daqerrors.Wrap(daqerrors.CodeInvalidConfig, "read hello failed", err)
	}
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, HelloPrefix) {
		return SubscribeHello{}, r, daqerrors.Wrap(daqerrors.CodeInvalidConfig, "missing hello prefix", fmt.Errorf("got=%q", line))
	}
	raw := strings.TrimPrefix(line, HelloPrefix)
	var h SubscribeHello
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return SubscribeHello{}, r, daqerrors.Wrap(daqerrors.CodeInvalidConfig, "invalid hello json", err)
	}
	h.ClientID = strings.TrimSpace(h.ClientID)
	if h.ClientID == "" {
		return SubscribeHello{}, r, daqerrors.New(daqerrors.CodeInvalidConfig, "invalid hello fields")
	}
	return h, r, nil
}
