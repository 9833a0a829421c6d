package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBytes 限制单帧大小，防止异常长度导致内存放大。
const MaxFrameBytes = 16 * 1024 * 1024

// WriteFrame 写出一帧（4 字节大端长度 + 帧体）。
// 参数：
// - w: 目标 Writer
// - body: 帧体字节串
// 返回：
// - error: 写入失败原因
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxFrameBytes {
		return fmt.Errorf("frame too large: %d", len(body))
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

// ReadFrame 读取一帧（与 WriteFrame 对应）。
// 参数：
// - r: 来源 Reader
// 返回：
// - []byte: 帧体字节串
// - error: 读取失败原因（含帧长超限）
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if n > MaxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d", n)
	}
	body := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
