package wire

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// 编解码统一走 Core Deterministic Encoding（RFC 8949 §4.2）：
// 相同数据恒定产出相同字节，便于测试断言与帧对比。
var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wire: cbor encoder init failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("wire: cbor decoder init failed: " + err.Error())
	}
}

// Marshal 将对象编码为 CBOR 字节串。
// 参数：
// - v: 任意可编码对象
// 返回：
// - []byte: CBOR 编码结果
// - error: 编码失败原因
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal 将 CBOR 字节串解码到对象。
// 参数：
// - data: CBOR 字节串
// - v: 解码目标指针
// 返回：
// - error: 解码失败原因
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// NewEncoder 返回向 w 写入的 CBOR 流式编码器。
func NewEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

// NewDecoder 返回从 r 读取的 CBOR 流式解码器。
func NewDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
