package wave

import (
	"encoding/binary"
	"math"
	"math/rand"

	"daq-x/status"
)

type Spec struct {
	Channels          int
	SamplesPerChannel int
	SampleRate        int
	Kind              status.Waveform
	Amplitude         float64
	BaseFrequency     float64
	NoiseLevel        float64
}

// BytesPerChunk 返回该规格下单块载荷的字节数（通道数 × 每通道采样数 × 2）。
func (s Spec) BytesPerChunk() int { return s.Channels * s.SamplesPerChannel * 2 }

// ChunkDuration 返回该规格下单块覆盖的采样时长（秒）。
func (s Spec) ChunkDuration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.SamplesPerChannel) / float64(s.SampleRate)
}

// Synthesize 生成一块多通道交织采样数据。
// 布局：小端 int16，按采样槽交织（s0c0, s0c1, ..., s0cN, s1c0, ...）。
// 行为：
// - 各通道按 freq_ch = base × (1 + 0.1×ch) 错频，便于多通道显示区分
// - 时间基 t = (seqOffset×samplesPerChannel + i) / sampleRate，跨块相位连续
// - NoiseLevel > 0 时叠加 ±NoiseLevel×Amplitude 的均匀扰动
// - 量化结果裁剪到 [-32768, 32767]
// 纯函数（噪声项除外），无共享状态，不同会话可并发调用。
// 参数：
// - spec: 波形规格
// - seqOffset: 块序号（决定起始相位）
// - dst: 可复用的输出缓冲（容量不足时重新分配）
// 返回：
// - []byte: 长度恰为 BytesPerChunk() 的载荷
func Synthesize(spec Spec, seqOffset uint32, dst []byte) []byte {
	n := spec.BytesPerChunk()
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	base := float64(seqOffset) * float64(spec.SamplesPerChannel)
	off := 0
	for i := 0; i < spec.SamplesPerChannel; i++ {
		t := (base + float64(i)) / float64(spec.SampleRate)
		for ch := 0; ch < spec.Channels; ch++ {
			freq := spec.BaseFrequency * (1 + 0.1*float64(ch))
			v := sample(spec.Kind, 2*math.Pi*freq*t) * spec.Amplitude
			if spec.NoiseLevel > 0 {
				v += (rand.Float64()*2 - 1) * spec.NoiseLevel * spec.Amplitude
			}
			binary.LittleEndian.PutUint16(dst[off:], uint16(quantize(v)))
			off += 2
		}
	}
	return dst
}

// sample 计算单位幅度下某相位处的波形值。
func sample(kind status.Waveform, theta float64) float64 {
	switch kind {
	case status.WaveformSine:
		return math.Sin(theta)
	case status.WaveformSquare:
		if math.Sin(theta) >= 0 {
			return 1
		}
		return -1
	case status.WaveformTriangle:
		return (2 / math.Pi) * math.Asin(math.Sin(theta))
	case status.WaveformNoise:
		return rand.Float64()*2 - 1
	case status.WaveformMixed:
		return 0.6*math.Sin(theta) + 0.3*math.Sin(2*theta) + 0.1*math.Sin(3*theta)
	default:
		return 0
	}
}

// quantize 将 [-1,1] 区间外亦可的浮点值量化为 int16（带裁剪）。
func quantize(v float64) int16 {
	q := math.Round(v * 32767)
	if q > 32767 {
		return 32767
	}
	if q < -32768 {
		return -32768
	}
	return int16(q)
}

// DecodeInterleaved 将交织载荷拆分为逐通道采样序列。
// 参数：
// - payload: 小端 int16 交织载荷
// - channels: 通道数
// 返回：
// - [][]int16: 每通道一个切片；载荷长度不整除时截断尾部残余
func DecodeInterleaved(payload []byte, channels int) [][]int16 {
	if channels <= 0 {
		return nil
	}
	perChannel := len(payload) / 2 / channels
	out := make([][]int16, channels)
	for ch := range out {
		out[ch] = make([]int16, perChannel)
	}
	off := 0
	for i := 0; i < perChannel; i++ {
		for ch := 0; ch < channels; ch++ {
			out[ch][i] = int16(binary.LittleEndian.Uint16(payload[off:]))
			off += 2
		}
	}
	return out
}
