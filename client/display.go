package client

import (
	"sync"
	"time"

	"daq-x/wave"
	"daq-x/wire"
)

// Series 是交给渲染方的单通道时间/值序列。
type Series struct {
	Times  []float64 `json:"times"`
	Values []float64 `json:"values"`
}

// Frame 是一次渲染更新的完整输入：逐通道序列 + 元信息。
// 渲染本身由外部 UI 负责。
type Frame struct {
	Channels       map[int]Series `json:"channels"`
	LastSeq        uint32         `json:"last_seq"`
	BytesPerSecond float64        `json:"bytes_per_second"`
}

// Display 是客户端的显示数据源：逐通道环形存储 + 两级抽稀。
// 第一级在入环前抽稀（约束环写入量），第二级在出帧前抽稀
// （约束渲染点数）；两级用同一步长公式、各自独立的目标点数。
type Display struct {
	channels    int
	sampleRate  int
	chunkPoints int

	mu    sync.Mutex
	rings []*Ring

	lastSeq   uint32
	haveChunk bool

	rateBytes int64
	rateSince time.Time
	rate      float64
}

// NewDisplay 创建显示数据源。
// 参数：
// - channels: 通道数
// - sampleRate: 采样率（用于由 tick_ns 推导逐点时间）
// - maxPoints: 每通道环容量（最大显示点数）
// - chunkPoints: 第一级抽稀的目标点数（入环前）
func NewDisplay(channels, sampleRate, maxPoints, chunkPoints int) *Display {
	if channels < 1 {
		channels = 1
	}
	rings := make([]*Ring, channels)
	for i := range rings {
		rings[i] = NewRing(maxPoints)
	}
	return &Display{
		channels:    channels,
		sampleRate:  sampleRate,
		chunkPoints: chunkPoints,
		rings:       rings,
		rateSince:   time.Now(),
	}
}

// Ingest 摄入一块原始数据：解码、第一级抽稀、入环。
// 参数：
// - c: 收到的数据块
func (d *Display) Ingest(c wire.Chunk) {
	samples := wave.DecodeInterleaved(c.Payload, d.channels)
	if len(samples) == 0 || len(samples[0]) == 0 {
		return
	}
	n := len(samples[0])
	step := Step(n, d.chunkPoints)
	t0 := float64(c.TickNs) / float64(time.Second)
	dt := 1 / float64(d.sampleRate)

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i += step {
		t := t0 + float64(i)*dt
		for ch := 0; ch < d.channels; ch++ {
			d.rings[ch].Push(float64(samples[ch][i]), t)
		}
	}
	d.lastSeq = c.Seq
	d.haveChunk = true
	d.rateBytes += int64(len(c.Payload))
}

// Frame 产出一次渲染更新（第二级抽稀 + 吞吐量测量）。
// 参数：
// - targetPoints: 每通道交给渲染方的目标点数
// 返回：
// - Frame: 渲染输入
func (d *Display) Frame(targetPoints int) Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	if elapsed := time.Since(d.rateSince); elapsed >= 500*time.Millisecond {
		d.rate = float64(d.rateBytes) / elapsed.Seconds()
		d.rateBytes = 0
		d.rateSince = time.Now()
	}

	out := Frame{
		Channels:       make(map[int]Series, d.channels),
		LastSeq:        d.lastSeq,
		BytesPerSecond: d.rate,
	}
	if !d.haveChunk {
		return out
	}
	for ch := 0; ch < d.channels; ch++ {
		times, values := d.rings[ch].Snapshot()
		times, values = Thin(times, values, targetPoints)
		out.Channels[ch] = Series{Times: times, Values: values}
	}
	return out
}

// Clear 清空全部通道的环内容（容量与存储保持不变）。
func (d *Display) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.rings {
		r.Clear()
	}
	d.lastSeq = 0
	d.haveChunk = false
}
