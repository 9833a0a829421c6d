package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// LatencyBuckets 为固定直方图桶数：<1ms、<5ms、<10ms、<50ms、<100ms、≥100ms。
const LatencyBuckets = 6

var latencyBoundsMs = [LatencyBuckets - 1]int64{1, 5, 10, 50, 100}

type MetricsSnapshot struct {
	BytesSent   int64                 `json:"bytes_sent"`
	PacketsSent int64                 `json:"packets_sent"`
	Latency     [LatencyBuckets]int64 `json:"latency_buckets"`
}

// PerfMetrics 是单个统计口径的性能计数器组。
// 并发模型：写入方（各会话传输循环）持读锁做原子累加；Reset 持写锁整组清零，
// 读取方持读锁取快照，因此永远不会观察到“清了一半”的状态。
type PerfMetrics struct {
	mu          sync.RWMutex
	bytesSent   atomic.Int64
	packetsSent atomic.Int64
	latency     [LatencyBuckets]atomic.Int64
}

// AddSent 累计一次发送（字节数 + 包数）。
// 参数：
// - n: 本次发送的载荷字节数
func (m *PerfMetrics) AddSent(n int) {
	m.mu.RLock()
	m.bytesSent.Add(int64(n))
	m.packetsSent.Add(1)
	m.mu.RUnlock()
}

// AddLatency 将一次延迟落入对应直方图桶。
// 参数：
// - d: 从生成到写出的耗时
func (m *PerfMetrics) AddLatency(d time.Duration) {
	m.mu.RLock()
	m.latency[bucketIndex(d)].Add(1)
	m.mu.RUnlock()
}

// Snapshot 返回当前计数快照。
func (m *PerfMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := MetricsSnapshot{
		BytesSent:   m.bytesSent.Load(),
		PacketsSent: m.packetsSent.Load(),
	}
	for i := range m.latency {
		s.Latency[i] = m.latency[i].Load()
	}
	return s
}

// Reset 将计数与直方图作为一个整体原子清零。
func (m *PerfMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytesSent.Store(0)
	m.packetsSent.Store(0)
	for i := range m.latency {
		m.latency[i].Store(0)
	}
}

// bucketIndex 返回延迟对应的直方图桶下标。
func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range latencyBoundsMs {
		if ms < bound {
			return i
		}
	}
	return LatencyBuckets - 1
}

type sessionMetrics struct {
	m    *PerfMetrics
	last atomic.Int64
}

// Registry 维护全局与逐会话的性能计数，并负责闲置会话条目的回收。
type Registry struct {
	global *PerfMetrics

	mu       sync.RWMutex
	sessions map[string]*sessionMetrics
}

// NewRegistry 创建性能计数注册表。
func NewRegistry() *Registry {
	return &Registry{
		global:   &PerfMetrics{},
		sessions: make(map[string]*sessionMetrics),
	}
}

// RecordDataSent 记录一次发送（全局必记；sessionID 非空时同时记入该会话）。
// 参数：
// - sessionID: 会话标识（可为空）
// - n: 载荷字节数
func (r *Registry) RecordDataSent(sessionID string, n int) {
	r.global.AddSent(n)
	if sessionID == "" {
		return
	}
	e := r.entry(sessionID)
	e.m.AddSent(n)
	e.last.Store(time.Now().UnixNano())
}

// RecordLatency 记录一次延迟（全局必记；sessionID 非空时同时记入该会话）。
// 参数：
// - sessionID: 会话标识（可为空）
// - d: 从生成到写出的耗时
func (r *Registry) RecordLatency(sessionID string, d time.Duration) {
	r.global.AddLatency(d)
	if sessionID == "" {
		return
	}
	e := r.entry(sessionID)
	e.m.AddLatency(d)
	e.last.Store(time.Now().UnixNano())
}

// Global 返回全局计数快照。
func (r *Registry) Global() MetricsSnapshot { return r.global.Snapshot() }

// Session 返回指定会话的计数快照。
// 返回：
// - MetricsSnapshot: 快照
// - bool: 该会话是否存在计数条目
func (r *Registry) Session(sessionID string) (MetricsSnapshot, bool) {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return MetricsSnapshot{}, false
	}
	return e.m.Snapshot(), true
}

// Sessions 返回所有会话计数快照（用于遥测广播）。
func (r *Registry) Sessions() map[string]MetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]MetricsSnapshot, len(r.sessions))
	for id, e := range r.sessions {
		out[id] = e.m.Snapshot()
	}
	return out
}

// Reset 清零全局与所有会话计数。
func (r *Registry) Reset() {
	r.global.Reset()
	r.mu.RLock()
	entries := make([]*sessionMetrics, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()
	for _, e := range entries {
		e.m.Reset()
	}
}

// EvictIdle 移除超过闲置期未更新的会话条目（约束内存占用）。
// 参数：
// - idle: 闲置阈值
// 返回：
// - []string: 被移除的会话标识
func (r *Registry) EvictIdle(idle time.Duration) []string {
	cutoff := time.Now().Add(-idle).UnixNano()
	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted []string
	for id, e := range r.sessions {
		if e.last.Load() < cutoff {
			delete(r.sessions, id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// entry 返回（必要时创建）某会话的计数条目。
func (r *Registry) entry(sessionID string) *sessionMetrics {
	r.mu.RLock()
	e, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.sessions[sessionID]; ok {
		return e
	}
	e = &sessionMetrics{m: &PerfMetrics{}}
	e.last.Store(time.Now().UnixNano())
	r.sessions[sessionID] = e
	return e
}
