package client

// Ring 是单通道的定容环形存储（值/时间平行数组）。
// 行为：
// - 写满后覆盖最旧槽位；创建后永不重新分配
// - 单写者 + 单读者模型，不做内部加锁（由上层 Display 协调）
type Ring struct {
	values []float64
	times  []float64
	w      int
	full   bool
}

// NewRing 创建定容环形存储。
// 参数：
// - capacity: 最大保留点数（小于 1 时按 1 处理）
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		values: make([]float64, capacity),
		times:  make([]float64, capacity),
	}
}

// Push 写入一个点（O(1)，写满后回绕覆盖最旧槽位）。
// 参数：
// - value: 采样值
// - t: 采样时刻（秒）
func (r *Ring) Push(value, t float64) {
	r.values[r.w] = value
	r.times[r.w] = t
	r.w++
	if r.w == len(r.values) {
		r.w = 0
		r.full = true
	}
}

// Len 返回当前有效点数。
func (r *Ring) Len() int {
	if r.full {
		return len(r.values)
	}
	return r.w
}

// Cap 返回容量。
func (r *Ring) Cap() int { return len(r.values) }

// Full 返回写指针是否已至少回绕一次。
func (r *Ring) Full() bool { return r.full }

// Clear 重置写指针与回绕标记（不重新分配存储）。
func (r *Ring) Clear() {
	r.w = 0
	r.full = false
}

// Snapshot 按时间顺序返回当前内容的拷贝。
// 规则：
// - 已回绕时从写指针处开始重建顺序
// - 未回绕时原样返回已写前缀，绝不包含未写入的陈旧槽位
// 返回：
// - times: 时间序列
// - values: 值序列
func (r *Ring) Snapshot() (times, values []float64) {
	n := r.Len()
	times = make([]float64, n)
	values = make([]float64, n)
	if n == 0 {
		return times, values
	}
	if !r.full {
		copy(times, r.times[:n])
		copy(values, r.values[:n])
		return times, values
	}
	head := len(r.values) - r.w
	copy(times, r.times[r.w:])
	copy(times[head:], r.times[:r.w])
	copy(values, r.values[r.w:])
	copy(values[head:], r.values[:r.w])
	return times, values
}
