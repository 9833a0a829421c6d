package control

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// hostSampler 为遥测广播采样宿主资源占用（整机 CPU 利用率 + 进程内存）。
// CPU 利用率由相邻两次 /proc/stat 时间片差值计算，首次采样返回 0。
type hostSampler struct {
	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64
}

// newHostSampler 创建宿主资源采样器。
func newHostSampler() *hostSampler { return &hostSampler{} }

// CPUPercent 返回两次采样间的整机 CPU 利用率（0~100）。
// 采样失败或时间片未推进时返回 0。
func (s *hostSampler) CPUPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy, total, err := cpuTicks()
	if err != nil {
		return 0
	}
	prevBusy, prevTotal := s.prevBusy, s.prevTotal
	s.prevBusy, s.prevTotal = busy, total
	if prevTotal == 0 || total <= prevTotal || busy < prevBusy {
		return 0
	}
	pct := float64(busy-prevBusy) / float64(total-prevTotal) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// MemMB 返回进程当前堆内存占用（MB）。
func (s *hostSampler) MemMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1 << 20)
}

// cpuTicks 解析 /proc/stat 聚合行，返回 busy 与 total 时间片。
// idle 口径包含 idle 与 iowait 两列。
func cpuTicks() (busy, total uint64, err error) {
	raw, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	fields := strings.Fields(line)
	if len(fields) < 6 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat: %q", line)
	}
	var idle uint64
	for i, f := range fields[1:] {
		v, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			return 0, 0, perr
		}
		total += v
		if i == 3 || i == 4 {
			idle += v
		}
	}
	return total - idle, total, nil
}
