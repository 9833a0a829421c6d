package control

import (
	"testing"
	"time"
)

// TestHostSamplerCPUPercent 验证首次采样返回 0，其后返回 0~100 区间值。
func TestHostSamplerCPUPercent(t *testing.T) {
	s := newHostSampler()
	if got := s.CPUPercent(); got != 0 {
		t.Fatalf("首次采样应为 0，实际 %v", got)
	}
	time.Sleep(50 * time.Millisecond)
	got := s.CPUPercent()
	if got < 0 || got > 100 {
		t.Fatalf("利用率应在 0~100，实际 %v", got)
	}
}

// TestHostSamplerMemMB 验证进程内存采样为正值。
func TestHostSamplerMemMB(t *testing.T) {
	if got := newHostSampler().MemMB(); got <= 0 {
		t.Fatalf("内存占用应为正值，实际 %v", got)
	}
}
