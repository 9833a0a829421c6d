package client

// Step 计算均匀抽稀步长 step = max(1, sourceLen/target)。
// 这是显式的简单性/性能取舍：统一步长抽稀，不做保峰抽取。
// 参数：
// - sourceLen: 源点数
// - target: 目标点数
func Step(sourceLen, target int) int {
	if target <= 0 {
		return 1
	}
	step := sourceLen / target
	if step < 1 {
		return 1
	}
	return step
}

// Thin 按统一步长抽稀平行的时间/值序列。
// 结果点数不超过 target+1。
// 参数：
// - times/values: 平行源序列
// - target: 目标点数
// 返回：
// - 抽稀后的时间/值序列
func Thin(times, values []float64, target int) ([]float64, []float64) {
	n := len(values)
	step := Step(n, target)
	if step == 1 && n <= target {
		return times, values
	}
	outT := make([]float64, 0, n/step+1)
	outV := make([]float64, 0, n/step+1)
	for i := 0; i < n; i += step {
		outT = append(outT, times[i])
		outV = append(outV, values[i])
	}
	return outT, outV
}
