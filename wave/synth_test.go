package wave

import (
	"bytes"
	"math"
	"testing"

	"daq-x/status"
)

// TestSynthesizeLength 验证任意合法规格下载荷长度恒为 channels×samples×2。
func TestSynthesizeLength(t *testing.T) {
	for _, spec := range []Spec{
		{Channels: 1, SamplesPerChannel: 4, SampleRate: 1000, Kind: status.WaveformSine, Amplitude: 1, BaseFrequency: 250},
		{Channels: 4, SamplesPerChannel: 100, SampleRate: 10000, Kind: status.WaveformSquare, Amplitude: 0.5, BaseFrequency: 50},
		{Channels: 8, SamplesPerChannel: 1024, SampleRate: 48000, Kind: status.WaveformMixed, Amplitude: 1, BaseFrequency: 440},
		{Channels: 2, SamplesPerChannel: 7, SampleRate: 100, Kind: status.WaveformNoise, Amplitude: 1, BaseFrequency: 1},
	} {
		got := Synthesize(spec, 0, nil)
		if len(got) != spec.BytesPerChunk() {
			t.Fatalf("len=%d want=%d spec=%+v", len(got), spec.BytesPerChunk(), spec)
		}
	}
}

// TestSynthesizeSineScenario 验证 250Hz 正弦在 1kHz 采样下前四点约为 [0,1,0,-1]×32767。
func TestSynthesizeSineScenario(t *testing.T) {
	spec := Spec{Channels: 1, SamplesPerChannel: 4, SampleRate: 1000, Kind: status.WaveformSine, Amplitude: 1.0, BaseFrequency: 250}
	payload := Synthesize(spec, 0, nil)
	samples := DecodeInterleaved(payload, 1)[0]
	want := []int16{0, 32767, 0, -32767}
	for i, w := range want {
		diff := int(samples[i]) - int(w)
		if diff < -2 || diff > 2 {
			t.Fatalf("sample[%d]=%d want≈%d", i, samples[i], w)
		}
	}
}

// TestSynthesizePhaseContinuity 验证分块生成与整块生成逐字节一致（跨块相位连续）。
func TestSynthesizePhaseContinuity(t *testing.T) {
	whole := Spec{Channels: 2, SamplesPerChannel: 256, SampleRate: 8000, Kind: status.WaveformSine, Amplitude: 0.8, BaseFrequency: 100}
	half := whole
	half.SamplesPerChannel = 128

	full := Synthesize(whole, 0, nil)
	first := Synthesize(half, 0, nil)
	second := Synthesize(half, 1, nil)

	if !bytes.Equal(full[:len(first)], first) {
		t.Fatalf("first half mismatch")
	}
	if !bytes.Equal(full[len(first):], second) {
		t.Fatalf("second half mismatch")
	}
}

// TestSynthesizeClamp 验证过幅输入被裁剪到 int16 范围。
func TestSynthesizeClamp(t *testing.T) {
	spec := Spec{Channels: 1, SamplesPerChannel: 1000, SampleRate: 1000, Kind: status.WaveformSine, Amplitude: 3.0, BaseFrequency: 17}
	samples := DecodeInterleaved(Synthesize(spec, 0, nil), 1)[0]
	peak := int16(0)
	for _, s := range samples {
		if s > peak {
			peak = s
		}
		if s < -32768 || s > 32767 {
			t.Fatalf("out of range: %d", s)
		}
	}
	if peak != 32767 {
		t.Fatalf("expected clamped peak, got %d", peak)
	}
}

// TestSynthesizeChannelDetune 验证各通道按 1+0.1×ch 错频。
func TestSynthesizeChannelDetune(t *testing.T) {
	spec := Spec{Channels: 2, SamplesPerChannel: 100, SampleRate: 10000, Kind: status.WaveformSine, Amplitude: 1, BaseFrequency: 100}
	chans := DecodeInterleaved(Synthesize(spec, 0, nil), 2)

	// 第二通道应等于 110Hz 的单通道输出
	ref := Spec{Channels: 1, SamplesPerChannel: 100, SampleRate: 10000, Kind: status.WaveformSine, Amplitude: 1, BaseFrequency: 110}
	refSamples := DecodeInterleaved(Synthesize(ref, 0, nil), 1)[0]
	for i := range refSamples {
		if chans[1][i] != refSamples[i] {
			t.Fatalf("channel 1 sample %d: got=%d want=%d", i, chans[1][i], refSamples[i])
		}
	}
}

// TestSynthesizeMixedHarmonics 验证混合波形为 0.6/0.3/0.1 加权谐波和。
func TestSynthesizeMixedHarmonics(t *testing.T) {
	spec := Spec{Channels: 1, SamplesPerChannel: 64, SampleRate: 6400, Kind: status.WaveformMixed, Amplitude: 1, BaseFrequency: 100}
	samples := DecodeInterleaved(Synthesize(spec, 0, nil), 1)[0]
	for i, s := range samples {
		theta := 2 * math.Pi * 100 * float64(i) / 6400
		want := 0.6*math.Sin(theta) + 0.3*math.Sin(2*theta) + 0.1*math.Sin(3*theta)
		q := math.Round(want * 32767)
		if math.Abs(float64(s)-q) > 1 {
			t.Fatalf("sample[%d]=%d want≈%.0f", i, s, q)
		}
	}
}

// TestSynthesizeNoiseBounds 验证噪声叠加后仍在裁剪范围内且确有扰动。
func TestSynthesizeNoiseBounds(t *testing.T) {
	spec := Spec{Channels: 1, SamplesPerChannel: 2048, SampleRate: 10000, Kind: status.WaveformSine, Amplitude: 0.5, BaseFrequency: 25, NoiseLevel: 0.2}
	a := DecodeInterleaved(Synthesize(spec, 0, nil), 1)[0]
	b := DecodeInterleaved(Synthesize(spec, 0, nil), 1)[0]
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("expected noise to perturb output")
	}
}

// TestSynthesizeReusesBuffer 验证传入足够容量的缓冲时不重新分配。
func TestSynthesizeReusesBuffer(t *testing.T) {
	spec := Spec{Channels: 2, SamplesPerChannel: 16, SampleRate: 1000, Kind: status.WaveformTriangle, Amplitude: 1, BaseFrequency: 10}
	buf := make([]byte, 0, spec.BytesPerChunk())
	out := Synthesize(spec, 0, buf)
	if &out[0] != &buf[:1][0] {
		t.Fatalf("expected buffer reuse")
	}
}
