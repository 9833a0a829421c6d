package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"daq-x/config"
	daqerrors "daq-x/errors"
	daqlog "daq-x/log"
	"daq-x/status"
	"daq-x/wave"
	"daq-x/wire"
)

// pending 是生成完毕、等待传输循环写出的一块载荷。
type pending struct {
	payload []byte
	genAt   time.Time
}

// Session 是一个客户端从 Subscribe 到拆除的完整订阅生命周期。
// 所有权：Session 由 Manager 独占持有；节拍循环与传输循环只在取消句柄
// 未触发期间借用它。请求参数在会话存续期内不可变，改配置需要新会话。
type Session struct {
	id       string
	clientID string
	req      wire.StreamRequest

	gate    *Gate
	metrics *Registry
	scfg    config.StreamConfig

	queue chan pending

	mu      sync.RWMutex
	spec    wave.Spec
	state   status.SessionStatus
	created time.Time

	seq     atomic.Uint32
	chunkNs int64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}
}

// newSession 创建一条会话（由 Manager 在校验通过后调用）。
func newSession(id, clientID string, req wire.StreamRequest, spec wave.Spec, gate *Gate, metrics *Registry, scfg config.StreamConfig) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       id,
		clientID: clientID,
		req:      req,
		gate:     gate,
		metrics:  metrics,
		scfg:     scfg,
		queue:    make(chan pending, scfg.QueueDepth),
		spec:     spec,
		state:    status.SessionCreated,
		created:  time.Now(),
		chunkNs:  int64(spec.ChunkDuration() * float64(time.Second)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// ClientID 返回客户端标识。
func (s *Session) ClientID() string { return s.clientID }

// Request 返回创建会话时的订阅请求。
func (s *Session) Request() wire.StreamRequest { return s.req }

// State 返回当前会话状态。
func (s *Session) State() status.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Seq 返回已写出的块数（即下一个序号）。
func (s *Session) Seq() uint32 { return s.seq.Load() }

// Done 返回会话结束信号通道。
func (s *Session) Done() <-chan struct{} { return s.done }

// Spec 返回当前波形规格。
func (s *Session) Spec() wave.Spec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

// Reconfigure 替换波形规格（节拍循环在下一周期重算间隔）。
// 使用说明：
// - 对外的订阅请求在会话存续期内不可变；此入口只服务于暂停状态下的
//   内部调参与测试，流式传输中调用不会崩溃但会造成块长变化
// 参数：
// - spec: 新波形规格
func (s *Session) Reconfigure(spec wave.Spec) {
	s.mu.Lock()
	s.spec = spec
	s.chunkNs = int64(spec.ChunkDuration() * float64(time.Second))
	s.mu.Unlock()
}

// Start 启动会话的节拍生成循环。
// 参数：
// - onStop: 会话结束时的回调（可为 nil）
func (s *Session) Start(onStop func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				daqlog.With(map[string]any{
					"sessionID": s.id,
					"status":    "generator_panic",
				}).Error(fmt.Sprintf("波形生成异常，终止会话：%v", r))
			}
			s.Stop()
			if onStop != nil {
				onStop()
			}
		}()
		s.runPacer()
	}()
}

// runPacer 按目标字节率控制生成节拍：
// - 每周期生成一块并入队（队列满则阻塞，形成背压）
// - 以绝对期限推进节拍（next += interval），睡眠至期限为止；
//   相对睡眠会把每周期的调度误差累积成系统性吞吐偏低
// - 周期超期时立即进入下一周期并把期限重置为当前时刻，不补偿欠账
// - 全局开关关闭时以固定短间隔轮询，不生成数据也不拆除会话
func (s *Session) runPacer() {
	var genSeq uint32
	next := time.Now()
	for {
		select {
		case <-s.ctx.Done():
			s.setState(status.SessionStopped)
			return
		default:
		}

		if !s.gate.Enabled() {
			s.setState(status.SessionPaused)
			time.Sleep(s.scfg.GatePoll)
			next = time.Now()
			continue
		}
		s.setState(status.SessionStreaming)

		spec := s.Spec()
		interval := targetInterval(spec.BytesPerChunk(), s.scfg.TargetRate.Int64())

		payload := wave.Synthesize(spec, genSeq, getBuf())

		select {
		case s.queue <- pending{payload: payload, genAt: time.Now()}:
			genSeq++
		case <-s.ctx.Done():
			s.setState(status.SessionStopped)
			return
		}

		next = next.Add(interval)
		if now := time.Now(); now.Before(next) {
			time.Sleep(next.Sub(now))
		} else {
			next = now
		}
	}
}

// Stop 终止会话并触发取消句柄（幂等）。
func (s *Session) Stop() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.setState(status.SessionStopped)
		close(s.done)
	})
}

// setState 更新会话状态（终态 Stopped 不再回退）。
func (s *Session) setState(st status.SessionStatus) {
	s.mu.Lock()
	if s.state != status.SessionStopped || st == status.SessionStopped {
		s.state = st
	}
	s.mu.Unlock()
}

// tickNs 由会话的逻辑采样时钟推导块时间戳（严格单调，不回退）。
func (s *Session) tickNs(seq uint32) uint64 {
	s.mu.RLock()
	chunkNs := s.chunkNs
	epoch := s.created.UnixNano()
	s.mu.RUnlock()
	return uint64(epoch + int64(seq)*chunkNs)
}

// targetInterval 计算目标生成间隔 = 单块字节数 / 目标字节率。
// 参数：
// - bytesPerChunk: 单块字节数
// - targetBytesPerSecond: 目标聚合字节率
func targetInterval(bytesPerChunk int, targetBytesPerSecond int64) time.Duration {
	if targetBytesPerSecond <= 0 || bytesPerChunk <= 0 {
		return 0
	}
	return time.Duration(float64(bytesPerChunk) / float64(targetBytesPerSecond) * float64(time.Second))
}

// buildSpec 将订阅请求与缺省流配置合成波形规格。
// 规则：
// - channels/sample_rate/buffer_size 必须大于 0
// - config 为封闭选项集（waveform/amplitude/base_frequency/noise_level），
//   未知键直接拒绝而不是静默忽略
// 参数：
// - scfg: 流配置（提供各选项缺省值）
// - req: 订阅请求
// 返回：
// - wave.Spec: 合成后的波形规格
// - error: 校验失败原因（CodeInvalidConfig）
func buildSpec(scfg config.StreamConfig, req wire.StreamRequest) (wave.Spec, error) {
	if req.Channels == 0 || req.SampleRate == 0 || req.BufferSize == 0 {
		return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig,
			fmt.Sprintf("channels/sample_rate/buffer_size must be positive: %d/%d/%d", req.Channels, req.SampleRate, req.BufferSize))
	}
	kind, err := status.ParseWaveform(scfg.DefaultWaveform)
	if err != nil {
		kind = status.WaveformSine
	}
	spec := wave.Spec{
		Channels:          int(req.Channels),
		SamplesPerChannel: int(req.BufferSize),
		SampleRate:        int(req.SampleRate),
		Kind:              kind,
		Amplitude:         scfg.DefaultAmplitude,
		BaseFrequency:     scfg.DefaultFrequency,
		NoiseLevel:        scfg.DefaultNoise,
	}
	if spec.BytesPerChunk() > wire.MaxFrameBytes {
		return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig,
			fmt.Sprintf("chunk too large: %d bytes", spec.BytesPerChunk()))
	}

	for k, v := range req.Config {
		switch k {
		case "waveform":
			kind, err := status.ParseWaveform(v)
			if err != nil {
				return wave.Spec{}, daqerrors.Wrap(daqerrors.CodeInvalidConfig, "invalid waveform", err)
			}
			spec.Kind = kind
		case "amplitude":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("invalid amplitude: %q", v))
			}
			spec.Amplitude = f
		case "base_frequency":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("invalid base_frequency: %q", v))
			}
			spec.BaseFrequency = f
		case "noise_level":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 || f > 1 {
				return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("invalid noise_level: %q", v))
			}
			spec.NoiseLevel = f
		default:
			return wave.Spec{}, daqerrors.New(daqerrors.CodeInvalidConfig, fmt.Sprintf("unknown config key: %q", k))
		}
	}
	return spec, nil
}
