package stream

import (
	"time"

	daqerrors "daq-x/errors"
	daqlog "daq-x/log"
	"daq-x/wire"
)

// ChunkWriter 是传输循环的写出口（WebSocket/SRT 各自实现）。
type ChunkWriter interface {
	WriteChunk(c wire.Chunk) error
}

// RunTransport 排空会话队列并把块写向客户端。
// 行为：
// - 每个调度配额最多写 BatchMax 块，摊薄单次写开销并限制最坏延迟
// - 队列为空时等待 DrainWait 的固定小配额，不忙等
// - 最终 seq 与 tick_ns 在写出时分配，保证序号与传输顺序一致
// - 取消后继续写视为会话级致命错误（CodeClosed），不会被静默丢弃
// - 单批耗时超过 SlowBatchWarn 时告警（诊断信号，节拍目标未达成）
// 参数：
// - w: 块写出口
// 返回：
// - error: 传输失败或取消后写入的原因；正常取消返回 nil
func (s *Session) RunTransport(w ChunkWriter) error {
	defer s.Stop()

	tags := map[string]string{
		"session_id": s.id,
		"waveform":   s.Spec().Kind.String(),
	}
	batch := make([]pending, 0, s.scfg.BatchMax)

	for {
		if s.ctx.Err() != nil {
			return nil
		}

		batch = batch[:0]
	collect:
		for len(batch) < s.scfg.BatchMax {
			select {
			case p := <-s.queue:
				batch = append(batch, p)
			default:
				break collect
			}
		}
		if len(batch) == 0 {
			time.Sleep(s.scfg.DrainWait)
			continue
		}

		start := time.Now()
		for _, p := range batch {
			if s.ctx.Err() != nil {
				return daqerrors.New(daqerrors.CodeClosed, "chunk write after session cancel")
			}
			seq := s.seq.Add(1) - 1
			err := w.WriteChunk(wire.Chunk{
				Seq:     seq,
				TickNs:  s.tickNs(seq),
				Payload: p.payload,
				Tags:    tags,
			})
			if err != nil {
				return daqerrors.Wrap(daqerrors.CodeTransport, "chunk write failed", err)
			}
			s.metrics.RecordDataSent(s.id, len(p.payload))
			s.metrics.RecordLatency(s.id, time.Since(p.genAt))
			putBuf(p.payload)
		}
		if el := time.Since(start); el > s.scfg.SlowBatchWarn {
			daqlog.With(map[string]any{
				"sessionID":  s.id,
				"status":     "slow_batch",
				"batch":      len(batch),
				"elapsed_ms": el.Milliseconds(),
			}).Warn("批量写出超过阈值，节拍目标未达成")
		}
	}
}
