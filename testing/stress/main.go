// stress 是数据面压测器：并发拉起 N 条订阅，统计聚合吞吐、
// 块间隔分位数与序号断档，用于验证目标字节率与传输稳定性。
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"daq-x/client"
	"daq-x/wire"
)

// workerStats 是单条订阅的统计结果。
type workerStats struct {
	chunks     int64
	bytes      int64
	gaps       int64
	interArrMs []float64
	err        error
}

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	addr := flag.String("addr", "127.0.0.1:5080", "数据面地址（host:port）")
	transport := flag.String("transport", "ws", "数据面传输（ws/srt）")
	workers := flag.Int("workers", 8, "并发订阅数")
	channels := flag.Uint("channels", 4, "通道数")
	sampleRate := flag.Uint("sample_rate", 100000, "采样率（Hz）")
	bufferSize := flag.Uint("buffer_size", 100000, "每通道每块点数")
	duration := flag.Duration("duration", 30*time.Second, "压测时长")
	flag.Parse()

	req := wire.StreamRequest{
		Channels:   uint32(*channels),
		SampleRate: uint32(*sampleRate),
		BufferSize: uint32(*bufferSize),
	}

	var started atomic.Int64
	results := make([]workerStats, *workers)
	var wg sync.WaitGroup
	stopAt := time.Now().Add(*duration)

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = runWorker(*transport, *addr, fmt.Sprintf("stress-%d", idx), req, stopAt, &started)
		}(i)
	}
	wg.Wait()

	var chunks, bytes, gaps int64
	var all []float64
	failed := 0
	for i, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "worker %d 失败：%v\n", i, r.err)
			continue
		}
		chunks += r.chunks
		bytes += r.bytes
		gaps += r.gaps
		all = append(all, r.interArrMs...)
	}

	secs := duration.Seconds()
	fmt.Printf("workers=%d started=%d failed=%d duration=%s\n", *workers, started.Load(), failed, *duration)
	fmt.Printf("chunks=%d gaps=%d throughput=%.1f MB/s\n", chunks, gaps, float64(bytes)/1e6/secs)
	if len(all) > 0 {
		sort.Float64s(all)
		fmt.Printf("inter-arrival p50=%.2fms p95=%.2fms p99=%.2fms max=%.2fms\n",
			percentile(all, 0.50), percentile(all, 0.95), percentile(all, 0.99), all[len(all)-1])
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// chunkReader 抽象 WS/SRT 两种订阅客户端的消费端。
type chunkReader interface {
	ReadChunk() (wire.Chunk, error)
	Close()
}

// dialTransport 按传输类型建立订阅。
func dialTransport(transport, addr, clientID string, req wire.StreamRequest) (chunkReader, error) {
	switch transport {
	case "srt":
		c, _, err := client.DialSRT(addr, clientID, req)
		return c, err
	default:
		c, _, err := client.DialStream(addr, clientID, req)
		return c, err
	}
}

// runWorker 维持一条订阅直到截止时间并收集统计。
func runWorker(transport, addr, clientID string, req wire.StreamRequest, stopAt time.Time, started *atomic.Int64) workerStats {
	var st workerStats
	c, err := dialTransport(transport, addr, clientID, req)
	if err != nil {
		st.err = err
		return st
	}
	defer c.Close()
	started.Add(1)

	var lastSeq uint32
	var lastAt time.Time
	haveChunk := false
	for time.Now().Before(stopAt) {
		chunk, err := c.ReadChunk()
		if err != nil {
			st.err = err
			return st
		}
		now := time.Now()
		if haveChunk {
			if chunk.Seq != lastSeq+1 {
				st.gaps++
			}
			st.interArrMs = append(st.interArrMs, now.Sub(lastAt).Seconds()*1000)
		}
		lastSeq = chunk.Seq
		lastAt = now
		haveChunk = true
		st.chunks++
		st.bytes += int64(len(chunk.Payload))
	}
	return st
}

// percentile 返回已排序序列的 p 分位数。
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
