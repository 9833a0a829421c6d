// scope_sim 是示波器模拟器：订阅数据面并以固定帧率消费显示帧，
// 周期性打印各通道点数与吞吐量，用于人工验证端到端链路。
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"daq-x/client"
	"daq-x/wire"
)

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	addr := flag.String("addr", "127.0.0.1:5080", "数据面地址（host:port）")
	channels := flag.Uint("channels", 4, "通道数")
	sampleRate := flag.Uint("sample_rate", 100000, "采样率（Hz）")
	bufferSize := flag.Uint("buffer_size", 100000, "每通道每块点数")
	waveform := flag.String("waveform", "sine", "波形（sine/square/triangle/noise/mixed）")
	maxPoints := flag.Int("max_points", 10000, "每通道最大显示点数")
	chunkPoints := flag.Int("chunk_points", 2000, "入环前每块抽稀目标点数")
	framePoints := flag.Int("frame_points", 500, "每帧每通道渲染点数")
	frameRate := flag.Int("frame_rate", 30, "显示帧率（fps）")
	reportEvery := flag.Int("report_every", 30, "每多少帧打印一次统计")
	flag.Parse()

	req := wire.StreamRequest{
		Channels:   uint32(*channels),
		SampleRate: uint32(*sampleRate),
		BufferSize: uint32(*bufferSize),
		Config:     map[string]string{"waveform": *waveform},
	}

	c, ack, err := client.DialStream(*addr, "scope-sim", req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "订阅失败：%v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Printf("订阅成功 session=%s channels=%d sample_rate=%d buffer_size=%d waveform=%s\n",
		ack.Message, *channels, *sampleRate, *bufferSize, *waveform)

	display := client.NewDisplay(int(*channels), int(*sampleRate), *maxPoints, *chunkPoints)

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			chunk, err := c.ReadChunk()
			if err != nil {
				fmt.Fprintf(os.Stderr, "连接断开：%v\n", err)
				return
			}
			display.Ingest(chunk)
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(*frameRate))
	defer ticker.Stop()
	frames := 0
	for {
		select {
		case <-sig:
			fmt.Println("收到退出信号")
			return
		case <-done:
			return
		case <-ticker.C:
			f := display.Frame(*framePoints)
			frames++
			if frames%*reportEvery != 0 {
				continue
			}
			line := "frame=" + strconv.Itoa(frames) +
				" last_seq=" + strconv.FormatUint(uint64(f.LastSeq), 10) +
				" rate=" + fmt.Sprintf("%.1f MB/s", f.BytesPerSecond/1e6)
			for ch := 0; ch < int(*channels); ch++ {
				line += fmt.Sprintf(" ch%d=%d", ch, len(f.Channels[ch].Values))
			}
			fmt.Println(line)
		}
	}
}
