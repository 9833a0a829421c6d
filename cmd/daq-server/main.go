package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"daq-x/config"
	"daq-x/control"
	daqlog "daq-x/log"
	"daq-x/stream"
)

const Version = "1.0"

func main() {
	flag.CommandLine.SetOutput(os.Stdout)
	configPathFlag := flag.String("config_path", "configs/config.yaml", "配置文件路径（YAML）。如果是目录，则默认读取该目录下的 config.yaml")
	versionFlag := flag.Bool("version", false, "输出版本并退出")
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "daq-server %s\n\n", Version)
		_, _ = fmt.Fprintln(os.Stdout, "用法：")
		_, _ = fmt.Fprintln(os.Stdout, "  daq-server [--config_path <path>] [--version] [--help]")
		_, _ = fmt.Fprintln(os.Stdout, "\n参数：")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *versionFlag {
		_, _ = fmt.Fprintln(os.Stdout, Version)
		return
	}

	configPath := resolveConfigPath(*configPathFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}
	if err := daqlog.Init(cfg.Logging); err != nil {
		panic(err)
	}

	mgr := stream.NewManager(cfg)
	mgr.Start()

	ctx, cancel := signalContext()
	defer cancel()

	ws := stream.NewWSServer(cfg, mgr)
	go func() {
		if err := ws.Start(ctx); err != nil {
			daqlog.With(map[string]any{"status": "ws_server_error"}).WithError(err).Error("WebSocket 数据面启动失败")
			cancel()
		}
	}()

	srtSrv := stream.NewSRTServer(cfg, mgr)
	go func() {
		if err := srtSrv.Start(ctx); err != nil {
			daqlog.With(map[string]any{"status": "srt_server_error"}).WithError(err).Error("SRT 数据面启动失败")
			cancel()
		}
	}()

	hub := control.NewHub(cfg, mgr)
	go func() {
		if err := hub.Start(ctx); err != nil {
			daqlog.With(map[string]any{"status": "control_error"}).WithError(err).Error("控制平面启动失败")
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownDone := make(chan struct{})
	go func() {
		srtSrv.Stop()
		mgr.Stop()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(cfg.Server.ShutdownTimeout):
		daqlog.With(map[string]any{"status": "shutdown_timeout"}).Warn("关停超时，强制退出")
	}
}

func resolveConfigPath(p string) string {
	if p == "" {
		return "configs/config.yaml"
	}
	st, err := os.Stat(p)
	if err != nil {
		return p
	}
	if st.IsDir() {
		return filepath.Join(p, "config.yaml")
	}
	return p
}

// signalContext 创建一个可被 SIGINT/SIGTERM 取消的 Context。
// 返回：
// - ctx: 监听信号并在收到信号时取消的上下文
// - cancel: 主动取消函数
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
