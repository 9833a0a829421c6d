package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load 从 YAML 文件读取并解析配置，并做基础校验与默认值补齐。
// 使用说明：
// - 文件不存在时返回默认配置，便于零配置启动
// 参数：
// - path: 配置文件路径
// 返回：
// - Config: 合并默认值后的配置
// - error: 读取/解析/校验失败原因
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal yaml: %w", err)
	}
	fillLoggingDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fillLoggingDefaults 回填被显式置空的日志字段（校验前执行）。
func fillLoggingDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "file"
	}
}

// Validate 校验配置字段合法性（端口、速率、队列与日志输出等）。
// 参数：
// - cfg: 待校验配置
// 返回：
// - error: 校验失败原因
func Validate(cfg Config) error {
	for name, p := range map[string]int{
		"server.ws_port":      cfg.Server.WSPort,
		"server.srt_port":     cfg.Server.SRTPort,
		"server.control_port": cfg.Server.ControlPort,
	} {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s: %d", name, p)
		}
	}
	if cfg.Server.MaxSessions <= 0 {
		return fmt.Errorf("invalid server.max_sessions: %d", cfg.Server.MaxSessions)
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid server.shutdown_timeout: %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Stream.TargetRate.Int64() <= 0 {
		return fmt.Errorf("invalid stream.target_rate: %d", cfg.Stream.TargetRate.Int64())
	}
	if cfg.Stream.QueueDepth <= 0 {
		return fmt.Errorf("invalid stream.queue_depth: %d", cfg.Stream.QueueDepth)
	}
	if cfg.Stream.BatchMax <= 0 {
		return fmt.Errorf("invalid stream.batch_max: %d", cfg.Stream.BatchMax)
	}
	if cfg.Stream.DrainWait <= 0 || cfg.Stream.GatePoll <= 0 {
		return fmt.Errorf("invalid stream.drain_wait/gate_poll: %s/%s", cfg.Stream.DrainWait, cfg.Stream.GatePoll)
	}
	if cfg.Stream.MetricsEvictIdle <= 0 {
		return fmt.Errorf("invalid stream.metrics_evict_idle: %s", cfg.Stream.MetricsEvictIdle)
	}
	if cfg.Display.MaxPoints <= 0 || cfg.Display.ChunkPoints <= 0 {
		return fmt.Errorf("invalid display.max_points/chunk_points: %d/%d", cfg.Display.MaxPoints, cfg.Display.ChunkPoints)
	}
	if cfg.Display.FrameRate <= 0 {
		return fmt.Errorf("invalid display.frame_rate: %d", cfg.Display.FrameRate)
	}
	if cfg.Logging.Output == "file" && cfg.Logging.FilePath == "" {
		return fmt.Errorf("logging.file_path is required when output=file")
	}
	return nil
}
