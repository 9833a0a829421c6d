package config

import "time"

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Stream  StreamConfig  `yaml:"stream"`
	Display DisplayConfig `yaml:"display"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	WSPort          int           `yaml:"ws_port"`
	SRTPort         int           `yaml:"srt_port"`
	ControlPort     int           `yaml:"control_port"`
	MaxSessions     int           `yaml:"max_sessions"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StreamConfig struct {
	TargetRate       ByteSize      `yaml:"target_rate"`
	QueueDepth       int           `yaml:"queue_depth"`
	BatchMax         int           `yaml:"batch_max"`
	DrainWait        time.Duration `yaml:"drain_wait"`
	GatePoll         time.Duration `yaml:"gate_poll"`
	SlowBatchWarn    time.Duration `yaml:"slow_batch_warn"`
	ResetDelay       time.Duration `yaml:"reset_delay"`
	MetricsEvictIdle time.Duration `yaml:"metrics_evict_idle"`

	DefaultWaveform  string  `yaml:"default_waveform"`
	DefaultAmplitude float64 `yaml:"default_amplitude"`
	DefaultFrequency float64 `yaml:"default_frequency"`
	DefaultNoise     float64 `yaml:"default_noise"`
}

type DisplayConfig struct {
	MaxPoints   int `yaml:"max_points"`
	ChunkPoints int `yaml:"chunk_points"`
	FrameRate   int `yaml:"frame_rate"`
}

type LoggingConfig struct {
	Level    string   `yaml:"level"`
	Format   string   `yaml:"format"`
	Output   string   `yaml:"output"`
	FilePath string   `yaml:"file_path"`
	MaxSize  ByteSize `yaml:"max_size"`
	MaxAge   int      `yaml:"max_age"`
	Compress bool     `yaml:"compress"`
}
