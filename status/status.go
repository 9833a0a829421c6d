package status

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ServerStatus string

const (
	ServerStarting ServerStatus = "Starting"
	ServerRunning  ServerStatus = "Running"
	ServerStopping ServerStatus = "Stopping"
	ServerStopped  ServerStatus = "Stopped"
)

// String 返回服务状态文本。
func (s ServerStatus) String() string { return string(s) }

// ParseServerStatus 将文本解析为 ServerStatus。
// 参数：
// - v: 状态文本（Starting/Running/Stopping/Stopped）
// 返回：
// - ServerStatus: 解析结果
// - error: 未知状态时返回错误
func ParseServerStatus(v string) (ServerStatus, error) {
	switch strings.TrimSpace(v) {
	case string(ServerStarting):
		return ServerStarting, nil
	case string(ServerRunning):
		return ServerRunning, nil
	case string(ServerStopping):
		return ServerStopping, nil
	case string(ServerStopped):
		return ServerStopped, nil
	default:
		return "", fmt.Errorf("unknown ServerStatus: %q", v)
	}
}

// MarshalJSON 将 ServerStatus 编码为 JSON 字符串。
func (s ServerStatus) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 ServerStatus。
func (s *ServerStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseServerStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type SessionStatus string

const (
	SessionCreated   SessionStatus = "Created"
	SessionStreaming SessionStatus = "Streaming"
	SessionPaused    SessionStatus = "Paused"
	SessionStopped   SessionStatus = "Stopped"
)

// String 返回会话状态文本。
func (s SessionStatus) String() string { return string(s) }

// ParseSessionStatus 将文本解析为 SessionStatus。
// 参数：
// - v: 状态文本（Created/Streaming/Paused/Stopped）
// 返回：
// - SessionStatus: 解析结果
// - error: 未知状态时返回错误
func ParseSessionStatus(v string) (SessionStatus, error) {
	switch strings.TrimSpace(v) {
	case string(SessionCreated):
		return SessionCreated, nil
	case string(SessionStreaming):
		return SessionStreaming, nil
	case string(SessionPaused):
		return SessionPaused, nil
	case string(SessionStopped):
		return SessionStopped, nil
	default:
		return "", fmt.Errorf("unknown SessionStatus: %q", v)
	}
}

// MarshalJSON 将 SessionStatus 编码为 JSON 字符串。
func (s SessionStatus) MarshalJSON() ([]byte, error) { return json.Marshal(string(s)) }

// UnmarshalJSON 从 JSON 字符串解码为 SessionStatus。
func (s *SessionStatus) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseSessionStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

type Waveform string

const (
	WaveformSine     Waveform = "Sine"
	WaveformSquare   Waveform = "Square"
	WaveformTriangle Waveform = "Triangle"
	WaveformNoise    Waveform = "Noise"
	WaveformMixed    Waveform = "Mixed"
)

// String 返回波形类型文本。
func (w Waveform) String() string { return string(w) }

// ParseWaveform 将文本解析为 Waveform（大小写不敏感）。
// 参数：
// - v: 波形文本（Sine/Square/Triangle/Noise/Mixed）
// 返回：
// - Waveform: 解析结果
// - error: 未知波形时返回错误
func ParseWaveform(v string) (Waveform, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "sine":
		return WaveformSine, nil
	case "square":
		return WaveformSquare, nil
	case "triangle":
		return WaveformTriangle, nil
	case "noise":
		return WaveformNoise, nil
	case "mixed":
		return WaveformMixed, nil
	default:
		return "", fmt.Errorf("unknown Waveform: %q", v)
	}
}

// MarshalJSON 将 Waveform 编码为 JSON 字符串。
func (w Waveform) MarshalJSON() ([]byte, error) { return json.Marshal(string(w)) }

// UnmarshalJSON 从 JSON 字符串解码为 Waveform。
func (w *Waveform) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseWaveform(v)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
