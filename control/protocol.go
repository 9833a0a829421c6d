package control

import (
	"daq-x/stream"
	"daq-x/wire"
)

type MessageType string

const (
	MsgRegister    MessageType = "register"
	MsgRegisterAck MessageType = "register_ack"
	MsgCommand     MessageType = "command"
	MsgCommandAck  MessageType = "command_ack"
	MsgTelemetry   MessageType = "telemetry"
	MsgError       MessageType = "error"
)

type Envelope struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type RegisterPayload struct {
	ObserverID string `json:"observer_id"`
}

type RegisterAckPayload struct {
	Status string `json:"status"`
	Code   int    `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

type CommandPayload struct {
	RequestID string              `json:"request_id,omitempty"`
	Command   wire.ControlCommand `json:"command"`
}

type CommandAckPayload struct {
	RequestID string   `json:"request_id,omitempty"`
	Ack       wire.Ack `json:"ack"`
}

type ErrorPayload struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

type TelemetryPayload struct {
	GateEnabled bool                              `json:"gate_enabled"`
	Global      stream.MetricsSnapshot            `json:"global"`
	Sessions    []stream.SessionInfo              `json:"sessions"`
	PerSession  map[string]stream.MetricsSnapshot `json:"per_session"`
	CPUPercent  float64                           `json:"cpu_percent"`
	MemMB       float64                           `json:"mem_mb"`
	NowUnixMs   int64                             `json:"now_unix_ms"`
}

type HealthStatusPayload struct {
	Status          string                 `json:"status"`
	StartedAtUnixMs int64                  `json:"started_at_unix_ms"`
	NowUnixMs       int64                  `json:"now_unix_ms"`
	GateEnabled     bool                   `json:"gate_enabled"`
	Sessions        int                    `json:"sessions"`
	Observers       int                    `json:"observers"`
	Global          stream.MetricsSnapshot `json:"global"`
}
