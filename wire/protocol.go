package wire

type Command string

const (
	CmdStart  Command = "START"
	CmdStop   Command = "STOP"
	CmdPause  Command = "PAUSE"
	CmdResume Command = "RESUME"
	CmdReset  Command = "RESET"
)

type StreamRequest struct {
	Channels   uint32            `cbor:"channels" json:"channels"`
	SampleRate uint32            `cbor:"sample_rate" json:"sample_rate"`
	BufferSize uint32            `cbor:"buffer_size" json:"buffer_size"`
	Config     map[string]string `cbor:"config,omitempty" json:"config,omitempty"`
}

type Chunk struct {
	Seq     uint32            `cbor:"seq" json:"seq"`
	TickNs  uint64            `cbor:"tick_ns" json:"tick_ns"`
	Payload []byte            `cbor:"payload" json:"payload"`
	Tags    map[string]string `cbor:"tags,omitempty" json:"tags,omitempty"`
}

type ControlCommand struct {
	Command Command           `cbor:"command" json:"command"`
	Params  map[string]string `cbor:"params,omitempty" json:"params,omitempty"`
}

type Ack struct {
	Success   bool   `cbor:"success" json:"success"`
	Message   string `cbor:"message,omitempty" json:"message,omitempty"`
	Timestamp uint64 `cbor:"timestamp" json:"timestamp"`
}
