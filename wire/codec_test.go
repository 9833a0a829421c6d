package wire

import (
	"bufio"
	"bytes"
	"testing"
)

// TestChunkCodecDeterministic 验证 Chunk 的 CBOR 编码确定且可逆。
func TestChunkCodecDeterministic(t *testing.T) {
	c := Chunk{
		Seq:     7,
		TickNs:  123456789,
		Payload: []byte{0x01, 0x02, 0x03, 0x04},
		Tags:    map[string]string{"session_id": "abc", "waveform": "Sine"},
	}
	b1, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Fatalf("encoding not deterministic")
	}
	var out Chunk
	if err := Unmarshal(b1, &out); err != nil {
		t.Fatal(err)
	}
	if out.Seq != c.Seq || out.TickNs != c.TickNs || !bytes.Equal(out.Payload, c.Payload) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Tags["session_id"] != "abc" {
		t.Fatalf("tags lost: %+v", out.Tags)
	}
}

// TestFrameRoundTrip 验证长度前缀帧的读写对称。
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello frame")
	if err := WriteFrame(&buf, body); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatal(err)
	}
	r := bufio.NewReader(&buf)
	got, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got=%q", got)
	}
	empty, err := ReadFrame(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty frame, got %d bytes", len(empty))
	}
}

// TestReadFrameRejectsOversize 验证超限帧长会被拒绝。
func TestReadFrameRejectsOversize(t *testing.T) {
	raw := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := ReadFrame(bufio.NewReader(bytes.NewReader(raw))); err == nil {
		t.Fatalf("expected error")
	}
}
