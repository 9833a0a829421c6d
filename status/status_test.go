package status

import (
	"encoding/json"
	"testing"
)

// TestStatusParseAndJSON 验证 status 系列枚举的解析与 JSON 编解码。
func TestStatusParseAndJSON(t *testing.T) {
	check := func(v any, out any) {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatal(err)
		}
	}

	for _, v := range []string{"Starting", "Running", "Stopping", "Stopped"} {
		if _, err := ParseServerStatus(v); err != nil {
			t.Fatalf("server parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Created", "Streaming", "Paused", "Stopped"} {
		if _, err := ParseSessionStatus(v); err != nil {
			t.Fatalf("session parse %q: %v", v, err)
		}
	}
	for _, v := range []string{"Sine", "Square", "Triangle", "Noise", "Mixed"} {
		if _, err := ParseWaveform(v); err != nil {
			t.Fatalf("waveform parse %q: %v", v, err)
		}
	}

	ss, err := ParseServerStatus("Running")
	if err != nil {
		t.Fatal(err)
	}
	var ss2 ServerStatus
	check(ss, &ss2)
	if ss2 != ServerRunning {
		t.Fatalf("ss2=%s", ss2)
	}

	st, err := ParseSessionStatus("Streaming")
	if err != nil {
		t.Fatal(err)
	}
	var st2 SessionStatus
	check(st, &st2)
	if st2 != SessionStreaming {
		t.Fatalf("st2=%s", st2)
	}

	wf, err := ParseWaveform("Mixed")
	if err != nil {
		t.Fatal(err)
	}
	var wf2 Waveform
	check(wf, &wf2)
	if wf2 != WaveformMixed {
		t.Fatalf("wf2=%s", wf2)
	}

	if _, err := ParseServerStatus("X"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseSessionStatus("X"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseWaveform("X"); err == nil {
		t.Fatalf("expected error")
	}

	var bad ServerStatus
	if err := json.Unmarshal([]byte(`"X"`), &bad); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad2 SessionStatus
	if err := json.Unmarshal([]byte(`123`), &bad2); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	var bad3 Waveform
	if err := json.Unmarshal([]byte(`"X"`), &bad3); err == nil {
		t.Fatalf("expected unmarshal error")
	}

	_ = ServerRunning.String()
	_ = SessionCreated.String()
	_ = WaveformSine.String()
}

// TestParseWaveformCaseInsensitive 验证波形解析对大小写不敏感。
func TestParseWaveformCaseInsensitive(t *testing.T) {
	for in, want := range map[string]Waveform{
		"sine":       WaveformSine,
		"SQUARE":     WaveformSquare,
		" triangle ": WaveformTriangle,
		"noise":      WaveformNoise,
		"mixed":      WaveformMixed,
	} {
		got, err := ParseWaveform(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got=%s want=%s", in, got, want)
		}
	}
}
