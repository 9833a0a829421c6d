package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"daq-x/config"
	"daq-x/status"
	"daq-x/stream"
	"daq-x/wire"
)

// freeTCPPort 向内核申请一个空闲 TCP 端口。
func freeTCPPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("申请空闲端口失败：%v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// startTestHub 在空闲端口上启动控制平面。
func startTestHub(t *testing.T) (*stream.Manager, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.ControlPort = freeTCPPort(t)
	cfg.Stream.ResetDelay = 10 * time.Millisecond

	mgr := stream.NewManager(cfg)
	hub := NewHub(cfg, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		mgr.Stop()
	})
	go func() {
		_ = hub.Start(ctx)
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.ControlPort)
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return mgr, addr
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待监听就绪超时：%v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// dialControl 建立控制连接并完成注册握手。
func dialControl(t *testing.T, addr, observerID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/control", nil)
	if err != nil {
		t.Fatalf("控制连接失败：%v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.WriteJSON(Envelope{Type: MsgRegister, Payload: RegisterPayload{ObserverID: observerID}}); err != nil {
		t.Fatalf("注册发送失败：%v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("注册确认读取失败：%v", err)
	}
	if env.Type != MsgRegisterAck {
		t.Fatalf("首条回包应为 register_ack，实际 %s", env.Type)
	}
	var ackPayload RegisterAckPayload
	raw, _ := json.Marshal(env.Payload)
	_ = json.Unmarshal(raw, &ackPayload)
	if ackPayload.Status != "ok" {
		t.Fatalf("注册应成功：%+v", ackPayload)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn
}

// TestHubRegisterAndCommand 验证注册握手与命令下发/确认链路。
func TestHubRegisterAndCommand(t *testing.T) {
	mgr, addr := startTestHub(t)
	conn := dialControl(t, addr, "observer-1")

	cmd := Envelope{Type: MsgCommand, Payload: CommandPayload{
		RequestID: "req-1",
		Command:   wire.ControlCommand{Command: wire.CmdPause},
	}}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("命令发送失败：%v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("命令确认读取失败：%v", err)
	}
	if env.Type != MsgCommandAck {
		t.Fatalf("回包应为 command_ack，实际 %s", env.Type)
	}
	var ackPayload CommandAckPayload
	raw, _ := json.Marshal(env.Payload)
	_ = json.Unmarshal(raw, &ackPayload)
	if ackPayload.RequestID != "req-1" || !ackPayload.Ack.Success {
		t.Fatalf("确认内容异常：%+v", ackPayload)
	}
	if mgr.Gate().Enabled() {
		t.Fatal("PAUSE 后全局开关应关闭")
	}
}

// TestHubRejectsUnregisteredCommand 验证首条消息非 register 时拒绝连接。
func TestHubRejectsUnregisteredCommand(t *testing.T) {
	_, addr := startTestHub(t)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/control", nil)
	if err != nil {
		t.Fatalf("控制连接失败：%v", err)
	}
	defer conn.Close()

	cmd := Envelope{Type: MsgCommand, Payload: CommandPayload{Command: wire.ControlCommand{Command: wire.CmdStart}}}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("命令发送失败：%v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("拒绝回包读取失败：%v", err)
	}
	if env.Type != MsgRegisterAck {
		t.Fatalf("回包应为 register_ack，实际 %s", env.Type)
	}
	var ackPayload RegisterAckPayload
	raw, _ := json.Marshal(env.Payload)
	_ = json.Unmarshal(raw, &ackPayload)
	if ackPayload.Status != "error" {
		t.Fatalf("未注册的命令应被拒绝：%+v", ackPayload)
	}
}

// TestHubUnknownCommandAck 验证未知命令以 success=false 确认。
func TestHubUnknownCommandAck(t *testing.T) {
	_, addr := startTestHub(t)
	conn := dialControl(t, addr, "observer-2")

	cmd := Envelope{Type: MsgCommand, Payload: CommandPayload{
		RequestID: "req-2",
		Command:   wire.ControlCommand{Command: wire.Command("CALIBRATE")},
	}}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("命令发送失败：%v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("命令确认读取失败：%v", err)
	}
	var ackPayload CommandAckPayload
	raw, _ := json.Marshal(env.Payload)
	_ = json.Unmarshal(raw, &ackPayload)
	if ackPayload.Ack.Success {
		t.Fatalf("未知命令不应确认成功：%+v", ackPayload)
	}
}

// TestHubStatusEndpoint 验证 /status 健康检查返回的 JSON 字段。
func TestHubStatusEndpoint(t *testing.T) {
	_, addr := startTestHub(t)

	resp, err := http.Get("http://" + addr + "/status")
	if err != nil {
		t.Fatalf("健康检查请求失败：%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("状态码应为 200，实际 %d", resp.StatusCode)
	}

	var hs HealthStatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		t.Fatalf("健康检查解码失败：%v", err)
	}
	if hs.Status != "Running" {
		t.Fatalf("服务状态应为 Running，实际 %s", hs.Status)
	}
	if !hs.GateEnabled {
		t.Fatal("初始全局开关应为打开")
	}
	if hs.Sessions != 0 || hs.NowUnixMs == 0 {
		t.Fatalf("健康字段异常：%+v", hs)
	}
}

// TestHubStatusDuringShutdown 验证关停过程中并发健康检查只会观察到合法服务状态。
func TestHubStatusDuringShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ControlPort = freeTCPPort(t)
	mgr := stream.NewManager(cfg)
	t.Cleanup(mgr.Stop)
	hub := NewHub(cfg, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Start(ctx) }()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.ControlPort)
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待监听就绪超时：%v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				resp, err := http.Get("http://" + addr + "/status")
				if err != nil {
					return // 关停后连接失败属预期
				}
				var hs HealthStatusPayload
				derr := json.NewDecoder(resp.Body).Decode(&hs)
				_ = resp.Body.Close()
				if derr != nil {
					return
				}
				if _, perr := status.ParseServerStatus(hs.Status); perr != nil {
					t.Errorf("非法服务状态：%q", hs.Status)
					return
				}
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()
}

// TestHubBroadcastTelemetry 验证遥测载荷字段与广播投递。
func TestHubBroadcastTelemetry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ControlPort = freeTCPPort(t)
	mgr := stream.NewManager(cfg)
	t.Cleanup(mgr.Stop)
	hub := NewHub(cfg, mgr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Start(ctx) }()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.ControlPort)
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			_ = c.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("等待监听就绪超时：%v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn := dialControl(t, addr, "observer-3")
	mgr.Metrics().RecordDataSent("s1", 2048)

	hub.Broadcast(Envelope{Type: MsgTelemetry, Payload: hub.telemetryPayload()})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("遥测读取失败：%v", err)
	}
	if env.Type != MsgTelemetry {
		t.Fatalf("回包应为 telemetry，实际 %s", env.Type)
	}
	var tp TelemetryPayload
	raw, _ := json.Marshal(env.Payload)
	if err := json.Unmarshal(raw, &tp); err != nil {
		t.Fatalf("遥测解码失败：%v", err)
	}
	if !tp.GateEnabled || tp.Global.BytesSent != 2048 || tp.NowUnixMs == 0 {
		t.Fatalf("遥测字段异常：%+v", tp)
	}
	if _, ok := tp.PerSession["s1"]; !ok {
		t.Fatalf("遥测应包含会话 s1 的计数：%+v", tp.PerSession)
	}
}
