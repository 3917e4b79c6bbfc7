package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-linkcup/pkg/gateway"
	"github.com/teslashibe/go-linkcup/pkg/protocol"
	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

func newTestServer(addr string) *Server {
	gw := gateway.New(gateway.Config{}, nil, nil, nil)
	return NewServer(Options{Addr: addr}, gw, nil)
}

func TestStatus(t *testing.T) {
	s := newTestServer(":0")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Gateway.DeviceCount != 0 || st.Dashboards != 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestGatewayRoutesMounted(t *testing.T) {
	s := newTestServer(":0")

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/devices", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("GET /api/devices status = %d", resp.StatusCode)
	}

	resp, _ = s.App().Test(httptest.NewRequest("GET", "/ws/dashboard", nil))
	if resp.StatusCode != 426 {
		t.Errorf("plain GET /ws/dashboard status = %d, want 426", resp.StatusCode)
	}
}

func TestFeedHistory(t *testing.T) {
	s := newTestServer(":0")

	snap := session.Snapshot{ThrustCount: 3}
	s.publishEvent("cup-1", session.RealtimeEvent{Snapshot: snap}, false)
	s.publishEvent("cup-1", session.BangEvent{Snapshot: snap}, true)
	s.publishReport("cup-1", report.Report{Reason: report.ReasonPeriodic, Intensity: 250})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/api/feed", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)

	var feed []protocol.Message
	if err := json.Unmarshal(body, &feed); err != nil {
		t.Fatalf("decode feed %s: %v", body, err)
	}
	if len(feed) != 2 {
		t.Fatalf("feed has %d entries, want 2 (realtime is not kept)", len(feed))
	}
	if feed[0].Type != protocol.TypeEvent || feed[1].Type != protocol.TypeReport {
		t.Errorf("feed types = %s, %s", feed[0].Type, feed[1].Type)
	}

	ev, err := feed[0].GetEventData()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Event != "bang" || !ev.Audience || ev.State.ThrustCount != 3 {
		t.Errorf("event = %+v", ev)
	}
}

func TestFeedCapped(t *testing.T) {
	s := newTestServer(":0")

	for i := 0; i < feedSize+10; i++ {
		s.publishDevice("cup-"+strconv.Itoa(i), true)
	}

	recent := s.Recent()
	if len(recent) != feedSize {
		t.Fatalf("Recent() len = %d, want %d", len(recent), feedSize)
	}
	msg, _ := protocol.ParseMessage(recent[0])
	var state protocol.DeviceStateData
	msg.ParseData(&state)
	if state.DeviceID != "cup-10" {
		t.Errorf("oldest kept = %s, want cup-10", state.DeviceID)
	}
}

func readMessage(t *testing.T, ws *websocket.Conn) *protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse %s: %v", data, err)
	}
	return msg
}

func TestDashboardWebSocket(t *testing.T) {
	s := newTestServer(":18110")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go s.Start(ctx)
	time.Sleep(100 * time.Millisecond)

	s.publishReport("cup-0", report.Report{Reason: report.ReasonReinsertion})

	dash, _, err := websocket.DefaultDialer.Dial("ws://localhost:18110/ws/dashboard", nil)
	if err != nil {
		t.Fatalf("dial dashboard: %v", err)
	}
	defer dash.Close()

	// History first
	if msg := readMessage(t, dash); msg.Type != protocol.TypeReport {
		t.Errorf("first message = %s, want report", msg.Type)
	}

	// A device connecting through the same server shows up live
	dev, _, err := websocket.DefaultDialer.Dial("ws://localhost:18110/ws/device/cup-1", nil)
	if err != nil {
		t.Fatalf("dial device: %v", err)
	}
	defer dev.Close()

	msg := readMessage(t, dash)
	var state protocol.DeviceStateData
	if err := msg.ParseData(&state); err != nil {
		t.Fatal(err)
	}
	if msg.Type != protocol.TypeState || state.DeviceID != "cup-1" || !state.Connected {
		t.Errorf("live message = %s %+v", msg.Type, state)
	}

	sample, _ := protocol.NewSampleMessage(session.Sample{LinearValue: 5, Position: 1})
	data, _ := sample.Bytes()
	dev.WriteMessage(websocket.TextMessage, data)

	ev, err := readMessage(t, dash).GetEventData()
	if err != nil {
		t.Fatal(err)
	}
	if ev.DeviceID != "cup-1" || ev.Event != "realtime" || ev.State.V != 5 {
		t.Errorf("event = %+v", ev)
	}
}
