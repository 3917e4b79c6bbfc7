// Package gateway accepts accessory bridge WebSocket connections and runs one
// session engine per connected device.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-linkcup/pkg/clock"
	"github.com/teslashibe/go-linkcup/pkg/metrics"
	"github.com/teslashibe/go-linkcup/pkg/protocol"
	"github.com/teslashibe/go-linkcup/pkg/recording"
	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
	"github.com/teslashibe/go-linkcup/pkg/store"
)

// ErrDeviceNotConnected is returned for operations on an unknown device.
var ErrDeviceNotConnected = errors.New("gateway: device not connected")

// DefaultKeyCooldown is the minimum spacing between accepted key presses.
const DefaultKeyCooldown = 5 * time.Second

// SessionStore persists finished sessions. *store.Store implements it.
type SessionStore interface {
	Save(ctx context.Context, s store.Session) (store.Session, error)
	List(ctx context.Context, deviceID string, limit int) ([]store.Session, error)
}

// Config configures a Gateway.
type Config struct {
	Engine      session.Config
	Report      report.Config
	KeyCooldown time.Duration

	// RecordDir enables telemetry recording when non-empty.
	RecordDir string

	// Clock drives engines and reporters. Nil uses wall time.
	Clock clock.Clock
}

// Gateway manages device connections.
type Gateway struct {
	cfg     Config
	clock   clock.Clock
	store   SessionStore
	metrics metrics.Recorder
	logger  *slog.Logger

	mu        sync.RWMutex
	devices   map[string]*Device
	timers    map[string]session.TimerState
	engineCfg session.Config
	audience  bool

	onEvent  func(deviceID string, ev session.Event, audience bool)
	onReport func(deviceID string, r report.Report)
	onDevice func(deviceID string, connected bool)

	persistWG sync.WaitGroup

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	samplesReceived  atomic.Uint64
	keysAccepted     atomic.Uint64
	keysDropped      atomic.Uint64
}

// New creates a gateway. st and rec may be nil.
func New(cfg Config, st SessionStore, rec metrics.Recorder, logger *slog.Logger) *Gateway {
	if cfg.KeyCooldown <= 0 {
		cfg.KeyCooldown = DefaultKeyCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gateway{
		cfg:       cfg,
		clock:     cfg.Clock,
		store:     st,
		metrics:   rec,
		logger:    logger,
		devices:   make(map[string]*Device),
		timers:    make(map[string]session.TimerState),
		engineCfg: cfg.Engine,
	}
}

// OnEvent sets the callback for every engine event.
func (g *Gateway) OnEvent(callback func(deviceID string, ev session.Event, audience bool)) {
	g.mu.Lock()
	g.onEvent = callback
	g.mu.Unlock()
}

// OnReport sets the callback for delivered reports.
func (g *Gateway) OnReport(callback func(deviceID string, r report.Report)) {
	g.mu.Lock()
	g.onReport = callback
	g.mu.Unlock()
}

// OnDevice sets the callback for device connects and disconnects.
func (g *Gateway) OnDevice(callback func(deviceID string, connected bool)) {
	g.mu.Lock()
	g.onDevice = callback
	g.mu.Unlock()
}

// SetEngineConfig replaces the engine tuning used for devices that connect
// afterwards.
func (g *Gateway) SetEngineConfig(cfg session.Config) {
	g.mu.Lock()
	g.engineCfg = cfg
	g.mu.Unlock()
	g.logger.Info("engine tuning updated")
}

// SetAudience sets the audience flag on every engine, current and future.
func (g *Gateway) SetAudience(present bool) {
	g.mu.Lock()
	g.audience = present
	devices := g.devicesLocked()
	g.mu.Unlock()

	for _, d := range devices {
		d.engine.SetAudience(present)
	}
	g.logger.Info("audience changed", "present", present)
}

// Audience reports the audience flag.
func (g *Gateway) Audience() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.audience
}

// RegisterRoutes registers the device WebSocket routes on a Fiber app.
func (g *Gateway) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(g.handleDevice))
	app.Get("/ws/device/:id", websocket.New(g.handleDevice))
}

// handleDevice runs one bridge connection until it closes.
func (g *Gateway) handleDevice(c *websocket.Conn) {
	deviceID := c.Params("id")
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	logger := g.logger.With("device", deviceID)

	d, err := g.attach(deviceID, c)
	if err != nil {
		logger.Warn("rejecting connection", "error", err)
		c.Close()
		return
	}
	defer g.detach(d)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("read ended", "error", err)
			return
		}

		d.touch(g.clock.Now())
		g.handleMessage(d, data)
		g.messagesReceived.Add(1)
	}
}

var errDuplicateDevice = errors.New("device already connected")

// attach builds the device's engine and registers it.
func (g *Gateway) attach(deviceID string, c *websocket.Conn) (*Device, error) {
	now := g.clock.Now()
	logger := g.logger.With("device", deviceID)

	g.mu.Lock()
	if _, ok := g.devices[deviceID]; ok {
		g.mu.Unlock()
		return nil, errDuplicateDevice
	}

	d := &Device{
		ID:        deviceID,
		Connected: now,
		conn:      c,
		lastSeen:  now,
		sess:      store.Session{DeviceID: deviceID},
	}
	d.engine = session.New(g.engineCfg, g.clock, g.sink(d), logger)
	d.engine.SetAudience(g.audience)
	if saved, ok := g.timers[deviceID]; ok {
		delete(g.timers, deviceID)
		if saved.Started && !saved.Ended {
			d.engine.ResetFrom(saved)
		}
	}
	d.reporter = report.New(g.cfg.Report, g.clock, d.engine, g.deliver(d), logger)

	g.devices[deviceID] = d
	count := len(g.devices)
	onDevice := g.onDevice
	g.mu.Unlock()

	if g.cfg.RecordDir != "" {
		w, err := recording.Create(g.cfg.RecordDir, deviceID, now)
		if err != nil {
			logger.Warn("recording disabled", "error", err)
		} else {
			d.recorder = w
			logger.Info("recording", "path", w.Path())
		}
	}

	logger.Info("device connected", "total", count)
	g.metrics.RecordConnection(context.Background(), true)
	if onDevice != nil {
		onDevice(deviceID, true)
	}
	return d, nil
}

// detach tears down the device's engine, keeping its engagement timer for a
// reconnect under the same ID.
func (g *Gateway) detach(d *Device) {
	now := g.clock.Now()

	d.reporter.Stop()
	if sess, ok := d.finish(d.engine.Snapshot(), now); ok {
		g.persist(sess)
	}

	d.engine.Reset(true)
	ts := d.engine.TimerState()
	d.engine.Dispose()

	d.writeMu.Lock()
	d.conn = nil
	d.writeMu.Unlock()

	if d.recorder != nil {
		if err := d.recorder.Close(); err != nil {
			g.logger.Warn("close recording", "device", d.ID, "error", err)
		}
	}

	g.mu.Lock()
	delete(g.devices, d.ID)
	if ts.Started && !ts.Ended {
		g.timers[d.ID] = ts
	}
	count := len(g.devices)
	onDevice := g.onDevice
	g.mu.Unlock()

	g.logger.Info("device disconnected", "device", d.ID, "total", count,
		"interaction", ts.Interaction, "resumable", ts.Started && !ts.Ended)
	g.metrics.RecordConnection(context.Background(), false)
	if onDevice != nil {
		onDevice(d.ID, false)
	}
}

// handleMessage processes one message from a bridge.
func (g *Gateway) handleMessage(d *Device, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		g.logger.Debug("parse error", "device", d.ID, "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeSample:
		s, err := msg.GetSampleData()
		if err != nil {
			g.logger.Debug("bad sample", "device", d.ID, "error", err)
			return
		}
		g.handleSample(d, s.Sample())

	case protocol.TypeKey:
		g.handleKey(d)

	case protocol.TypeFrame:
		frame, err := protocol.DecodeDeviceFrame(msg.Data)
		if err != nil {
			g.logger.Debug("skipping frame", "device", d.ID, "error", err)
			return
		}
		switch frame.Kind {
		case protocol.FrameRealtime:
			g.handleSample(d, frame.Sample)
		case protocol.FrameKey:
			g.handleKey(d)
		}

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		pingTS := ping.Timestamp
		if pingTS == 0 {
			pingTS = msg.Timestamp
		}
		pong, err := protocol.NewPongMessage(ping.ID, pingTS, g.clock.Now().UnixMilli())
		if err == nil {
			g.send(d, pong)
		}

	default:
		g.logger.Debug("unknown message type", "device", d.ID, "type", msg.Type)
	}
}

func (g *Gateway) handleSample(d *Device, s session.Sample) {
	s = d.applyPosition(s)
	if d.recorder != nil {
		if err := d.recorder.WriteSample(g.clock.Now(), s); err != nil {
			g.logger.Debug("record sample", "device", d.ID, "error", err)
		}
	}
	d.engine.Update(s)
	g.samplesReceived.Add(1)
}

func (g *Gateway) handleKey(d *Device) {
	now := g.clock.Now()
	if !d.acceptKey(now, g.cfg.KeyCooldown) {
		g.keysDropped.Add(1)
		g.logger.Debug("key inside cooldown", "device", d.ID)
		return
	}
	if d.recorder != nil {
		if err := d.recorder.WriteKey(now); err != nil {
			g.logger.Debug("record key", "device", d.ID, "error", err)
		}
	}
	d.engine.SignalTerminalEvent()
	g.keysAccepted.Add(1)
}

// sink routes engine events for d. It runs on the engine's dispatch path.
func (g *Gateway) sink(d *Device) session.Sink {
	return func(ev session.Event, audience bool) {
		ctx := context.Background()
		now := g.clock.Now()

		thrusts, done := d.observe(ev, now)
		d.reporter.Handle(ev, audience)

		g.metrics.RecordEvent(ctx, string(ev.Type()))
		if thrusts > 0 {
			g.metrics.RecordThrusts(ctx, thrusts)
		}
		if done != nil {
			g.persist(*done)
		}

		if ev.Type() != session.EventRealtime {
			if msg, err := protocol.NewEventMessage(d.ID, ev, audience); err == nil {
				g.send(d, msg)
			}
		}

		g.mu.RLock()
		onEvent := g.onEvent
		g.mu.RUnlock()
		if onEvent != nil {
			onEvent(d.ID, ev, audience)
		}
	}
}

// deliver returns the reporter callback for d.
func (g *Gateway) deliver(d *Device) func([]report.Report) {
	return func(reports []report.Report) {
		g.mu.RLock()
		onReport := g.onReport
		g.mu.RUnlock()

		for _, r := range reports {
			if msg, err := protocol.NewReportMessage(d.ID, r); err == nil {
				g.send(d, msg)
			}
			if onReport != nil {
				onReport(d.ID, r)
			}
		}
	}
}

// persist records a finished session and saves it in the background.
func (g *Gateway) persist(s store.Session) {
	g.metrics.RecordSession(context.Background(), s.Interaction, s.Climaxed)
	if g.store == nil {
		return
	}

	g.persistWG.Add(1)
	go func() {
		defer g.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := g.store.Save(ctx, s); err != nil {
			g.logger.Error("save session", "device", s.DeviceID, "error", err)
		}
	}()
}

// Flush waits for background session saves to finish.
func (g *Gateway) Flush() {
	g.persistWG.Wait()
}

func (g *Gateway) send(d *Device, msg *protocol.Message) {
	g.messagesSent.Add(1)
	if err := d.Send(msg); err != nil {
		g.logger.Debug("send failed", "device", d.ID, "type", msg.Type, "error", err)
	}
}

// SetPosition sets a manual position override for a device. Zero returns
// the device to its reported position.
func (g *Gateway) SetPosition(deviceID string, position int) error {
	d := g.GetDevice(deviceID)
	if d == nil {
		return ErrDeviceNotConnected
	}
	d.mu.Lock()
	d.position = max(position, 0)
	d.mu.Unlock()
	return nil
}

// TriggerClimax signals the terminal event for a device, bypassing the key
// cooldown. It reports whether a session was ended.
func (g *Gateway) TriggerClimax(deviceID string) (bool, error) {
	d := g.GetDevice(deviceID)
	if d == nil {
		return false, ErrDeviceNotConnected
	}
	return d.engine.SignalTerminalEvent(), nil
}

// GetDevice returns a connected device by ID.
func (g *Gateway) GetDevice(deviceID string) *Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.devices[deviceID]
}

// GetDevices returns all connected devices.
func (g *Gateway) GetDevices() []*Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.devicesLocked()
}

func (g *Gateway) devicesLocked() []*Device {
	devices := make([]*Device, 0, len(g.devices))
	for _, d := range g.devices {
		devices = append(devices, d)
	}
	return devices
}

// DeviceCount returns the number of connected devices.
func (g *Gateway) DeviceCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.devices)
}

// SavedTimer returns the engagement timer kept for a disconnected device.
func (g *Gateway) SavedTimer(deviceID string) (session.TimerState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ts, ok := g.timers[deviceID]
	return ts, ok
}

// GetDeviceInfos returns info about all connected devices.
func (g *Gateway) GetDeviceInfos() []DeviceInfo {
	now := g.clock.Now()
	devices := g.GetDevices()
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, d.info(now))
	}
	return infos
}

// Stats contains gateway statistics.
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	Audience         bool   `json:"audience"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	SamplesReceived  uint64 `json:"samples_received"`
	KeysAccepted     uint64 `json:"keys_accepted"`
	KeysDropped      uint64 `json:"keys_dropped"`
}

// GetStats returns gateway statistics.
func (g *Gateway) GetStats() Stats {
	return Stats{
		DeviceCount:      g.DeviceCount(),
		Audience:         g.Audience(),
		MessagesReceived: g.messagesReceived.Load(),
		MessagesSent:     g.messagesSent.Load(),
		SamplesReceived:  g.samplesReceived.Load(),
		KeysAccepted:     g.keysAccepted.Load(),
		KeysDropped:      g.keysDropped.Load(),
	}
}
