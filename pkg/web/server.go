// Package web serves the linkcup dashboard: the device gateway, its REST API
// and a live feed of session events.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linkcup/pkg/gateway"
	"github.com/teslashibe/go-linkcup/pkg/hub"
	"github.com/teslashibe/go-linkcup/pkg/protocol"
	"github.com/teslashibe/go-linkcup/pkg/report"
	"github.com/teslashibe/go-linkcup/pkg/session"
)

// feedSize is how many recent feed messages a new dashboard receives.
const feedSize = 200

// Options configures the server.
type Options struct {
	Addr string

	// StaticDir serves dashboard assets at / when set.
	StaticDir string
}

// Server is the web dashboard server
type Server struct {
	app     *fiber.App
	addr    string
	gw      *gateway.Gateway
	logger  *slog.Logger
	started time.Time

	// Live feed for dashboards
	feed *hub.Hub

	// Recent non-realtime messages, replayed to new dashboards
	recent   []hub.Message
	recentMu sync.RWMutex
}

// NewServer creates a dashboard server around gw and subscribes to its
// events.
func NewServer(opts Options, gw *gateway.Gateway, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		addr:    opts.Addr,
		gw:      gw,
		logger:  logger,
		started: time.Now(),
		feed:    hub.New("feed", logger),
		recent:  make([]hub.Message, 0, feedSize),
	}

	app := fiber.New(fiber.Config{
		AppName:               "linkcup",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/feed", s.handleFeed)
	gw.RegisterAPIRoutes(api)

	// Device bridges
	gw.RegisterRoutes(app)

	// Dashboards
	app.Use("/ws/dashboard", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/dashboard", websocket.New(s.handleDashboardWS))

	gw.OnEvent(s.publishEvent)
	gw.OnReport(s.publishReport)
	gw.OnDevice(s.publishDevice)

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the feed hub and serves until ctx is done or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("dashboard listening", "addr", s.addr)

	go s.feed.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// publishEvent forwards an engine event to dashboards. Realtime events are
// broadcast but not kept in the feed history.
func (s *Server) publishEvent(deviceID string, ev session.Event, audience bool) {
	msg, err := protocol.NewEventMessage(deviceID, ev, audience)
	if err != nil {
		s.logger.Warn("encode event", "error", err)
		return
	}
	s.publish(msg, ev.Type() != session.EventRealtime)
}

func (s *Server) publishReport(deviceID string, r report.Report) {
	msg, err := protocol.NewReportMessage(deviceID, r)
	if err != nil {
		s.logger.Warn("encode report", "error", err)
		return
	}
	s.publish(msg, true)
}

func (s *Server) publishDevice(deviceID string, connected bool) {
	msg, err := protocol.NewDeviceStateMessage(deviceID, connected)
	if err != nil {
		return
	}
	s.publish(msg, true)
}

func (s *Server) publish(msg *protocol.Message, keep bool) {
	data, err := msg.Bytes()
	if err != nil {
		return
	}

	if keep {
		s.recentMu.Lock()
		s.recent = append(s.recent, data)
		if len(s.recent) > feedSize {
			s.recent = s.recent[1:]
		}
		s.recentMu.Unlock()
	}

	s.feed.Broadcast(data)
}

// Recent returns a copy of the feed history, oldest first.
func (s *Server) Recent() []hub.Message {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return append([]hub.Message(nil), s.recent...)
}
