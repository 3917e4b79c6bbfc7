package web

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linkcup/pkg/gateway"
	"github.com/teslashibe/go-linkcup/pkg/hub"
)

// Status is the dashboard summary.
type Status struct {
	UptimeSeconds int64         `json:"uptime_seconds"`
	Dashboards    int           `json:"dashboards"`
	Gateway       gateway.Stats `json:"gateway"`
}

// handleStatus returns server and gateway state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(Status{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Dashboards:    s.feed.ClientCount(),
		Gateway:       s.gw.GetStats(),
	})
}

// handleFeed returns the recent feed as a JSON array of messages
func (s *Server) handleFeed(c *fiber.Ctx) error {
	recent := s.Recent()
	out := make([]json.RawMessage, len(recent))
	for i, m := range recent {
		out[i] = json.RawMessage(m)
	}
	return c.JSON(out)
}

// handleDashboardWS streams the feed, starting with recent history
func (s *Server) handleDashboardWS(c *websocket.Conn) {
	client := hub.NewClient(s.feed, c, s.Recent()...)
	client.Run()
}
