package gateway

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-linkcup/pkg/store"
)

// RegisterAPIRoutes registers REST routes for device management.
func (g *Gateway) RegisterAPIRoutes(api fiber.Router) {
	devices := api.Group("/devices")

	// List connected devices
	devices.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"devices": g.GetDeviceInfos(),
			"count":   g.DeviceCount(),
		})
	})

	devices.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(g.GetStats())
	})

	// Override the reported position; 0 returns to automatic
	devices.Post("/:id/position", func(c *fiber.Ctx) error {
		var req struct {
			Position int `json:"position"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if req.Position < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "position must not be negative"})
		}

		if err := g.SetPosition(c.Params("id"), req.Position); err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"status": "ok", "position": req.Position})
	})

	devices.Post("/:id/climax", func(c *fiber.Ctx) error {
		ended, err := g.TriggerClimax(c.Params("id"))
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(fiber.Map{"ended": ended})
	})

	api.Get("/audience", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"present": g.Audience()})
	})

	api.Put("/audience", func(c *fiber.Ctx) error {
		var req struct {
			Present bool `json:"present"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		g.SetAudience(req.Present)
		return c.JSON(fiber.Map{"present": req.Present})
	})

	// Session history
	api.Get("/sessions", func(c *fiber.Ctx) error {
		if g.store == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "session history disabled"})
		}
		sessions, err := g.store.List(c.UserContext(), c.Query("device"), c.QueryInt("limit", 50))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if sessions == nil {
			sessions = []store.Session{}
		}
		return c.JSON(fiber.Map{"sessions": sessions, "count": len(sessions)})
	})
}

func errorJSON(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if errors.Is(err, ErrDeviceNotConnected) {
		status = fiber.StatusNotFound
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
