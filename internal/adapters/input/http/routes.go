package http

import (
	swagger "github.com/arsmn/fiber-swagger/v2"
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the local control API
func RegisterRoutes(app *fiber.App, hdl *HTTPHandler, lifecycle *LifecycleHandler) {
	app.Get("/swagger/*", swagger.HandlerDefault) // default
	app.Get("/health", hdl.HealthCheck)

	api := app.Group("/v1/api")
	{
		api.Get("/status", hdl.GetStatus)

		api.Get("/sessions", hdl.ListSessions)
		api.Post("/sessions", hdl.CreateSession)
		api.Get("/sessions/current", hdl.CurrentSession)
		api.Get("/sessions/:id", hdl.GetSession)
		api.Delete("/sessions/:id", hdl.DeleteSession)
		api.Post("/sessions/:id/switch", hdl.SwitchSession)
		api.Post("/sessions/:id/query", hdl.SendQuery)
		api.Post("/query", hdl.SendQuery)

		api.Get("/lifecycle", lifecycle.GetState)
		api.Post("/lifecycle/:event", lifecycle.HandleEvent)
	}
}
