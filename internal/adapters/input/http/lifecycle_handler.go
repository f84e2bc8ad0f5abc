package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/input"
)

// LifecycleNotifier queues a platform transition for the lifecycle manager
type LifecycleNotifier interface {
	Publish(eventType domain.LifecycleEventType) bool
}

// LifecycleHandler struct - Primary/Driving adapter that lets the host
// platform report foreground, background and terminate transitions
type LifecycleHandler struct {
	notifier LifecycleNotifier
	service  input.LifecycleService
}

// NewLifecycleHandler func
func NewLifecycleHandler(notifier LifecycleNotifier, service input.LifecycleService) *LifecycleHandler {
	return &LifecycleHandler{
		notifier: notifier,
		service:  service,
	}
}

// HandleEvent godoc
// @Summary Lifecycle notification
// @Description Queues a transition: foreground, background or terminate (canonical names are accepted too)
// @Tags LIFECYCLE
// @Produce json
// @param event path string true "foreground | background | terminate"
// @Success 202 {object} LifecycleResponse
// @Router /v1/api/lifecycle/{event} [post]
func (h *LifecycleHandler) HandleEvent(c *fiber.Ctx) error {
	eventType, ok := domain.ParseLifecycleEventType(c.Params("event"))
	if !ok {
		msg := ResponseBody{Status: BadRequest}
		msg.Status.Message = []string{"unknown lifecycle event: " + c.Params("event")}
		return c.Status(fiber.StatusBadRequest).JSON(msg)
	}
	if !h.notifier.Publish(eventType) {
		logrus.Warnf("Lifecycle event %s dropped, source closed or busy", eventType)
		return c.Status(fiber.StatusServiceUnavailable).JSON(ResponseBody{Status: ServiceUnavailable})
	}
	return c.Status(fiber.StatusAccepted).JSON(ResponseBody{
		Status: Accepted,
		Data:   LifecycleResponse{Event: eventType, State: h.service.State()},
	})
}

// GetState godoc
// @Summary Lifecycle state
// @Tags LIFECYCLE
// @Produce json
// @Success 200 {object} LifecycleResponse
// @Router /v1/api/lifecycle [get]
func (h *LifecycleHandler) GetState(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: LifecycleResponse{State: h.service.State()}})
}
