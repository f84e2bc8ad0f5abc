package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"session-sync/internal/domain"
	"session-sync/internal/ports/input"
	"session-sync/pkg/validator"
)

// HTTPHandler struct - Primary/Driving adapter for HTTP
type HTTPHandler struct {
	repo      input.SessionRepository
	conn      input.ConnectionService
	ready     func() bool
	userID    string
	validator validator.Validator
}

// New func - Creates new HTTP handler. ready reports whether the local store
// finished initializing.
func New(repo input.SessionRepository, conn input.ConnectionService, ready func() bool, userID string) *HTTPHandler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &HTTPHandler{
		repo:      repo,
		conn:      conn,
		ready:     ready,
		userID:    userID,
		validator: validator.New(),
	}
}

// HealthCheck func
func (hdl *HTTPHandler) HealthCheck(c *fiber.Ctx) error {
	if !hdl.ready() {
		logrus.Warn("Health check: store not ready")
		return c.Status(fiber.StatusServiceUnavailable).JSON(ResponseBody{Status: ServiceUnavailable})
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: ""})
}

// GetStatus godoc
// @Summary Connection status
// @Description Current connection status; check=true probes the backend first
// @Tags STATUS
// @Produce json
// @param check query bool false "probe the backend"
// @Success 200 {object} ConnectionResponse
// @Router /v1/api/status [get]
func (hdl *HTTPHandler) GetStatus(c *fiber.Ctx) error {
	var query StatusQuery
	if err := c.QueryParser(&query); err != nil {
		logrus.Errorln(err)
		return c.Status(fiber.StatusBadRequest).JSON(ResponseBody{Status: BadRequest})
	}

	status := hdl.conn.Status()
	if query.Check {
		status = hdl.conn.CheckConnectionStatus(c.UserContext())
	}
	resp := ConnectionResponse{Status: status, Healthy: status.IsHealthy()}
	if status.IsHealthy() {
		stats, err := hdl.conn.Stats(c.UserContext())
		if err != nil {
			resp.LastError = err.Error()
		}
		resp.Stats = toStatsResponse(stats)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: resp})
}

// ListSessions godoc
// @Summary List sessions
// @Description Stored sessions reconciled with the backend, most recently active first
// @Tags SESSIONS
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /v1/api/sessions [get]
func (hdl *HTTPHandler) ListSessions(c *fiber.Ctx) error {
	sessions, err := hdl.repo.GetAllSessions(c.UserContext())
	if err != nil {
		logrus.Errorln(err)
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}

	currentID := hdl.currentID()
	data := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		data = append(data, toSessionResponse(s, currentID))
	}
	total := len(data)
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: data, TotalItem: &total})
}

// CreateSession godoc
// @Summary Create session
// @Description Creates a remote session and makes it current
// @Tags SESSIONS
// @Accept application/json
// @Produce json
// @param CreateSession body CreateSessionRequest true "CreateSession"
// @Success 200 {object} SessionResponse
// @Router /v1/api/sessions [post]
func (hdl *HTTPHandler) CreateSession(c *fiber.Ctx) error {
	var request CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			logrus.Errorln(err)
			return c.Status(fiber.StatusBadRequest).JSON(ResponseBody{Status: BadRequest})
		}
	}
	if err := hdl.validator.ValidateStruct(request); err != nil {
		msg := ResponseBody{
			Status: BadRequest,
		}
		msg.Status.Message = []string{
			err.Error(),
		}
		return c.Status(fiber.StatusBadRequest).JSON(msg)
	}
	options, err := domain.ValuesFromMap(request.Options)
	if err != nil {
		msg := ResponseBody{Status: BadRequest}
		msg.Status.Message = []string{err.Error()}
		return c.Status(fiber.StatusBadRequest).JSON(msg)
	}

	// Convert HTTP request to domain request
	domainReq := domain.CreateSessionRequest{
		UserID:         hdl.userID,
		Name:           request.Name,
		WorkingContext: request.WorkingContext,
		Options:        options,
	}
	session, err := hdl.repo.CreateSession(c.UserContext(), domainReq)
	if err != nil {
		logrus.Errorln(err)
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: toSessionResponse(*session, session.SessionID)})
}

// GetSession godoc
// @Summary Get session
// @Description One session with its history
// @Tags SESSIONS
// @Produce json
// @param id path string true "session id"
// @Success 200 {object} SessionResponse
// @Router /v1/api/sessions/{id} [get]
func (hdl *HTTPHandler) GetSession(c *fiber.Ctx) error {
	session, err := hdl.repo.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: toSessionResponse(*session, hdl.currentID())})
}

// DeleteSession godoc
// @Summary Delete session
// @Tags SESSIONS
// @Produce json
// @param id path string true "session id"
// @Success 200 {object} map[string]interface{}
// @Router /v1/api/sessions/{id} [delete]
func (hdl *HTTPHandler) DeleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := hdl.repo.DeleteSession(c.UserContext(), id); err != nil {
		logrus.Errorln(err)
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: fiber.Map{"session_id": id}})
}

// SwitchSession godoc
// @Summary Switch session
// @Description Makes a session current, fetching it when it is not cached
// @Tags SESSIONS
// @Produce json
// @param id path string true "session id"
// @Success 200 {object} SessionResponse
// @Router /v1/api/sessions/{id}/switch [post]
func (hdl *HTTPHandler) SwitchSession(c *fiber.Ctx) error {
	session, err := hdl.repo.SwitchToSession(c.UserContext(), c.Params("id"))
	if err != nil {
		logrus.Errorln(err)
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: toSessionResponse(*session, session.SessionID)})
}

// CurrentSession godoc
// @Summary Current session
// @Tags SESSIONS
// @Produce json
// @Success 200 {object} SessionResponse
// @Router /v1/api/sessions/current [get]
func (hdl *HTTPHandler) CurrentSession(c *fiber.Ctx) error {
	session := hdl.repo.CurrentSession()
	if session == nil {
		return c.Status(fiber.StatusNotFound).JSON(ResponseBody{Status: NotFound})
	}
	return c.Status(fiber.StatusOK).JSON(ResponseBody{Status: Success, Data: toSessionResponse(*session, session.SessionID)})
}

// SendQuery godoc
// @Summary Stream a query
// @Description Relays the backend stream as server-sent events (start, delta, complete, error)
// @Tags QUERY
// @Accept application/json
// @Produce text/event-stream
// @param id path string false "session id, defaults to the current session"
// @param Query body QueryRequest true "Query"
// @Success 200 {string} string "event stream"
// @Router /v1/api/sessions/{id}/query [post]
func (hdl *HTTPHandler) SendQuery(c *fiber.Ctx) error {
	var request QueryRequest
	if err := c.BodyParser(&request); err != nil {
		logrus.Errorln(err)
		return c.Status(fiber.StatusBadRequest).JSON(ResponseBody{Status: BadRequest})
	}
	if err := hdl.validator.ValidateStruct(request); err != nil {
		msg := ResponseBody{Status: BadRequest}
		msg.Status.Message = []string{err.Error()}
		return c.Status(fiber.StatusBadRequest).JSON(msg)
	}
	if id := c.Params("id"); id != "" {
		request.SessionID = id
	}

	// the stream outlives the handler, so it gets its own context
	ctx, cancel := context.WithCancel(context.Background())
	events, err := hdl.repo.SendQuery(ctx, request.SessionID, request.Query)
	if err != nil {
		cancel()
		logrus.Errorln(err)
		code, body := errorResponse(err)
		return c.Status(code).JSON(body)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		for event := range events {
			payload, err := json.Marshal(toStreamEventResponse(event))
			if err != nil {
				logrus.Errorf("Failed to encode stream event: %v", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Kind, payload)
			if err := w.Flush(); err != nil {
				logrus.Warnf("Stream client disconnected: %v", err)
				return
			}
		}
	}))
	return nil
}

func (hdl *HTTPHandler) currentID() string {
	if current := hdl.repo.CurrentSession(); current != nil {
		return current.SessionID
	}
	return ""
}
