package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"session-sync/configs"
	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
	"session-sync/pkg/backoff"
	"session-sync/pkg/validator"
)

// Compile-time check to ensure StreamClient implements the output port
var _ output.StreamClient = (*StreamClient)(nil)

// Streaming configuration constants
const (
	streamingChannelBufferSize = 100
	maxSSELineSize             = 1 << 20
)

// backend chunk types that carry content for a side channel
var channelChunkTypes = map[string]bool{
	"assistant":   true,
	"thinking":    true,
	"tool":        true,
	"tool_result": true,
	"system":      true,
}

// StreamClient struct - Output adapter for the server-push query channel
type StreamClient struct {
	httpClient *http.Client
	baseURL    string
	streamPath string
	policy     backoff.Policy
	validate   validator.Validator
	now        func() time.Time
}

// NewStreamClient func - policy governs reconnect attempts before the first event
func NewStreamClient(config configs.Backend, policy backoff.Policy) (*StreamClient, error) {
	baseURL, err := normalizeBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}
	streamPath := config.StreamPath
	if streamPath == "" {
		streamPath = DefaultStreamPath
	}
	if policy.Retryable == nil {
		policy.Retryable = domain.IsRetryable
	}
	if policy.Name == "" {
		policy.Name = "stream"
	}

	transport := newTransport()
	transport.ResponseHeaderTimeout = 30 * time.Second
	return &StreamClient{
		// no overall timeout: a response may stream for minutes
		httpClient: &http.Client{Transport: transport},
		baseURL:    baseURL,
		streamPath: "/" + strings.TrimPrefix(streamPath, "/"),
		policy:     policy,
		validate:   validator.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// StreamQuery opens the stream in a goroutine and returns the event channel.
// Attempts that fail before any event was delivered are retried with the
// policy; once content has been delivered a failure ends the stream with an
// error event wrapping domain.ErrStreamInterrupted.
func (s *StreamClient) StreamQuery(ctx context.Context, request domain.StreamRequest) (<-chan domain.StreamEvent, error) {
	if err := s.validate.ValidateStruct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	body, err := json.Marshal(streamRequestWire{
		Query:     request.Query,
		SessionID: request.SessionID,
		UserID:    request.UserID,
		Stream:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal stream request: %v", domain.ErrInvalidRequest, err)
	}

	events := make(chan domain.StreamEvent, streamingChannelBufferSize)
	log := logrus.WithFields(logrus.Fields{
		"component":  "stream-client",
		"session_id": request.SessionID,
		"stream_id":  uuid.NewString(),
	})
	st := &streamRun{
		client:  s,
		ctx:     ctx,
		request: request,
		body:    body,
		events:  events,
		log:     log,
	}
	go st.run()
	return events, nil
}

// streamRun is the state of one StreamQuery call across reconnect attempts
type streamRun struct {
	client    *StreamClient
	ctx       context.Context
	request   domain.StreamRequest
	body      []byte
	events    chan<- domain.StreamEvent
	delivered bool
	log       *logrus.Entry
}

func (st *streamRun) run() {
	defer func() {
		close(st.events)
		st.log.Debug("Streaming response processing completed, channel closed")
	}()

	err := st.client.policy.Do(st.ctx, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			st.log.Infof("Reconnecting stream, attempt %d", attempt)
		}
		return st.attempt(ctx)
	})
	if err == nil || st.ctx.Err() != nil {
		return
	}

	reason := err
	if st.delivered && !errors.Is(err, domain.ErrStreamInterrupted) {
		reason = fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)
	}
	st.log.Warnf("Stream failed: %v", reason)
	st.send(domain.StreamEvent{
		Kind:      domain.StreamEventError,
		SessionID: st.request.SessionID,
		Reason:    reason.Error(),
		Timestamp: st.client.now(),
	})
}

// attempt runs one connection. A nil return means a terminal event was sent.
func (st *streamRun) attempt(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, st.client.baseURL+st.client.streamPath, bytes.NewReader(st.body))
	if err != nil {
		return fmt.Errorf("%w: build stream request: %v", domain.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := st.client.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return st.afterDelivery(classifyTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return st.afterDelivery(classifyStatus(resp.StatusCode, data))
	}

	return st.consume(ctx, resp.Body)
}

// afterDelivery turns a failure into a non-retryable interruption once
// content has reached the consumer
func (st *streamRun) afterDelivery(err error) error {
	if st.delivered {
		return fmt.Errorf("%w: %v", domain.ErrStreamInterrupted, err)
	}
	return err
}

func (st *streamRun) consume(ctx context.Context, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineSize)

	pendingEvent := ""
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimRight(scanner.Text(), "\r")

		switch {
		case line == "":
			pendingEvent = ""
			continue
		case strings.HasPrefix(line, ":"):
			// keep-alive
			continue
		case strings.HasPrefix(line, "event:"):
			pendingEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case !strings.HasPrefix(line, "data:"):
			// id:, retry:
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			st.send(st.event(domain.StreamEventComplete, streamChunkWire{}))
			return nil
		}

		event, ok, err := st.parse(pendingEvent, data)
		if err != nil {
			st.log.Warnf("Error parsing SSE line: %v, line: %s", err, line)
			continue
		}
		if !ok {
			continue
		}
		if !st.send(event) {
			return ctx.Err()
		}
		st.delivered = true
		if event.Kind.IsTerminal() {
			return nil
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return st.afterDelivery(fmt.Errorf("%w: stream ended before completion: %v", domain.ErrTransientNetwork, err))
}

// parse turns one data payload into an event. chunk_type in the payload wins
// over the preceding event: line; with neither the payload is a delta.
func (st *streamRun) parse(eventName, data string) (domain.StreamEvent, bool, error) {
	var chunk streamChunkWire
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return domain.StreamEvent{}, false, fmt.Errorf("failed to parse SSE JSON: %w", err)
	}

	kind := chunk.ChunkType
	if kind == "" {
		kind = eventName
	}
	if kind == "" {
		kind = string(domain.StreamEventDelta)
	}

	switch {
	case kind == string(domain.StreamEventStart):
		return st.event(domain.StreamEventStart, chunk), true, nil
	case kind == string(domain.StreamEventDelta):
		return st.event(domain.StreamEventDelta, chunk), true, nil
	case channelChunkTypes[kind]:
		event := st.event(domain.StreamEventDelta, chunk)
		event.Channel = kind
		return event, true, nil
	case kind == string(domain.StreamEventComplete):
		return st.event(domain.StreamEventComplete, chunk), true, nil
	case kind == string(domain.StreamEventError):
		event := st.event(domain.StreamEventError, chunk)
		event.Reason = errorReason(chunk)
		return event, true, nil
	}
	st.log.Debugf("Ignoring unknown chunk type %q", kind)
	return domain.StreamEvent{}, false, nil
}

func (st *streamRun) event(kind domain.StreamEventKind, chunk streamChunkWire) domain.StreamEvent {
	event := domain.StreamEvent{
		Kind:      kind,
		SessionID: st.request.SessionID,
		Timestamp: chunk.Timestamp.Time,
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = st.client.now()
	}
	if chunk.MessageID != nil {
		event.MessageID = *chunk.MessageID
	}
	if chunk.Content != nil {
		event.Text = *chunk.Content
	}
	return event
}

func errorReason(chunk streamChunkWire) string {
	parts := make([]string, 0, 3)
	if chunk.Error != nil && *chunk.Error != "" {
		parts = append(parts, *chunk.Error)
	}
	if chunk.Message != nil && *chunk.Message != "" {
		parts = append(parts, *chunk.Message)
	}
	if chunk.Content != nil && *chunk.Content != "" {
		parts = append(parts, *chunk.Content)
	}
	if len(parts) == 0 {
		return "stream error"
	}
	return strings.Join(parts, ": ")
}

// send blocks until the consumer takes the event or the context ends
func (st *streamRun) send(event domain.StreamEvent) bool {
	select {
	case <-st.ctx.Done():
		return false
	default:
	}
	select {
	case st.events <- event:
		return true
	case <-st.ctx.Done():
		return false
	}
}
