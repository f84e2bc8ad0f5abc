package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"session-sync/configs"
	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
	"session-sync/pkg/validator"
)

// Compile-time check to ensure Client implements the output port
var _ output.SessionBackend = (*Client)(nil)

// Defaults applied when the configuration leaves a field empty
const (
	DefaultBaseURL    = "http://localhost:8000/claude"
	DefaultStatsPath  = "/session-stats"
	DefaultStreamPath = "/stream"
	DefaultTimeout    = 30 * time.Second
)

// Client struct - Output adapter for the remote session backend.
// It classifies failures and never retries; callers own the retry policy.
type Client struct {
	httpClient *http.Client
	baseURL    string
	statsPath  string
	timeout    time.Duration
	validate   validator.Validator
	log        *logrus.Entry
}

// NewClient func - Creates new backend client
func NewClient(config configs.Backend) (*Client, error) {
	baseURL, err := normalizeBaseURL(config.BaseURL)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(config.TimeoutSeconds) * time.Second
	if config.TimeoutSeconds <= 0 {
		timeout = DefaultTimeout
	}

	statsPath := config.StatsPath
	if statsPath == "" {
		statsPath = DefaultStatsPath
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(),
		},
		baseURL:   baseURL,
		statsPath: "/" + strings.TrimPrefix(statsPath, "/"),
		timeout:   timeout,
		validate:  validator.New(),
		log:       logrus.WithField("component", "backend-client"),
	}

	logrus.Infof("Session backend client initialized with base URL: %s, timeout: %v", baseURL, timeout)
	return client, nil
}

func normalizeBaseURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		raw = DefaultBaseURL
	}
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid backend base url %q", domain.ErrInvalidRequest, raw)
	}
	return strings.TrimSuffix(parsed.String(), "/"), nil
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// CreateSession func
func (c *Client) CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error) {
	if err := c.validate.ValidateStruct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}

	body := createSessionWire{
		UserID:        request.UserID,
		SessionName:   request.Name,
		ClaudeOptions: request.Options,
	}
	if request.WorkingContext != nil && *request.WorkingContext != "" {
		body.Context = map[string]domain.Value{workingContextKey: domain.StringValue(*request.WorkingContext)}
	}

	var wire sessionWire
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, body, &wire); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session := wire.toDomain()
	if session.WorkingContext == "" && request.WorkingContext != nil {
		session.WorkingContext = *request.WorkingContext
	}
	c.log.WithField("session_id", session.SessionID).Info("Session created")
	return &session, nil
}

// GetSession func
func (c *Client) GetSession(ctx context.Context, userID, sessionID string, includeHistory bool) (*domain.Session, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user id and session id are required", domain.ErrInvalidRequest)
	}
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("include_history", strconv.FormatBool(includeHistory))

	var wire sessionWire
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID), query, nil, &wire); err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	session := wire.toDomain()
	if !includeHistory {
		session.History = nil
	}
	return &session, nil
}

// ListSessions func
func (c *Client) ListSessions(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error) {
	if err := c.validate.ValidateStruct(request); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	query := url.Values{}
	query.Set("user_id", request.UserID)
	query.Set("limit", strconv.Itoa(request.Limit))
	query.Set("offset", strconv.Itoa(request.Offset))
	if request.StatusFilter != nil {
		query.Set("status_filter", string(*request.StatusFilter))
	}

	var wire sessionListWire
	if err := c.do(ctx, http.MethodGet, "/sessions", query, nil, &wire); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	result := &domain.ListSessionsResult{
		Sessions:   make([]domain.Session, 0, len(wire.Sessions)),
		TotalCount: wire.TotalCount,
		HasMore:    wire.HasMore,
		NextOffset: wire.NextOffset,
	}
	for _, s := range wire.Sessions {
		session := s.toDomain()
		// list pages carry summaries; history comes from GetSession
		session.History = nil
		result.Sessions = append(result.Sessions, session)
	}
	return result, nil
}

// DeleteSession func
func (c *Client) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if userID == "" || sessionID == "" {
		return fmt.Errorf("%w: user id and session id are required", domain.ErrInvalidRequest)
	}
	query := url.Values{}
	query.Set("user_id", userID)
	if err := c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), query, nil, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	c.log.WithField("session_id", sessionID).Info("Session deleted")
	return nil
}

// GetSessionStats func - the stats payload is loosely typed, decoded with mapstructure
func (c *Client) GetSessionStats(ctx context.Context) (*domain.SessionStats, error) {
	var raw map[string]interface{}
	if err := c.do(ctx, http.MethodGet, c.statsPath, nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}

	var wire statsWire
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &wire,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode session stats: %w", err)
	}

	stats := &domain.SessionStats{
		ActiveSessions:         wire.ActiveSessions,
		SessionTimeoutSeconds:  wire.SessionTimeoutSeconds,
		CleanupIntervalSeconds: wire.CleanupIntervalSeconds,
		CleanupTaskRunning:     wire.CleanupTaskRunning,
		OldestSessionAge:       time.Duration(wire.OldestSessionAge * float64(time.Second)),
	}
	if wire.Timestamp != "" {
		var ts wireTime
		if err := ts.UnmarshalJSON([]byte(strconv.Quote(wire.Timestamp))); err == nil {
			stats.Timestamp = ts.Time
		}
	}
	return stats, nil
}

// do performs one round trip. A nil out discards the body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal request: %v", domain.ErrInvalidRequest, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrInvalidRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(resp.StatusCode, data)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTransientError(err) {
			return fmt.Errorf("%w: read response: %v", domain.ErrTransientNetwork, err)
		}
		return fmt.Errorf("%w: decode response: %v", domain.ErrBackendUnavailable, err)
	}
	return nil
}
