package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"session-sync/internal/domain"
)

func sampleSessions() []domain.Session {
	name := "refactor"
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return []domain.Session{
		{
			SessionID:    "sess-1",
			Name:         &name,
			Status:       domain.SessionStatusActive,
			CreatedAt:    at,
			LastActiveAt: at.Add(time.Hour),
			MessageCount: 2,
			History: []domain.Message{
				{ID: "m1", Role: domain.MessageRoleUser, Content: "hello", Timestamp: at},
				{ID: "m2", Role: domain.MessageRoleAssistant, Content: "hi there", Timestamp: at.Add(time.Second)},
			},
		},
		{
			SessionID:    "sess-2",
			Status:       domain.SessionStatusPaused,
			CreatedAt:    at,
			LastActiveAt: at,
		},
	}
}

func TestNewPrinterRejectsUnknownFormat(t *testing.T) {
	_, err := newPrinter(&bytes.Buffer{}, "xml")
	assert.Error(t, err)

	p, err := newPrinter(&bytes.Buffer{}, " JSON ")
	require.NoError(t, err)
	assert.Equal(t, formatJSON, p.format)

	p, err = newPrinter(&bytes.Buffer{}, "")
	require.NoError(t, err)
	assert.Equal(t, formatTable, p.format)
}

func TestSessionsTable(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatTable)

	require.NoError(t, p.Sessions(sampleSessions(), "sess-2"))

	out := buf.String()
	assert.Contains(t, out, "LAST ACTIVE")
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "refactor")
	assert.Contains(t, out, "paused")
}

func TestSessionsTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatTable)

	require.NoError(t, p.Sessions(nil, ""))
	assert.Equal(t, "No sessions\n", buf.String())
}

func TestSessionsJSONOmitsHistory(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatJSON)

	require.NoError(t, p.Sessions(sampleSessions(), "sess-1"))

	var views []sessionView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &views))
	require.Len(t, views, 2)
	assert.True(t, views[0].Current)
	assert.False(t, views[1].Current)
	assert.Empty(t, views[0].Messages)
	assert.Equal(t, "refactor", views[0].Name)
}

func TestSessionYAMLIncludesHistory(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatYAML)

	require.NoError(t, p.Session(sampleSessions()[0], ""))

	var view sessionView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, "sess-1", view.SessionID)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, "assistant", view.Messages[1].Role)
	assert.Contains(t, buf.String(), "session_id: sess-1")
}

func TestSessionTableShowsHistory(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatTable)

	require.NoError(t, p.Session(sampleSessions()[0], "sess-1"))

	out := buf.String()
	assert.Contains(t, out, "CONTENT")
	assert.Contains(t, out, "hi there")
}

func TestStatusHidesErrorWhenHealthy(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatJSON)
	stats := &domain.SessionStats{ActiveSessions: 3, OldestSessionAge: 90 * time.Second}

	require.NoError(t, p.Status(domain.ConnectionConnected, errors.New("old failure"), stats))

	var view statusView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, "connected", view.Status)
	assert.Empty(t, view.LastError)
	require.NotNil(t, view.Stats)
	assert.Equal(t, 3, view.Stats.ActiveSessions)
	assert.Equal(t, "1m30s", view.Stats.OldestSessionAge)
}

func TestStatusTableShowsError(t *testing.T) {
	var buf bytes.Buffer
	p, _ := newPrinter(&buf, formatTable)

	require.NoError(t, p.Status(domain.ConnectionError, errors.New("connection refused"), nil))

	assert.Contains(t, buf.String(), "connection refused")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b", truncate("a\nb", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{{"serve"}, {"status"}, {"sessions", "list"}, {"sessions", "create"}, {"sessions", "show"}, {"sessions", "switch"}, {"sessions", "delete"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("output"))
}
