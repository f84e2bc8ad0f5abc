package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"session-sync/internal/domain"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	currentStyle = cellStyle.Foreground(lipgloss.Color("10"))
)

type sessionView struct {
	SessionID      string        `json:"session_id" yaml:"session_id"`
	Name           string        `json:"name" yaml:"name"`
	WorkingContext string        `json:"working_context,omitempty" yaml:"working_context,omitempty"`
	Status         string        `json:"status" yaml:"status"`
	CreatedAt      time.Time     `json:"created_at" yaml:"created_at"`
	LastActiveAt   time.Time     `json:"last_active_at" yaml:"last_active_at"`
	MessageCount   int           `json:"message_count" yaml:"message_count"`
	Current        bool          `json:"current" yaml:"current"`
	Messages       []messageView `json:"messages,omitempty" yaml:"messages,omitempty"`
}

type messageView struct {
	Role      string    `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

type statusView struct {
	Status    string     `json:"status" yaml:"status"`
	LastError string     `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	Stats     *statsView `json:"stats,omitempty" yaml:"stats,omitempty"`
}

type statsView struct {
	ActiveSessions        int     `json:"active_sessions" yaml:"active_sessions"`
	SessionTimeoutSeconds float64 `json:"session_timeout_seconds" yaml:"session_timeout_seconds"`
	CleanupTaskRunning    bool    `json:"cleanup_task_running" yaml:"cleanup_task_running"`
	OldestSessionAge      string  `json:"oldest_session_age" yaml:"oldest_session_age"`
}

// printer renders command results in the format picked with -o
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch format = strings.ToLower(strings.TrimSpace(format)); format {
	case formatTable, formatYAML, formatJSON:
		return &printer{w: w, format: format}, nil
	case "":
		return &printer{w: w, format: formatTable}, nil
	}
	return nil, fmt.Errorf("unknown output format %q, want table, yaml or json", format)
}

func toSessionView(s domain.Session, currentID string) sessionView {
	view := sessionView{
		SessionID:      s.SessionID,
		Name:           s.DisplayName(),
		WorkingContext: s.WorkingContext,
		Status:         string(s.Status),
		CreatedAt:      s.CreatedAt,
		LastActiveAt:   s.LastActiveAt,
		MessageCount:   s.MessageCount,
		Current:        s.SessionID == currentID,
	}
	for _, m := range s.History {
		view.Messages = append(view.Messages, messageView{Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp})
	}
	return view
}

// Sessions prints the session list
func (p *printer) Sessions(sessions []domain.Session, currentID string) error {
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		view := toSessionView(s, currentID)
		view.Messages = nil
		views = append(views, view)
	}
	if p.format != formatTable {
		return p.encode(views)
	}
	if len(views) == 0 {
		_, err := fmt.Fprintln(p.w, "No sessions")
		return err
	}

	rows := make([][]string, 0, len(views))
	currentRow := -1
	for i, v := range views {
		marker := ""
		if v.Current {
			marker = "*"
			currentRow = i
		}
		rows = append(rows, []string{marker, v.SessionID, v.Name, v.Status, strconv.Itoa(v.MessageCount), formatTime(v.LastActiveAt)})
	}
	t := newTable(currentRow).
		Headers("", "ID", "NAME", "STATUS", "MESSAGES", "LAST ACTIVE").
		Rows(rows...)
	_, err := fmt.Fprintln(p.w, t.String())
	return err
}

// Session prints one session and its history
func (p *printer) Session(session domain.Session, currentID string) error {
	view := toSessionView(session, currentID)
	if p.format != formatTable {
		return p.encode(view)
	}

	details := newTable(-1).
		Headers("FIELD", "VALUE").
		Rows(
			[]string{"ID", view.SessionID},
			[]string{"Name", view.Name},
			[]string{"Status", view.Status},
			[]string{"Context", view.WorkingContext},
			[]string{"Created", formatTime(view.CreatedAt)},
			[]string{"Last active", formatTime(view.LastActiveAt)},
			[]string{"Messages", strconv.Itoa(view.MessageCount)},
			[]string{"Current", strconv.FormatBool(view.Current)},
		)
	if _, err := fmt.Fprintln(p.w, details.String()); err != nil {
		return err
	}
	if len(view.Messages) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(view.Messages))
	for _, m := range view.Messages {
		rows = append(rows, []string{formatTime(m.Timestamp), m.Role, truncate(m.Content, 80)})
	}
	history := newTable(-1).Headers("TIME", "ROLE", "CONTENT").Rows(rows...)
	_, err := fmt.Fprintln(p.w, history.String())
	return err
}

// Status prints the connection status and, when available, backend stats
func (p *printer) Status(status domain.ConnectionStatus, lastErr error, stats *domain.SessionStats) error {
	view := statusView{Status: string(status)}
	if lastErr != nil && !status.IsHealthy() {
		view.LastError = lastErr.Error()
	}
	if stats != nil {
		view.Stats = &statsView{
			ActiveSessions:        stats.ActiveSessions,
			SessionTimeoutSeconds: stats.SessionTimeoutSeconds,
			CleanupTaskRunning:    stats.CleanupTaskRunning,
			OldestSessionAge:      stats.OldestSessionAge.Round(time.Second).String(),
		}
	}
	if p.format != formatTable {
		return p.encode(view)
	}

	rows := [][]string{{"Status", view.Status}}
	if view.LastError != "" {
		rows = append(rows, []string{"Last error", view.LastError})
	}
	if view.Stats != nil {
		rows = append(rows,
			[]string{"Active sessions", strconv.Itoa(view.Stats.ActiveSessions)},
			[]string{"Cleanup running", strconv.FormatBool(view.Stats.CleanupTaskRunning)},
			[]string{"Oldest session", view.Stats.OldestSessionAge},
		)
	}
	t := newTable(-1).Headers("FIELD", "VALUE").Rows(rows...)
	_, err := fmt.Fprintln(p.w, t.String())
	return err
}

func (p *printer) encode(v interface{}) error {
	if p.format == formatYAML {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a rounded-border table; highlight is a zero-based data row or -1
func newTable(highlight int) *ltable.Table {
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == ltable.HeaderRow:
				return headerStyle
			case row == highlight:
				return currentStyle
			}
			return cellStyle
		})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
