package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/BioHazard786/mindconnect/internal/store"
)

const timeLayout = "2006-01-02 15:04"

func styledTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		}).
		Render()
}

// ChatHistoryView renders stored chat records oldest first.
func ChatHistoryView(msgs []store.ChatMessage) string {
	if len(msgs) == 0 {
		return MutedStyle.Render("No messages")
	}

	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, []string{
			m.CreatedAt.Local().Format(timeLayout),
			truncate(m.SenderID, 20),
			string(m.Kind),
			truncate(m.Body, 60),
		})
	}
	return styledTable([]string{"Time", "Sender", "Kind", "Message"}, rows)
}

// RoomInfo is the box shown after a room has been provisioned.
type RoomInfo struct {
	RoomID    string
	SessionID string
	JoinHint  string
}

func (r RoomInfo) View() string {
	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room ready!\n\n%s Room ID:     %s\n%s Session ID:  %s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconCopy, r.SessionID,
	)
	if r.JoinHint != "" {
		content += fmt.Sprintf("\n%s Join with:   %s", IconWeb, MutedStyle.Render(r.JoinHint))
	}
	return box.Render(content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(timeLayout)
}
