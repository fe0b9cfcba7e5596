package ui

import (
	"strings"

	pretty "github.com/jedib0t/go-pretty/v6/table"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/mindconnect/internal/store"
)

func newReport(title string) pretty.Writer {
	t := pretty.NewWriter()
	t.SetTitle(title)
	t.SetStyle(pretty.StyleRounded)
	return t
}

// SessionsView lists consultation sessions in the order given.
func SessionsView(sessions []store.Session) string {
	if len(sessions) == 0 {
		return MutedStyle.Render("No sessions")
	}

	t := newReport("Sessions")
	t.AppendHeader(pretty.Row{"ID", "Room", "Patient", "Therapist", "Status", "Started", "Ended"})
	for _, s := range sessions {
		t.AppendRow(pretty.Row{
			truncate(s.ID, 12),
			s.RoomID,
			s.PatientID,
			orDash(s.TherapistID),
			string(s.Status),
			formatTime(s.StartTime),
			formatTime(s.EndTime),
		})
	}
	t.AppendFooter(pretty.Row{"", "", "", "", "Total", len(sessions)})
	return t.Render()
}

// ICEServersView lists ICE servers without revealing credentials.
func ICEServersView(servers []webrtc.ICEServer) string {
	t := newReport("ICE servers")
	t.AppendHeader(pretty.Row{"#", "URLs", "Username", "Credential"})
	for i, s := range servers {
		cred := "-"
		if s.Credential != nil && s.Credential != "" {
			cred = "set"
		}
		t.AppendRow(pretty.Row{i + 1, strings.Join(s.URLs, "\n"), orDash(s.Username), cred})
	}
	return t.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
