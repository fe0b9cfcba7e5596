package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/mindconnect/internal/store"
)

const (
	maxChatLines = 500
	notePrefix   = "/note "
)

// Messages the chat view accepts from outside the program.
type (
	// ChatMsg is a stored chat record broadcast by the relay.
	ChatMsg store.ChatMessage

	// NoteMsg is a direct data channel note from the peer.
	NoteMsg struct {
		From string
		Text string
	}

	PeerMsg struct {
		ID     string
		Joined bool
	}

	// StatusMsg is the relay connection state.
	StatusMsg string

	ErrorMsg string
)

type ChatOptions struct {
	Self   string
	RoomID string

	// OnSend posts a chat line to the relay.
	OnSend func(text string) error
	// OnNote sends a line over the peer data channel. Lines starting with
	// "/note " go here when it is set.
	OnNote func(text string) error
}

type chatModel struct {
	opts    ChatOptions
	input   textinput.Model
	spinner spinner.Model
	status  string
	lines   []string
	seen    map[string]bool
	height  int
	done    bool
}

func newChatModel(opts ChatOptions) *chatModel {
	in := textinput.New()
	in.Placeholder = "Type a message, /note for a direct note"
	in.CharLimit = 2000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = SpinnerStyle

	return &chatModel{
		opts:    opts,
		input:   in,
		spinner: sp,
		status:  "connecting",
		seen:    make(map[string]bool),
		height:  20,
	}
}

func (m *chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.done = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m, m.submit()
		}

	case tea.WindowSizeMsg:
		m.height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ChatMsg:
		// The sender's own line comes back in the broadcast, and history may
		// overlap with live records.
		if msg.ID != "" {
			if m.seen[msg.ID] {
				return m, nil
			}
			m.seen[msg.ID] = true
		}
		m.addChat(store.ChatMessage(msg))
		return m, nil

	case NoteMsg:
		m.add(fmt.Sprintf("%s %s %s", IconNote, PeerStyle.Render(msg.From), NoteStyle.Render(msg.Text)))
		return m, nil

	case PeerMsg:
		if msg.Joined {
			m.add(SystemStyle.Render(fmt.Sprintf("%s %s joined", IconPeer, msg.ID)))
		} else {
			m.add(SystemStyle.Render(fmt.Sprintf("%s %s left", IconPeer, msg.ID)))
		}
		return m, nil

	case StatusMsg:
		m.status = string(msg)
		return m, nil

	case ErrorMsg:
		m.add(ErrorStyle.Render(fmt.Sprintf("%s %s", IconError, string(msg))))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *chatModel) submit() tea.Cmd {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	m.input.Reset()

	send := m.opts.OnSend
	if m.opts.OnNote != nil && strings.HasPrefix(text, notePrefix) {
		text = strings.TrimSpace(strings.TrimPrefix(text, notePrefix))
		send = m.opts.OnNote
		m.add(fmt.Sprintf("%s %s %s", IconNote, SelfStyle.Render(m.opts.Self), NoteStyle.Render(text)))
	}
	if send == nil {
		return nil
	}
	return func() tea.Msg {
		if err := send(text); err != nil {
			return ErrorMsg(err.Error())
		}
		return nil
	}
}

func (m *chatModel) addChat(c store.ChatMessage) {
	who := PeerStyle.Render(c.SenderID)
	if c.SenderID == m.opts.Self {
		who = SelfStyle.Render(c.SenderID)
	}
	if c.Kind == store.MessageSystem {
		m.add(SystemStyle.Render(c.Body))
		return
	}
	ts := MutedStyle.Render(c.CreatedAt.Local().Format(time.Kitchen))
	m.add(fmt.Sprintf("%s %s %s", ts, who, c.Body))
}

func (m *chatModel) add(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxChatLines {
		m.lines = m.lines[len(m.lines)-maxChatLines:]
	}
}

func (m *chatModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder

	state := m.status
	if state != "connected" {
		state = m.spinner.View() + " " + state
	}
	fmt.Fprintf(&b, "%s %s  %s\n\n", IconChat, StatusStyle.Render(m.opts.RoomID), MutedStyle.Render(state))

	lines := m.lines
	if len(lines) > m.height {
		lines = lines[len(lines)-m.height:]
	}
	for _, l := range lines {
		b.WriteString(l + "\n")
	}

	b.WriteString("\n" + m.input.View())
	return b.String()
}

// ChatUI runs the chat view. Producers on other goroutines feed it with
// Post.
type ChatUI struct {
	program *tea.Program
}

func NewChatUI(opts ChatOptions) *ChatUI {
	return &ChatUI{program: tea.NewProgram(newChatModel(opts))}
}

// Run blocks until the user quits or Quit is called.
func (u *ChatUI) Run() error {
	_, err := u.program.Run()
	return err
}

// Post delivers one of ChatMsg, NoteMsg, PeerMsg, StatusMsg or ErrorMsg.
func (u *ChatUI) Post(msg tea.Msg) {
	u.program.Send(msg)
}

func (u *ChatUI) Quit() {
	u.program.Quit()
}
