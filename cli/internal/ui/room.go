package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BioHazard786/Huddle/cli/internal/chat"
	"github.com/BioHazard786/Huddle/cli/internal/peer"
	"github.com/BioHazard786/Huddle/internal/protocol"
)

// chatLines is how much of the transcript the room view shows.
const chatLines = 12

// Room is what the room view needs from a joined session.
type Room interface {
	RoomID() string
	SelfID() string
	Roster() []protocol.User
	Links() []peer.LinkInfo
	Messages() []chat.Message
	HasMedia() bool
	Muted() bool
	VideoOff() bool
	Updates() <-chan struct{}
	Done() <-chan struct{}

	SendChat(text string) error
	SetMuted(muted bool) error
	SetVideoOff(off bool) error
}

type (
	roomUpdateMsg struct{}
	roomClosedMsg struct{}
)

// RoomModel is the interactive view of one room: who is here, how each
// link is doing, and the chat.
type RoomModel struct {
	room    Room
	input   textinput.Model
	spinner spinner.Model
	status  string
	width   int
	closed  bool
}

func NewRoomModel(room Room) RoomModel {
	in := textinput.New()
	in.Placeholder = "Say something, or /mute /unmute /video /novideo /quit"
	in.CharLimit = 500
	in.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return RoomModel{room: room, input: in, spinner: s, width: 80}
}

// RunRoom shows the room until the user quits or the session ends.
func RunRoom(room Room) error {
	_, err := tea.NewProgram(NewRoomModel(room), tea.WithAltScreen()).Run()
	return err
}

func (m RoomModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForRoom(m.room))
}

func waitForRoom(room Room) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-room.Updates():
			return roomUpdateMsg{}
		case <-room.Done():
			return roomClosedMsg{}
		}
	}
}

func (m RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			if quit := m.submit(line); quit {
				return m, tea.Quit
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, msg.Width-6)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case roomUpdateMsg:
		return m, waitForRoom(m.room)

	case roomClosedMsg:
		m.closed = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles one line of input. It reports whether the user asked to quit.
func (m *RoomModel) submit(line string) bool {
	var err error
	switch line {
	case "/quit", "/leave":
		return true
	case "/mute":
		err = m.room.SetMuted(true)
	case "/unmute":
		err = m.room.SetMuted(false)
	case "/video":
		err = m.room.SetVideoOff(false)
	case "/novideo":
		err = m.room.SetVideoOff(true)
	default:
		if strings.HasPrefix(line, "/") {
			m.status = "unknown command " + line
			return false
		}
		err = m.room.SendChat(line)
	}

	if err != nil {
		m.status = err.Error()
	} else {
		m.status = ""
	}
	return false
}

func (m RoomModel) View() string {
	var b strings.Builder

	header := fmt.Sprintf("%s Room %s", IconRoom, m.room.RoomID())
	b.WriteString(HeaderStyle.Render(header))
	b.WriteString("\n\n")

	links := m.room.Links()
	negotiating := false
	for _, l := range links {
		if l.State == peer.StateNegotiating {
			negotiating = true
		}
	}

	peers := LinksView(links)
	if !m.room.HasMedia() {
		peers = lipgloss.JoinVertical(lipgloss.Left,
			m.rosterView(),
			WarningStyle.Render(IconWarning+" No local media: chat only"),
		)
	}
	if negotiating {
		peers = lipgloss.JoinVertical(lipgloss.Left, peers, m.spinner.View()+" connecting...")
	}
	b.WriteString(PanelStyle.Render(peers))
	b.WriteString("\n")

	b.WriteString(PanelStyle.Width(max(20, m.width-4)).Render(m.chatView()))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(ErrorStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(FooterStyle.Render(m.mediaStatus() + "  ·  esc to leave"))

	if m.closed {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("Disconnected from the signaling server"))
	}
	return b.String()
}

func (m RoomModel) rosterView() string {
	var names []string
	for _, u := range m.room.Roster() {
		style := ChatUserStyle
		if u.ID == m.room.SelfID() {
			style = SelfUserStyle
		}
		names = append(names, IconPeer+" "+style.Render(u.Name))
	}
	return strings.Join(names, "\n")
}

func (m RoomModel) chatView() string {
	msgs := m.room.Messages()
	if len(msgs) == 0 {
		return MutedStyle.Render(IconChat + " No messages yet")
	}
	if len(msgs) > chatLines {
		msgs = msgs[len(msgs)-chatLines:]
	}

	self := m.room.SelfID()
	selfName := ""
	for _, u := range m.room.Roster() {
		if u.ID == self {
			selfName = u.Name
		}
	}

	lines := make([]string, len(msgs))
	for i, msg := range msgs {
		style := ChatUserStyle
		if msg.User == selfName {
			style = SelfUserStyle
		}
		lines[i] = fmt.Sprintf("%s %s %s",
			MutedStyle.Render(msg.Timestamp.Local().Format(time.Kitchen)),
			style.Render(msg.User+":"),
			msg.Text,
		)
	}
	return strings.Join(lines, "\n")
}

func (m RoomModel) mediaStatus() string {
	if !m.room.HasMedia() {
		return IconMuted + " no media"
	}
	mic := IconMic + " live"
	if m.room.Muted() {
		mic = IconMuted + " muted"
	}
	cam := IconCamera + " on"
	if m.room.VideoOff() {
		cam = IconCamOff + " off"
	}
	return mic + "  " + cam
}
