// ABOUTME: Server TUI for displaying audio sessions and block progress
// ABOUTME: Real-time server status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	lagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

// lagWarnBlocks marks a session whose client trails this many unconfirmed blocks
const lagWarnBlocks = 8

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}

	mu      sync.Mutex
	stopped bool
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name       string
	Port       int
	Uptime     time.Duration
	AudioTitle string
	Formats    []string
	Clients    []ClientInfo
}

// ClientInfo holds session information for display
type ClientInfo struct {
	Addr          string
	ID            string
	Format        string
	State         string
	Version       uint16
	BlockNo       uint8
	LastConfirmed uint8
	Confirmations uint64
	PDUsSent      uint64
	BytesSent     uint64
}

// InFlight counts blocks sent but not yet confirmed, modulo the 8-bit
// block counter
func (c ClientInfo) InFlight() uint8 {
	if c.Confirmations == 0 {
		return c.BlockNo
	}
	return c.BlockNo - c.LastConfirmed - 1
}

type tuiModel struct {
	status   ServerStatus
	quitting bool
	quitChan chan struct{}
}

type statusMsg ServerStatus

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case statusMsg:
		m.status = ServerStatus(msg)
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down server...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Audio Output Server"))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Uptime", m.status.Uptime.Round(time.Second).String())
	field("Playing", m.status.AudioTitle)
	if len(m.status.Formats) > 0 {
		field("Offering", strings.Join(m.status.Formats, ", "))
	}
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render(fmt.Sprintf("Sessions (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	}
	for _, client := range m.status.Clients {
		renderSession(&b, client)
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

func renderSession(b *strings.Builder, c ClientInfo) {
	fmt.Fprintf(b, "  * %s [%s]", c.Addr, shortID(c.ID))
	b.WriteString(valueStyle.Render(fmt.Sprintf(" %s, v%d", c.State, c.Version)))
	if c.Format != "" {
		b.WriteString(valueStyle.Render(", " + c.Format))
	}
	b.WriteString("\n")

	progress := fmt.Sprintf("      block %d, confirmed %d, %d PDUs, %s",
		c.BlockNo, c.LastConfirmed, c.PDUsSent, formatBytes(c.BytesSent))
	b.WriteString(valueStyle.Render(progress))

	if lag := c.InFlight(); lag >= lagWarnBlocks {
		b.WriteString(lagStyle.Render(fmt.Sprintf(" (%d unconfirmed)", lag)))
	}
	b.WriteString("\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// NewServerTUI creates a new server TUI
func NewServerTUI(serverName string, port int) *ServerTUI {
	t := &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
	t.program = tea.NewProgram(tuiModel{
		status: ServerStatus{
			Name:       serverName,
			Port:       port,
			AudioTitle: "Initializing...",
		},
		quitChan: t.quitChan,
	}, tea.WithAltScreen())
	return t
}

// Start runs the TUI until it quits or Stop is called
func (t *ServerTUI) Start() error {
	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI without blocking
func (t *ServerTUI) Update(status ServerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	select {
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	t.program.Quit()
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
