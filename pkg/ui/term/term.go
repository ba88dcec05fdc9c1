// Package term implements ui.ChatUI for interactive terminals using the
// Charm bubbletea framework: a scrollable transcript, a text input prompt,
// a busy spinner, and Markdown rendering via glamour.
package term

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	// Packages
	spinner "github.com/charmbracelet/bubbles/spinner"
	textinput "github.com/charmbracelet/bubbles/textinput"
	viewport "github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	glamour "github.com/charmbracelet/glamour"
	lipgloss "github.com/charmbracelet/lipgloss"
	wordwrap "github.com/muesli/reflow/wordwrap"
	termenv "github.com/muesli/termenv"

	ui "github.com/optimade-mcp/chat/pkg/ui"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// Terminal implements ui.ChatUI for interactive terminal sessions
type Terminal struct {
	program *tea.Program
	events  chan ui.Event
	done    chan struct{} // closed when the program exits
	mu      sync.Mutex
	err     error // error from program.Run
}

// model is the bubbletea model managing the TUI state
type model struct {
	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	entries   []entry
	typing    bool
	width     int
	ready     bool
	quitting  bool
	events    chan<- ui.Event
	renderer  *glamour.TermRenderer
	stylePath string // glamour style, detected before the TUI starts
	ctx       *termContext
}

type entry struct {
	role      string // "you", "assistant", "system", "error"
	text      string // rendered text
	raw       string // raw text, re-rendered on resize
	glamoured bool
}

// termContext implements ui.Context by sending messages into the program
type termContext struct {
	program *tea.Program
}

///////////////////////////////////////////////////////////////////////////////
// MESSAGES (bubbletea internal)

type appendMsg struct {
	role string
	text string
}

type typingMsg struct {
	typing bool
}

///////////////////////////////////////////////////////////////////////////////
// STYLES

var (
	youStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	systemStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates a terminal chat UI. The UI takes over the terminal and
// should be closed when done.
func New() (*Terminal, error) {
	// Detect the terminal background before starting bubbletea, so the
	// escape-sequence response does not leak into its input reader
	stylePath := "dark"
	if !termenv.HasDarkBackground() {
		stylePath = "light"
	}

	ti := textinput.New()
	ti.Placeholder = "Ask about materials, or type help..."
	ti.Focus()
	ti.CharLimit = 0

	events := make(chan ui.Event, 1)
	m := &model{
		input:     ti,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		events:    events,
		stylePath: stylePath,
		ctx:       &termContext{},
	}

	t := &Terminal{
		events: events,
		done:   make(chan struct{}),
	}
	t.program = tea.NewProgram(m, tea.WithAltScreen())
	m.ctx.program = t.program

	// Run the TUI in a background goroutine
	go func() {
		defer close(t.done)
		if _, err := t.program.Run(); err != nil {
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
		}
		close(events)
	}()

	return t, nil
}

// Close shuts down the terminal UI
func (t *Terminal) Close() error {
	t.program.Quit()
	<-t.done
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Receive blocks until the next user event or until the context is cancelled
func (t *Terminal) Receive(ctx context.Context) (ui.Event, error) {
	select {
	case <-ctx.Done():
		return ui.Event{}, ctx.Err()
	case evt, ok := <-t.events:
		if !ok {
			t.mu.Lock()
			err := t.err
			t.mu.Unlock()
			if err != nil {
				return ui.Event{}, err
			}
			return ui.Event{}, io.EOF
		}
		return evt, nil
	}
}

func (c *termContext) SendText(_ context.Context, text string) error {
	c.program.Send(appendMsg{role: "system", text: text})
	return nil
}

func (c *termContext) SendMarkdown(_ context.Context, markdown string) error {
	c.program.Send(appendMsg{role: "assistant", text: markdown})
	return nil
}

func (c *termContext) SendError(_ context.Context, err error) error {
	c.program.Send(appendMsg{role: "error", text: err.Error()})
	return nil
}

func (c *termContext) SetTyping(_ context.Context, typing bool) error {
	c.program.Send(typingMsg{typing: typing})
	return nil
}

///////////////////////////////////////////////////////////////////////////////
// BUBBLETEA MODEL

func (m *model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.SetValue("")
			m.entries = append(m.entries, entry{role: "you", text: text})
			m.updateViewport()
			m.events <- parseEvent(m.ctx, text)
			return m, nil
		}

	case tea.WindowSizeMsg:
		footerHeight := 2 // input + status line
		m.width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.input.Width = msg.Width - 4

		// Recreate the renderer at the new width and re-render
		m.newRenderer()
		m.rerender()
		m.updateViewport()
		return m, nil

	case appendMsg:
		m.entries = append(m.entries, m.render(msg.role, msg.text))
		m.typing = false
		m.updateViewport()
		return m, nil

	case typingMsg:
		m.typing = msg.typing
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update text input
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	// Forward navigation keys to the viewport for scrolling, but block
	// typing keys so the viewport does not jump on each keystroke
	if keyMsg, isKey := msg.(tea.KeyMsg); isKey {
		switch keyMsg.Type {
		case tea.KeyUp, tea.KeyDown, tea.KeyPgUp, tea.KeyPgDown, tea.KeyHome, tea.KeyEnd:
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	var status string
	if m.typing {
		status = dimStyle.Render(m.spinner.View() + " thinking...")
	} else {
		status = dimStyle.Render("ctrl+c to quit")
	}

	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), m.input.View(), status)
}

///////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

// render produces a transcript entry, passing assistant and system text
// through glamour when possible
func (m *model) render(role, text string) entry {
	e := entry{role: role, text: text, raw: text}
	if (role == "assistant" || role == "system") && m.renderer != nil {
		if out, err := m.renderer.Render(text); err == nil {
			e.text = strings.TrimSpace(out)
			e.glamoured = true
		}
	}
	return e
}

// rerender re-renders Markdown entries with the current renderer, after a
// terminal resize
func (m *model) rerender() {
	if m.renderer == nil {
		return
	}
	for i := range m.entries {
		if !m.entries[i].glamoured || m.entries[i].raw == "" {
			continue
		}
		if out, err := m.renderer.Render(m.entries[i].raw); err == nil {
			m.entries[i].text = strings.TrimSpace(out)
		}
	}
}

func (m *model) newRenderer() {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(m.stylePath),
		glamour.WithWordWrap(m.wrapWidth()),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m *model) wrapWidth() int {
	const margin = 14
	return max(m.width-margin, 20)
}

func (m *model) updateViewport() {
	var b strings.Builder
	for _, e := range m.entries {
		b.WriteString(m.styleRole(e.role))
		if e.text != "" {
			if e.glamoured {
				b.WriteString("\n" + e.text)
			} else {
				b.WriteString("\n" + indent(wordwrap.String(e.text, m.wrapWidth())))
			}
		}
		b.WriteString("\n\n")
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *model) styleRole(role string) string {
	switch role {
	case "you":
		return youStyle.Render(role + ":")
	case "assistant":
		return assistantStyle.Render(role + ":")
	case "system":
		return systemStyle.Render(role + ":")
	case "error":
		return errorStyle.Render(role + ":")
	default:
		return role + ":"
	}
}

// indent gives every line a 2-space left margin, matching glamour's default
func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "  ") {
			lines[i] = "  " + line
		}
	}
	return strings.Join(lines, "\n")
}
