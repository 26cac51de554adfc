package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/minerba/pkg/assistant"
	"github.com/go-go-golems/minerba/pkg/events"
	"github.com/go-go-golems/minerba/pkg/transcript"
	"github.com/rs/zerolog/log"
)

const (
	inputHeight = 3
	// title, status line, footer and the input border
	chromeHeight = 5
)

// MarkdownRenderer renders assistant markdown for a given width.
type MarkdownRenderer func(markdown string, width int) (string, error)

func GlamourRenderer(markdown string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithStandardStyle("dark")}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

type ModelOption func(*Model)

func WithTitle(title string) ModelOption {
	return func(m *Model) { m.title = title }
}

// WithInitError shows err once and keeps the input disabled.
func WithInitError(err error) ModelOption {
	return func(m *Model) { m.initErr = err }
}

func WithMarkdownRenderer(r MarkdownRenderer) ModelOption {
	return func(m *Model) { m.render = r }
}

func WithClipboard(write func(string) error) ModelOption {
	return func(m *Model) { m.copy = write }
}

// WithTokenCounter enables the token count in the footer.
func WithTokenCounter(c *TokenCounter) ModelOption {
	return func(m *Model) { m.tokens = c }
}

func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) { m.ctx = ctx }
}

// Model is the chat screen: the transcript in a viewport above an input box.
type Model struct {
	ctx     context.Context
	backend *TurnBackend
	title   string
	initErr error

	input    textarea.Model
	viewport viewport.Model
	spinner  spinner.Model

	inflight   bool
	status     string
	tokenCount int
	width      int
	height     int

	render MarkdownRenderer
	copy   func(string) error
	tokens *TokenCounter
}

func NewModel(backend *TurnBackend, options ...ModelOption) Model {
	input := textarea.New()
	input.Placeholder = "Ask the assistant..."
	input.ShowLineNumbers = false
	input.CharLimit = 32000
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = assistantLabelStyle

	m := Model{
		ctx:        context.Background(),
		backend:    backend,
		title:      "minerba",
		input:      input,
		viewport:   viewport.New(80, 20),
		spinner:    sp,
		render:     GlamourRenderer,
		copy:       clipboard.WriteAll,
		tokenCount: -1,
		status:     "ready",
	}
	for _, o := range options {
		o(&m)
	}
	if m.initErr != nil {
		m.input.Blur()
		m.status = "not initialized"
	} else {
		m.input.Focus()
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	if m.initErr != nil {
		return nil
	}
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// InputEnabled reports whether a new message can be submitted.
func (m Model) InputEnabled() bool {
	return m.initErr == nil && !m.inflight
}

func (m Model) Inflight() bool {
	return m.inflight
}

func (m Model) Status() string {
	return m.status
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TurnFinishedMsg:
		m.inflight = false
		m.input.Focus()
		if msg.Result.OK() {
			m.status = "ready"
		} else {
			m.status = "last turn failed: " + string(msg.Result.Kind)
		}
		m.countTokens()
		m.refresh()

	case JobEventMsg:
		// events travel through the router and can trail TurnFinishedMsg
		if m.inflight {
			m.status = DescribeEvent(msg.Event)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.inflight {
				m.backend.Interrupt()
				m.status = "canceling..."
				return m, nil
			}
			return m, tea.Quit
		case "ctrl+d":
			return m, tea.Quit
		case "ctrl+y":
			m.copyLastReply()
			return m, nil
		case "pgup", "pgdown", "ctrl+u":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		if !m.InputEnabled() {
			if m.initErr != nil && (msg.String() == "q" || msg.String() == "esc") {
				return m, tea.Quit
			}
			return m, nil
		}

		if msg.Type == tea.KeyEnter {
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if text == "/quit" || text == "/exit" {
				return m, tea.Quit
			}
			cmd, err := m.backend.Start(m.ctx, text)
			if err != nil {
				m.status = err.Error()
				return m, nil
			}
			m.inflight = true
			m.input.Blur()
			m.status = "sending..."
			m.refresh()
			return m, tea.Batch(cmd, m.spinner.Tick)
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) copyLastReply() {
	last, ok := m.backend.Transcript().Last(assistant.RoleAssistant)
	if !ok {
		m.status = "nothing to copy"
		return
	}
	if err := m.copy(last.Content); err != nil {
		log.Warn().Err(err).Msg("could not copy to clipboard")
		m.status = "copy failed: " + err.Error()
		return
	}
	m.status = "copied last reply"
}

func (m *Model) countTokens() {
	if m.tokens == nil {
		return
	}
	n, err := m.tokens.Count(m.backend.Transcript().Text())
	if err != nil {
		log.Debug().Err(err).Msg("token count unavailable")
		m.tokenCount = -1
		return
	}
	m.tokenCount = n
}

func (m *Model) resize() {
	m.input.SetWidth(max(m.width-2, 10))
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chromeHeight-inputHeight, 3)
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	var sb strings.Builder
	if m.initErr != nil {
		sb.WriteString(errorStyle.Render(m.initErr.Error()))
		sb.WriteString("\n\n")
	}
	for _, turn := range m.backend.Transcript().Turns() {
		sb.WriteString(m.renderTurn(turn))
		sb.WriteString("\n")
	}
	if m.inflight {
		sb.WriteString(assistantLabelStyle.Render("assistant"))
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *Model) renderTurn(turn transcript.Turn) string {
	if turn.Role == assistant.RoleUser {
		return userLabelStyle.Render("you") + "\n" + turn.Content + "\n"
	}
	label := assistantLabelStyle.Render("assistant") + "\n"
	if turn.Failed {
		return label + errorStyle.Render(turn.Content) + "\n"
	}
	if m.render == nil {
		return label + turn.Content + "\n"
	}
	out, err := m.render(turn.Content, m.viewport.Width)
	if err != nil {
		log.Debug().Err(err).Msg("markdown rendering failed")
		return label + turn.Content + "\n"
	}
	return label + strings.TrimRight(out, "\n") + "\n"
}

func (m Model) View() string {
	title := m.title
	if s := m.backend.Session(); s != nil && s.AssistantName != "" {
		title += " · " + s.AssistantName
	}

	status := m.status
	if m.inflight {
		status = m.spinner.View() + " " + status
	}

	pane := inputPane
	if !m.InputEnabled() {
		pane = disabledInputPane
	}

	footer := "enter send · ctrl+y copy reply · pgup/pgdown scroll · ctrl+c quit"
	if m.tokenCount >= 0 {
		footer = fmt.Sprintf("%d tokens · %s", m.tokenCount, footer)
	}

	return strings.Join([]string{
		titleStyle.Render(title),
		m.viewport.View(),
		statusStyle.Render(status),
		pane.Render(m.input.View()),
		footerStyle.Render(footer),
	}, "\n")
}

// DescribeEvent renders a turn event as a short status line.
func DescribeEvent(e events.Event) string {
	switch e.Type {
	case events.TypeTurnSubmitted:
		return "message posted"
	case events.TypeJobStarted:
		return fmt.Sprintf("run %s %s", e.JobID, e.Status)
	case events.TypeJobPolled:
		return fmt.Sprintf("run %s %s (check %d)", e.JobID, e.Status, e.Attempt)
	case events.TypeJobFinished:
		return fmt.Sprintf("run %s finished: %s", e.JobID, e.Outcome)
	default:
		return string(e.Type)
	}
}
