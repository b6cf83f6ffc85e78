package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/reinhart/webmd/internal/assistant"
)

// --- Palette & Styles ---

var (
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#9399b2")
	colorInput   = lipgloss.Color("#f5e0dc")
	colorUser    = lipgloss.Color("#89b4fa") // Blue
	colorAgent   = lipgloss.Color("#a6e3a1") // Green
	colorAccent  = lipgloss.Color("#cba6f7") // Purple
	colorBorder  = lipgloss.Color("#45475a")
	colorActive  = lipgloss.Color("#f9e2af")

	styleBase = lipgloss.NewStyle().Foreground(colorText)

	styleBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	styleFocusBorder = styleBorder.
				BorderForeground(colorActive)

	styleUserHeader = lipgloss.NewStyle().
			Foreground(colorUser).
			Bold(true).
			MarginTop(1)

	styleAgentHeader = lipgloss.NewStyle().
				Foreground(colorAgent).
				Bold(true).
				MarginTop(1)

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f38ba8")). // Red
			Bold(true)

	styleStatus = lipgloss.NewStyle().
			Foreground(colorSubtext).
			Italic(true)
)

// requestTimeout bounds one prompt, including page fetches.
const requestTimeout = 180 * time.Second

type State int

const (
	StateReady State = iota
	StateThinking
)

type Model struct {
	agent         *assistant.Agent
	title         string
	textarea      textarea.Model
	viewport      viewport.Model
	spinner       spinner.Model
	state         State
	statusHistory []string
	transcript    string
	tokensUsed    int

	// Layout
	width  int
	height int
}

func newInput(width int) textarea.Model {
	ta := textarea.New()
	ta.Placeholder = "Ask anything, or paste a URL to summarize..."
	ta.Focus()
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Prompt = ""      // Disable default prompt to avoid repetition on every line
	ta.CharLimit = 2000 // URLs plus instructions

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle() // No extra bg
	ta.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(colorSubtext)
	ta.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(colorAccent)
	ta.FocusedStyle.Text = lipgloss.NewStyle().Foreground(colorInput)
	if width > 0 {
		ta.SetWidth(width)
	}
	return ta
}

// NewModel builds the chat screen for agent. title names the model in use.
func NewModel(agent *assistant.Agent, title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	m := Model{
		agent:         agent,
		title:         title,
		textarea:      newInput(0),
		viewport:      viewport.New(80, 20),
		spinner:       s,
		state:         StateReady,
		statusHistory: []string{},
	}
	m.appendBlock(styleAgentHeader.Render("webmd") + "\n" +
		styleBase.Render("Send a question. Links you mention are fetched and read as Markdown."))
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

type agentMsg struct {
	reply *assistant.ChatReply
	err   error
}

type statusMsg struct {
	msg string
}

func listenForUpdates(sub <-chan assistant.StatusUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-sub
		if !ok {
			return nil
		}
		return statusMsg{msg: update.Message}
	}
}

func (m Model) processInput(input string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		reply, err := m.agent.ProcessMessage(ctx, input)
		return agentMsg{reply: reply, err: err}
	}
}

// appendBlock adds rendered text to the transcript and scrolls to it.
func (m *Model) appendBlock(block string) {
	if m.transcript != "" {
		m.transcript += "\n"
	}
	m.transcript += block
	m.viewport.SetContent(m.transcript)
	m.viewport.GotoBottom()
}

func (m Model) renderReply(msg agentMsg) string {
	header := styleAgentHeader.Render(m.title)
	if msg.err != nil {
		return header + "\n" + styleError.Render(fmt.Sprintf("Error: %v", msg.err))
	}
	content := msg.reply.Content
	if content == "" {
		content = assistant.NoResponse
	}
	return header + "\n" + styleBase.Render(content)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Borders + status + input box
		viewportHeight := msg.Height - 7
		if viewportHeight < 5 {
			viewportHeight = 5
		}
		m.viewport.Width = msg.Width - 4
		m.viewport.Height = viewportHeight
		m.textarea.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if msg.Alt || m.state != StateReady {
				break
			}
			input := m.textarea.Value()
			if strings.TrimSpace(input) == "" {
				break
			}

			m.appendBlock(styleUserHeader.Render("You") + "\n" + styleBase.Render(input))
			m.state = StateThinking
			m.statusHistory = []string{"Sending..."}

			// A fresh textarea drops any scroll position left over from the last input
			m.textarea = newInput(m.width - 4)

			cmds = append(cmds, listenForUpdates(m.agent.Updates()), m.processInput(input))
			return m, tea.Batch(cmds...)
		}

	case statusMsg:
		m.statusHistory = append(m.statusHistory, msg.msg)
		if len(m.statusHistory) > 3 {
			m.statusHistory = m.statusHistory[len(m.statusHistory)-3:]
		}
		if m.state == StateThinking {
			cmds = append(cmds, listenForUpdates(m.agent.Updates()))
		}

	case agentMsg:
		m.state = StateReady
		if msg.err == nil {
			m.tokensUsed += msg.reply.Usage.TotalTokens
		}
		separator := lipgloss.NewStyle().Foreground(colorBorder).Render(strings.Repeat("─", m.width/2))
		m.appendBlock(m.renderReply(msg) + "\n\n" + separator)
		m.textarea.Focus()
		return m, tea.Batch(cmds...)

	case spinner.TickMsg:
		if m.state == StateThinking {
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	// Skip while thinking so stale key events do not land in the new input
	if m.state == StateReady {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	chatView := styleBorder.Width(m.width - 2).Height(m.viewport.Height + 2).Render(m.viewport.View())

	var statusStr string
	if m.state == StateThinking {
		fullStatus := strings.Join(m.statusHistory, "  ➜  ")
		statusStr = fmt.Sprintf(" %s %s", m.spinner.View(), styleStatus.Render(fullStatus))
	} else {
		statusStr = styleStatus.Render(fmt.Sprintf(" Ready. %d tokens used.", m.tokensUsed))
	}
	statusView := lipgloss.NewStyle().Width(m.width).PaddingLeft(1).Render(statusStr)

	prompt := lipgloss.NewStyle().Foreground(colorAccent).Render("› ")
	inputContent := lipgloss.JoinHorizontal(lipgloss.Top, prompt, m.textarea.View())
	inputView := styleFocusBorder.Width(m.width - 2).Render(inputContent)

	return lipgloss.JoinVertical(lipgloss.Left,
		chatView,
		statusView,
		inputView,
	)
}
