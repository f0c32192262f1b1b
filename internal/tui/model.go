package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// ---------- messages sent from the chat goroutines via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type thinkingStartMsg struct{}
type textDeltaMsg struct{ delta string }
type textDoneMsg struct{ fullText string }
type textAbortedMsg struct{}
type systemMsg struct{ text string }
type markdownMsg struct{ md string }
type errorMsg struct{ text string }
type statusMsg struct{ status Status }
type chatDoneMsg struct{ err error }

// ---------- styles ----------

var (
	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	abortedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// ---------- Model ----------

const statusBarHeight = 1
const inputHeight = 1

// Model is the bubbletea model managing the full TUI state.
type Model struct {
	viewport  viewport.Model
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	height    int

	content     *strings.Builder // accumulated output; shared across model copies
	streaming   bool            // reply deltas are arriving
	streamStart int             // byte offset in content where the reply began
	inputMode   bool            // text input is active
	thinking    bool            // waiting for the first delta

	inputCh chan inputResult

	quitting bool

	status Status

	// cancelTurnFn cancels the reply in flight (Esc).
	cancelTurnFn func() bool
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 0

	vp := viewport.New(80, 24)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		viewport:  vp,
		textinput: ti,
		spinner:   sp,
		content:   &strings.Builder{},
		inputCh:   inputCh,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = max(m.height-statusBarHeight-inputHeight, 1)
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if m.cancelTurnFn != nil {
				m.cancelTurnFn()
			}
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if m.cancelTurnFn != nil && m.cancelTurnFn() {
				return m, nil
			}
		case "enter":
			if m.inputMode {
				text := m.textinput.Value()
				m.textinput.SetValue("")
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		}

		if m.inputMode {
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
		}

	// ---------- custom messages from the chat loop ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()
		cmds = append(cmds, textinput.Blink)

	case userMsg:
		m.appendLine(userStyle.Render("You: " + msg.text))

	case thinkingStartMsg:
		m.thinking = true
		m.streaming = false

	case textDeltaMsg:
		m.thinking = false
		if !m.streaming {
			m.streamStart = m.content.Len()
			m.streaming = true
		}
		m.content.WriteString(msg.delta)

	case textDoneMsg:
		m.thinking = false
		if m.streaming {
			m.replaceStream(RenderMarkdown(msg.fullText, m.width))
		}
		m.streaming = false

	case textAbortedMsg:
		m.thinking = false
		if m.streaming {
			m.ensureNewline()
		}
		m.streaming = false
		m.appendLine(abortedStyle.Render("[reply cancelled]"))

	case systemMsg:
		m.appendLine(systemStyle.Render(msg.text))

	case markdownMsg:
		m.appendLine(strings.TrimRight(RenderMarkdown(msg.md, m.width), "\n"))

	case errorMsg:
		m.thinking = false
		if m.streaming {
			m.ensureNewline()
		}
		m.streaming = false
		m.appendLine(errorStyle.Render("Error: " + msg.text))

	case statusMsg:
		m.status = msg.status

	case chatDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()

	var vpCmd tea.Cmd
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	return m, tea.Batch(cmds...)
}

// statusLine fits the status text to one terminal row.
func (m Model) statusLine() string {
	line := FormatStatus(m.status)
	if m.width > 0 && runewidth.StringWidth(line) > m.width {
		line = runewidth.Truncate(line, m.width, "…")
	}
	return line
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	bar := statusBarStyle.Width(m.width).Render(m.statusLine())

	var input string
	switch {
	case m.inputMode:
		input = m.textinput.View()
	case m.thinking || m.streaming:
		input = hintStyle.Render("  Esc = cancel reply")
	}

	return m.viewport.View() + "\n" + bar + "\n" + input
}

// renderContent appends the spinner, which is not persisted in content.
func (m *Model) renderContent() string {
	if m.thinking {
		return m.content.String() + "\n" + m.spinner.View() + " Thinking..."
	}
	return m.content.String()
}

// replaceStream swaps the raw streamed reply for its rendered form.
func (m *Model) replaceStream(rendered string) {
	before := m.content.String()[:m.streamStart]
	m.content.Reset()
	m.content.WriteString(before)
	m.content.WriteString(strings.TrimRight(rendered, "\n"))
	m.content.WriteString("\n")
}

func (m *Model) appendLine(text string) {
	m.content.WriteString(text)
	m.content.WriteString("\n")
}

func (m *Model) ensureNewline() {
	s := m.content.String()
	if len(s) > 0 && s[len(s)-1] != '\n' {
		m.content.WriteString("\n")
	}
}
