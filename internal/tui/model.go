package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/manimchat/manimchat/internal/conversation"
)

// ---------- messages sent from the chat goroutine via program.Send() ----------

type readInputMsg struct{}

type inputResult struct {
	text string
	err  error
}

type userMsg struct{ text string }
type pendingMsg struct{}
type settledMsg struct{ turn conversation.Turn }
type systemMsg struct{ text string }
type errorMsg struct{ text string }
type sessionMsg struct{ label string }
type loopDoneMsg struct{ err error }

// TUIConfig carries what the welcome box and status bar show.
type TUIConfig struct {
	Version string
	// Backend is the generation backend base URL; also the base for
	// relative video links.
	Backend     string
	ShowWelcome bool
}

// ---------- styles ----------

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)

	failedTurnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	// Status bar
	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	statusBarBgStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235"))

	statusSessionStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("235")).
				Foreground(lipgloss.Color("2")).
				Bold(true)

	// Welcome box
	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	welcomeLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("8"))

	welcomeValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252"))

	welcomeHintStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245"))
)

var dotSpinner = spinner.Spinner{
	Frames: []string{"·", "✢", "✳", "✶", "✻", "✽", "✻", "✶", "✳", "✢"},
	FPS:    120 * time.Millisecond,
}

// ---------- Model ----------

// Model is the bubbletea model for the chat UI. Finished output is printed
// above the program with tea.Println; View only draws the live area.
type Model struct {
	textinput textinput.Model
	spinner   spinner.Model
	width     int
	inputMode bool

	pending      bool
	pendingSince time.Time

	slashItems []SlashMenuItem
	slashSel   int

	inputCh        chan inputResult
	noiseDropCount int
	quitting       bool

	cfg     TUIConfig
	session string
	md      *markdown
}

// NewModel creates the initial bubbletea model.
func NewModel(inputCh chan inputResult, cfg TUIConfig) Model {
	ti := textinput.New()
	ti.Prompt = "❯ "
	ti.Placeholder = "describe a concept to animate or explain"
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = dotSpinner
	sp.Style = spinnerStyle

	return Model{
		textinput: ti,
		spinner:   sp,
		inputCh:   inputCh,
		cfg:       cfg,
		session:   "new chat",
		md:        &markdown{style: "dark"},
	}
}

func (m Model) Init() tea.Cmd {
	if m.cfg.ShowWelcome {
		return tea.Println(renderWelcome(m.cfg))
	}
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textinput.Width = m.width - 4

	case spinner.TickMsg:
		if m.pending {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		s := msg.String()
		if isTerminalNoiseKey(s) {
			m.noiseDropCount = 4
			return m, nil
		}
		if m.noiseDropCount > 0 && len(s) <= 2 {
			m.noiseDropCount--
			return m, nil
		}
		switch s {
		case "ctrl+c", "ctrl+d":
			if m.inputMode {
				m.inputCh <- inputResult{err: fmt.Errorf("interrupted")}
				m.inputMode = false
				m.textinput.Blur()
			}
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if m.inputMode {
				text := strings.TrimSpace(m.textinput.Value())
				m.textinput.SetValue("")
				m.slashItems = nil
				m.inputCh <- inputResult{text: text}
				m.inputMode = false
				m.textinput.Blur()
			}
			return m, nil
		case "tab":
			if len(m.slashItems) > 0 {
				m.textinput.SetValue(m.slashItems[m.slashSel].Name + " ")
				m.textinput.CursorEnd()
				m.slashItems = nil
			}
			return m, nil
		case "up":
			if m.slashSel > 0 {
				m.slashSel--
			}
			return m, nil
		case "down":
			if m.slashSel < len(m.slashItems)-1 {
				m.slashSel++
			}
			return m, nil
		case "esc":
			m.slashItems = nil
			return m, nil
		}

		if m.inputMode {
			if isControlKeyMsg(s) {
				return m, nil
			}
			var cmd tea.Cmd
			m.textinput, cmd = m.textinput.Update(msg)
			cmds = append(cmds, cmd)
			m.updateSlashMenu()
		}

	// ---------- messages from the chat goroutine ----------

	case readInputMsg:
		m.inputMode = true
		m.textinput.Focus()

	case userMsg:
		cmds = append(cmds, tea.Println(userStyle.Render("You: ")+msg.text))

	case pendingMsg:
		if !m.pending {
			m.pending = true
			m.pendingSince = time.Now()
			cmds = append(cmds, m.spinner.Tick)
		}

	case settledMsg:
		m.pending = false
		cmds = append(cmds, tea.Println(m.renderTurn(msg.turn)))

	case systemMsg:
		cmds = append(cmds, tea.Println(systemStyle.Render(msg.text)))

	case errorMsg:
		cmds = append(cmds, tea.Println(errorStyle.Render("Error: "+msg.text)))

	case sessionMsg:
		// A different conversation is active now; its own pending state
		// follows as a pendingMsg if there is one.
		m.session = msg.label
		m.pending = false

	case loopDoneMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// updateSlashMenu refreshes the command dropdown from the current input.
func (m *Model) updateSlashMenu() {
	v := m.textinput.Value()
	if !strings.HasPrefix(v, "/") || strings.Contains(v, " ") {
		m.slashItems = nil
		return
	}
	m.slashItems = filterSlashItems(BuiltinSlashCommands(), v)
	if m.slashSel >= len(m.slashItems) {
		m.slashSel = 0
	}
}

func (m Model) renderTurn(t conversation.Turn) string {
	if t.IsFailed() {
		return failedTurnStyle.Render(FailureText(t))
	}
	if t.Result == nil {
		return ""
	}
	return m.md.render(ResultMarkdown(*t.Result, m.cfg.Backend), m.width)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var parts []string
	if m.pending {
		elapsed := int(time.Since(m.pendingSince).Seconds())
		parts = append(parts, m.spinner.View()+hintStyle.Render(fmt.Sprintf(" Generating… (%ds)", elapsed)))
	}
	if m.inputMode {
		parts = append(parts, m.textinput.View())
		if menu := renderSlashMenu(m.slashItems, m.slashSel, m.width); menu != "" {
			parts = append(parts, menu)
		}
	} else {
		parts = append(parts, systemStyle.Render("❯"))
	}
	parts = append(parts, m.renderStatusBar())
	return strings.Join(parts, "\n")
}

// renderStatusBar renders the bottom separator and the session/backend bar.
func (m Model) renderStatusBar() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	status := statusSessionStyle.Render(" "+m.session) +
		statusBarStyle.Render("│ "+m.cfg.Backend)
	return separatorStyle.Render(strings.Repeat("─", width)) + "\n" +
		statusBarBgStyle.Width(width).Render(status)
}

// ---------- welcome page ----------

func renderWelcome(cfg TUIConfig) string {
	logo := []string{
		"  ╭─╮   ",
		" ╭╯ ╰╮  ",
		"╭╯   ╰─╮",
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	info := []string{
		welcomeLabelStyle.Render("Backend: ") + welcomeValueStyle.Render(cfg.Backend),
		"",
		welcomeHintStyle.Render("/help commands  /new new chat  /sessions history"),
	}

	var lines []string
	logoWidth := 10
	for i := 0; i < len(logo) || i < len(info); i++ {
		left := ""
		if i < len(logo) {
			left = logo[i]
		}
		right := ""
		if i < len(info) {
			right = info[i]
		}
		padding := logoWidth - lipgloss.Width(left)
		if padding < 0 {
			padding = 0
		}
		lines = append(lines, left+strings.Repeat(" ", padding)+right)
	}

	title := welcomeTitleStyle.Render(fmt.Sprintf("manimchat %s", version))
	return title + "\n" + welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}

// isTerminalNoiseKey reports key strings that are really fragments of
// terminal responses (color queries, mouse reports) leaking into input.
func isTerminalNoiseKey(s string) bool {
	if strings.Contains(s, ";rgb:") || strings.HasPrefix(s, "]") || strings.HasPrefix(s, "alt+]") {
		return true
	}
	if (strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m")) && strings.Contains(s, ";") {
		return true
	}
	if strings.HasPrefix(s, "[<") || strings.HasPrefix(s, "alt+[<") {
		return true
	}
	if strings.HasPrefix(s, "[?") || strings.HasPrefix(s, "alt+[?") {
		return true
	}
	if len(s) > 1 && s[0] == '[' && s[1] >= '0' && s[1] <= '9' {
		return true
	}
	return false
}

func isControlKeyMsg(s string) bool {
	for _, r := range s {
		if r == '\x1b' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return true
		}
	}
	return false
}
