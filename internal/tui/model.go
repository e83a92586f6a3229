package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ChatPort is the TUI-facing subset of the server API.
type ChatPort interface {
	Query(chatID, query string, limit int) (QueryResponse, error)
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	api      ChatPort
	chatID   string
	site     string
	input    textinput.Model
	viewport viewport.Model
	turns    []string
	status   string
	ready    bool
}

// New creates a new chat model bound to an existing chat session.
func New(api ChatPort, chatID, site, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the site and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)

	var turns []string
	if summary != "" {
		turns = append(turns, aiStyle.Render("astra")+" "+summary)
	}
	return Model{
		api:      api,
		chatID:   chatID,
		site:     site,
		input:    ti,
		viewport: vp,
		turns:    turns,
		status:   "Indexed. Ask a question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ch := chatBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + spacer, status line
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-ch)
		m.viewport.SetContent(m.renderConversation())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" {
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.turns = append(m.turns, userStyle.Render("you")+" "+q)
				resp, err := m.api.Query(m.chatID, q, 5)
				if err != nil {
					m.status = "Error: " + err.Error()
				} else {
					m.turns = append(m.turns, aiStyle.Render("astra")+" "+resp.Answer+renderSources(resp.Sources))
					m.status = fmt.Sprintf("Answered with %d source(s)", len(resp.Sources))
				}
				m.input.SetValue("")
				m.viewport.SetContent(m.renderConversation())
				m.viewport.GotoBottom()
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Astra Chat")
	site := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.site)
	chat := chatBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "  " + site + "\n" + chat + "\n" + input + "\n" + status
}

func (m Model) renderConversation() string {
	if len(m.turns) == 0 {
		return "No messages yet."
	}
	return strings.Join(m.turns, "\n\n")
}

func renderSources(sources []Source) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n")
	for i, src := range sources {
		label := src.Title
		if label == "" {
			label = src.URL
		}
		fmt.Fprintf(&b, "\n%s %d. %s (%.3f)", sourceStyle.Render("source"), i+1, label, src.Score)
	}
	return b.String()
}

var (
	chatBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	aiStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
