package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/rag"
)

// SessionPort is the TUI-facing subset of rag.Session.
type SessionPort interface {
	Upload(ctx context.Context, filename string, data []byte) (rag.UploadResult, error)
	Ask(ctx context.Context, question string) (models.Answer, error)
	RecentFirst() []models.Turn
	Document() string
	Reset()
}

// snapshot is what the view shows of the session. Commands take it while they still
// own the session, so View never touches the session during a call.
type snapshot struct {
	document string
	turns    []models.Turn
}

func takeSnapshot(session SessionPort) snapshot {
	return snapshot{document: session.Document(), turns: session.RecentFirst()}
}

type answerMsg struct {
	question string
	err      error
	snap     snapshot
}

type uploadMsg struct {
	result rag.UploadResult
	err    error
	snap   snapshot
}

// Model is the Bubble Tea model for the chat screen.
type Model struct {
	ctx      context.Context
	session  SessionPort
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	status   string
	snap     snapshot
	busy     bool
	ready    bool
	width    int
}

// New creates a new TUI model instance.
func New(ctx context.Context, session SessionPort) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the document, or :open <file>, :reset, :quit"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	snap := takeSnapshot(session)
	status := "Open a document with :open <file>."
	if snap.document != "" {
		status = fmt.Sprintf("Loaded %s. Ask me something about the document.", snap.document)
	}
	return Model{
		ctx:      ctx,
		session:  session,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   status,
		snap:     snap,
		width:    80,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = max(20, msg.Width)
		_, bh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, status, input box, spacer
		m.viewport.Width = m.width
		m.viewport.Height = max(3, msg.Height-reserved-bh)
		m.viewport.SetContent(m.renderHistory())
		return m, nil
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case answerMsg:
		m.busy = false
		m.snap = msg.snap
		if msg.err != nil {
			m.status = helper.UserMessage(msg.err)
		} else {
			m.status = "Answered: " + msg.question
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoTop()
		return m, nil
	case uploadMsg:
		m.busy = false
		m.snap = msg.snap
		if msg.err != nil {
			m.status = helper.UserMessage(msg.err)
		} else {
			m.status = fmt.Sprintf("Indexed %s: %d pages, %d chunks.", msg.result.Document, msg.result.Pages, msg.result.Chunks)
		}
		m.viewport.SetContent(m.renderHistory())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	switch {
	case line == ":quit" || line == ":q":
		return m, tea.Quit
	case line == ":reset":
		m.session.Reset()
		m.snap = takeSnapshot(m.session)
		m.status = "Session cleared. Open a document with :open <file>."
		m.viewport.SetContent(m.renderHistory())
		return m, nil
	case strings.HasPrefix(line, ":open"):
		path := strings.TrimSpace(strings.TrimPrefix(line, ":open"))
		if path == "" {
			m.status = "Usage: :open <file>"
			return m, nil
		}
		m.busy = true
		m.status = "Indexing " + filepath.Base(path) + "... This may take a while."
		return m, tea.Batch(m.spinner.Tick, m.upload(path))
	case line == "":
		m.status = helper.UserMessage(models.EmptyInput("please enter a question"))
		return m, nil
	default:
		m.busy = true
		m.status = "Thinking..."
		return m, tea.Batch(m.spinner.Tick, m.ask(line))
	}
}

func (m Model) ask(question string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		_, err := session.Ask(ctx, question)
		return answerMsg{question: question, err: err, snap: takeSnapshot(session)}
	}
}

func (m Model) upload(path string) tea.Cmd {
	session, ctx := m.session, m.ctx
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return uploadMsg{err: err, snap: takeSnapshot(session)}
		}
		res, err := session.Upload(ctx, filepath.Base(path), data)
		return uploadMsg{result: res, err: err, snap: takeSnapshot(session)}
	}
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	title := "Document Q&A"
	if doc := m.snap.document; doc != "" {
		title += " · " + doc
	}
	header := lipgloss.NewStyle().Bold(true).Render(title)
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + history + "\n" + input + "\n" + status
}

// renderHistory lists the conversation newest first, each answer with its sources.
func (m Model) renderHistory() string {
	turns := m.snap.turns
	if len(turns) == 0 {
		return "No questions yet."
	}
	wrap := lipgloss.NewStyle().Width(max(10, m.width-4))
	var b strings.Builder
	for i, turn := range turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(wrap.Inherit(userStyle).Render("You: " + turn.Question))
		b.WriteString("\n")
		b.WriteString(wrap.Render(strings.TrimSpace(turn.Answer.Content)))
		b.WriteString("\n")
		if len(turn.Answer.Sources) > 0 {
			b.WriteString(sourceStyle.Render("Sources: " + strings.Join(turn.Answer.Sources, ", ")))
			b.WriteString("\n")
		}
	}
	return b.String()
}

var (
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sourceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
