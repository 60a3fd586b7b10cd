package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragserver/internal/domain"
)

// QAPort is the TUI-facing subset of the retrieval pipeline.
type QAPort interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
	Retrieve(ctx context.Context, question string) ([]domain.SearchResult, error)
}

// IndexPort rebuilds the chunk index from scratch, returning the number
// of chunks the rebuilt index holds.
type IndexPort interface {
	Rebuild(ctx context.Context) (int, error)
}

// RebuildFunc adapts a plain function to IndexPort.
type RebuildFunc func(ctx context.Context) (int, error)

func (f RebuildFunc) Rebuild(ctx context.Context) (int, error) { return f(ctx) }

// Model is the Bubble Tea model for the interactive Q&A session.
// Enter retrieves the ranked chunks for the question; ctrl+g asks the
// generation gateway for a full answer; ctrl+r rebuilds the index.
type Model struct {
	service   QAPort
	index     IndexPort
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.SearchResult
	answer    string
	header    string
	status    string
	cursor    int
	ready     bool
	lastQuery string
}

// New creates a TUI model. index may be nil, which disables ctrl+r.
// header describes the loaded index, e.g. "Indexed 120 chunks".
func New(service QAPort, index IndexPort, header string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type a question; Enter retrieves, Ctrl+G asks, Ctrl+R rebuilds"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: service, index: index, input: ti, viewport: vp, header: header, status: "Ready."}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, status, query frame, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderBody())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.runRetrieve(q)
				return m, nil
			}
		case "ctrl+g":
			if q := strings.TrimSpace(m.input.Value()); q != "" {
				m.runAsk(q)
				return m, nil
			}
		case "ctrl+r":
			m.runRebuild()
			return m, nil
		case "down":
			if len(m.results) > 0 && m.answer == "" {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderBody())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 && m.answer == "" {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderBody())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) runRetrieve(q string) {
	res, err := m.service.Retrieve(context.Background(), q)
	if err != nil {
		m.status = "Error: " + err.Error()
		m.results = nil
	} else if len(res) == 0 {
		m.status = fmt.Sprintf("No chunks above threshold for %q", q)
		m.results = nil
	} else {
		m.status = fmt.Sprintf("Retrieved %d chunk(s) for %q", len(res), q)
		m.results = res
		m.cursor = 0
		m.lastQuery = q
	}
	m.answer = ""
	m.viewport.SetContent(m.renderBody())
}

func (m *Model) runAsk(q string) {
	ans, err := m.service.Ask(context.Background(), q)
	if err != nil {
		m.status = "Error: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("Answer for %q (%d source(s))", q, len(ans.Sources))
	m.answer = ans.Text
	m.results = ans.Sources
	m.cursor = 0
	m.lastQuery = q
	m.viewport.SetContent(m.renderBody())
}

func (m *Model) runRebuild() {
	if m.index == nil {
		m.status = "Rebuild is not available in this session."
		return
	}
	count, err := m.index.Rebuild(context.Background())
	if err != nil {
		m.status = "Rebuild failed: " + err.Error()
		return
	}
	m.status = fmt.Sprintf("Index rebuilt, %d chunk(s)", count)
	m.header = fmt.Sprintf("Indexed %d chunk(s)", count)
	m.results = nil
	m.answer = ""
	m.cursor = 0
	m.lastQuery = ""
	m.viewport.SetContent(m.renderBody())
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document Q&A")
	index := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	body := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + index + "\n" + body + "\n" + input + "\n" + status
}

func (m Model) renderBody() string {
	if m.answer != "" {
		sources := make([]string, 0, len(m.results))
		for _, r := range m.results {
			sources = append(sources, fmt.Sprintf("%s (%.3f)", r.Chunk.SourceID, r.Score))
		}
		out := m.answer
		if len(sources) > 0 {
			out += "\n\nSources: " + strings.Join(sources, ", ")
		}
		return out
	}
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Chunk %d/%d  source=%s  score=%.3f",
		m.cursor+1, len(m.results), r.Chunk.SourceID, r.Score)
	body := highlightBestSentence(r.Chunk.Text, m.lastQuery)
	return title + "\n\n" + body
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasizes the sentence with the largest token
// overlap with the question, so the eye lands on why the chunk matched.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlap(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlap(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := wordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
