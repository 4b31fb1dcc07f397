// Package tui is an interactive query loop over one corpus.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"docqa/internal/chunker"
	"docqa/internal/search"
	"docqa/internal/service"
)

// DefaultNeighbours is how many ranked chunks are browsable per query.
const DefaultNeighbours = 5

// Port is the TUI-facing subset of the retrieval service.
type Port interface {
	Search(ctx context.Context, corpus, question string, k int) ([]search.Match, error)
	Ask(ctx context.Context, corpus, question string) (*service.Answer, error)
}

type resultsMsg struct {
	query   string
	matches []search.Match
	err     error
}

type answerMsg struct {
	query  string
	answer *service.Answer
	err    error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	service    Port
	corpus     string
	summary    string
	timeout    time.Duration
	generate   bool
	input      textinput.Model
	viewport   viewport.Model
	results    []search.Match
	answer     string
	status     string
	cursor     int
	ready      bool
	lastQuery  string
	neighbours int
}

// New creates a TUI over corpus. When generate is false only retrieval runs.
func New(svc Port, corpus, summary string, generate bool) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		service:    svc,
		corpus:     corpus,
		summary:    summary,
		timeout:    60 * time.Second,
		generate:   generate,
		input:      ti,
		viewport:   viewport.New(0, 0),
		status:     fmt.Sprintf("Corpus %q loaded. Type to search.", corpus),
		neighbours: DefaultNeighbours,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 3 + qh + 1 // header, summary, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		if msg.query != m.lastQuery {
			return m, nil
		}
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.results = msg.matches
			m.cursor = 0
			m.status = fmt.Sprintf("%d matches for %q", len(msg.matches), msg.query)
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case answerMsg:
		if msg.query != m.lastQuery {
			return m, nil
		}
		if msg.err != nil {
			m.answer = ""
			m.status = "Answer failed: " + msg.err.Error()
		} else {
			m.answer = msg.answer.Text
			if msg.answer.Cached {
				m.status = "Answer (cached)"
			} else {
				m.status = "Answer ready"
			}
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			m.lastQuery = q
			m.answer = ""
			m.status = fmt.Sprintf("Searching %q...", q)
			cmds := []tea.Cmd{m.searchCmd(q)}
			if m.generate {
				cmds = append(cmds, m.askCmd(q))
			}
			return m, tea.Batch(cmds...)
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) searchCmd(q string) tea.Cmd {
	svc, corpus, k, timeout := m.service, m.corpus, m.neighbours, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		matches, err := svc.Search(ctx, corpus, q, k)
		return resultsMsg{query: q, matches: matches, err: err}
	}
}

func (m Model) askCmd(q string) tea.Cmd {
	svc, corpus, timeout := m.service, m.corpus, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		ans, err := svc.Ask(ctx, corpus, q)
		return answerMsg{query: q, answer: ans, err: err}
	}
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("docqa · " + m.corpus)
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	r := m.results[m.cursor]
	label := "Best match"
	if m.cursor > 0 {
		label = fmt.Sprintf("Neighbour %d/%d", m.cursor+1, len(m.results))
	}
	title := fmt.Sprintf("%s  %s  score=%.3f", label, r.Document.ID, r.Score)
	body := highlightBestSentence(r.Document.Text, m.lastQuery)
	out := title + "\n\n" + body
	if m.answer != "" {
		out += "\n\n" + answerStyle.Render("Answer") + "\n" + m.answer
	}
	return out
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// highlightBestSentence emphasises the sentence sharing the most words with query.
func highlightBestSentence(text, query string) string {
	sentences := chunker.SplitSentences(text)
	if len(sentences) == 0 {
		return text
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	seen := map[string]struct{}{}
	for _, t := range unicodeWordRe.FindAllString(strings.ToLower(sentence), -1) {
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
