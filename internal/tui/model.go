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

	"reviewrag/internal/domain"
	"reviewrag/internal/service"
)

// Asker is the TUI-facing subset of the review service.
type Asker interface {
	Ask(ctx context.Context, business, question string) (service.Answer, error)
}

type stage int

const (
	stageBusiness stage = iota
	stageQuestion
)

// answerMsg carries the outcome of an asynchronous Ask.
type answerMsg struct {
	question string
	answer   service.Answer
	err      error
}

// Model is the Bubble Tea model for the interactive review Q&A loop.
type Model struct {
	asker     Asker
	timeout   time.Duration
	stage     stage
	business  string
	input     textinput.Model
	viewport  viewport.Model
	answer    service.Answer
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model instance. timeout bounds each question.
func New(asker Asker, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 0
	m := Model{asker: asker, timeout: timeout, input: ti, viewport: viewport.New(0, 0)}
	m.toBusiness()
	return m
}

func (m *Model) toBusiness() {
	m.stage = stageBusiness
	m.business = ""
	m.answer = service.Answer{}
	m.cursor = 0
	m.input.Placeholder = "Which business do you have a question about? (q to quit)"
	m.input.SetValue("")
	m.status = "Type a business name and press Enter."
	m.viewport.SetContent(m.renderCurrent())
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + business, status, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.answer = service.Answer{}
		} else {
			m.answer = msg.answer
			m.cursor = 0
			m.lastQuery = msg.question
			if n := len(msg.answer.Reviews); n == 0 {
				m.status = fmt.Sprintf("No relevant reviews found for %s.", m.business)
			} else {
				m.status = fmt.Sprintf("%d relevant reviews found for %s.", n, m.business)
			}
		}
		m.viewport.SetContent(m.renderCurrent())
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			return m.submit()
		case "down":
			if n := len(m.answer.Reviews); n > 0 {
				m.cursor = (m.cursor + 1) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		case "up":
			if n := len(m.answer.Reviews); n > 0 {
				m.cursor = (m.cursor - 1 + n) % n
				m.viewport.SetContent(m.renderCurrent())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	if strings.EqualFold(text, "q") {
		return m, tea.Quit
	}
	m.input.SetValue("")
	if m.stage == stageBusiness {
		m.stage = stageQuestion
		m.business = text
		m.input.Placeholder = "Ask your question (b to choose another business, q to quit)"
		m.status = fmt.Sprintf("Asking about %s.", text)
		return m, nil
	}
	if strings.EqualFold(text, "b") {
		m.toBusiness()
		return m, nil
	}
	m.busy = true
	m.status = fmt.Sprintf("Searching reviews for %s...", m.business)
	return m, m.ask(m.business, text)
}

func (m Model) ask(business, question string) tea.Cmd {
	asker, timeout := m.asker, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ans, err := asker.Ask(ctx, business, question)
		return answerMsg{question: question, answer: ans, err: err}
	}
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Review Q&A")
	business := "No business selected"
	if m.business != "" {
		business = "Business: " + m.business
	}
	sub := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(business)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + sub + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrent() string {
	if len(m.answer.Reviews) == 0 {
		return "No answer yet."
	}
	var b strings.Builder
	if m.answer.Text != "" {
		b.WriteString(m.answer.Text)
		b.WriteString("\n\n")
	}
	r := m.answer.Reviews[m.cursor]
	fmt.Fprintf(&b, "Review %d/%d  score=%.3f  rating=%s\n\n", m.cursor+1, len(m.answer.Reviews), r.Score, r.Metadata.Rating)
	b.WriteString(highlightBestSentence(r.Text, m.lastQuery))
	return b.String()
}

// Reviews returns the reviews of the last answer.
func (m Model) Reviews() []domain.SearchResult { return m.answer.Reviews }

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?|]+[.!?|]?`)
)

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
		return strings.TrimSpace(text)
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
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
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
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
