// Package reviewtui is the interactive approval queue. It lists every
// record in pending_review and applies approve/reject decisions through
// the gate as the reviewer works the queue.
package reviewtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmorrell2146/applyflow/internal/gate"
	"github.com/jmorrell2146/applyflow/internal/model"
)

// Lines per record item in the queue (title + subtitle + blank separator).
const itemHeight = 3

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")) // bright blue

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	titleStyle = lipgloss.NewStyle().
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")). // bright white
				Background(lipgloss.Color("24"))  // dark blue bg

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	approvedTagStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("40")) // green

	rejectedTagStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("160")) // red

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("160"))
)

// decidedMsg is sent when an async review decision completes.
type decidedMsg struct {
	key      string
	decision gate.Decision
	err      error
}

type reviewModel struct {
	gate    *gate.Gate
	records []model.JobRecord
	decided map[string]gate.Decision // identity key -> verdict applied this session

	vp       viewport.Model
	cursor   int
	width    int
	height   int
	ready    bool
	lastErr  string
	approved int
	rejected int
}

func (m reviewModel) Init() tea.Cmd {
	return nil
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case decidedMsg:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("decision failed: %v", msg.err)
		} else {
			m.lastErr = ""
			m.decided[msg.key] = msg.decision
			if msg.decision == gate.Approve {
				m.approved++
			} else {
				m.rejected++
			}
			m.moveCursor(1)
		}
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			m.moveCursor(-1)
			m.recalcContent()
			m.ensureCursorVisible()
			return m, nil
		case "down", "j":
			m.moveCursor(1)
			m.recalcContent()
			m.ensureCursorVisible()
			return m, nil
		case "a":
			return m, m.decideCmd(gate.Approve)
		case "r":
			return m, m.decideCmd(gate.Reject)
		case "s":
			m.moveCursor(1)
			m.recalcContent()
			m.ensureCursorVisible()
			return m, nil
		}

		// Forward other keys (pgup/pgdn/home/end) to the viewport.
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m reviewModel) decideCmd(decision gate.Decision) tea.Cmd {
	if len(m.records) == 0 {
		return nil
	}
	rec := m.records[m.cursor]
	if _, done := m.decided[rec.IdentityKey]; done {
		return nil
	}
	g := m.gate
	return func() tea.Msg {
		err := g.Review(rec.IdentityKey, decision, "interactive review")
		return decidedMsg{key: rec.IdentityKey, decision: decision, err: err}
	}
}

func (m *reviewModel) moveCursor(delta int) {
	m.cursor = clamp(m.cursor+delta, 0, max(len(m.records)-1, 0))
}

func (m *reviewModel) ensureCursorVisible() {
	cursorTop := m.cursor * itemHeight
	cursorBottom := cursorTop + itemHeight - 1

	if cursorTop < m.vp.YOffset {
		m.vp.SetYOffset(cursorTop)
	} else if cursorBottom >= m.vp.YOffset+m.vp.Height {
		m.vp.SetYOffset(cursorBottom - m.vp.Height + 1)
	}
}

func (m *reviewModel) recalcLayout() {
	// Header (1) + border top/bottom (2) + status bar (1) = 4 lines overhead.
	width := max(m.width-2, 20)
	height := max(m.height-4, 5)

	if !m.ready {
		m.vp = viewport.New(width, height)
		m.ready = true
	} else {
		m.vp.Width = width
		m.vp.Height = height
	}

	m.recalcContent()
}

func (m *reviewModel) recalcContent() {
	m.vp.SetContent(m.renderRecords())
}

func (m reviewModel) renderRecords() string {
	if len(m.records) == 0 {
		return subtitleStyle.Render("  Nothing pending review.")
	}

	var b strings.Builder
	for i, rec := range m.records {
		title := fmt.Sprintf("  %s — %s", rec.Company, rec.Title)
		contact := rec.RecipientEmail
		if contact == "" {
			contact = "no contact"
		} else if !rec.EmailVerified {
			contact += " (unverified)"
		}
		subtitle := fmt.Sprintf("    score %.2f | %s | %s | %s",
			rec.RelevanceScore, rec.Source, contact,
			rec.DiscoveredAt.Format("2006-01-02"))

		if verdict, ok := m.decided[rec.IdentityKey]; ok {
			tag := approvedTagStyle.Render(" [approved]")
			if verdict == gate.Reject {
				tag = rejectedTagStyle.Render(" [rejected]")
			}
			title += tag
		}

		if i == m.cursor {
			b.WriteString(selectedTitleStyle.Render(title))
			b.WriteByte('\n')
			b.WriteString(selectedSubtitleStyle.Render(subtitle))
		} else {
			b.WriteString(titleStyle.Render(title))
			b.WriteByte('\n')
			b.WriteString(subtitleStyle.Render(subtitle))
		}
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m reviewModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	remaining := len(m.records) - len(m.decided)
	header := headerStyle.Render(fmt.Sprintf(" Review Queue (%d pending)", remaining))

	content := borderStyle.Width(m.vp.Width).Render(m.vp.View())

	statusText := fmt.Sprintf(" %d approved | %d rejected    a approve  r reject  s skip  ↑/↓ cursor  q quit",
		m.approved, m.rejected)
	if m.lastErr != "" {
		statusText = " " + errorStyle.Render(m.lastErr)
	}
	statusBar := statusBarStyle.Width(m.width).Render(statusText)

	return header + "\n" + content + "\n" + statusBar
}

// Run opens the interactive review queue over the given pending records.
// Decisions are applied through the gate as soon as the reviewer makes
// them, so quitting mid-queue loses nothing.
func Run(g *gate.Gate, pending []model.JobRecord) (approved, rejected int, err error) {
	m := reviewModel{
		gate:    g,
		records: pending,
		decided: make(map[string]gate.Decision),
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return 0, 0, fmt.Errorf("review TUI error: %w", err)
	}

	fm := final.(reviewModel)
	return fm.approved, fm.rejected, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
