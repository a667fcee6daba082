package main

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"murmur/overlay"
	"murmur/pipeline"
)

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

type tickMsg time.Time

type TranscriptMsg struct {
	View pipeline.TranscriptView
}

type StatusMsg struct {
	Model  string
	Device string
	Socket string
	Hybrid bool
}

type WarningMsg struct {
	Text string
}

// tuiSink keeps the newest overlay frame for the next tick. Render never
// blocks the animation loop.
type tuiSink struct {
	latest atomic.Pointer[overlay.Frame]
}

func (s *tuiSink) Render(f overlay.Frame) {
	s.latest.Store(&f)
}

func (s *tuiSink) frame() overlay.Frame {
	if f := s.latest.Load(); f != nil {
		return *f
	}
	return overlay.Frame{State: overlay.Hidden}
}

type tuiModel struct {
	sink     *tuiSink
	onCancel func()

	width  int
	height int
	frame  overlay.Frame
	status StatusMsg
	warn   string

	count int
	last  *pipeline.TranscriptView
}

func NewTUIProgram(sink *tuiSink, onCancel func()) *tea.Program {
	m := tuiModel{sink: sink, onCancel: onCancel}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "esc":
			if m.onCancel != nil && m.frame.State == overlay.Recording {
				go m.onCancel()
			}
		}

	case tickMsg:
		if m.sink != nil {
			m.frame = m.sink.frame()
		}
		return m, tuiTick()

	case TranscriptMsg:
		m.count++
		v := msg.View
		m.last = &v
		m.warn = ""

	case StatusMsg:
		m.status = msg

	case WarningMsg:
		m.warn = msg.Text
	}
	return m, nil
}

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldHelp  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	textStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

const statusWidth = 36

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	left := strings.Join(m.statusLines(), "\n")

	rightWidth := m.width - statusWidth - 1
	if rightWidth < 20 {
		rightWidth = 20
	}
	right := m.transcriptPanel(rightWidth - 2)

	leftPanel := lipgloss.NewStyle().Width(statusWidth).Height(m.height).Render(left)
	rightPanel := lipgloss.NewStyle().Width(rightWidth).Height(m.height).PaddingLeft(1).Render(right)
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)
}

func (m tuiModel) statusLines() []string {
	var lines []string
	f := m.frame
	if f.State == overlay.Hidden || f.State == "" {
		lines = append(lines, dimStyle.Render("○ STANDBY"))
		lines = append(lines, dimStyle.Render(renderBars(nil, overlay.DefaultBars)))
	} else {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(f.Theme.Hex())).Bold(true)
		glyph := f.Theme.Glyph
		if !f.Visible {
			glyph = " "
		}
		lines = append(lines, style.Render(glyph+" "+strings.ToUpper(f.Theme.Label)))
		lines = append(lines, style.Render(renderBars(f.Bars, overlay.DefaultBars)))
		if f.State == overlay.Recording && f.Idle {
			lines = append(lines, warnStyle.Render("  ⚠ no voice detected"))
		}
		if f.Err != "" {
			lines = append(lines, warnStyle.Render(f.Err))
		}
	}
	lines = append(lines, "")

	if m.status.Model != "" {
		lines = append(lines, dimStyle.Render("model: "+m.status.Model))
	}
	if m.status.Device != "" {
		lines = append(lines, dimStyle.Render("mic: "+m.status.Device))
	}
	if m.status.Socket != "" {
		lines = append(lines, dimStyle.Render("ipc: "+m.status.Socket))
	}
	if m.warn != "" {
		lines = append(lines, warnStyle.Render(m.warn))
	}
	lines = append(lines, "")

	if m.status.Hybrid {
		lines = append(lines, boldHelp.Render("tap Ctrl+Shift+Space")+helpStyle.Render(" hands-free"))
		lines = append(lines, boldHelp.Render("hold Ctrl+Shift+Space")+helpStyle.Render(" push-to-talk"))
	} else {
		lines = append(lines, boldHelp.Render("Ctrl+Shift+Space")+helpStyle.Render(" to record"))
	}
	lines = append(lines, boldHelp.Render("Ctrl+Shift+A")+helpStyle.Render(" assistant"))
	lines = append(lines, boldHelp.Render("esc")+helpStyle.Render(" cancel  ")+boldHelp.Render("q")+helpStyle.Render(" quit"))
	lines = append(lines, helpStyle.Render("murmur "+version))
	return lines
}

func (m tuiModel) transcriptPanel(width int) string {
	if width < 10 {
		width = 10
	}
	if m.last == nil {
		return dimStyle.Render("No transcriptions yet")
	}

	var b strings.Builder
	title := lipgloss.NewStyle().Foreground(lipgloss.Color("246")).
		Render(fmt.Sprintf("Last transcription (#%d)", m.count))
	b.WriteString(title + "\n\n")

	text := m.last.Text
	style := textStyle
	if text == "" {
		text = "(no speech)"
		style = warnStyle
	}
	lines := wrapText(text, width)
	for i, line := range lines {
		b.WriteString(style.Render(line))
		if i == len(lines)-1 && m.last.Delivered != "" && m.last.Text != "" {
			b.WriteString(" " + okStyle.Render("[✓ "+m.last.Delivered+"]"))
		}
		b.WriteString("\n")
	}

	if m.last.Context != "" {
		b.WriteString("\n" + dimStyle.Render("screen context:") + "\n")
		for _, line := range wrapText(firstLine(m.last.Context), width) {
			b.WriteString(dimStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s | %s | %.1fs audio", m.last.Mode, m.last.Model, m.last.AudioSeconds)))
	return b.String()
}

var barGlyphs = []rune("▁▂▃▄▅▆▇█")

// renderBars draws one glyph per bar, padding to n with the lowest glyph.
func renderBars(bars []float64, n int) string {
	if len(bars) > n {
		n = len(bars)
	}
	out := make([]rune, 0, n*2)
	for i := 0; i < n; i++ {
		v := 0.0
		if i < len(bars) {
			v = bars[i]
		}
		idx := int(v * float64(len(barGlyphs)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(barGlyphs) {
			idx = len(barGlyphs) - 1
		}
		out = append(out, barGlyphs[idx], ' ')
	}
	return strings.TrimRight(string(out), " ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
