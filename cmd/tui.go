// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/portcullis/pkg/doorlink"
	"github.com/Thermoquad/portcullis/pkg/hal"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

// keypadKeys maps the terminal keyboard onto the 4x4 keypad
type keypadKeys struct {
	Digits   key.Binding
	Open     key.Binding
	Change   key.Binding
	Enter    key.Binding
	Multiply key.Binding
	Divide   key.Binding
	Clear    key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func (k keypadKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Digits, k.Open, k.Change, k.Enter, k.Help, k.Quit}
}

func (k keypadKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Digits, k.Enter, k.Clear},
		{k.Open, k.Change, k.Multiply, k.Divide},
		{k.Help, k.Quit},
	}
}

var defaultKeypadKeys = keypadKeys{
	Digits: key.NewBinding(
		key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
		key.WithHelp("0-9", "digit"),
	),
	Open:     key.NewBinding(key.WithKeys("+"), key.WithHelp("+", "open door")),
	Change:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "change password")),
	Enter:    key.NewBinding(key.WithKeys("=", "enter"), key.WithHelp("=/enter", "confirm")),
	Multiply: key.NewBinding(key.WithKeys("*"), key.WithHelp("*", "multiply")),
	Divide:   key.NewBinding(key.WithKeys("/", "%"), key.WithHelp("/", "divide")),
	Clear:    key.NewBinding(key.WithKeys("esc", "c"), key.WithHelp("esc/c", "on/clear")),
	Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// keypadCode returns the keypad code for a terminal key press
func (k keypadKeys) keypadCode(msg tea.KeyMsg) (byte, bool) {
	switch {
	case key.Matches(msg, k.Digits):
		return hal.KeyFromRune(msg.Runes[0]), true
	case key.Matches(msg, k.Open):
		return hal.KeyOpen, true
	case key.Matches(msg, k.Change):
		return hal.KeyChange, true
	case key.Matches(msg, k.Enter):
		return hal.KeyEnter, true
	case key.Matches(msg, k.Multiply):
		return hal.KeyMultiply, true
	case key.Matches(msg, k.Divide):
		return hal.KeyDivide, true
	case key.Matches(msg, k.Clear):
		return hal.KeyClear, true
	}
	return 0, false
}

// statusLine is one label/value row of the status panel
type statusLine struct {
	label string
	value string
}

// TUI model shared by the hmi and sim commands
type model struct {
	title    string
	connInfo string
	keypad   *hal.QueueKeypad
	keys     keypadKeys
	help     help.Model
	stats    *doorlink.Statistics

	// status is polled on every tick for the node panel
	status func() []statusLine

	lcd           []string
	events        []logEntry
	maxLogEntries int
	dropped       int
	stopped       bool
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type lcdMsg []string
type eventMsg struct {
	message string
	isError bool
}
type nodeDoneMsg struct {
	name string
	err  error
}

func initialModel(title, connInfo string, keypad *hal.QueueKeypad, stats *doorlink.Statistics, status func() []statusLine) model {
	return model{
		title:         title,
		connInfo:      connInfo,
		keypad:        keypad,
		keys:          defaultKeypadKeys,
		help:          help.New(),
		stats:         stats,
		status:        status,
		lcd:           []string{strings.Repeat(" ", hal.LCDCols), strings.Repeat(" ", hal.LCDCols)},
		events:        make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		}
		if code, ok := m.keys.keypadCode(msg); ok && !m.stopped {
			// The node only reads the keypad between steps; presses made
			// while it waits pile up until the queue is full.
			if !m.keypad.TryPress(code) {
				m.dropped++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case lcdMsg:
		m.lcd = msg

	case eventMsg:
		m.addLogEntry(msg.message, msg.isError)

	case nodeDoneMsg:
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s stopped: %v", msg.name, msg.err), true)
			m.stopped = true
		} else {
			m.addLogEntry(fmt.Sprintf("%s stopped", msg.name), false)
		}
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.events = append(m.events, entry)

	// Keep only last N entries
	if len(m.events) > m.maxLogEntries {
		m.events = m.events[len(m.events)-m.maxLogEntries:]
	}
}

// renderLCD draws the character display
func renderLCD(lines []string) string {
	glass := lipgloss.NewStyle().
		Foreground(lipgloss.Color("16")).
		Background(lipgloss.Color("148")).
		Padding(0, 1)
	frame := lipgloss.NewStyle().
		Border(lipgloss.ThickBorder()).
		BorderForeground(lipgloss.Color("22"))

	rows := make([]string, 0, hal.LCDRows)
	for i := 0; i < hal.LCDRows; i++ {
		line := ""
		if i < len(lines) {
			line = lines[i]
		}
		if len(line) < hal.LCDCols {
			line += strings.Repeat(" ", hal.LCDCols-len(line))
		}
		rows = append(rows, glass.Render(line))
	}
	return frame.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render(m.title))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(m.connInfo))
	s.WriteString("\n\n")

	// Node status
	var status strings.Builder
	if m.status != nil {
		for _, line := range m.status() {
			status.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", line.label)))
			status.WriteString(" ")
			status.WriteString(valueStyle.Render(line.value))
			status.WriteString("\n")
		}
	}
	c := m.stats.Snapshot()
	status.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Verdicts")))
	status.WriteString(" ")
	status.WriteString(valueStyle.Render(fmt.Sprintf("%d match, %d mismatch", c.Matches, c.Mismatches)))
	status.WriteString("\n")
	status.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Lockouts")))
	status.WriteString(" ")
	status.WriteString(valueStyle.Render(fmt.Sprintf("%d", c.Lockouts)))
	status.WriteString("\n")
	status.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", "Traffic")))
	status.WriteString(" ")
	status.WriteString(valueStyle.Render(fmt.Sprintf("%d bytes (%.1f/s)", c.TotalBytes, c.ByteRate)))
	if m.dropped > 0 {
		status.WriteString("\n")
		status.WriteString(errorStyle.Render(fmt.Sprintf("%d key presses dropped", m.dropped)))
	}

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		renderLCD(m.lcd),
		"  ",
		boxStyle.Render(strings.TrimRight(status.String(), "\n")),
	))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Events"))
	s.WriteString("\n")
	maxLines := m.height - 16
	if maxLines < 3 {
		maxLines = 3
	}
	start := 0
	if len(m.events) > maxLines {
		start = len(m.events) - maxLines
	}
	if len(m.events) == 0 {
		s.WriteString(headerStyle.Render("  (none yet)"))
		s.WriteString("\n")
	}
	for _, e := range m.events[start:] {
		line := fmt.Sprintf("  [%s] %s", e.timestamp.Format("15:04:05"), e.message)
		if e.isError {
			s.WriteString(errorStyle.Render(line))
		} else {
			s.WriteString(line)
		}
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))
	s.WriteString("\n")
	return s.String()
}
