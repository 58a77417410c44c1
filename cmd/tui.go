// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LeTelescope/fffpctl/pkg/fffp"
)

//////////////////////////////////////////////////////////////
// Shared TUI pieces
//////////////////////////////////////////////////////////////

type tuiStyles struct {
	title         lipgloss.Style
	header        lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	err           lipgloss.Style
	warning       lipgloss.Style
	box           lipgloss.Style
	focusedBox    lipgloss.Style
	button        lipgloss.Style
	focusedButton lipgloss.Style
}

func newTUIStyles() tuiStyles {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)
	button := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:        lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:         lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:         lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:           lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning:       lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box:           box,
		focusedBox:    box.BorderForeground(lipgloss.Color("12")),
		button:        button,
		focusedButton: button.Background(lipgloss.Color("10")),
	}
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

type eventLog struct {
	entries []eventLogEntry
	max     int
}

func newEventLog(max int) eventLog {
	return eventLog{entries: make([]eventLogEntry, 0, max), max: max}
}

func (l *eventLog) add(at time.Time, message string, isError bool) {
	l.entries = append(l.entries, eventLogEntry{timestamp: at, message: message, isError: isError})

	// Keep only last N entries
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// render shows the newest height entries
func (l eventLog) render(st tuiStyles, height, width int) string {
	if height < 5 {
		height = 5
	}

	var content strings.Builder
	start := max(len(l.entries)-height, 0)

	if len(l.entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	}
	for _, entry := range l.entries[start:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
		if entry.isError {
			content.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.err.Render("✗ "+entry.message)))
		} else {
			content.WriteString(fmt.Sprintf("%s %s\n", st.header.Render(timestamp), st.warning.Render("ℹ "+entry.message)))
		}
	}

	return st.box.Width(max(width-4, 20)).Render(content.String())
}

// renderStatistics formats inbound line counters as a single box
func renderStatistics(st tuiStyles, stats *fffp.Statistics) string {
	stats.CalculateRates()

	var okPercent, badPercent float64
	bad := stats.MalformedLines + stats.OtherErrors
	if stats.TotalLines > 0 {
		okPercent = float64(stats.Results) * 100.0 / float64(stats.TotalLines)
		badPercent = float64(bad) * 100.0 / float64(stats.TotalLines)
	}

	var content strings.Builder
	content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		st.label.Render("Lines:"), st.value.Render(fmt.Sprintf("%d", stats.TotalLines)),
		st.label.Render("Results:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", stats.Results, okPercent)),
		st.label.Render("Errors:"), st.warning.Render(fmt.Sprintf("%d", stats.Errors)),
		st.label.Render("Malformed:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", bad, badPercent)),
	))
	if stats.OverlongLines > 0 {
		content.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Overlong:"), st.err.Render(fmt.Sprintf("%d", stats.OverlongLines))))
	}

	errRate := st.value.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	content.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Line Rate:"), st.value.Render(fmt.Sprintf("%.1f lines/s", stats.LineRate)),
		st.label.Render("Error Rate:"), errRate,
	))

	return st.box.Render(content.String())
}

// formatUptime formats a duration as a human-friendly string
func formatUptime(d time.Duration) string {
	total := uint64(d / time.Second)
	seconds := total % 60
	minutes := total / 60 % 60
	hours := total / 3600 % 24
	days := total / 86400

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

//////////////////////////////////////////////////////////////
// Monitor TUI
//////////////////////////////////////////////////////////////

// monitorModel is the Bubble Tea model for the passive line monitor
type monitorModel struct {
	connInfo string
	showAll  bool
	started  time.Time

	stats  *fffp.Statistics
	events eventLog

	lastLine   string
	lastLineAt time.Time

	width    int
	height   int
	closed   bool
	quitting bool
}

// Messages
type monitorTickMsg time.Time

type lineMsg struct {
	line      string
	decodeErr error
	at        time.Time
}

type linkClosedMsg struct {
	err error
}

func initialMonitorModel(connInfo string, showAll bool) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		showAll:  showAll,
		started:  time.Now(),
		stats:    fffp.NewStatistics(),
		events:   newEventLog(100),
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.stats.Reset()
			m.events.add(time.Now(), "Statistics cleared", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case monitorTickMsg:
		m.stats.CalculateRates()
		return m, monitorTickCmd()

	case lineMsg:
		m.handleLine(msg)

	case linkClosedMsg:
		m.closed = true
		if msg.err != nil {
			m.events.add(time.Now(), fmt.Sprintf("Connection closed: %v", msg.err), true)
		} else {
			m.events.add(time.Now(), "Connection closed", true)
		}
	}

	return m, nil
}

func (m *monitorModel) handleLine(msg lineMsg) {
	reply, err := decodeInbound(msg.line, msg.decodeErr)
	m.stats.Update(reply, err)

	if err != nil {
		m.events.add(msg.at, fmt.Sprintf("MALFORMED: %v", err), true)
		return
	}

	m.lastLine = msg.line
	m.lastLineAt = msg.at
	switch {
	case isErrorReply(reply):
		m.events.add(msg.at, fffp.FormatReply(reply), true)
	case m.showAll:
		m.events.add(msg.at, fffp.FormatReply(reply), false)
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()
	mode := "Errors only"
	if m.showAll {
		mode = "All lines"
	}

	// Header
	var s strings.Builder
	s.WriteString(st.title.Render("FFFPCTL - LINE MONITOR"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Mode: %s | Press 'c' to clear, 'q' to quit", m.connInfo, mode)))
	s.WriteString("\n\n")

	switch {
	case m.closed:
		s.WriteString(st.err.Render("✗ Connection closed"))
	case m.lastLineAt.IsZero():
		s.WriteString(st.warning.Render("⏳ Waiting for the first line..."))
	default:
		s.WriteString(st.value.Render("✓ Receiving"))
		s.WriteString(st.header.Render(fmt.Sprintf(" (monitoring for %s, last %q)", formatUptime(time.Since(m.started)), m.lastLine)))
	}
	s.WriteString("\n\n")

	s.WriteString(renderStatistics(st, m.stats))
	s.WriteString("\n\n")

	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	// Reserve space for header and stats
	s.WriteString(m.events.render(st, m.height-13, m.width))

	return s.String()
}

// decodeInbound turns a reassembled line, or the error that replaced it,
// into a reply for the statistics counters
func decodeInbound(line string, decodeErr error) (fffp.Reply, error) {
	if decodeErr != nil {
		return nil, decodeErr
	}
	return fffp.Decode(line)
}

func isErrorReply(r fffp.Reply) bool {
	_, ok := r.(fffp.ErrorReply)
	return ok
}
