// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 LeTelescope

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LeTelescope/fffpctl/internal/bridge"
	"github.com/LeTelescope/fffpctl/pkg/fffp"
	"github.com/LeTelescope/fffpctl/pkg/panel"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	// Upper bound for one operation; the protocol timeout fires first
	// unless the link stalls
	operationTimeout = 30 * time.Second
	brightnessBarLen = 20
)

// Focus states
const (
	focusButtons = iota
	focusBrightnessInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controlOp is one button of the control panel
type controlOp struct {
	key   string
	label string
	run   func(ctx context.Context, ctrl *panel.Controller, current panel.State) error
}

var controlOps = []controlOp{
	{key: "p", label: "Park", run: func(ctx context.Context, ctrl *panel.Controller, _ panel.State) error {
		return ctrl.ParkCap(ctx)
	}},
	{key: "u", label: "Unpark", run: func(ctx context.Context, ctrl *panel.Controller, _ panel.State) error {
		return ctrl.UnparkCap(ctx)
	}},
	{key: "l", label: "Light", run: func(ctx context.Context, ctrl *panel.Controller, current panel.State) error {
		return ctrl.EnableLight(ctx, !current.LightOn)
	}},
	{key: "0", label: "Reset", run: func(ctx context.Context, ctrl *panel.Controller, _ panel.State) error {
		return ctrl.ResetBrightness(ctx)
	}},
	{key: "r", label: "Refresh", run: func(ctx context.Context, ctrl *panel.Controller, _ panel.State) error {
		return ctrl.Refresh(ctx)
	}},
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	provider      bridge.Provider
	maxBrightness int

	// Connection
	connected   bool
	connInfo    string
	connectedAt time.Time
	lastErr     error

	// Confirmed device state
	belief panel.State

	// Monitoring
	stats  *fffp.Statistics
	events eventLog

	// Control
	brightnessInput textinput.Model
	focusedField    int
	selectedOp      int
	pending         string

	// UI state
	width    int
	height   int
	quitting bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type connectedMsg struct {
	connInfo string
	at       time.Time
}

type connectionLostMsg struct {
	err error
}

type beliefMsg panel.State

type opResultMsg struct {
	label   string
	err     error
	elapsed time.Duration
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(provider bridge.Provider) controlModel {
	maxLevel := int(cfg.Protocol.MaxBrightness)

	ti := textinput.New()
	ti.Placeholder = strconv.Itoa(maxLevel / 2)
	ti.CharLimit = len(strconv.Itoa(maxLevel))
	ti.Width = 10
	ti.Validate = func(s string) error {
		for _, r := range s {
			if r < '0' || r > '9' {
				return errors.New("digits only")
			}
		}
		return nil
	}

	return controlModel{
		provider:        provider,
		maxBrightness:   maxLevel,
		belief:          panel.State{Cap: panel.CapUnknown},
		stats:           fffp.NewStatistics(),
		events:          newEventLog(100),
		brightnessInput: ti,
		focusedField:    focusButtons,
		width:           80,
		height:          24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case controlTickMsg:
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case connectedMsg:
		m.connected = true
		m.connInfo = msg.connInfo
		m.connectedAt = msg.at
		m.lastErr = nil
		m.addLogEntry(fmt.Sprintf("Connected: %s", msg.connInfo), false)
		// Start from the device's own view of cap and brightness
		cmd := m.runOp(controlOps[len(controlOps)-1])
		return m, cmd

	case connectionLostMsg:
		wasConnected := m.connected
		m.connected = false
		m.lastErr = msg.err
		if wasConnected {
			m.addLogEntry(fmt.Sprintf("Connection lost - reconnecting... (%v)", msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("Connect failed: %v", msg.err), true)
		}

	case beliefMsg:
		m.applyBelief(panel.State(msg))

	case lineMsg:
		reply, err := fffp.Decode(msg.line)
		m.stats.Update(reply, err)
		if err != nil {
			m.addLogEntry(fmt.Sprintf("MALFORMED: %v", err), true)
		}

	case opResultMsg:
		m.pending = ""
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("%s failed: %v", msg.label, msg.err), true)
		} else {
			m.addLogEntry(fmt.Sprintf("%s ok (%v)", msg.label, msg.elapsed.Round(time.Millisecond)), false)
		}
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	if m.focusedField == focusBrightnessInput {
		switch msg.String() {
		case "tab", "shift+tab", "esc":
			m.focusedField = focusButtons
			m.brightnessInput.Blur()
			return m, nil
		case "enter":
			return m.submitBrightness()
		}

		var cmd tea.Cmd
		m.brightnessInput, cmd = m.brightnessInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "tab", "shift+tab", "b":
		m.focusedField = focusBrightnessInput
		cmd := m.brightnessInput.Focus()
		return m, cmd

	case "left", "h":
		m.selectedOp = (m.selectedOp + len(controlOps) - 1) % len(controlOps)

	case "right":
		m.selectedOp = (m.selectedOp + 1) % len(controlOps)

	case "enter", " ":
		cmd := m.runOp(controlOps[m.selectedOp])
		return m, cmd

	default:
		for i, op := range controlOps {
			if msg.String() == op.key {
				m.selectedOp = i
				cmd := m.runOp(op)
				return m, cmd
			}
		}
	}

	return m, nil
}

func (m *controlModel) submitBrightness() (tea.Model, tea.Cmd) {
	value := m.brightnessInput.Value()
	if value == "" {
		value = m.brightnessInput.Placeholder
	}
	level, err := strconv.Atoi(value)
	if err != nil || level < 0 || level > m.maxBrightness {
		m.addLogEntry(fmt.Sprintf("Brightness must be 0..%d, got %q", m.maxBrightness, value), true)
		return *m, nil
	}

	m.brightnessInput.SetValue("")
	op := controlOp{
		label: fmt.Sprintf("Brightness %d", level),
		run: func(ctx context.Context, ctrl *panel.Controller, _ panel.State) error {
			return ctrl.SetBrightness(ctx, level)
		},
	}
	cmd := m.runOp(op)
	return *m, cmd
}

// runOp starts op in the background. Only one operation is in flight at a
// time; the panel would answer a second one with busy anyway.
func (m *controlModel) runOp(op controlOp) tea.Cmd {
	if !m.connected {
		m.addLogEntry(fmt.Sprintf("Cannot %s: not connected", strings.ToLower(op.label)), true)
		return nil
	}
	if m.pending != "" {
		m.addLogEntry(fmt.Sprintf("Cannot %s: %s in progress", strings.ToLower(op.label), m.pending), true)
		return nil
	}

	m.pending = op.label
	provider := m.provider
	current := m.belief

	return func() tea.Msg {
		start := time.Now()
		ctrl, err := provider.Controller()
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
			defer cancel()
			err = op.run(ctx, ctrl, current)
		}
		return opResultMsg{label: op.label, err: err, elapsed: time.Since(start)}
	}
}

func (m *controlModel) applyBelief(s panel.State) {
	prev := m.belief
	m.belief = s

	if prev.Cap != s.Cap {
		m.addLogEntry(fmt.Sprintf("Cap: %s -> %s", prev.Cap, s.Cap), false)
	}
	if prev.LightOn != s.LightOn || prev.Brightness != s.Brightness {
		m.addLogEntry(fmt.Sprintf("Light: %s at %d", onOff(s.LightOn), s.Brightness), false)
	}
}

func (m *controlModel) addLogEntry(message string, isError bool) {
	m.events.add(time.Now(), message, isError)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()
	var s strings.Builder

	// Header
	helpText := "q=quit Tab=brightness ←/→ select Enter=run"
	s.WriteString(st.title.Render("FFFPCTL CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if !m.connected {
		connStatus = st.warning.Render("CONNECTING...")
	}
	s.WriteString(st.header.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	s.WriteString("\n")

	if m.connected {
		s.WriteString(fmt.Sprintf(" %s %s",
			st.label.Render("Connected for:"),
			st.value.Render(formatUptime(time.Since(m.connectedAt)))))
	} else if m.lastErr != nil {
		s.WriteString(" " + st.err.Render(m.lastErr.Error()))
	}
	s.WriteString("\n\n")

	// Layout: left panel (state) | right panel (controls)
	leftWidth := 34
	rightWidth := max(m.width-leftWidth-6, 30)

	statePanel := st.box.Width(leftWidth).Render(m.renderState(st))
	controlStyle := st.box.Width(rightWidth)
	if m.focusedField == focusBrightnessInput {
		controlStyle = st.focusedBox.Width(rightWidth)
	}
	controlPanel := controlStyle.Render(m.renderControlPanel(st))

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statePanel, " ", controlPanel))
	s.WriteString("\n\n")

	s.WriteString(renderStatistics(st, m.stats))
	s.WriteString("\n\n")

	s.WriteString(st.label.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(m.events.render(st, m.height-20, m.width))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderState(st tuiStyles) string {
	var s strings.Builder

	capStyle := st.value
	switch m.belief.Cap {
	case panel.CapMoving:
		capStyle = st.warning
	case panel.CapUnknown:
		capStyle = st.header
	}
	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Cap:       "), capStyle.Render(string(m.belief.Cap))))

	lightStyle := st.header
	if m.belief.LightOn {
		lightStyle = st.value
	}
	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Light:     "), lightStyle.Render(onOff(m.belief.LightOn))))

	s.WriteString(fmt.Sprintf("%s %s\n", st.label.Render("Brightness:"),
		st.value.Render(fmt.Sprintf("%d / %d", m.belief.Brightness, m.maxBrightness))))
	s.WriteString(brightnessBar(int(m.belief.Brightness), m.maxBrightness))

	return s.String()
}

func (m controlModel) renderControlPanel(st tuiStyles) string {
	var s strings.Builder

	// Buttons
	buttons := make([]string, 0, len(controlOps))
	for i, op := range controlOps {
		text := fmt.Sprintf("%s (%s)", op.label, op.key)
		if m.focusedField == focusButtons && i == m.selectedOp {
			buttons = append(buttons, st.focusedButton.Render(text))
		} else {
			buttons = append(buttons, st.button.Render(text))
		}
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, strings.Join(buttons, " ")))
	s.WriteString("\n\n")

	// Brightness entry
	s.WriteString(st.label.Render(fmt.Sprintf("Brightness (0-%d): ", m.maxBrightness)))
	if m.focusedField == focusBrightnessInput {
		s.WriteString(m.brightnessInput.View())
	} else {
		// Show as plain text when not focused
		val := m.brightnessInput.Value()
		if val == "" {
			val = m.brightnessInput.Placeholder
		}
		s.WriteString(fmt.Sprintf("[%s]", val))
	}
	s.WriteString("\n\n")

	if m.pending != "" {
		s.WriteString(st.warning.Render(fmt.Sprintf("⏳ %s...", m.pending)))
	} else {
		s.WriteString(st.header.Render("idle"))
	}

	return s.String()
}

func brightnessBar(level, maxLevel int) string {
	filled := 0
	if maxLevel > 0 {
		filled = level * brightnessBarLen / maxLevel
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("·", brightnessBarLen-filled) + "]"
}
