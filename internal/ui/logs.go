package ui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/five82/beacon/internal/logtail"
)

// refreshLogs tails the console's own log file.
func (m Model) refreshLogs() tea.Cmd {
	path := m.logPath
	if path == "" {
		return nil
	}
	return func() tea.Msg {
		entries, err := logtail.Tail(path, logTailLines)
		return logTailMsg{entries: entries, err: err}
	}
}

func (m *Model) handleLogTail(msg logTailMsg) {
	if msg.err != nil {
		m.logErr = msg.err.Error()
		return
	}
	m.logErr = ""

	follow := m.logViewport.AtBottom() || len(m.logLines) == 0
	styles := m.theme.Styles()
	lines := make([]string, len(msg.entries))
	for i, e := range msg.entries {
		text := e.Format()
		switch {
		case !e.Parsed:
			lines[i] = styles.FaintText.Render(text)
		case e.Level >= zerolog.ErrorLevel && e.Level <= zerolog.PanicLevel:
			lines[i] = styles.DangerText.Render(text)
		case e.Level == zerolog.WarnLevel:
			lines[i] = styles.WarningText.Render(text)
		case e.Level <= zerolog.DebugLevel:
			lines[i] = styles.MutedText.Render(text)
		default:
			lines[i] = styles.Text.Render(text)
		}
	}
	m.logLines = lines
	m.logViewport.SetContent(strings.Join(lines, "\n"))
	if follow {
		m.logViewport.GotoBottom()
	}
}

func (m *Model) resizeLogViewport() {
	m.logViewport.Width = m.width
	m.logViewport.Height = m.contentHeight()
}

func (m Model) renderLogs() string {
	if m.logPath == "" {
		return m.theme.Styles().FaintText.Render("  no log file configured")
	}
	if len(m.logLines) == 0 {
		return m.theme.Styles().FaintText.Render("  " + m.logPath + " is empty")
	}
	return m.logViewport.View()
}
