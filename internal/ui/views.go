package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/five82/beacon/internal/controller"
)

type column struct {
	title string
	width int
}

// renderTable draws rows with a header, keeping the selected row in the
// visible window.
func (m Model) renderTable(cols []column, rows [][]string, selected int, statusCol int) string {
	styles := m.theme.Styles()
	height := m.contentHeight() - 1
	if height < 1 {
		height = 1
	}

	var b strings.Builder
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = fit(c.title, c.width)
	}
	b.WriteString(styles.ColumnHeader.Render(strings.Join(header, " ")))

	if len(rows) == 0 {
		b.WriteString("\n")
		b.WriteString(styles.FaintText.Render("  nothing to show"))
		return b.String()
	}

	start := 0
	if selected >= height {
		start = selected - height + 1
	}
	end := start + height
	if end > len(rows) {
		end = len(rows)
	}

	for i := start; i < end; i++ {
		cells := make([]string, len(cols))
		for j, c := range cols {
			cell := ""
			if j < len(rows[i]) {
				cell = rows[i][j]
			}
			cells[j] = fit(cell, c.width)
		}
		b.WriteString("\n")
		if i == selected {
			b.WriteString(styles.Selected.Render(strings.Join(cells, " ")))
			continue
		}
		if statusCol >= 0 && statusCol < len(cells) {
			cells[statusCol] = styles.StatusStyle(strings.TrimSpace(rows[i][statusCol])).Render(cells[statusCol])
		}
		b.WriteString(styles.Text.Render(strings.Join(cells, " ")))
	}
	return b.String()
}

// fit pads or truncates s to exactly width cells.
func fit(s string, width int) string {
	if width <= 0 {
		return s
	}
	w := lipgloss.Width(s)
	if w > width {
		r := []rune(s)
		if width == 1 || len(r) <= width {
			return string(r[:min(width, len(r))])
		}
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-w)
}

func (m Model) renderOverview() string {
	styles := m.theme.Styles()
	var b strings.Builder

	status := m.snapshot.Status
	switch {
	case status.Data != nil:
		s := status.Data
		b.WriteString(styles.AccentText.Bold(true).Render(s.Hostname))
		if s.Version != "" {
			b.WriteString(styles.MutedText.Render("  v" + s.Version))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s %s   %s %d/%d up   %s %d\n",
			styles.MutedText.Render("uptime"), formatUptime(s.Uptime()),
			styles.MutedText.Render("APs"), s.APsUp, s.APCount,
			styles.MutedText.Render("stations"), s.StationCount)
		for _, a := range s.Alarms {
			line := fmt.Sprintf("! %s %s", strings.ToUpper(a.Severity), a.Message)
			if raised := a.ParsedRaised(); !raised.IsZero() {
				line += " (" + humanize.Time(raised) + ")"
			}
			b.WriteString(alarmStyle(styles, a.Severity).Render(line))
			b.WriteString("\n")
		}
	case status.Loading:
		b.WriteString(styles.MutedText.Render("Loading controller status...\n"))
	default:
		b.WriteString(styles.MutedText.Render("No controller status yet\n"))
	}

	tiles := m.snapshot.Tiles
	if len(tiles.Data) > 0 {
		b.WriteString("\n")
		width := 0
		for _, t := range tiles.Data {
			width = max(width, lipgloss.Width(t.Title))
		}
		for _, t := range tiles.Data {
			b.WriteString(styles.MutedText.Render(fit(t.Title, width)))
			b.WriteString("  ")
			b.WriteString(styles.Text.Render(t.Value.Format()))
			b.WriteString("\n")
		}
	}
	if tiles.IsStale {
		b.WriteString(styles.WarningText.Render("tiles are stale, refetching"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func alarmStyle(styles Styles, severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "critical", "major", "error":
		return styles.DangerText
	case "minor", "warning":
		return styles.WarningText
	default:
		return styles.InfoText
	}
}

func formatUptime(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}

func (m Model) renderAccessPoints() string {
	cols := []column{
		{"NAME", 22}, {"ID", 8}, {"STATUS", 10}, {"BAND", 7}, {"CH", 4},
		{"CLIENTS", 7}, {"IP", 15}, {"FIRMWARE", 10},
	}
	clients := make(map[string]int)
	for _, st := range m.snapshot.Stations.Data {
		clients[st.APID]++
	}
	aps := m.snapshot.AccessPoints.Data
	rows := make([][]string, len(aps))
	for i, ap := range aps {
		n := ap.Clients
		if c, ok := clients[ap.ID]; ok {
			n = c
		}
		rows[i] = []string{
			ap.Label(), ap.ID, strings.ToLower(ap.Status), ap.Band, strconv.Itoa(ap.Channel),
			strconv.Itoa(n), ap.IP, ap.Firmware,
		}
	}
	return m.renderTable(cols, rows, m.selected[ViewAccessPoints], 2)
}

func (m Model) renderStations() string {
	cols := []column{
		{"HOSTNAME", 16}, {"MAC", 17}, {"AP", 8}, {"SSID", 8}, {"RSSI", 5},
		{"SIGNAL", 7}, {"RATE", 10}, {"CONNECTED", 16},
	}
	stations := m.snapshot.Stations.Data
	rows := make([][]string, len(stations))
	for i, st := range stations {
		connected := "-"
		if at := st.ParsedConnectedAt(); !at.IsZero() {
			connected = humanize.Time(at)
		}
		rows[i] = []string{
			st.Hostname, st.MAC, st.APID, st.SSID, strconv.Itoa(st.RSSI),
			st.SignalQuality(), formatRate(st), connected,
		}
	}
	return m.renderTable(cols, rows, m.selected[ViewStations], 5)
}

func formatRate(st controller.Station) string {
	if st.TxRateMbps <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(st.TxRateMbps*1e6, 0, "bps")
}

func (m Model) renderRoaming() string {
	cols := []column{
		{"CLIENT", 17}, {"CURRENT", 8}, {"HOPS", 4}, {"LAST SEEN", 16}, {"PATH", 40},
	}
	trails := m.snapshot.Roaming.Data
	rows := make([][]string, len(trails))
	for i, t := range trails {
		path := strings.Join(t.Path(), " → ")
		if t.PingPong() {
			path = "⇄ " + path
		}
		last := "-"
		if seen := t.LastSeen(); !seen.IsZero() {
			last = humanize.Time(seen)
		}
		rows[i] = []string{t.ClientMAC, t.CurrentAP(), strconv.Itoa(len(t.Hops)), last, path}
	}
	return m.renderTable(cols, rows, m.selected[ViewRoaming], -1)
}
