package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/beacon/internal/advisory"
	"github.com/five82/beacon/internal/cache"
	"github.com/five82/beacon/internal/state"
)

// renderHeader renders the status bar: connectivity, freshness of the
// current view, sync queue depth and the newest advisory.
func (m Model) renderHeader() string {
	styles := m.theme.Styles()
	sep := "  "

	parts := []string{styles.Logo.Render("beacon")}

	if m.snapshot.Sync.IsOnline {
		parts = append(parts, styles.SuccessText.Render("● ONLINE"))
	} else {
		parts = append(parts, styles.DangerText.Render("● OFFLINE"))
	}

	if badge := m.freshnessBadge(styles); badge != "" {
		parts = append(parts, badge)
	}

	queue := m.snapshot.Sync
	switch {
	case queue.IsSyncing:
		parts = append(parts, styles.InfoText.Render(fmt.Sprintf("syncing %d", queue.PendingCount)))
	case queue.PendingCount > 0:
		parts = append(parts, styles.WarningText.Render(fmt.Sprintf("%d pending", queue.PendingCount)))
	}

	if m.snapshot.HasAdvisory {
		parts = append(parts, advisoryStyle(styles, m.snapshot.Advisory.Level).Render(m.snapshot.Advisory.Message))
	}

	return styles.Header.Width(m.width).MaxHeight(1).Render(strings.Join(parts, sep))
}

// freshness summarizes the section behind the current view.
func (m Model) freshness() (label string, degraded bool) {
	switch m.currentView {
	case ViewOverview:
		return sectionFreshness(m.snapshot.Status)
	case ViewAccessPoints:
		return sectionFreshness(m.snapshot.AccessPoints)
	case ViewStations:
		return sectionFreshness(m.snapshot.Stations)
	case ViewRoaming:
		return sectionFreshness(m.snapshot.Roaming)
	default:
		return "", false
	}
}

func (m Model) freshnessBadge(styles Styles) string {
	label, degraded := m.freshness()
	if label == "" {
		return ""
	}
	if degraded {
		return styles.WarningText.Render(label)
	}
	return styles.MutedText.Render(label)
}

// sectionFreshness describes where a section's data came from.
func sectionFreshness[T any](sec state.Section[T]) (string, bool) {
	switch {
	case sec.Loading && !sec.HasData:
		return "loading...", false
	case sec.IsOffline && sec.IsCached:
		return "offline · cached " + cache.FormatCacheAge(sec.CacheAge), true
	case sec.IsOffline:
		return "offline", true
	case sec.IsCached:
		return "cached " + cache.FormatCacheAge(sec.CacheAge), true
	case sec.IsStale:
		return "stale", true
	case sec.Err != "":
		return "error", true
	case sec.HasData:
		return "live", false
	default:
		return "", false
	}
}

func advisoryStyle(styles Styles, level advisory.Level) lipgloss.Style {
	switch level {
	case advisory.Error:
		return styles.DangerText
	case advisory.Warn:
		return styles.WarningText
	default:
		return styles.InfoText
	}
}

// renderCommandBar lists the views with the active one highlighted.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles()
	parts := make([]string, 0, viewCount+1)
	for v := View(0); v < viewCount; v++ {
		label := fmt.Sprintf("%d %s", v+1, viewTitles[v])
		if v == m.currentView {
			parts = append(parts, styles.Selected.Render(" "+label+" "))
		} else {
			parts = append(parts, styles.MutedText.Render(" "+label+" "))
		}
	}
	parts = append(parts, styles.FaintText.Render("  ? help"))
	return lipgloss.NewStyle().Width(m.width).MaxHeight(1).Render(strings.Join(parts, ""))
}

// renderFooter shows the last action result or the current section error.
func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	text := m.notice
	if text == "" {
		text = m.sectionError()
	}
	if text == "" && !m.lastUpdated.IsZero() {
		text = "updated " + m.lastUpdated.Format("15:04:05")
	}
	return styles.Footer.Width(m.width).MaxHeight(1).Render(text)
}

func (m Model) sectionError() string {
	switch m.currentView {
	case ViewOverview:
		if m.snapshot.Status.Err != "" {
			return m.snapshot.Status.Err
		}
		return m.snapshot.Tiles.Err
	case ViewAccessPoints:
		return m.snapshot.AccessPoints.Err
	case ViewStations:
		return m.snapshot.Stations.Err
	case ViewRoaming:
		return m.snapshot.Roaming.Err
	case ViewLogs:
		return m.logErr
	default:
		return ""
	}
}
