// Package roaming turns the controller's flat roaming event log into
// per-client trails.
package roaming

import (
	"sort"
	"strings"
	"time"

	"github.com/five82/beacon/internal/controller"
)

// Hop is one move between access points.
type Hop struct {
	At     time.Time
	FromAP string
	ToAP   string
	RSSI   int
	Reason string
}

// Trail is the ordered roaming history of one client.
type Trail struct {
	ClientMAC string
	Hops      []Hop
}

// LastSeen returns the time of the newest hop.
func (t Trail) LastSeen() time.Time {
	if len(t.Hops) == 0 {
		return time.Time{}
	}
	return t.Hops[len(t.Hops)-1].At
}

// CurrentAP is where the client went on its newest hop.
func (t Trail) CurrentAP() string {
	if len(t.Hops) == 0 {
		return ""
	}
	return t.Hops[len(t.Hops)-1].ToAP
}

// Path lists the visited APs in order, collapsing repeats.
func (t Trail) Path() []string {
	var out []string
	for _, h := range t.Hops {
		for _, ap := range []string{h.FromAP, h.ToAP} {
			if ap == "" || (len(out) > 0 && out[len(out)-1] == ap) {
				continue
			}
			out = append(out, ap)
		}
	}
	return out
}

// Dwell returns how long the client stayed on each AP between hops. The
// last AP has no end and is omitted.
func (t Trail) Dwell() []time.Duration {
	if len(t.Hops) < 2 {
		return nil
	}
	out := make([]time.Duration, 0, len(t.Hops)-1)
	for i := 1; i < len(t.Hops); i++ {
		out = append(out, t.Hops[i].At.Sub(t.Hops[i-1].At))
	}
	return out
}

// PingPong reports whether the client bounced straight back to the AP it
// just left at least once.
func (t Trail) PingPong() bool {
	for i := 1; i < len(t.Hops); i++ {
		prev, cur := t.Hops[i-1], t.Hops[i]
		if prev.FromAP != "" && cur.ToAP == prev.FromAP && cur.FromAP == prev.ToAP {
			return true
		}
	}
	return false
}

// Correlate groups events by client, sorts each trail oldest first and
// orders trails by most recent activity. Events without a client MAC or a
// parseable timestamp are skipped.
func Correlate(events []controller.RoamingEvent) []Trail {
	byClient := make(map[string]*Trail)
	for _, ev := range events {
		mac := normalizeMAC(ev.ClientMAC)
		at := ev.ParsedTime()
		if mac == "" || at.IsZero() {
			continue
		}
		trail, ok := byClient[mac]
		if !ok {
			trail = &Trail{ClientMAC: mac}
			byClient[mac] = trail
		}
		trail.Hops = append(trail.Hops, Hop{
			At:     at,
			FromAP: strings.TrimSpace(ev.FromAP),
			ToAP:   strings.TrimSpace(ev.ToAP),
			RSSI:   ev.RSSI,
			Reason: ev.Reason,
		})
	}

	trails := make([]Trail, 0, len(byClient))
	for _, trail := range byClient {
		sort.SliceStable(trail.Hops, func(i, j int) bool {
			return trail.Hops[i].At.Before(trail.Hops[j].At)
		})
		trails = append(trails, *trail)
	}
	sort.Slice(trails, func(i, j int) bool {
		li, lj := trails[i].LastSeen(), trails[j].LastSeen()
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return trails[i].ClientMAC < trails[j].ClientMAC
	})
	return trails
}

func normalizeMAC(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	return strings.ReplaceAll(mac, "-", ":")
}
