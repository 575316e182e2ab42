package controller

import (
	"strings"
	"time"

	"github.com/five82/beacon/internal/payload"
)

const controllerTimestampLayout = "2006-01-02 15:04:05"

// SystemStatus mirrors /api/status.
type SystemStatus struct {
	Hostname      string  `json:"hostname"`
	Version       string  `json:"version"`
	UptimeSeconds int64   `json:"uptimeSeconds"`
	APCount       int     `json:"apCount"`
	APsUp         int     `json:"apsUp"`
	StationCount  int     `json:"stationCount"`
	Alarms        []Alarm `json:"alarms"`
}

// Uptime returns the controller uptime as a duration.
func (s *SystemStatus) Uptime() time.Duration {
	if s == nil {
		return 0
	}
	return time.Duration(s.UptimeSeconds) * time.Second
}

// Alarm is an active controller alarm.
type Alarm struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Raised   string `json:"raised"`
}

// ParsedRaised returns when the alarm was raised.
func (a Alarm) ParsedRaised() time.Time {
	return parseTime(a.Raised)
}

// AccessPointList mirrors /api/access-points.
type AccessPointList struct {
	Items []AccessPoint `json:"items"`
}

// AccessPoint describes one managed radio.
type AccessPoint struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	IP        string `json:"ip"`
	Status    string `json:"status"`
	Channel   int    `json:"channel"`
	Band      string `json:"band"`
	TxPower   int    `json:"txPower"`
	Clients   int    `json:"clients"`
	Firmware  string `json:"firmware"`
	UpdatedAt string `json:"updatedAt"`
}

// Up reports whether the controller considers the AP online.
func (a AccessPoint) Up() bool {
	switch strings.ToLower(strings.TrimSpace(a.Status)) {
	case "up", "online", "ok":
		return true
	default:
		return false
	}
}

// Label returns the name, falling back to the ID.
func (a AccessPoint) Label() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	return a.ID
}

// StationList mirrors /api/stations.
type StationList struct {
	Items []Station `json:"items"`
}

// Station is an associated wireless client.
type Station struct {
	MAC         string  `json:"mac"`
	Hostname    string  `json:"hostname"`
	IP          string  `json:"ip"`
	APID        string  `json:"apId"`
	SSID        string  `json:"ssid"`
	Band        string  `json:"band"`
	RSSI        int     `json:"rssi"`
	TxRateMbps  float64 `json:"txRateMbps"`
	ConnectedAt string  `json:"connectedAt"`
}

// ParsedConnectedAt returns the association time.
func (s Station) ParsedConnectedAt() time.Time {
	return parseTime(s.ConnectedAt)
}

// SignalQuality buckets RSSI the way radio engineers usually read it.
func (s Station) SignalQuality() string {
	switch {
	case s.RSSI == 0:
		return "unknown"
	case s.RSSI >= -60:
		return "good"
	case s.RSSI >= -72:
		return "fair"
	default:
		return "poor"
	}
}

// RoamingEventList mirrors /api/roaming/events.
type RoamingEventList struct {
	Items []RoamingEvent `json:"items"`
}

// RoamingEvent records a client moving between access points.
type RoamingEvent struct {
	Timestamp string `json:"timestamp"`
	ClientMAC string `json:"clientMac"`
	FromAP    string `json:"fromAp"`
	ToAP      string `json:"toAp"`
	RSSI      int    `json:"rssi"`
	Reason    string `json:"reason"`
}

// ParsedTime returns the event timestamp.
func (e RoamingEvent) ParsedTime() time.Time {
	return parseTime(e.Timestamp)
}

// Dashboard mirrors /api/dashboard.
type Dashboard struct {
	Tiles []payload.Tile `json:"tiles"`
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	if t, err := time.ParseInLocation(controllerTimestampLayout, value, time.Local); err == nil {
		return t
	}
	return time.Time{}
}
