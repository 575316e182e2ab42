package mockctl

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/five82/beacon/internal/controller"
	"github.com/five82/beacon/internal/payload"
)

// Fleet is the simulated network behind the mock controller.
type Fleet struct {
	Hostname string
	Started  time.Time
	APs      []controller.AccessPoint
	Stations []controller.Station
	Events   []controller.RoamingEvent

	rng *rand.Rand
}

// NewFleet builds a deterministic fleet of aps access points and stations
// clients.
func NewFleet(aps, stations int, seed int64, now time.Time) *Fleet {
	f := &Fleet{
		Hostname: "mock-wlc",
		Started:  now.Add(-36 * time.Hour),
		rng:      rand.New(rand.NewSource(seed)),
	}
	bands := []string{"2.4GHz", "5GHz", "6GHz"}
	for i := 0; i < aps; i++ {
		band := bands[i%len(bands)]
		f.APs = append(f.APs, controller.AccessPoint{
			ID:        fmt.Sprintf("ap-%02d", i+1),
			Name:      fmt.Sprintf("Floor %d AP %d", i/4+1, i%4+1),
			Model:     "AP-535",
			IP:        fmt.Sprintf("10.20.0.%d", 10+i),
			Status:    "up",
			Channel:   channelFor(band, i),
			Band:      band,
			TxPower:   18,
			Firmware:  "8.10.2",
			UpdatedAt: now.Format(time.RFC3339),
		})
	}
	for i := 0; i < stations && aps > 0; i++ {
		ap := f.APs[i%aps]
		f.Stations = append(f.Stations, controller.Station{
			MAC:         fmt.Sprintf("02:00:00:00:%02x:%02x", i/256, i%256),
			Hostname:    fmt.Sprintf("host-%03d", i+1),
			IP:          fmt.Sprintf("10.30.%d.%d", i/200, 10+i%200),
			APID:        ap.ID,
			SSID:        []string{"corp", "guest"}[i%2],
			Band:        ap.Band,
			RSSI:        -45 - f.rng.Intn(40),
			TxRateMbps:  float64(100 + f.rng.Intn(1100)),
			ConnectedAt: now.Add(-time.Duration(f.rng.Intn(3600)) * time.Second).Format(time.RFC3339),
		})
	}
	f.recount()
	return f
}

func channelFor(band string, i int) int {
	switch band {
	case "2.4GHz":
		return []int{1, 6, 11}[i%3]
	case "6GHz":
		return 37 + 16*(i%4)
	default:
		return []int{36, 52, 100, 149}[i%4]
	}
}

func (f *Fleet) recount() {
	for i := range f.APs {
		f.APs[i].Clients = 0
	}
	index := make(map[string]int, len(f.APs))
	for i, ap := range f.APs {
		index[ap.ID] = i
	}
	for _, st := range f.Stations {
		if i, ok := index[st.APID]; ok {
			f.APs[i].Clients++
		}
	}
}

// Step advances the simulation: signal levels drift and some clients roam.
func (f *Fleet) Step(now time.Time) {
	if len(f.APs) < 2 {
		return
	}
	for i := range f.Stations {
		st := &f.Stations[i]
		st.RSSI += f.rng.Intn(7) - 3
		if st.RSSI > -30 {
			st.RSSI = -30
		}
		if st.RSSI < -90 {
			st.RSSI = -90
		}
		if st.RSSI < -78 && f.rng.Intn(3) == 0 {
			to := f.APs[f.rng.Intn(len(f.APs))]
			if to.ID == st.APID {
				continue
			}
			f.Events = append(f.Events, controller.RoamingEvent{
				Timestamp: now.Format(time.RFC3339),
				ClientMAC: st.MAC,
				FromAP:    st.APID,
				ToAP:      to.ID,
				RSSI:      st.RSSI,
				Reason:    "low-rssi",
			})
			st.APID, st.Band = to.ID, to.Band
			st.RSSI = -55 - f.rng.Intn(10)
		}
	}
	if n := len(f.Events); n > 500 {
		f.Events = append([]controller.RoamingEvent(nil), f.Events[n-500:]...)
	}
	f.recount()
}

// Status summarizes the fleet.
func (f *Fleet) Status(now time.Time) controller.SystemStatus {
	up := 0
	var alarms []controller.Alarm
	for _, ap := range f.APs {
		if ap.Up() {
			up++
			continue
		}
		alarms = append(alarms, controller.Alarm{
			Severity: "major",
			Message:  ap.Label() + " is down",
			Raised:   ap.UpdatedAt,
		})
	}
	return controller.SystemStatus{
		Hostname:      f.Hostname,
		Version:       "8.10.2-mock",
		UptimeSeconds: int64(now.Sub(f.Started).Seconds()),
		APCount:       len(f.APs),
		APsUp:         up,
		StationCount:  len(f.Stations),
		Alarms:        alarms,
	}
}

// Tiles renders the overview dashboard.
func (f *Fleet) Tiles() []payload.Tile {
	up := 0
	for _, ap := range f.APs {
		if ap.Up() {
			up++
		}
	}
	bands := map[string]int{}
	var rate float64
	for _, st := range f.Stations {
		bands[st.Band]++
		rate += st.TxRateMbps
	}
	var bandItems []payload.Value
	for _, band := range []string{"2.4GHz", "5GHz", "6GHz"} {
		bandItems = append(bandItems, payload.Text(fmt.Sprintf("%s: %d", band, bands[band])))
	}
	return []payload.Tile{
		{ID: "clients", Title: "Clients", Value: payload.Number(decimal.NewFromInt(int64(len(f.Stations))), "")},
		{ID: "aps", Title: "APs up", Value: payload.Ratio(decimal.NewFromInt(int64(up)), decimal.NewFromInt(int64(len(f.APs))))},
		{ID: "throughput", Title: "Aggregate rate", Value: payload.Number(decimal.NewFromFloat(rate).Round(0), "Mbps")},
		{ID: "bands", Title: "Clients by band", Value: payload.List(bandItems...)},
		{ID: "controller", Title: "Controller", Value: payload.Record(
			payload.Field{Name: "host", Value: payload.Text(f.Hostname)},
			payload.Field{Name: "roams", Value: payload.Number(decimal.NewFromInt(int64(len(f.Events))), "")},
		)},
	}
}

// Reboot marks an AP as rebooting. It reports false for unknown IDs.
func (f *Fleet) Reboot(id string, now time.Time) bool {
	for i := range f.APs {
		if f.APs[i].ID == id {
			f.APs[i].Status = "rebooting"
			f.APs[i].UpdatedAt = now.Format(time.RFC3339)
			return true
		}
	}
	return false
}

// Disconnect removes a station. It reports false for unknown MACs.
func (f *Fleet) Disconnect(mac string) bool {
	for i := range f.Stations {
		if f.Stations[i].MAC == mac {
			f.Stations = append(f.Stations[:i], f.Stations[i+1:]...)
			f.recount()
			return true
		}
	}
	return false
}

// Recover brings rebooting APs back up.
func (f *Fleet) Recover(now time.Time) {
	for i := range f.APs {
		if f.APs[i].Status == "rebooting" {
			f.APs[i].Status = "up"
			f.APs[i].UpdatedAt = now.Format(time.RFC3339)
		}
	}
}
