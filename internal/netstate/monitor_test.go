package netstate

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubProber struct{ err error }

func (p *stubProber) FetchHealth(context.Context) error { return p.err }

func TestMonitor_StartsOnline(t *testing.T) {
	m := NewMonitor(nil, Options{})
	if !m.Online() {
		t.Fatal("Online() = false, want optimistic true")
	}
}

func TestMonitor_ThresholdAndRecovery(t *testing.T) {
	m := NewMonitor(nil, Options{})
	events, cancel := m.Subscribe()
	defer cancel()

	m.Report(errors.New("dial tcp: refused"))
	if !m.Online() {
		t.Fatal("single failure should not flip offline")
	}
	m.Report(errors.New("dial tcp: refused"))
	if m.Online() {
		t.Fatal("two failures should flip offline")
	}
	select {
	case tr := <-events:
		if tr.Online || tr.Err == nil {
			t.Fatalf("transition = %+v, want offline with error", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("no offline transition")
	}

	m.Report(errors.New("still down"))
	select {
	case tr := <-events:
		t.Fatalf("unexpected transition while already offline: %+v", tr)
	default:
	}

	m.Report(nil)
	if !m.Online() || m.LastError() != nil {
		t.Fatal("success should restore online and clear error")
	}
	select {
	case tr := <-events:
		if !tr.Online {
			t.Fatalf("transition = %+v, want online", tr)
		}
	case <-time.After(time.Second):
		t.Fatal("no online transition")
	}
}

func TestMonitor_ProbeUsesProber(t *testing.T) {
	prober := &stubProber{err: errors.New("timeout")}
	m := NewMonitor(prober, Options{OfflineThreshold: 1})
	m.Probe(context.Background())
	if m.Online() {
		t.Fatal("probe failure with threshold 1 should go offline")
	}
	prober.err = nil
	m.Probe(context.Background())
	if !m.Online() {
		t.Fatal("probe success should go online")
	}
}

func TestMonitor_CancelledSubscriberIsDropped(t *testing.T) {
	m := NewMonitor(nil, Options{OfflineThreshold: 1})
	events, cancel := m.Subscribe()
	cancel()
	cancel()
	m.Report(errors.New("down"))
	select {
	case tr := <-events:
		t.Fatalf("cancelled subscriber received %+v", tr)
	default:
	}
}
