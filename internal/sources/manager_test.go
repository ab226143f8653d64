package sources

import (
	"testing"
)

type fakeAdapter struct {
	state
	name   string
	starts int
	stops  int
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Start() error {
	f.starts++
	f.mu.Lock()
	f.enabled = true
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) Stop() error {
	f.stops++
	f.mu.Lock()
	f.enabled = false
	f.mu.Unlock()
	return nil
}
func (f *fakeAdapter) Status() Status { return f.snapshot() }

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(testLogger())

	a := &fakeAdapter{name: "adsb"}
	b := &fakeAdapter{name: "acars"}
	if err := m.Register("adsb", a, true); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("acars", b, false); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("adsb", a, true); err == nil {
		t.Error("duplicate registration must fail")
	}

	// Only flagged sources come up.
	m.StartEnabled()
	if a.starts != 1 || b.starts != 0 {
		t.Errorf("starts = %d/%d, want 1/0", a.starts, b.starts)
	}

	st := m.Status()
	if !st["adsb"].Enabled || st["acars"].Enabled {
		t.Errorf("status = %+v", st)
	}

	// Operator toggles the disabled source on.
	if err := m.Start("acars"); err != nil {
		t.Fatal(err)
	}
	if !m.Status()["acars"].Enabled {
		t.Error("started source must report enabled")
	}

	if err := m.Stop("adsb"); err != nil {
		t.Fatal(err)
	}
	if m.Status()["adsb"].Enabled {
		t.Error("stopped source must report disabled")
	}

	if err := m.Start("missing"); err == nil {
		t.Error("unknown source must error")
	}

	m.StopAll()
	if a.stops != 2 || b.stops != 1 {
		t.Errorf("stops = %d/%d, want 2/1", a.stops, b.stops)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"api_key", "abc", "[redacted]"},
		{"api-key", "abc", "[redacted]"},
		{"APIKey", "abc", "[redacted]"},
		{"token", "abc", "[redacted]"},
		{"authorization", "Bearer x", "[redacted]"},
		{"password", "abc", "[redacted]"},
		{"station_id", "abc", "abc"},
		{"api_key", "", ""},
	}

	for _, tt := range tests {
		if got := redact(tt.key, tt.value); got != tt.want {
			t.Errorf("redact(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}
