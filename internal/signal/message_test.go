package signal

import (
	"encoding/json"
	"math"
	"testing"
)

func TestCanonicalHex(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"AE0C6E", "ae0c6e"},
		{"ae0c6e", "ae0c6e"},
		{" A1B2C3 ", "a1b2c3"},
		{"~a1b2c3", "a1b2c3"},
		{"A1B2C", ""},     // too short
		{"A1B2C3D", ""},   // too long
		{"GGGGGG", ""},    // not hex
		{"", ""},
	}

	for _, tt := range tests {
		if got := CanonicalHex(tt.in); got != tt.want {
			t.Errorf("CanonicalHex(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidLatLon(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true}, // (0, 0) is a real coordinate
		{55.861, -4.257, true},
		{90, 180, true},
		{-90, -180, true},
		{90.01, 0, false},
		{0, 180.01, false},
		{math.NaN(), 0, false},
		{0, math.NaN(), false},
	}

	for _, tt := range tests {
		if got := ValidLatLon(tt.lat, tt.lon); got != tt.want {
			t.Errorf("ValidLatLon(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		in         string
		wantValue  float64
		wantGround bool
		wantSet    bool
	}{
		{`12500`, 12500, false, true},
		{`"12500"`, 12500, false, true},
		{`"ground"`, 0, true, true},
		{`"GROUND"`, 0, true, true},
		{`null`, 0, false, false},
		{`"not a number"`, 0, false, false},
	}

	for _, tt := range tests {
		var f FlexFloat
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if f.Value != tt.wantValue || f.Ground != tt.wantGround || f.Set != tt.wantSet {
			t.Errorf("FlexFloat(%s) = {%v %v %v}, want {%v %v %v}",
				tt.in, f.Value, f.Ground, f.Set, tt.wantValue, tt.wantGround, tt.wantSet)
		}
	}
}

func TestFlexBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{`true`, true},
		{`false`, false},
		{`1`, true},
		{`0`, false},
		{`"1"`, true},
		{`"true"`, true},
		{`"no"`, false},
	}

	for _, tt := range tests {
		var f FlexBool
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if bool(f) != tt.want {
			t.Errorf("FlexBool(%s) = %v, want %v", tt.in, bool(f), tt.want)
		}
	}
}

func TestFlexInt64(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`""`, 0},
		{`"junk"`, 0},
	}

	for _, tt := range tests {
		var f FlexInt64
		if err := json.Unmarshal([]byte(tt.in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if int64(f) != tt.want {
			t.Errorf("FlexInt64(%s) = %d, want %d", tt.in, int64(f), tt.want)
		}
	}
}

func TestACARSEnvelopeInner(t *testing.T) {
	// Wrapped form.
	wrapped := []byte(`{"message":{"id":1,"tail":"N123AB","label":"H1","text":"POS"}}`)
	var env ACARSEnvelope
	if err := json.Unmarshal(wrapped, &env); err != nil {
		t.Fatal(err)
	}
	inner := env.Inner()
	if inner == nil || inner.Tail != "N123AB" {
		t.Fatalf("wrapped Inner() = %+v, want tail N123AB", inner)
	}

	// Flat form.
	flat := []byte(`{"id":"7","tail":"VH-OQA","label":"B6","text":"ADS"}`)
	env = ACARSEnvelope{}
	if err := json.Unmarshal(flat, &env); err != nil {
		t.Fatal(err)
	}
	inner = env.Inner()
	if inner == nil || inner.Tail != "VH-OQA" || int64(inner.ID) != 7 {
		t.Fatalf("flat Inner() = %+v", inner)
	}

	// Empty frame resolves to nothing.
	env = ACARSEnvelope{}
	if env.Inner() != nil {
		t.Error("empty envelope should have no inner message")
	}
}

func TestACARSEnvelopeFlightForms(t *testing.T) {
	// Wrapped form: flight is an object.
	wrapped := []byte(`{"flight":{"flight":"UAL100","latitude":41.5,"longitude":-73.2}}`)
	var env ACARSEnvelope
	if err := json.Unmarshal(wrapped, &env); err != nil {
		t.Fatal(err)
	}
	if env.FlightV == nil || env.FlightV.Flight != "UAL100" || env.FlightV.Latitude != 41.5 {
		t.Fatalf("object flight = %+v", env.FlightV)
	}

	// Flat push frame: flight is a bare callsign string.
	flat := []byte(`{"timestamp":"2026-08-24T12:00:00Z","flight":"RCH415","tail":"58-0100","label":"H1","text":"POS"}`)
	env = ACARSEnvelope{}
	if err := json.Unmarshal(flat, &env); err != nil {
		t.Fatalf("string flight must decode: %v", err)
	}
	if env.FlightV == nil || env.FlightV.Flight != "RCH415" {
		t.Fatalf("string flight = %+v", env.FlightV)
	}
	if inner := env.Inner(); inner == nil || inner.Tail != "58-0100" {
		t.Fatalf("flat Inner() = %+v", env.Inner())
	}
}

func TestADSBSnapshotRecords(t *testing.T) {
	modern := []byte(`{"aircraft":[{"hex":"ae0c6e"}]}`)
	var s ADSBSnapshot
	if err := json.Unmarshal(modern, &s); err != nil {
		t.Fatal(err)
	}
	if got := s.Records(); len(got) != 1 || got[0].Hex != "ae0c6e" {
		t.Fatalf("Records() = %+v", got)
	}

	legacy := []byte(`{"ac":[{"icao":"ADFEB3","call":"GORDO15"}]}`)
	s = ADSBSnapshot{}
	if err := json.Unmarshal(legacy, &s); err != nil {
		t.Fatal(err)
	}
	recs := s.Records()
	if len(recs) != 1 || recs[0].Identifier() != "ADFEB3" {
		t.Fatalf("legacy Records() = %+v", recs)
	}
}
