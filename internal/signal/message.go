// Package signal defines the canonical message model shared by the
// ingestion pipeline, the trackers, persistence, and the broadcast hub.
package signal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SourceType identifies the family a record came from.
type SourceType string

const (
	SourceADSB  SourceType = "adsb"
	SourceACARS SourceType = "acars"
	SourceHF    SourceType = "hf"
	SourceEAM   SourceType = "eam"
)

// Source identifies where a canonical message originated.
type Source struct {
	Type      SourceType `json:"type"`
	StationID string     `json:"station_id,omitempty"`
	API       string     `json:"api,omitempty"`
	DataType  string     `json:"data_type,omitempty"`
}

// Position is an optional geographic fix. Coordinates of exactly (0, 0)
// are valid; absence is expressed by a nil pointer.
type Position struct {
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	AltitudeFt float64 `json:"altitude_ft"`
}

// OOOI carries an Out/Off/On/In event parsed from ACARS text.
type OOOI struct {
	Event string `json:"event"`
	Time  string `json:"time"`
}

// CPDLC carries controller-pilot datalink metadata.
type CPDLC struct {
	Type string `json:"type"`
}

// Validation records whether the message passed per-source required
// field checks.
type Validation struct {
	Valid bool `json:"valid"`
}

// Message is the single normalized record emitted by the processor.
// One Message type serves every source family; fields that do not apply
// to a family are zero-valued.
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`

	// Identification.
	Hex          string `json:"hex,omitempty"`
	Tail         string `json:"tail,omitempty"`
	Flight       string `json:"flight,omitempty"`
	Registration string `json:"registration,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`

	Position    *Position `json:"position,omitempty"`
	Coordinates string    `json:"coordinates,omitempty"`

	// Kinematics.
	GroundSpeedKt   float64 `json:"ground_speed_kt,omitempty"`
	HeadingDeg      float64 `json:"heading_deg,omitempty"`
	VerticalRateFpm float64 `json:"vertical_rate_fpm,omitempty"`
	OnGround        bool    `json:"on_ground,omitempty"`

	// Transponder.
	Squawk          string `json:"squawk,omitempty"`
	EmitterCategory string `json:"emitter_category,omitempty"`
	Emergency       string `json:"emergency,omitempty"`
	SPI             bool   `json:"spi,omitempty"`
	Alert           bool   `json:"alert,omitempty"`

	// Data quality indicators from the ADS-B transport.
	NIC  int `json:"nic,omitempty"`
	NACp int `json:"nac_p,omitempty"`
	NACv int `json:"nac_v,omitempty"`
	SIL  int `json:"sil,omitempty"`

	// ACARS payload.
	Label       string `json:"label,omitempty"`
	Text        string `json:"text,omitempty"`
	FlightPhase string `json:"flight_phase,omitempty"`
	OOOI        *OOOI  `json:"oooi,omitempty"`
	CPDLC       *CPDLC `json:"cpdlc,omitempty"`

	Military   bool       `json:"military,omitempty"`
	Validation Validation `json:"validation"`
}

// HasPosition reports whether the message carries a usable fix.
func (m *Message) HasPosition() bool {
	return m.Position != nil
}

var hexRe = regexp.MustCompile(`^[0-9a-f]{6}$`)

// CanonicalHex lowercases and trims a 24-bit ICAO address. Returns ""
// if the input is not a six character hex string.
func CanonicalHex(hex string) string {
	h := strings.ToLower(strings.TrimSpace(hex))
	// Some feeds prefix TIS-B/anonymized addresses with "~".
	h = strings.TrimPrefix(h, "~")
	if !hexRe.MatchString(h) {
		return ""
	}
	return h
}

// FormatCoordinates renders a display string for a fix.
func FormatCoordinates(lat, lon float64) string {
	return fmt.Sprintf("%.4f, %.4f", lat, lon)
}

// ValidLatLon checks the coordinate ranges. (0, 0) is acceptable.
func ValidLatLon(lat, lon float64) bool {
	if lat != lat || lon != lon { // NaN
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// FlexInt64 handles JSON fields that arrive as either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable IDs.
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// FlexFloat handles JSON fields that arrive as number, numeric string,
// or a sentinel word. ADS-B feeds report barometric altitude as the
// string "ground" for aircraft on the surface.
type FlexFloat struct {
	Value  float64
	Ground bool
	Set    bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		f.Value = v
		f.Set = true
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.EqualFold(strings.TrimSpace(s), "ground") {
			f.Ground = true
			f.Set = true
			return nil
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			f.Value = v
			f.Set = true
		}
		return nil
	}

	return nil
}

// FlexBool handles "1"|1|true|"true" forms used by on-ground flags.
type FlexBool bool

func (f *FlexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = FlexBool(b)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = n != 0
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes":
			*f = true
		default:
			*f = false
		}
		return nil
	}

	*f = false
	return nil
}
