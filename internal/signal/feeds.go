package signal

import (
	"bytes"
	"encoding/json"
)

// Raw feed envelopes. Each adapter decodes its wire format into one of
// these shapes and hands it to the processor; nothing outside the
// adapters and the processor should touch them.

// ADSBSnapshot is the response of a bounded-area aircraft query.
// Current APIs use "aircraft"; the legacy shape used "ac".
type ADSBSnapshot struct {
	Now      float64      `json:"now"`
	Total    int          `json:"total"`
	Aircraft []ADSBRecord `json:"aircraft"`
	AC       []ADSBRecord `json:"ac"`
}

// Records returns whichever aircraft list the response populated.
func (s *ADSBSnapshot) Records() []ADSBRecord {
	if len(s.Aircraft) > 0 {
		return s.Aircraft
	}
	return s.AC
}

// ADSBRecord is one aircraft entry in a snapshot. Field names follow
// the adsbexchange/adsb.lol v2 JSON with legacy aliases kept where the
// wire formats diverge.
type ADSBRecord struct {
	Hex  string `json:"hex"`
	ICAO string `json:"icao"`

	Flight   string `json:"flight"`
	Call     string `json:"call"`
	Reg      string `json:"r"`
	RegAlias string `json:"reg"`
	Type     string `json:"t"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	AltBaro  FlexFloat `json:"alt_baro"`
	AltGeom  FlexFloat `json:"alt_geom"`
	Alt      FlexFloat `json:"alt"`
	GAlt     FlexFloat `json:"galt"`
	GS       FlexFloat `json:"gs"`
	Spd      FlexFloat `json:"spd"`
	Track    FlexFloat `json:"track"`
	Trak     FlexFloat `json:"trak"`
	BaroRate FlexFloat `json:"baro_rate"`
	VSI      FlexFloat `json:"vsi"`

	Gnd      FlexBool `json:"gnd"`
	Squawk   string   `json:"squawk"`
	Sqk      string   `json:"sqk"`
	Category string   `json:"category"`
	Emerg    string   `json:"emergency"`
	SPI      FlexBool `json:"spi"`
	Alert    FlexBool `json:"alert"`

	NIC  int `json:"nic"`
	NACp int `json:"nac_p"`
	NACv int `json:"nac_v"`
	SIL  int `json:"sil"`

	Mil     FlexBool `json:"mil"`
	DBFlags int      `json:"dbFlags"`
}

// Identifier returns the preferred aircraft key for a record.
func (r *ADSBRecord) Identifier() string {
	if r.ICAO != "" {
		return r.ICAO
	}
	return r.Hex
}

// ACARSEnvelope is the push-feed frame shape. The production firehose
// wraps the inner message with source/station/airframe metadata; flat
// frames carry the same fields at the top level.
type ACARSEnvelope struct {
	Source   *ACARSFeedSource `json:"source,omitempty"`
	Station  *ACARSStation    `json:"station,omitempty"`
	Airframe *ACARSAirframe   `json:"airframe,omitempty"`
	FlightV  *ACARSFlight     `json:"flight,omitempty"`
	Message  *ACARSInner      `json:"message,omitempty"`

	// Flat form fields.
	ID        FlexInt64 `json:"id"`
	Timestamp string    `json:"timestamp"`
	Tail      string    `json:"tail"`
	Flight    string    `json:"flight_number"`
	Label     string    `json:"label"`
	Text      string    `json:"text"`
}

// Inner resolves the wrapped or flat form into one inner record.
func (e *ACARSEnvelope) Inner() *ACARSInner {
	if e.Message != nil {
		return e.Message
	}
	if e.Label == "" && e.Text == "" && e.Tail == "" {
		return nil
	}
	return &ACARSInner{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Tail:      e.Tail,
		Flight:    e.Flight,
		Label:     e.Label,
		Text:      e.Text,
	}
}

// ACARSFeedSource names the upstream application that decoded a frame.
type ACARSFeedSource struct {
	Name        string `json:"name,omitempty"`
	Application string `json:"application,omitempty"`
	StationID   string `json:"station_id,omitempty"`
}

// ACARSStation describes the receiving ground station.
type ACARSStation struct {
	Ident     string  `json:"ident,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// ACARSAirframe carries aircraft identity from the feed's own lookup.
type ACARSAirframe struct {
	Tail     string `json:"tail"`
	ICAO     string `json:"icao"`
	Type     string `json:"type,omitempty"`
	Military bool   `json:"military,omitempty"`
}

// ACARSFlight carries flight identity and a coarse position when the
// feed extracted one.
type ACARSFlight struct {
	Flight    string  `json:"flight"`
	Status    string  `json:"status,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// UnmarshalJSON accepts both the wrapped object form and the flat-frame
// form where "flight" is a bare callsign string.
func (f *ACARSFlight) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &f.Flight)
	}
	type plain ACARSFlight
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*f = ACARSFlight(p)
	return nil
}

// ACARSInner is the ACARS record proper.
type ACARSInner struct {
	ID        FlexInt64 `json:"id"`
	Timestamp string    `json:"timestamp"`
	Tail      string    `json:"tail"`
	Flight    string    `json:"flight"`
	Label     string    `json:"label"`
	Text      string    `json:"text"`
	Frequency float64   `json:"frequency"`
	FromHex   string    `json:"from_hex,omitempty"`
	Mode      string    `json:"mode,omitempty"`
}

// EAMAPIResponse is the interval-fetch endpoint's response. The body
// may be a bare array or wrapped in "data" or "messages".
type EAMAPIResponse struct {
	Data     []EAMAPIRecord `json:"data"`
	Messages []EAMAPIRecord `json:"messages"`
}

// EAMAPIRecord is one upstream EAM observation.
type EAMAPIRecord struct {
	ID             FlexInt64 `json:"id"`
	Timestamp      string    `json:"timestamp"`
	MessageType    string    `json:"message_type"`
	Header         string    `json:"header"`
	Body           string    `json:"body"`
	Transcription  string    `json:"transcription"`
	Confidence     float64   `json:"confidence"`
	FeedID         string    `json:"feed_id"`
	DurationS      float64   `json:"duration_seconds"`
	RecordingID    string    `json:"recording_id"`
}
