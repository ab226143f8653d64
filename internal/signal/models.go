package signal

import "time"

// TrackPoint is one historical kinematics sample on a track.
type TrackPoint struct {
	Timestamp       time.Time `json:"timestamp"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	AltitudeFt      float64   `json:"altitude_ft"`
	GroundSpeedKt   float64   `json:"ground_speed_kt"`
	HeadingDeg      float64   `json:"heading_deg"`
	VerticalRateFpm float64   `json:"vertical_rate_fpm"`
	OnGround        bool      `json:"on_ground"`
}

// Track is the in-memory and persisted state for one tracked aircraft.
type Track struct {
	AircraftID   string `json:"aircraft_id"`
	Hex          string `json:"hex"`
	Flight       string `json:"flight,omitempty"`
	Tail         string `json:"tail,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`

	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	PositionCount int64     `json:"position_count"`

	CurrentPosition TrackPoint   `json:"current_position"`
	TrackPoints     []TrackPoint `json:"track_points,omitempty"`

	Military bool `json:"military,omitempty"`
}

// PositionReport is one row of the merged positions view: current
// ADS-B tracks unioned with recent ACARS-derived positions.
type PositionReport struct {
	AircraftID string    `json:"aircraft_id,omitempty"`
	Hex        string    `json:"hex,omitempty"`
	Flight     string    `json:"flight,omitempty"`
	Tail       string    `json:"tail,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AltitudeFt float64   `json:"altitude_ft,omitempty"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// DetectionMethod says how an HFGCS aircraft was identified.
type DetectionMethod string

const (
	DetectByHexRange       DetectionMethod = "hex_range"
	DetectByCallsignPrefix DetectionMethod = "callsign_prefix"
	DetectByExplicitType   DetectionMethod = "explicit_type"
)

// HFGCSAircraft is one tracked military aircraft of a watched type.
type HFGCSAircraft struct {
	AircraftID      string          `json:"aircraft_id"`
	AircraftType    string          `json:"aircraft_type"`
	Hex             string          `json:"hex,omitempty"`
	Callsign        string          `json:"callsign,omitempty"`
	Tail            string          `json:"tail,omitempty"`
	FirstDetected   time.Time       `json:"first_detected"`
	LastSeen        time.Time       `json:"last_seen"`
	TotalMessages   int64           `json:"total_messages"`
	DetectionMethod DetectionMethod `json:"detection_method"`
}

// EAMType distinguishes the two recognized HF voice message formats.
type EAMType string

const (
	EAMTypeEAM     EAMType = "EAM"
	EAMTypeSkyking EAMType = "SKYKING"
)

// EAMMessage is a promoted emergency action message reconstructed from
// one or more transcription segments.
type EAMMessage struct {
	ID              string    `json:"id"`
	MessageType     EAMType   `json:"message_type"`
	Header          string    `json:"header,omitempty"`
	MessageBody     string    `json:"message_body"`
	MessageLength   int       `json:"message_length"`
	ConfidenceScore float64   `json:"confidence_score"`
	FirstDetected   time.Time `json:"first_detected"`
	LastDetected    time.Time `json:"last_detected"`
	RepeatCount     int       `json:"repeat_count"`
	RecordingIDs    []string  `json:"recording_ids"`
	RawTranscription string   `json:"raw_transcription,omitempty"`
	Codeword        string    `json:"codeword,omitempty"`
	TimeCode        string    `json:"time_code,omitempty"`
	Authentication  string    `json:"authentication,omitempty"`
	MultiSegment    bool      `json:"multi_segment"`
	SegmentCount    int       `json:"segment_count"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
}

// Segment is one transcribed slice of an HF voice recording, the input
// to the EAM pipeline.
type Segment struct {
	SegmentID  string    `json:"segment_id"`
	FeedID     string    `json:"feed_id"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	DurationS  float64   `json:"duration_s"`
}

// Recording is bookkeeping for one captured ATC/HF audio clip.
type Recording struct {
	SegmentID     string    `json:"segment_id"`
	FeedID        string    `json:"feed_id"`
	StartedAt     time.Time `json:"started_at"`
	DurationS     float64   `json:"duration_s"`
	Transcription string    `json:"transcription,omitempty"`
	Confidence    float64   `json:"confidence,omitempty"`
}
