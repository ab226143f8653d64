// Package events defines the tagged event union delivered to push
// subscribers and exchanged between pipeline components.
package events

import "time"

// Type tags an event payload.
type Type string

const (
	TypeConnection Type = "connection"

	TypeACARS     Type = "acars"
	TypeADSB      Type = "adsb"
	TypeADSBBatch Type = "adsb_batch"

	TypeAircraftUpdated Type = "aircraft_updated"
	TypeAircraftLost    Type = "aircraft_lost"

	TypeHFGCSDetected Type = "hfgcs_aircraft_detected"
	TypeHFGCSUpdated  Type = "hfgcs_aircraft_updated"
	TypeHFGCSLost     Type = "hfgcs_aircraft_lost"

	TypeEAMDetected       Type = "eam_detected"
	TypeSkykingDetected   Type = "skyking_detected"
	TypeEAMRepeatDetected Type = "eam_repeat_detected"

	TypeConflictDetected Type = "conflict_detected"
	TypeConflictUpdated  Type = "conflict_updated"
	TypeConflictResolved Type = "conflict_resolved"

	TypeTranscription    Type = "transcription"
	TypeRecordingStarted Type = "recording_started"
	TypeRecordingStopped Type = "recording_stopped"
)

// Event is the frame pushed to subscribers. Batch events carry Count;
// everything else leaves it zero.
type Event struct {
	Type      Type      `json:"type"`
	Data      any       `json:"data,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event stamped with the current UTC time.
func New(t Type, data any) Event {
	return Event{Type: t, Data: data, Timestamp: time.Now().UTC()}
}

// NewBatch builds a batch event carrying a count alongside its data.
func NewBatch(t Type, data any, count int) Event {
	e := New(t, data)
	e.Count = count
	return e
}
