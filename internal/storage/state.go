// Package storage provides the persistence facade: an embedded SQLite
// state store, an optional ClickHouse archive for the message
// firehose, and an optional Postgres central store fed by a sync
// worker.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"skysignal/internal/signal"
)

// StateDB is the embedded SQLite store backing every facade operation.
// Writes are serialized by SQLite itself; the store is safe for
// concurrent callers.
type StateDB struct {
	db *sql.DB
}

// OpenState opens or creates the state database. An empty path or
// ":memory:" selects an in-memory database.
func OpenState(path string) (*StateDB, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &StateDB{db: db}, nil
}

// Close closes the database connection.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// SaveMessage stores a canonical message in the short-horizon buffer.
func (s *StateDB) SaveMessage(ctx context.Context, msg *signal.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO messages_recent (id, timestamp, source_type, hex, flight, tail, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.Timestamp.UTC(), string(msg.Source.Type), msg.Hex, msg.Flight, msg.Tail, string(payload))
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// UpdateAircraftTracking maintains the per-aircraft identity aggregate
// and records ACARS-derived positions for the positions() union.
func (s *StateDB) UpdateAircraftTracking(ctx context.Context, msg *signal.Message) error {
	if msg.Hex != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO aircraft (hex, registration, flight, type_code, military)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(hex) DO UPDATE SET
				registration = COALESCE(NULLIF(excluded.registration, ''), registration),
				flight = COALESCE(NULLIF(excluded.flight, ''), flight),
				type_code = COALESCE(NULLIF(excluded.type_code, ''), type_code),
				military = MAX(military, excluded.military),
				last_seen = CURRENT_TIMESTAMP,
				msg_count = msg_count + 1
		`, msg.Hex, msg.Registration, msg.Flight, msg.AircraftType, boolInt(msg.Military))
		if err != nil {
			return fmt.Errorf("update aircraft: %w", err)
		}
	}

	if msg.Source.Type == signal.SourceACARS && msg.HasPosition() {
		// Duplicate fixes (same flight+tail+lat+lon) collapse onto one row.
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO acars_positions (flight, tail, latitude, longitude, altitude, seen_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(flight, tail, latitude, longitude) DO UPDATE SET
				seen_at = excluded.seen_at,
				altitude = excluded.altitude
		`, msg.Flight, msg.Tail, msg.Position.Lat, msg.Position.Lon, msg.Position.AltitudeFt, msg.Timestamp.UTC())
		if err != nil {
			return fmt.Errorf("save acars position: %w", err)
		}
	}

	return nil
}

// SaveAircraftTrack persists a track snapshot. Track points are not
// persisted; they are an in-memory ring owned by the tracker.
func (s *StateDB) SaveAircraftTrack(ctx context.Context, tr *signal.Track) error {
	current, err := json.Marshal(tr.CurrentPosition)
	if err != nil {
		return fmt.Errorf("marshal track point: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO aircraft_tracks (aircraft_id, hex, flight, tail, aircraft_type,
		                             first_seen, last_seen, position_count, current_json, military)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(aircraft_id) DO UPDATE SET
			flight = COALESCE(NULLIF(excluded.flight, ''), flight),
			tail = COALESCE(NULLIF(excluded.tail, ''), tail),
			aircraft_type = COALESCE(NULLIF(excluded.aircraft_type, ''), aircraft_type),
			last_seen = excluded.last_seen,
			position_count = excluded.position_count,
			current_json = excluded.current_json,
			military = excluded.military
	`, tr.AircraftID, tr.Hex, tr.Flight, tr.Tail, tr.AircraftType,
		tr.FirstSeen.UTC(), tr.LastSeen.UTC(), tr.PositionCount, string(current), boolInt(tr.Military))
	if err != nil {
		return fmt.Errorf("save track: %w", err)
	}
	return nil
}

// GetAircraftByIdentifier finds a persisted track by aircraft ID or by
// hex, whichever matches first.
func (s *StateDB) GetAircraftByIdentifier(ctx context.Context, id string) (*signal.Track, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT aircraft_id, hex, flight, tail, aircraft_type,
		       first_seen, last_seen, position_count, current_json, military
		FROM aircraft_tracks
		WHERE aircraft_id = ? OR hex = ?
		ORDER BY last_seen DESC
		LIMIT 1
	`, id, strings.ToLower(id))

	var tr signal.Track
	var flight, tail, typ, current sql.NullString
	var mil int
	err := row.Scan(&tr.AircraftID, &tr.Hex, &flight, &tail, &typ,
		&tr.FirstSeen, &tr.LastSeen, &tr.PositionCount, &current, &mil)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aircraft: %w", err)
	}

	tr.Flight = flight.String
	tr.Tail = tail.String
	tr.AircraftType = typ.String
	tr.Military = mil != 0
	if current.Valid && current.String != "" {
		_ = json.Unmarshal([]byte(current.String), &tr.CurrentPosition)
	}
	return &tr, nil
}

// GetACARSPositions returns ACARS-derived positions from the last
// window, deduplicated by flight+tail+lat+lon.
func (s *StateDB) GetACARSPositions(ctx context.Context, within time.Duration) ([]signal.PositionReport, error) {
	cutoff := time.Now().UTC().Add(-within)
	rows, err := s.db.QueryContext(ctx, `
		SELECT flight, tail, latitude, longitude, altitude, seen_at
		FROM acars_positions
		WHERE seen_at > ?
		ORDER BY seen_at DESC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("acars positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []signal.PositionReport
	for rows.Next() {
		var p signal.PositionReport
		var flight, tail sql.NullString
		var alt sql.NullFloat64
		if err := rows.Scan(&flight, &tail, &p.Lat, &p.Lon, &alt, &p.Timestamp); err != nil {
			continue
		}
		p.Flight = flight.String
		p.Tail = tail.String
		p.AltitudeFt = alt.Float64
		p.Source = string(signal.SourceACARS)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveHFGCSAircraft upserts a watched military aircraft. The row is
// marked unsynced so the sync worker pushes it to the central store.
func (s *StateDB) SaveHFGCSAircraft(ctx context.Context, a *signal.HFGCSAircraft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hfgcs_aircraft (aircraft_id, aircraft_type, hex, callsign, tail,
		                            first_detected, last_seen, total_messages, detection_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(aircraft_id) DO UPDATE SET
			callsign = COALESCE(NULLIF(excluded.callsign, ''), callsign),
			tail = COALESCE(NULLIF(excluded.tail, ''), tail),
			last_seen = excluded.last_seen,
			total_messages = excluded.total_messages,
			synced_at = NULL
	`, a.AircraftID, a.AircraftType, a.Hex, a.Callsign, a.Tail,
		a.FirstDetected.UTC(), a.LastSeen.UTC(), a.TotalMessages, string(a.DetectionMethod))
	if err != nil {
		return fmt.Errorf("save hfgcs aircraft: %w", err)
	}
	return nil
}

// GetActiveHFGCSAircraft returns aircraft seen within hoursBack,
// newest first.
func (s *StateDB) GetActiveHFGCSAircraft(ctx context.Context, limit, hoursBack int) ([]signal.HFGCSAircraft, error) {
	if limit <= 0 {
		limit = 50
	}
	if hoursBack <= 0 {
		hoursBack = 24
	}
	cutoff := time.Now().UTC().Add(-time.Duration(hoursBack) * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT aircraft_id, aircraft_type, hex, callsign, tail,
		       first_detected, last_seen, total_messages, detection_method
		FROM hfgcs_aircraft
		WHERE last_seen > ?
		ORDER BY last_seen DESC
		LIMIT ?
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("active hfgcs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []signal.HFGCSAircraft
	for rows.Next() {
		a, err := scanHFGCS(rows)
		if err != nil {
			continue
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// HFGCSStats summarizes the watched-aircraft table.
type HFGCSStats struct {
	TotalAircraft int            `json:"total_aircraft"`
	ActiveLastDay int            `json:"active_last_day"`
	ByType        map[string]int `json:"by_type"`
	TotalMessages int64          `json:"total_messages"`
}

// GetHFGCSStatistics aggregates counts by type and recency.
func (s *StateDB) GetHFGCSStatistics(ctx context.Context) (HFGCSStats, error) {
	stats := HFGCSStats{ByType: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_messages), 0) FROM hfgcs_aircraft`,
	).Scan(&stats.TotalAircraft, &stats.TotalMessages); err != nil {
		return stats, fmt.Errorf("hfgcs stats: %w", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	_ = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM hfgcs_aircraft WHERE last_seen > ?`, cutoff,
	).Scan(&stats.ActiveLastDay)

	rows, err := s.db.QueryContext(ctx,
		`SELECT aircraft_type, COUNT(*) FROM hfgcs_aircraft GROUP BY aircraft_type`)
	if err != nil {
		return stats, nil
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err == nil {
			stats.ByType[typ] = n
		}
	}
	return stats, rows.Err()
}

// SaveEAMMessage inserts a newly promoted EAM.
func (s *StateDB) SaveEAMMessage(ctx context.Context, e *signal.EAMMessage) error {
	ids, err := json.Marshal(e.RecordingIDs)
	if err != nil {
		return fmt.Errorf("marshal recording ids: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO eam_messages (id, message_type, header, message_body, message_length,
		                          confidence_score, first_detected, last_detected, repeat_count,
		                          recording_ids, raw_transcription, codeword, time_code,
		                          authentication, multi_segment, segment_count, duration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.MessageType), e.Header, e.MessageBody, e.MessageLength,
		e.ConfidenceScore, e.FirstDetected.UTC(), e.LastDetected.UTC(), e.RepeatCount,
		string(ids), e.RawTranscription, e.Codeword, e.TimeCode,
		e.Authentication, boolInt(e.MultiSegment), e.SegmentCount, e.DurationSeconds)
	if err != nil {
		return fmt.Errorf("save eam: %w", err)
	}
	return nil
}

// UpdateEAMRepeat bumps the repeat count of an existing EAM and merges
// the new recording IDs, preserving order and uniqueness. The updated
// count and merged list are returned for the repeat broadcast.
func (s *StateDB) UpdateEAMRepeat(ctx context.Context, id string, recordingIDs []string) (int, []string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var repeats int
	var existing sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT repeat_count, recording_ids FROM eam_messages WHERE id = ?`, id,
	).Scan(&repeats, &existing); err != nil {
		return 0, nil, fmt.Errorf("eam %s: %w", id, err)
	}

	var ids []string
	if existing.Valid && existing.String != "" {
		_ = json.Unmarshal([]byte(existing.String), &ids)
	}
	ids = mergeIDs(ids, recordingIDs)
	merged, _ := json.Marshal(ids)
	repeats++

	if _, err := tx.ExecContext(ctx, `
		UPDATE eam_messages SET
			repeat_count = ?,
			last_detected = ?,
			recording_ids = ?,
			synced_at = NULL
		WHERE id = ?
	`, repeats, time.Now().UTC(), string(merged), id); err != nil {
		return 0, nil, fmt.Errorf("update eam repeat: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit: %w", err)
	}
	return repeats, ids, nil
}

// EAMQuery filters GetEAMMessages.
type EAMQuery struct {
	MessageType string
	Since       time.Time
	Limit       int
}

// GetEAMMessages returns EAMs newest first, optionally filtered.
func (s *StateDB) GetEAMMessages(ctx context.Context, q EAMQuery) ([]signal.EAMMessage, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	where := "1=1"
	args := []any{}
	if q.MessageType != "" {
		where += " AND message_type = ?"
		args = append(args, q.MessageType)
	}
	if !q.Since.IsZero() {
		where += " AND last_detected > ?"
		args = append(args, q.Since.UTC())
	}
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eamColumns+`
		FROM eam_messages
		WHERE `+where+`
		ORDER BY last_detected DESC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get eams: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEAMs(rows)
}

// SearchEAMs matches against body, header, and raw transcription.
func (s *StateDB) SearchEAMs(ctx context.Context, q string, limit int) ([]signal.EAMMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	like := "%" + strings.ToUpper(strings.TrimSpace(q)) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eamColumns+`
		FROM eam_messages
		WHERE UPPER(message_body) LIKE ? OR UPPER(header) LIKE ? OR UPPER(raw_transcription) LIKE ?
		ORDER BY last_detected DESC
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search eams: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEAMs(rows)
}

// ClearEAMs deletes EAMs last seen more than olderDays ago.
func (s *StateDB) ClearEAMs(ctx context.Context, olderDays int) (int64, error) {
	if olderDays <= 0 {
		olderDays = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -olderDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM eam_messages WHERE last_detected < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear eams: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveATCRecording records a captured audio clip.
func (s *StateDB) SaveATCRecording(ctx context.Context, r *signal.Recording) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (segment_id, feed_id, started_at, duration_s, transcription, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(segment_id) DO UPDATE SET
			duration_s = excluded.duration_s
	`, r.SegmentID, r.FeedID, r.StartedAt.UTC(), r.DurationS, r.Transcription, r.Confidence)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

// UpdateRecordingTranscription attaches transcription output to a
// stored recording.
func (s *StateDB) UpdateRecordingTranscription(ctx context.Context, segmentID, text string, confidence float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET transcription = ?, confidence = ? WHERE segment_id = ?
	`, text, confidence, segmentID)
	if err != nil {
		return fmt.Errorf("update transcription: %w", err)
	}
	return nil
}

// GetRecordings returns recordings, newest first, optionally filtered
// by feed.
func (s *StateDB) GetRecordings(ctx context.Context, feedID string, limit int) ([]signal.Recording, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if feedID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT segment_id, feed_id, started_at, duration_s, transcription, confidence
			FROM recordings WHERE feed_id = ? ORDER BY started_at DESC LIMIT ?
		`, feedID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT segment_id, feed_id, started_at, duration_s, transcription, confidence
			FROM recordings ORDER BY started_at DESC LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get recordings: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// GetRecordingsInTimeWindow returns a feed's recordings within
// windowSec either side of center.
func (s *StateDB) GetRecordingsInTimeWindow(ctx context.Context, feedID string, center time.Time, windowSec int) ([]signal.Recording, error) {
	half := time.Duration(windowSec) * time.Second
	rows, err := s.db.QueryContext(ctx, `
		SELECT segment_id, feed_id, started_at, duration_s, transcription, confidence
		FROM recordings
		WHERE feed_id = ? AND started_at BETWEEN ? AND ?
		ORDER BY started_at
	`, feedID, center.UTC().Add(-half), center.UTC().Add(half))
	if err != nil {
		return nil, fmt.Errorf("recordings window: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRecordings(rows)
}

// GetSetting returns a persisted setting value, "" if unset.
func (s *StateDB) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return v, nil
}

// SetSetting upserts a persisted setting.
func (s *StateDB) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// GetSettingsByCategory returns all settings whose key starts with
// "category.", with the prefix stripped.
func (s *StateDB) GetSettingsByCategory(ctx context.Context, category string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings WHERE key LIKE ?`, category+".%")
	if err != nil {
		return nil, fmt.Errorf("settings by category: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err == nil {
			out[strings.TrimPrefix(k, category+".")] = v
		}
	}
	return out, rows.Err()
}

// GetUnsyncedHFGCS returns watched aircraft not yet pushed to the
// central store.
func (s *StateDB) GetUnsyncedHFGCS(ctx context.Context) ([]signal.HFGCSAircraft, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aircraft_id, aircraft_type, hex, callsign, tail,
		       first_detected, last_seen, total_messages, detection_method
		FROM hfgcs_aircraft WHERE synced_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("unsynced hfgcs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []signal.HFGCSAircraft
	for rows.Next() {
		a, err := scanHFGCS(rows)
		if err != nil {
			continue
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetUnsyncedEAMs returns EAMs not yet pushed to the central store.
func (s *StateDB) GetUnsyncedEAMs(ctx context.Context) ([]signal.EAMMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eamColumns+`
		FROM eam_messages WHERE synced_at IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("unsynced eams: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectEAMs(rows)
}

// MarkHFGCSSynced stamps a watched aircraft as pushed.
func (s *StateDB) MarkHFGCSSynced(ctx context.Context, aircraftID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE hfgcs_aircraft SET synced_at = CURRENT_TIMESTAMP WHERE aircraft_id = ?`, aircraftID)
	return err
}

// MarkEAMSynced stamps an EAM as pushed.
func (s *StateDB) MarkEAMSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE eam_messages SET synced_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// PruneMessages drops buffered canonical messages older than the
// retention window.
func (s *StateDB) PruneMessages(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages_recent WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune messages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const eamColumns = `id, message_type, header, message_body, message_length,
	confidence_score, first_detected, last_detected, repeat_count,
	recording_ids, raw_transcription, codeword, time_code,
	authentication, multi_segment, segment_count, duration_seconds`

func collectEAMs(rows *sql.Rows) ([]signal.EAMMessage, error) {
	var out []signal.EAMMessage
	for rows.Next() {
		var e signal.EAMMessage
		var header, ids, raw, codeword, timeCode, auth sql.NullString
		var multi int
		var dur sql.NullFloat64
		err := rows.Scan(&e.ID, &e.MessageType, &header, &e.MessageBody, &e.MessageLength,
			&e.ConfidenceScore, &e.FirstDetected, &e.LastDetected, &e.RepeatCount,
			&ids, &raw, &codeword, &timeCode, &auth, &multi, &e.SegmentCount, &dur)
		if err != nil {
			continue
		}
		e.Header = header.String
		e.RawTranscription = raw.String
		e.Codeword = codeword.String
		e.TimeCode = timeCode.String
		e.Authentication = auth.String
		e.MultiSegment = multi != 0
		e.DurationSeconds = dur.Float64
		if ids.Valid && ids.String != "" {
			_ = json.Unmarshal([]byte(ids.String), &e.RecordingIDs)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func collectRecordings(rows *sql.Rows) ([]signal.Recording, error) {
	var out []signal.Recording
	for rows.Next() {
		var r signal.Recording
		var text sql.NullString
		var dur, conf sql.NullFloat64
		if err := rows.Scan(&r.SegmentID, &r.FeedID, &r.StartedAt, &dur, &text, &conf); err != nil {
			continue
		}
		r.DurationS = dur.Float64
		r.Transcription = text.String
		r.Confidence = conf.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanHFGCS(rows *sql.Rows) (*signal.HFGCSAircraft, error) {
	var a signal.HFGCSAircraft
	var hex, callsign, tail sql.NullString
	var method string
	err := rows.Scan(&a.AircraftID, &a.AircraftType, &hex, &callsign, &tail,
		&a.FirstDetected, &a.LastSeen, &a.TotalMessages, &method)
	if err != nil {
		return nil, err
	}
	a.Hex = hex.String
	a.Callsign = callsign.String
	a.Tail = tail.String
	a.DetectionMethod = signal.DetectionMethod(method)
	return &a, nil
}

// mergeIDs appends new IDs preserving order and dropping duplicates.
func mergeIDs(existing, add []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range add {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		existing = append(existing, id)
	}
	return existing
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
