package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"skysignal/internal/signal"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB is the central store. Hubs push their HFGCS sightings and
// promoted EAMs here; the ops API serves fleet-wide reads from it.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the central tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS hfgcs_aircraft (
		aircraft_id      TEXT PRIMARY KEY,
		aircraft_type    TEXT NOT NULL,
		hex              TEXT,
		callsign         TEXT,
		tail             TEXT,
		first_detected   TIMESTAMPTZ NOT NULL,
		last_seen        TIMESTAMPTZ NOT NULL,
		total_messages   BIGINT NOT NULL DEFAULT 1,
		detection_method TEXT NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_hfgcs_last_seen ON hfgcs_aircraft(last_seen);
	CREATE INDEX IF NOT EXISTS idx_hfgcs_type ON hfgcs_aircraft(aircraft_type);

	CREATE TABLE IF NOT EXISTS eam_messages (
		id               TEXT PRIMARY KEY,
		message_type     TEXT NOT NULL,
		header           TEXT,
		message_body     TEXT NOT NULL,
		message_length   INTEGER NOT NULL,
		confidence_score REAL NOT NULL,
		first_detected   TIMESTAMPTZ NOT NULL,
		last_detected    TIMESTAMPTZ NOT NULL,
		repeat_count     INTEGER NOT NULL DEFAULT 1,
		recording_ids    JSONB,
		raw_transcription TEXT,
		codeword         TEXT,
		time_code        TEXT,
		authentication   TEXT,
		multi_segment    BOOLEAN NOT NULL DEFAULT FALSE,
		segment_count    INTEGER NOT NULL DEFAULT 1,
		duration_seconds REAL,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_eam_type_detected ON eam_messages(message_type, last_detected);
	CREATE INDEX IF NOT EXISTS idx_eam_body ON eam_messages USING gin (to_tsvector('simple', message_body));
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// UpsertHFGCSAircraft pushes one watched aircraft row.
func (d *PostgresDB) UpsertHFGCSAircraft(ctx context.Context, a *signal.HFGCSAircraft) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO hfgcs_aircraft (aircraft_id, aircraft_type, hex, callsign, tail,
		                            first_detected, last_seen, total_messages, detection_method, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (aircraft_id) DO UPDATE SET
			callsign = COALESCE(NULLIF(EXCLUDED.callsign, ''), hfgcs_aircraft.callsign),
			tail = COALESCE(NULLIF(EXCLUDED.tail, ''), hfgcs_aircraft.tail),
			last_seen = EXCLUDED.last_seen,
			total_messages = EXCLUDED.total_messages,
			updated_at = NOW()
	`, a.AircraftID, a.AircraftType, a.Hex, a.Callsign, a.Tail,
		a.FirstDetected, a.LastSeen, a.TotalMessages, string(a.DetectionMethod))
	if err != nil {
		return fmt.Errorf("upsert hfgcs: %w", err)
	}
	return nil
}

// UpsertEAM pushes one EAM row, keeping the highest repeat count seen.
func (d *PostgresDB) UpsertEAM(ctx context.Context, e *signal.EAMMessage) error {
	ids, err := json.Marshal(e.RecordingIDs)
	if err != nil {
		return fmt.Errorf("marshal recording ids: %w", err)
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO eam_messages (id, message_type, header, message_body, message_length,
		                          confidence_score, first_detected, last_detected, repeat_count,
		                          recording_ids, raw_transcription, codeword, time_code,
		                          authentication, multi_segment, segment_count, duration_seconds, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_detected = EXCLUDED.last_detected,
			repeat_count = GREATEST(eam_messages.repeat_count, EXCLUDED.repeat_count),
			recording_ids = EXCLUDED.recording_ids,
			confidence_score = GREATEST(eam_messages.confidence_score, EXCLUDED.confidence_score),
			updated_at = NOW()
	`, e.ID, string(e.MessageType), e.Header, e.MessageBody, e.MessageLength,
		e.ConfidenceScore, e.FirstDetected, e.LastDetected, e.RepeatCount,
		ids, e.RawTranscription, e.Codeword, e.TimeCode,
		e.Authentication, e.MultiSegment, e.SegmentCount, e.DurationSeconds)
	if err != nil {
		return fmt.Errorf("upsert eam: %w", err)
	}
	return nil
}

// GetEAMMessages reads EAMs newest first.
func (d *PostgresDB) GetEAMMessages(ctx context.Context, messageType string, limit int) ([]signal.EAMMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows pgx.Rows
	var err error
	if messageType != "" {
		rows, err = d.pool.Query(ctx, `
			SELECT id, message_type, header, message_body, message_length, confidence_score,
			       first_detected, last_detected, repeat_count, recording_ids,
			       raw_transcription, codeword, time_code, authentication,
			       multi_segment, segment_count, duration_seconds
			FROM eam_messages WHERE message_type = $1
			ORDER BY last_detected DESC LIMIT $2
		`, messageType, limit)
	} else {
		rows, err = d.pool.Query(ctx, `
			SELECT id, message_type, header, message_body, message_length, confidence_score,
			       first_detected, last_detected, repeat_count, recording_ids,
			       raw_transcription, codeword, time_code, authentication,
			       multi_segment, segment_count, duration_seconds
			FROM eam_messages
			ORDER BY last_detected DESC LIMIT $1
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("get eams: %w", err)
	}
	defer rows.Close()

	return collectPGEAMs(rows)
}

// SearchEAMs full-text searches bodies and transcriptions.
func (d *PostgresDB) SearchEAMs(ctx context.Context, q string, limit int) ([]signal.EAMMessage, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.pool.Query(ctx, `
		SELECT id, message_type, header, message_body, message_length, confidence_score,
		       first_detected, last_detected, repeat_count, recording_ids,
		       raw_transcription, codeword, time_code, authentication,
		       multi_segment, segment_count, duration_seconds
		FROM eam_messages
		WHERE message_body ILIKE '%' || $1 || '%'
		   OR raw_transcription ILIKE '%' || $1 || '%'
		   OR header ILIKE '%' || $1 || '%'
		ORDER BY last_detected DESC LIMIT $2
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search eams: %w", err)
	}
	defer rows.Close()

	return collectPGEAMs(rows)
}

// GetActiveHFGCSAircraft reads recently seen watched aircraft.
func (d *PostgresDB) GetActiveHFGCSAircraft(ctx context.Context, limit, hoursBack int) ([]signal.HFGCSAircraft, error) {
	if limit <= 0 {
		limit = 50
	}
	if hoursBack <= 0 {
		hoursBack = 24
	}

	rows, err := d.pool.Query(ctx, `
		SELECT aircraft_id, aircraft_type, hex, callsign, tail,
		       first_detected, last_seen, total_messages, detection_method
		FROM hfgcs_aircraft
		WHERE last_seen > NOW() - ($1 || ' hours')::interval
		ORDER BY last_seen DESC LIMIT $2
	`, hoursBack, limit)
	if err != nil {
		return nil, fmt.Errorf("active hfgcs: %w", err)
	}
	defer rows.Close()

	var out []signal.HFGCSAircraft
	for rows.Next() {
		var a signal.HFGCSAircraft
		var hex, callsign, tail *string
		var method string
		if err := rows.Scan(&a.AircraftID, &a.AircraftType, &hex, &callsign, &tail,
			&a.FirstDetected, &a.LastSeen, &a.TotalMessages, &method); err != nil {
			continue
		}
		if hex != nil {
			a.Hex = *hex
		}
		if callsign != nil {
			a.Callsign = *callsign
		}
		if tail != nil {
			a.Tail = *tail
		}
		a.DetectionMethod = signal.DetectionMethod(method)
		out = append(out, a)
	}
	return out, rows.Err()
}

func collectPGEAMs(rows pgx.Rows) ([]signal.EAMMessage, error) {
	var out []signal.EAMMessage
	for rows.Next() {
		var e signal.EAMMessage
		var header, raw, codeword, timeCode, auth *string
		var ids []byte
		var dur *float64
		err := rows.Scan(&e.ID, &e.MessageType, &header, &e.MessageBody, &e.MessageLength,
			&e.ConfidenceScore, &e.FirstDetected, &e.LastDetected, &e.RepeatCount,
			&ids, &raw, &codeword, &timeCode, &auth, &e.MultiSegment, &e.SegmentCount, &dur)
		if err != nil {
			continue
		}
		if header != nil {
			e.Header = *header
		}
		if raw != nil {
			e.RawTranscription = *raw
		}
		if codeword != nil {
			e.Codeword = *codeword
		}
		if timeCode != nil {
			e.TimeCode = *timeCode
		}
		if auth != nil {
			e.Authentication = *auth
		}
		if dur != nil {
			e.DurationSeconds = *dur
		}
		if len(ids) > 0 {
			_ = json.Unmarshal(ids, &e.RecordingIDs)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
