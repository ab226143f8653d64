package storage

import (
	"context"
	"fmt"
	"time"

	"skysignal/internal/signal"
)

// Store is the narrow persistence interface the pipeline components
// depend on. Every call is atomic; implementations are safe under
// concurrent callers.
type Store interface {
	SaveMessage(ctx context.Context, msg *signal.Message) error
	UpdateAircraftTracking(ctx context.Context, msg *signal.Message) error
	SaveAircraftTrack(ctx context.Context, tr *signal.Track) error
	GetAircraftByIdentifier(ctx context.Context, id string) (*signal.Track, error)
	GetACARSPositions(ctx context.Context, within time.Duration) ([]signal.PositionReport, error)

	SaveHFGCSAircraft(ctx context.Context, a *signal.HFGCSAircraft) error
	GetActiveHFGCSAircraft(ctx context.Context, limit, hoursBack int) ([]signal.HFGCSAircraft, error)
	GetHFGCSStatistics(ctx context.Context) (HFGCSStats, error)

	SaveEAMMessage(ctx context.Context, e *signal.EAMMessage) error
	UpdateEAMRepeat(ctx context.Context, id string, recordingIDs []string) (int, []string, error)
	GetEAMMessages(ctx context.Context, q EAMQuery) ([]signal.EAMMessage, error)
	SearchEAMs(ctx context.Context, q string, limit int) ([]signal.EAMMessage, error)
	ClearEAMs(ctx context.Context, olderDays int) (int64, error)

	SaveATCRecording(ctx context.Context, r *signal.Recording) error
	UpdateRecordingTranscription(ctx context.Context, segmentID, text string, confidence float64) error
	GetRecordings(ctx context.Context, feedID string, limit int) ([]signal.Recording, error)
	GetRecordingsInTimeWindow(ctx context.Context, feedID string, center time.Time, windowSec int) ([]signal.Recording, error)

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	GetSettingsByCategory(ctx context.Context, category string) (map[string]string, error)

	Close() error
}

// Config selects the backends.
type Config struct {
	SQLitePath string

	ClickHouseEnabled bool
	ClickHouse        ClickHouseConfig

	PostgresEnabled bool
	Postgres        PostgresConfig
}

// DB bundles the embedded state store with the optional archive and
// central store. DB itself implements Store: facade operations hit
// SQLite, with message and EAM writes mirrored into ClickHouse when it
// is configured.
type DB struct {
	*StateDB
	Archive *ClickHouseDB // nil unless ClickHouse is enabled.
	Central *PostgresDB   // nil unless Postgres is enabled.
}

// Open opens the configured backends. SQLite is always opened;
// ClickHouse and Postgres only when enabled.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	state, err := OpenState(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	db := &DB{StateDB: state}

	if cfg.ClickHouseEnabled {
		ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			_ = state.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		if err := ch.CreateSchema(ctx); err != nil {
			_ = ch.Close()
			_ = state.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		db.Archive = ch
	}

	if cfg.PostgresEnabled {
		pg, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			db.closeAll()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := pg.CreateSchema(ctx); err != nil {
			pg.Close()
			db.closeAll()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		db.Central = pg
	}

	return db, nil
}

// SaveMessage writes to the state buffer and mirrors into the archive.
func (d *DB) SaveMessage(ctx context.Context, msg *signal.Message) error {
	if d.Archive != nil {
		d.Archive.ArchiveMessage(msg)
	}
	return d.StateDB.SaveMessage(ctx, msg)
}

// SaveEAMMessage writes the EAM and mirrors it into the archive.
func (d *DB) SaveEAMMessage(ctx context.Context, e *signal.EAMMessage) error {
	if d.Archive != nil {
		d.Archive.ArchiveEAM(e)
	}
	return d.StateDB.SaveEAMMessage(ctx, e)
}

// Close closes every open backend.
func (d *DB) Close() error {
	d.closeAll()
	return nil
}

func (d *DB) closeAll() {
	if d.Archive != nil {
		_ = d.Archive.Close()
	}
	if d.Central != nil {
		d.Central.Close()
	}
	_ = d.StateDB.Close()
}
