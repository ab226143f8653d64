package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"skysignal/internal/signal"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB archives the canonical message firehose and promoted
// EAMs. Inserts are buffered and flushed in batches; archive failures
// never propagate into the pipeline.
type ClickHouseDB struct {
	conn driver.Conn

	mu       sync.Mutex
	messages []*signal.Message
	eams     []*signal.EAMMessage

	flushEvery time.Duration
	stop       chan struct{}
	done       chan struct{}
	dropped    int64
}

const archiveBufferCap = 10000

// OpenClickHouse opens a connection to ClickHouse and starts the
// background flush loop.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	d := &ClickHouseDB{
		conn:       conn,
		flushEvery: 5 * time.Second,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.flushLoop()
	return d, nil
}

// Close flushes pending rows and closes the connection.
func (d *ClickHouseDB) Close() error {
	close(d.stop)
	<-d.done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.flush(ctx)
	return d.conn.Close()
}

// CreateSchema creates the archive tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id           String,
			timestamp    DateTime64(3),
			source_type  LowCardinality(String),
			station_id   LowCardinality(String),
			hex          LowCardinality(String),
			flight       LowCardinality(String),
			tail         LowCardinality(String),
			label        LowCardinality(String),
			latitude     Float64,
			longitude    Float64,
			altitude_ft  Float64,
			military     UInt8,
			raw_text     String,
			created_at   DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (source_type, hex, timestamp)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS eam_history (
			id               String,
			message_type     LowCardinality(String),
			header           String,
			message_body     String,
			confidence_score Float32,
			repeat_count     UInt32,
			segment_count    UInt32,
			first_detected   DateTime64(3),
			last_detected    DateTime64(3),
			recorded_at      DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(recorded_at)
		ORDER BY (message_type, last_detected, id)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// ArchiveMessage queues a canonical message for the next batch flush.
// When the buffer is full the oldest entries are dropped.
func (d *ClickHouseDB) ArchiveMessage(msg *signal.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.messages) >= archiveBufferCap {
		d.messages = d.messages[1:]
		d.dropped++
	}
	d.messages = append(d.messages, msg)
}

// ArchiveEAM queues a promoted EAM for the next batch flush.
func (d *ClickHouseDB) ArchiveEAM(e *signal.EAMMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eams = append(d.eams, e)
}

// Dropped returns the number of archive entries discarded under
// buffer pressure.
func (d *ClickHouseDB) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

func (d *ClickHouseDB) flushLoop() {
	defer close(d.done)
	ticker := time.NewTicker(d.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			d.flush(ctx)
			cancel()
		case <-d.stop:
			return
		}
	}
}

func (d *ClickHouseDB) flush(ctx context.Context) {
	d.mu.Lock()
	msgs := d.messages
	eams := d.eams
	d.messages = nil
	d.eams = nil
	d.mu.Unlock()

	if len(msgs) > 0 {
		if err := d.insertMessages(ctx, msgs); err != nil {
			// Best effort: the archive never blocks or fails the pipeline.
			d.mu.Lock()
			d.dropped += int64(len(msgs))
			d.mu.Unlock()
		}
	}
	if len(eams) > 0 {
		_ = d.insertEAMs(ctx, eams)
	}
}

func (d *ClickHouseDB) insertMessages(ctx context.Context, msgs []*signal.Message) error {
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO messages (id, timestamp, source_type, station_id, hex, flight, tail,
		                      label, latitude, longitude, altitude_ft, military, raw_text)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range msgs {
		var lat, lon, alt float64
		if m.Position != nil {
			lat, lon, alt = m.Position.Lat, m.Position.Lon, m.Position.AltitudeFt
		}
		var mil uint8
		if m.Military {
			mil = 1
		}
		if err := batch.Append(
			m.ID, m.Timestamp, string(m.Source.Type), m.Source.StationID,
			m.Hex, m.Flight, m.Tail, m.Label, lat, lon, alt, mil, m.Text,
		); err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}
	return batch.Send()
}

func (d *ClickHouseDB) insertEAMs(ctx context.Context, eams []*signal.EAMMessage) error {
	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO eam_history (id, message_type, header, message_body, confidence_score,
		                         repeat_count, segment_count, first_detected, last_detected)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range eams {
		if err := batch.Append(
			e.ID, string(e.MessageType), e.Header, e.MessageBody, float32(e.ConfidenceScore),
			uint32(e.RepeatCount), uint32(e.SegmentCount), e.FirstDetected, e.LastDetected,
		); err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}
	return batch.Send()
}
