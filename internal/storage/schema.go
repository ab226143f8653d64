package storage

// schema contains the SQLite table definitions for the embedded state
// store.
const schema = `
-- Reference data: Aircraft seen on any feed (identity aggregation).
CREATE TABLE IF NOT EXISTS aircraft (
	hex          TEXT PRIMARY KEY,
	registration TEXT,
	flight       TEXT,
	type_code    TEXT,
	military     INTEGER NOT NULL DEFAULT 0,
	first_seen   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_seen    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	msg_count    INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_aircraft_registration ON aircraft(registration);

-- Ephemeral: Current aircraft tracks (live tracking state).
CREATE TABLE IF NOT EXISTS aircraft_tracks (
	aircraft_id    TEXT PRIMARY KEY,
	hex            TEXT NOT NULL,
	flight         TEXT,
	tail           TEXT,
	aircraft_type  TEXT,
	first_seen     DATETIME NOT NULL,
	last_seen      DATETIME NOT NULL,
	position_count INTEGER NOT NULL DEFAULT 0,
	current_json   TEXT,  -- JSON TrackPoint snapshot.
	military       INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_tracks_hex ON aircraft_tracks(hex);
CREATE INDEX IF NOT EXISTS idx_tracks_last_seen ON aircraft_tracks(last_seen);

-- Positions extracted from ACARS text, kept for the positions() union.
CREATE TABLE IF NOT EXISTS acars_positions (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	flight    TEXT,
	tail      TEXT,
	latitude  REAL NOT NULL,
	longitude REAL NOT NULL,
	altitude  REAL,
	seen_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(flight, tail, latitude, longitude)
);

CREATE INDEX IF NOT EXISTS idx_acars_positions_seen ON acars_positions(seen_at);

-- HFGCS-watched military aircraft.
CREATE TABLE IF NOT EXISTS hfgcs_aircraft (
	aircraft_id      TEXT PRIMARY KEY,
	aircraft_type    TEXT NOT NULL,
	hex              TEXT,
	callsign         TEXT,
	tail             TEXT,
	first_detected   DATETIME NOT NULL,
	last_seen        DATETIME NOT NULL,
	total_messages   INTEGER NOT NULL DEFAULT 1,
	detection_method TEXT NOT NULL,
	synced_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_hfgcs_last_seen ON hfgcs_aircraft(last_seen);
CREATE INDEX IF NOT EXISTS idx_hfgcs_synced ON hfgcs_aircraft(synced_at);

-- Promoted emergency action messages.
CREATE TABLE IF NOT EXISTS eam_messages (
	id               TEXT PRIMARY KEY,
	message_type     TEXT NOT NULL,  -- EAM or SKYKING.
	header           TEXT,
	message_body     TEXT NOT NULL,
	message_length   INTEGER NOT NULL,
	confidence_score REAL NOT NULL,
	first_detected   DATETIME NOT NULL,
	last_detected    DATETIME NOT NULL,
	repeat_count     INTEGER NOT NULL DEFAULT 1,
	recording_ids    TEXT,  -- JSON array, ordered, no duplicates.
	raw_transcription TEXT,
	codeword         TEXT,
	time_code        TEXT,
	authentication   TEXT,
	multi_segment    INTEGER NOT NULL DEFAULT 0,
	segment_count    INTEGER NOT NULL DEFAULT 1,
	duration_seconds REAL,
	synced_at        DATETIME
);

CREATE INDEX IF NOT EXISTS idx_eam_type_detected ON eam_messages(message_type, last_detected);
CREATE INDEX IF NOT EXISTS idx_eam_synced ON eam_messages(synced_at);

-- ATC/HF audio recording bookkeeping.
CREATE TABLE IF NOT EXISTS recordings (
	segment_id    TEXT PRIMARY KEY,
	feed_id       TEXT NOT NULL,
	started_at    DATETIME NOT NULL,
	duration_s    REAL,
	transcription TEXT,
	confidence    REAL
);

CREATE INDEX IF NOT EXISTS idx_recordings_feed_time ON recordings(feed_id, started_at);

-- Persisted runtime settings, keyed "category.name".
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Recent canonical messages (short-horizon buffer; long-term archive
-- lives in ClickHouse when enabled).
CREATE TABLE IF NOT EXISTS messages_recent (
	id          TEXT NOT NULL,
	timestamp   DATETIME NOT NULL,
	source_type TEXT NOT NULL,
	hex         TEXT,
	flight      TEXT,
	tail        TEXT,
	payload     TEXT NOT NULL,  -- Canonical message JSON.
	PRIMARY KEY (id, timestamp)
);

CREATE INDEX IF NOT EXISTS idx_messages_recent_time ON messages_recent(timestamp);
`
