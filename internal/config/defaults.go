package config

// Defaults returns the full key set the hub understands. Every tunable
// lives here so the env surface (UPPER(CAT)_UPPER(KEY)) is discoverable
// in one place.
func Defaults() []Key {
	return []Key{
		// Server.
		{Category: "server", Name: "port", Schema: SchemaInt, Default: 8080},
		{Category: "server", Name: "allowed_origins", Schema: SchemaString, Default: "", EnvAliases: []string{"ALLOWED_ORIGINS"}},
		{Category: "server", Name: "node_env", Schema: SchemaString, Default: "development"},

		// Logging.
		{Category: "log", Name: "level", Schema: SchemaString, Default: "info"},

		// ADS-B HTTP pull source.
		{Category: "adsb", Name: "enabled", Schema: SchemaBool, Default: true},
		{Category: "adsb", Name: "base_url", Schema: SchemaString, Default: "https://adsbexchange-com1.p.rapidapi.com/v2"},
		{Category: "adsb", Name: "api_key", Schema: SchemaString, Default: ""},
		{Category: "adsb", Name: "poll_interval", Schema: SchemaInt, Default: 5},
		{Category: "adsb", Name: "default_lat", Schema: SchemaFloat, Default: 55.861},
		{Category: "adsb", Name: "default_lon", Schema: SchemaFloat, Default: -4.257},
		{Category: "adsb", Name: "default_dist", Schema: SchemaInt, Default: 250},

		// ACARS WebSocket source.
		{Category: "acars", Name: "enabled", Schema: SchemaBool, Default: true},
		{Category: "acars", Name: "endpoints", Schema: SchemaJSON, Default: "[]"},
		{Category: "acars", Name: "max_attempts", Schema: SchemaInt, Default: 5},

		// ACARS NATS source.
		{Category: "natsacars", Name: "enabled", Schema: SchemaBool, Default: false},
		{Category: "natsacars", Name: "url", Schema: SchemaString, Default: "nats://localhost:4222"},
		{Category: "natsacars", Name: "subject", Schema: SchemaString, Default: "acars.>"},

		// EAM API interval source.
		{Category: "eam_watch", Name: "enabled", Schema: SchemaBool, Default: true},
		{Category: "eam_watch", Name: "base_url", Schema: SchemaString, Default: "https://api.eam.watch"},
		{Category: "eam_watch", Name: "api_token", Schema: SchemaString, Default: ""},
		{Category: "eam_watch", Name: "poll_interval", Schema: SchemaInt, Default: 60},
		{Category: "eam_watch", Name: "initial_limit", Schema: SchemaInt, Default: 50},

		// Tracker.
		{Category: "tracker", Name: "track_ttl_seconds", Schema: SchemaInt, Default: 3600},
		{Category: "tracker", Name: "evict_interval_seconds", Schema: SchemaInt, Default: 30},
		{Category: "tracker", Name: "max_track_points", Schema: SchemaInt, Default: 1000},

		// HFGCS tracker.
		{Category: "hfgcs", Name: "ttl_seconds", Schema: SchemaInt, Default: 86400},
		{Category: "hfgcs", Name: "config_file", Schema: SchemaString, Default: ""},

		// EAM pipeline.
		{Category: "eam", Name: "window_seconds", Schema: SchemaInt, Default: 120},
		{Category: "eam", Name: "promotion_threshold", Schema: SchemaFloat, Default: 50},
		{Category: "eam", Name: "dedupe_depth", Schema: SchemaInt, Default: 20},
		{Category: "eam", Name: "dedupe_window_seconds", Schema: SchemaInt, Default: 3600},

		// Broadcast hub.
		{Category: "hub", Name: "broadcast_interval_ms", Schema: SchemaInt, Default: 500},
		{Category: "hub", Name: "batch_limit", Schema: SchemaInt, Default: 100},
		{Category: "hub", Name: "queue_warn_threshold", Schema: SchemaInt, Default: 100},
		{Category: "hub", Name: "queue_hard_limit", Schema: SchemaInt, Default: 10000},
		{Category: "hub", Name: "backpressure_bytes", Schema: SchemaInt, Default: 100 * 1024},
		{Category: "hub", Name: "heartbeat_seconds", Schema: SchemaInt, Default: 30},

		// Storage.
		{Category: "storage", Name: "sqlite_path", Schema: SchemaString, Default: "skysignal.db"},
		{Category: "storage", Name: "clickhouse_enabled", Schema: SchemaBool, Default: false},
		{Category: "storage", Name: "clickhouse_host", Schema: SchemaString, Default: "localhost"},
		{Category: "storage", Name: "clickhouse_port", Schema: SchemaInt, Default: 9000},
		{Category: "storage", Name: "clickhouse_database", Schema: SchemaString, Default: "skysignal"},
		{Category: "storage", Name: "clickhouse_user", Schema: SchemaString, Default: "default"},
		{Category: "storage", Name: "clickhouse_password", Schema: SchemaString, Default: ""},
		{Category: "storage", Name: "postgres_enabled", Schema: SchemaBool, Default: false},
		{Category: "storage", Name: "postgres_host", Schema: SchemaString, Default: "localhost"},
		{Category: "storage", Name: "postgres_port", Schema: SchemaInt, Default: 5432},
		{Category: "storage", Name: "postgres_database", Schema: SchemaString, Default: "skysignal"},
		{Category: "storage", Name: "postgres_user", Schema: SchemaString, Default: "skysignal"},
		{Category: "storage", Name: "postgres_password", Schema: SchemaString, Default: "skysignal"},
		{Category: "storage", Name: "sync_interval_seconds", Schema: SchemaInt, Default: 60},
	}
}
