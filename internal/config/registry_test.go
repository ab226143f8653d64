package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testKeys() []Key {
	return []Key{
		{Category: "server", Name: "port", Schema: SchemaInt, Default: 8080},
		{Category: "server", Name: "debug", Schema: SchemaBool, Default: false},
		{Category: "adsb", Name: "default_lat", Schema: SchemaFloat, Default: 55.861},
		{Category: "adsb", Name: "api_key", Schema: SchemaString, Default: ""},
		{Category: "acars", Name: "endpoints", Schema: SchemaJSON, Default: "[]"},
	}
}

func TestRegistryDefaults(t *testing.T) {
	r, err := New(testKeys())
	require.NoError(t, err)

	require.Equal(t, 8080, r.Int("server", "port"))
	require.False(t, r.Bool("server", "debug"))
	require.InDelta(t, 55.861, r.Float("adsb", "default_lat"), 1e-9)
	require.Equal(t, "", r.String("adsb", "api_key"))
}

func TestRegistryPrecedence(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")

	r, err := New(testKeys())
	require.NoError(t, err)

	// Environment beats default.
	require.Equal(t, 9090, r.Int("server", "port"))

	// Runtime override beats environment.
	require.NoError(t, r.Set("server", "port", 7070))
	require.Equal(t, 7070, r.Int("server", "port"))
}

func TestRegistryCoercion(t *testing.T) {
	t.Setenv("SERVER_DEBUG", "true")
	t.Setenv("ADSB_DEFAULT_LAT", "12.5")

	r, err := New(testKeys())
	require.NoError(t, err)

	require.True(t, r.Bool("server", "debug"))
	require.InDelta(t, 12.5, r.Float("adsb", "default_lat"), 1e-9)
}

func TestRegistryRejectsMalformedEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")

	_, err := New(testKeys())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SERVER_PORT")
}

func TestRegistrySetValidatesSchema(t *testing.T) {
	r, err := New(testKeys())
	require.NoError(t, err)

	require.Error(t, r.Set("server", "port", "nope"))
	require.Error(t, r.Set("server", "missing", 1))

	// String forms of typed values are coerced, not rejected.
	require.NoError(t, r.Set("server", "port", "8088"))
	require.Equal(t, 8088, r.Int("server", "port"))
}

func TestRegistryJSONSchema(t *testing.T) {
	t.Setenv("ACARS_ENDPOINTS", `["wss://a.example/ws","wss://b.example/ws"]`)

	r, err := New(testKeys())
	require.NoError(t, err)

	v, err := r.Get("acars", "endpoints")
	require.NoError(t, err)
	list, ok := v.([]any)
	require.True(t, ok, "want parsed array, got %T", v)
	require.Len(t, list, 2)
	require.Equal(t, "wss://a.example/ws", list[0])
}

func TestRegistryJSONSchemaKeepsBareString(t *testing.T) {
	t.Setenv("ACARS_ENDPOINTS", "wss://only.example/ws")

	r, err := New(testKeys())
	require.NoError(t, err)

	v, err := r.Get("acars", "endpoints")
	require.NoError(t, err)
	require.Equal(t, "wss://only.example/ws", v)
}

func TestRegistryCategory(t *testing.T) {
	r, err := New(testKeys())
	require.NoError(t, err)

	got := r.Category("server")
	require.Len(t, got, 2)
	require.Equal(t, 8080, got["port"])
	require.Equal(t, false, got["debug"])
}

func TestValidateRequired(t *testing.T) {
	r, err := New(testKeys())
	require.NoError(t, err)

	err = r.ValidateRequired(map[string][]string{"adsb": {"api_key"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "ADSB_API_KEY")

	require.NoError(t, r.Set("adsb", "api_key", "some-key"))
	require.NoError(t, r.ValidateRequired(map[string][]string{"adsb": {"api_key"}}))
}

func TestRegistryEnvAlias(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://ops.example")

	r, err := New(Defaults())
	require.NoError(t, err)
	require.Equal(t, "https://ops.example", r.String("server", "allowed_origins"))

	// The canonical name wins over the alias.
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://primary.example")
	r, err = New(Defaults())
	require.NoError(t, err)
	require.Equal(t, "https://primary.example", r.String("server", "allowed_origins"))
}

func TestEnvName(t *testing.T) {
	k := Key{Category: "eam_watch", Name: "api_token"}
	if got := k.EnvName(); got != "EAM_WATCH_API_TOKEN" {
		t.Errorf("EnvName() = %q", got)
	}
}

func TestDefaultsRegister(t *testing.T) {
	// The full shipped key set must load without error.
	r, err := New(Defaults())
	require.NoError(t, err)
	require.Equal(t, 500, r.Int("hub", "broadcast_interval_ms"))
	require.Equal(t, 1000, r.Int("tracker", "max_track_points"))
}
