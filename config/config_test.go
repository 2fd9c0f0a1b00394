package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BLINDSHAKE_AUTH_JWTSECRET", "s3cret")

	cfg, err := Load(flags(t))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Matching.PoolTTL)
	assert.Equal(t, []uint{6, 5, 4}, cfg.Matching.SearchPrecisions)
	assert.Equal(t, 15*time.Minute, cfg.Matching.AnonymousWindow)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.GraceWindow)
	assert.Equal(t, 1000, cfg.Lifecycle.MaxContentLength)
	assert.Equal(t, "@every 5m", cfg.Schedules().Archive)

	opts := cfg.MatchingOptions()
	assert.Equal(t, 1000.0, opts.MaxRadiusKm)
	assert.Equal(t, 4, opts.LocationDecimals)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blindshake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
store:
  backend: postgres
  dsn: postgres://localhost/blindshake
auth:
  jwtSecret: from-file
matching:
  poolTTL: 45s
  searchPrecisions: [7, 6]
sweeper:
  enabled: false
`), 0o600))

	t.Setenv("BLINDSHAKE_LIFECYCLE_GRACEWINDOW", "48h")

	cfg, err := Load(flags(t, "--config", path, "--port", "7000"))
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, 45*time.Second, cfg.Matching.PoolTTL)
	assert.Equal(t, []uint{7, 6}, cfg.Matching.SearchPrecisions)
	assert.Equal(t, 48*time.Hour, cfg.Lifecycle.GraceWindow)
	assert.Empty(t, cfg.Schedules().Pool)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: Server{ShutdownTimeout: time.Second},
			Store:  Store{Backend: BackendMemory, ProfileSource: BackendMemory},
			Auth:   Auth{JWTSecret: "x"},
			Matching: Matching{
				PoolTTL:          time.Second,
				Precision:        6,
				SearchPrecisions: []uint{6},
				MaxRadiusKm:      10,
				AnonymousWindow:  time.Minute,
			},
			Lifecycle: Lifecycle{GraceWindow: time.Hour, RetentionWindow: time.Hour, MaxContentLength: 10},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, "unknown store.backend"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }, "store.dsn"},
		{"mongo without uri", func(c *Config) { c.Store.Backend = BackendMongo }, "store.mongoURI"},
		{"bad profile source", func(c *Config) { c.Store.ProfileSource = "ldap" }, "store.profileSource"},
		{"no secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwtSecret"},
		{"zero ttl", func(c *Config) { c.Matching.PoolTTL = 0 }, "matching.poolTTL"},
		{"negative grace", func(c *Config) { c.Lifecycle.GraceWindow = -time.Hour }, "lifecycle.graceWindow"},
		{"no precisions", func(c *Config) { c.Matching.SearchPrecisions = nil }, "searchPrecisions must not be empty"},
		{"precision too fine", func(c *Config) { c.Matching.SearchPrecisions = []uint{13} }, "within 1..12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGeoIndex_ReachesMatchingRadius(t *testing.T) {
	tests := []struct {
		name       string
		precisions []uint
		radiusKm   float64
		want       []uint
	}{
		{"defaults already reach radius", []uint{6, 5, 4}, 1000, []uint{6, 5, 4}},
		{"radius needs a coarser cell", []uint{6, 5}, 1000, []uint{6, 5, 4}},
		{"small radius keeps list", []uint{6, 5}, 50, []uint{6, 5}},
		{"very wide radius", []uint{6}, 5000, []uint{6, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Matching: Matching{Precision: 6, SearchPrecisions: tt.precisions, MaxRadiusKm: tt.radiusKm}}
			ix := c.GeoIndex()
			assert.Equal(t, uint(6), ix.Precision)
			assert.Equal(t, tt.want, ix.SearchPrecisions)
		})
	}
}
