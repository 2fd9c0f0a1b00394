package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"blindshake_server/geo"
	"blindshake_server/services"
)

// EnvPrefix prefixes every environment override, e.g. BLINDSHAKE_SERVER_PORT.
const EnvPrefix = "BLINDSHAKE"

type Config struct {
	Server    Server
	Store     Store
	Auth      Auth
	Matching  Matching
	Lifecycle Lifecycle
	Sweeper   Sweeper
	Photos    Photos
	Logger    LoggerMode
}

type Server struct {
	Port            string
	Environment     string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

// Store selects and configures the persistence backend.
type Store struct {
	Backend        string
	DSN            string
	MongoURI       string
	MongoDatabase  string
	TablePrefix    string
	AWSRegion      string
	DynamoEndpoint string
	ProfileSource  string
	ProfilesTable  string
}

type Auth struct {
	JWTSecret   string
	OperatorKey string
}

type Matching struct {
	PoolTTL          time.Duration
	Precision        uint
	SearchPrecisions []uint
	MaxRadiusKm      float64
	TieEpsilonKm     float64
	AnonymousWindow  time.Duration
	LocationDecimals int
}

type Lifecycle struct {
	GraceWindow      time.Duration
	RetentionWindow  time.Duration
	PurgeBatchSize   int
	MaxContentLength int
}

type Sweeper struct {
	Enabled   bool
	Pool      string
	Archive   string
	Retention string
	Stats     string
}

type Photos struct {
	Bucket        string
	PresignExpiry time.Duration
}

type LoggerMode struct {
	Development bool
	Level       string
}

// Backends
const (
	BackendMemory   = "memory"
	BackendDynamo   = "dynamo"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", 15*time.Second)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.mongoURI", "")
	v.SetDefault("store.mongoDatabase", "blindshake")
	v.SetDefault("store.tablePrefix", "")
	v.SetDefault("store.awsRegion", "us-east-1")
	v.SetDefault("store.dynamoEndpoint", "")
	v.SetDefault("store.profileSource", BackendMemory)
	v.SetDefault("store.profilesTable", "UserProfiles")

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.operatorKey", "")

	v.SetDefault("matching.poolTTL", 30*time.Second)
	v.SetDefault("matching.precision", 6)
	v.SetDefault("matching.searchPrecisions", []uint{6, 5, 4})
	v.SetDefault("matching.maxRadiusKm", 1000.0)
	v.SetDefault("matching.tieEpsilonKm", 1.0)
	v.SetDefault("matching.anonymousWindow", 15*time.Minute)
	v.SetDefault("matching.locationDecimals", 4)

	v.SetDefault("lifecycle.graceWindow", 24*time.Hour)
	v.SetDefault("lifecycle.retentionWindow", 30*24*time.Hour)
	v.SetDefault("lifecycle.purgeBatchSize", 100)
	v.SetDefault("lifecycle.maxContentLength", 1000)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.pool", "@every 1m")
	v.SetDefault("sweeper.archive", "@every 5m")
	v.SetDefault("sweeper.retention", "@every 24h")
	v.SetDefault("sweeper.stats", "@every 24h")

	v.SetDefault("photos.bucket", "")
	v.SetDefault("photos.presignExpiry", time.Hour)

	v.SetDefault("logger.development", true)
	v.SetDefault("logger.level", "info")
}

// RegisterFlags adds the command-line flags Load understands.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("port", "", "HTTP port (overrides server.port)")
	fs.String("store", "", "store backend: memory, dynamo, mongo or postgres")
}

// Load reads .env, the optional config file named by --config, environment
// variables and flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if f := fs.Lookup("port"); f != nil {
			if err := v.BindPFlag("server.port", f); err != nil {
				return nil, err
			}
		}
		if f := fs.Lookup("store"); f != nil {
			if err := v.BindPFlag("store.backend", f); err != nil {
				return nil, err
			}
		}
		if path, _ := fs.GetString("config"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, errors.Wrapf(err, "failed to read config file %s", path)
			}
		}
	}

	cfg, err := ParseConfig(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &c, nil
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendDynamo:
	case BackendMongo:
		if c.Store.MongoURI == "" {
			add("store.mongoURI is required for the mongo backend")
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			add("store.dsn is required for the postgres backend")
		}
	default:
		add("unknown store.backend %q", c.Store.Backend)
	}

	if c.Store.ProfileSource != BackendMemory && c.Store.ProfileSource != BackendDynamo {
		add("store.profileSource must be memory or dynamo")
	}

	if c.Auth.JWTSecret == "" {
		add("auth.jwtSecret is required")
	}

	positive := map[string]time.Duration{
		"matching.poolTTL":          c.Matching.PoolTTL,
		"matching.anonymousWindow":  c.Matching.AnonymousWindow,
		"lifecycle.graceWindow":     c.Lifecycle.GraceWindow,
		"lifecycle.retentionWindow": c.Lifecycle.RetentionWindow,
		"server.shutdownTimeout":    c.Server.ShutdownTimeout,
	}
	for key, d := range positive {
		if d <= 0 {
			add("%s must be positive", key)
		}
	}

	if len(c.Matching.SearchPrecisions) == 0 {
		add("matching.searchPrecisions must not be empty")
	}
	for _, p := range c.Matching.SearchPrecisions {
		if p < 1 || p > 12 {
			add("matching.searchPrecisions entries must be within 1..12, got %d", p)
		}
	}
	if c.Matching.Precision < 1 || c.Matching.Precision > 12 {
		add("matching.precision must be within 1..12")
	}
	if c.Matching.MaxRadiusKm <= 0 {
		add("matching.maxRadiusKm must be positive")
	}
	if c.Matching.TieEpsilonKm < 0 {
		add("matching.tieEpsilonKm must not be negative")
	}
	if c.Lifecycle.MaxContentLength <= 0 {
		add("lifecycle.maxContentLength must be positive")
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// MatchingOptions converts the matching section for the services.
func (c *Config) MatchingOptions() services.MatchingOptions {
	opts := services.DefaultMatchingOptions()
	opts.PoolTTL = c.Matching.PoolTTL
	opts.MaxRadiusKm = c.Matching.MaxRadiusKm
	opts.TieEpsilonKm = c.Matching.TieEpsilonKm
	opts.AnonymousWindow = c.Matching.AnonymousWindow
	opts.LocationDecimals = c.Matching.LocationDecimals
	return opts
}

// GeoIndex builds the geocell index. When the configured search
// precisions stop short of the cell size the matching radius needs, the
// precision covering MaxRadiusKm is appended as the last search step.
func (c *Config) GeoIndex() geo.Index {
	precisions := append([]uint(nil), c.Matching.SearchPrecisions...)
	if c.Matching.MaxRadiusKm > 0 {
		widest := geo.PrecisionForRadius(c.Matching.MaxRadiusKm)
		if n := len(precisions); n == 0 || precisions[n-1] > widest {
			precisions = append(precisions, widest)
		}
	}
	return geo.NewIndex(c.Matching.Precision, precisions)
}

// LifecycleOptions converts the lifecycle section for the services.
func (c *Config) LifecycleOptions() services.LifecycleOptions {
	opts := services.DefaultLifecycleOptions()
	opts.GraceWindow = c.Lifecycle.GraceWindow
	opts.RetentionWindow = c.Lifecycle.RetentionWindow
	opts.PurgeBatchSize = c.Lifecycle.PurgeBatchSize
	opts.MaxContentLength = c.Lifecycle.MaxContentLength
	return opts
}

// Schedules returns the sweep schedules, all empty when sweeping is off.
func (c *Config) Schedules() services.Schedules {
	if !c.Sweeper.Enabled {
		return services.Schedules{}
	}
	return services.Schedules{
		Pool:      c.Sweeper.Pool,
		Archive:   c.Sweeper.Archive,
		Retention: c.Sweeper.Retention,
		Stats:     c.Sweeper.Stats,
	}
}

// NewLogger builds the process logger: text in development, JSON otherwise.
func NewLogger(mode LoggerMode) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(mode.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if mode.Development {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
