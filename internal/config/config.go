// Package config loads service settings from the environment, optionally
// seeded from a .env file. Only this package reads configuration; every other
// package receives typed values built from Config.
package config

import (
	"strings"
	"time"
	_ "time/tzdata"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/udtms/txmonitor/internal/domain"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/monitor"
	"github.com/udtms/txmonitor/internal/reconciliation"
	"github.com/udtms/txmonitor/internal/risk"
)

type Config struct {
	Port             string `env:"PORT,default=8080"`
	DBPath           string `env:"DB_PATH,default=txmonitor.db"`
	LogEnv           string `env:"LOG_ENV,default=development"`
	MetricsNamespace string `env:"METRICS_NAMESPACE,default=txmonitor"`
	SeedFile         string `env:"SEED_FILE"`

	RedisAddr        string        `env:"REDIS_ADDR"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB,default=0"`
	RedisPrefix      string        `env:"REDIS_PREFIX,default=txmonitor:"`
	ProfileTTL       time.Duration `env:"PROFILE_TTL,default=720h"`
	ProfileRetention time.Duration `env:"PROFILE_RETENTION,default=24h"`

	VelocityEnabled   bool          `env:"VELOCITY_ENABLED,default=true"`
	VelocityWindow    time.Duration `env:"VELOCITY_WINDOW,default=10m"`
	VelocityThreshold int           `env:"VELOCITY_THRESHOLD,default=5"`

	AmountAnomalyEnabled   bool   `env:"AMOUNT_ANOMALY_ENABLED,default=true"`
	AmountAnomalyMediumPct string `env:"AMOUNT_ANOMALY_MEDIUM_PCT,default=200"`
	AmountAnomalyHighPct   string `env:"AMOUNT_ANOMALY_HIGH_PCT,default=300"`

	GeoEnabled       bool          `env:"GEO_ENABLED,default=true"`
	GeoMinTravelTime time.Duration `env:"GEO_MIN_TRAVEL_TIME,default=2h"`

	DeviceEnabled bool `env:"DEVICE_ENABLED,default=true"`

	ElevatedStartHour int    `env:"ELEVATED_START_HOUR,default=0"`
	ElevatedEndHour   int    `env:"ELEVATED_END_HOUR,default=6"`
	ElevatedPoints    int    `env:"ELEVATED_POINTS,default=10"`
	Timezone          string `env:"TIMEZONE,default=UTC"`

	HighCutoff   int `env:"HIGH_CUTOFF,default=70"`
	MediumCutoff int `env:"MEDIUM_CUTOFF,default=40"`

	AlertFloor       string        `env:"ALERT_FLOOR,default=high"`
	ScoringWorkers   int           `env:"SCORING_WORKERS,default=4"`
	ScoringInterval  time.Duration `env:"SCORING_INTERVAL,default=30s"`
	ScoringBatchSize int           `env:"SCORING_BATCH_SIZE,default=500"`

	MatchStrategy   string        `env:"MATCH_STRATEGY,default=reference"`
	MatchTolerance  string        `env:"MATCH_TOLERANCE,default=0"`
	MatchTimeBucket time.Duration `env:"MATCH_TIME_BUCKET,default=1m"`

	HealthCheckInterval   time.Duration `env:"HEALTH_CHECK_INTERVAL,default=1m"`
	HealthDegradedLatency time.Duration `env:"HEALTH_DEGRADED_LATENCY,default=1s"`
	HealthWorkers         int           `env:"HEALTH_WORKERS,default=4"`
	OutboundTimeout       time.Duration `env:"OUTBOUND_TIMEOUT,default=5s"`
}

// Load reads the optional .env file at path into the process environment
// and maps the environment onto a Config.
func Load(path string) (*Config, error) {
	if path != "" {
		logger.Info("[config] loading env file", "path", path)
		if err := godotenv.Load(path); err != nil {
			return nil, errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}
	c := &Config{}
	if _, err := env.UnmarshalFromEnviron(c); err != nil {
		return nil, errors.Wrap(err, "failed to map env variables to configuration")
	}
	return c, nil
}

// FromEnvSet maps an explicit set of variables, ignoring the process
// environment.
func FromEnvSet(es env.EnvSet) (*Config, error) {
	c := &Config{}
	if err := env.Unmarshal(es, c); err != nil {
		return nil, errors.Wrap(err, "failed to map env variables to configuration")
	}
	return c, nil
}

// RiskConfig builds the scoring rule set. Anything not exposed as a variable
// keeps its default.
func (c *Config) RiskConfig() (risk.Config, error) {
	cfg := risk.DefaultConfig()

	medium, err := decimal.NewFromString(c.AmountAnomalyMediumPct)
	if err != nil {
		return cfg, errors.Wrap(err, "AMOUNT_ANOMALY_MEDIUM_PCT")
	}
	high, err := decimal.NewFromString(c.AmountAnomalyHighPct)
	if err != nil {
		return cfg, errors.Wrap(err, "AMOUNT_ANOMALY_HIGH_PCT")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return cfg, errors.Wrap(err, "TIMEZONE")
	}

	cfg.Velocity = risk.VelocityRule{Enabled: c.VelocityEnabled, Window: c.VelocityWindow, Threshold: c.VelocityThreshold}
	cfg.AmountAnomaly = risk.AmountAnomalyRule{Enabled: c.AmountAnomalyEnabled, MediumPct: medium, HighPct: high}
	cfg.Geo = risk.GeoRule{Enabled: c.GeoEnabled, MinTravelTime: c.GeoMinTravelTime}
	cfg.Device = risk.DeviceRule{Enabled: c.DeviceEnabled}
	cfg.ElevatedBand = risk.TimeBand{StartHour: c.ElevatedStartHour, EndHour: c.ElevatedEndHour, Points: c.ElevatedPoints}
	cfg.Location = loc
	cfg.HighCutoff = c.HighCutoff
	cfg.MediumCutoff = c.MediumCutoff

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) MatcherConfig() (reconciliation.Config, error) {
	tolerance, err := decimal.NewFromString(c.MatchTolerance)
	if err != nil {
		return reconciliation.Config{}, errors.Wrap(err, "MATCH_TOLERANCE")
	}
	if _, err := reconciliation.StrategyByName(c.MatchStrategy, c.MatchTimeBucket); err != nil {
		return reconciliation.Config{}, errors.Wrap(err, "MATCH_STRATEGY")
	}
	return reconciliation.Config{
		Strategy:   c.MatchStrategy,
		Tolerance:  tolerance,
		TimeBucket: c.MatchTimeBucket,
	}, nil
}

func (c *Config) PipelineConfig() (monitor.PipelineConfig, error) {
	floor := domain.Severity(strings.ToLower(c.AlertFloor))
	if !floor.Valid() {
		return monitor.PipelineConfig{}, errors.Errorf("ALERT_FLOOR: unknown severity %q", c.AlertFloor)
	}
	return monitor.PipelineConfig{
		Workers:    c.ScoringWorkers,
		AlertFloor: floor,
		Retention:  c.ProfileRetention,
	}, nil
}

func (c *Config) HealthConfig() (monitor.HealthConfig, error) {
	if c.HealthCheckInterval < 0 {
		return monitor.HealthConfig{}, errors.Errorf("HEALTH_CHECK_INTERVAL: must not be negative")
	}
	return monitor.HealthConfig{
		Interval:        c.HealthCheckInterval,
		DegradedLatency: c.HealthDegradedLatency,
		Workers:         c.HealthWorkers,
	}, nil
}

// RedisOptions returns nil when no Redis address is configured.
func (c *Config) RedisOptions() *goredis.UniversalOptions {
	if c.RedisAddr == "" {
		return nil
	}
	return &goredis.UniversalOptions{
		Addrs:    strings.Split(c.RedisAddr, ","),
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
