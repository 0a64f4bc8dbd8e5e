// Package config loads the tribunal configuration from a TOML file, an
// optional .env file and TRIBUNAL_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/eigerco/tribunal/internal/court"
	"github.com/eigerco/tribunal/internal/primitives"
	"github.com/eigerco/tribunal/pkg/log"
)

const envPrefix = "TRIBUNAL_"

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrUnknownKeys    = errors.New("unknown configuration keys")
)

type Backend string

const (
	BackendMemory Backend = "memory"
	BackendPebble Backend = "pebble"
	BackendBolt   Backend = "bolt"
)

type Config struct {
	Log    Log          `toml:"log"`
	Store  Store        `toml:"store"`
	Events Events       `toml:"events"`
	Court  court.Params `toml:"court"`
	// Treasury is the hex encoded account that receives unclaimed reward pools.
	Treasury string `toml:"treasury"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Store struct {
	Backend Backend `toml:"backend"`
	// Path is ignored by the memory backend.
	Path string `toml:"path"`
}

type Events struct {
	// NATSURL disables publication when empty.
	NATSURL string `toml:"nats_url"`
	Prefix  string `toml:"prefix"`
}

func Default() Config {
	return Config{
		Log:    Log{Level: "info", Format: "console"},
		Store:  Store{Backend: BackendMemory},
		Events: Events{Prefix: "tribunal.court"},
		Court:  court.DefaultParams(),
	}
}

// Load reads path (when not empty) over the defaults, then .env, then the
// process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return Config{}, fmt.Errorf("%w: %s", ErrUnknownKeys, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		"LOG_LEVEL":     &c.Log.Level,
		"LOG_FORMAT":    &c.Log.Format,
		"STORE_PATH":    &c.Store.Path,
		"NATS_URL":      &c.Events.NATSURL,
		"EVENTS_PREFIX": &c.Events.Prefix,
		"TREASURY":      &c.Treasury,
	}
	for key, dst := range overrides {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	if v, ok := lookup(envPrefix + "STORE_BACKEND"); ok {
		c.Store.Backend = Backend(strings.ToLower(v))
	}
}

func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPebble, BackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store backend %s requires a path", c.Store.Backend)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if _, err := log.ParseLogLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if _, err := log.ParseLoggerType(c.Log.Format); err != nil {
		return fmt.Errorf("log format: %w", err)
	}
	if _, err := c.CourtParams(); err != nil {
		return err
	}
	return nil
}

// CourtParams returns the court parameters with the treasury account applied.
func (c Config) CourtParams() (court.Params, error) {
	params := c.Court
	if c.Treasury != "" {
		treasury, err := primitives.ParseAccountID(c.Treasury)
		if err != nil {
			return court.Params{}, fmt.Errorf("treasury: %w", err)
		}
		params.TreasuryAccount = treasury
	}
	if err := params.Validate(); err != nil {
		return court.Params{}, err
	}
	return params, nil
}

// LogOptions converts the log section for log.Init.
func (c Config) LogOptions() (log.Options, error) {
	level, err := log.ParseLogLevel(c.Log.Level)
	if err != nil {
		return log.Options{}, err
	}
	format, err := log.ParseLoggerType(c.Log.Format)
	if err != nil {
		return log.Options{}, err
	}
	return log.Options{LogLevel: level, Type: format}, nil
}
