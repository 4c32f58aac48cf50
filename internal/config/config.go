package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

type Config struct {
	World     WorldConfig     `toml:"world"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
	Scripting ScriptingConfig `toml:"scripting"`
	Scene     SceneConfig     `toml:"scene"`
}

type WorldConfig struct {
	Capacity int `toml:"capacity"` // initial rows per archetype
}

type SchedulerConfig struct {
	Workers  int           `toml:"workers"`   // 0 = GOMAXPROCS
	TickRate time.Duration `toml:"tick_rate"` // host simulator frame interval
	MaxTicks uint64        `toml:"max_ticks"` // 0 = run until interrupted
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type ScriptingConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

type SceneConfig struct {
	Path string `toml:"path"`
}

var errInvalid = errors.New("invalid config")

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parse config: unknown key %s: %w", undecoded[0], errInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Defaults() *Config {
	return &Config{
		World: WorldConfig{
			Capacity: 1024,
		},
		Scheduler: SchedulerConfig{
			Workers:  0,
			TickRate: 16 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Scripting: ScriptingConfig{
			Enabled: true,
			Dir:     "scripts",
		},
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.World.Capacity < 0 {
		err = multierr.Append(err, fmt.Errorf("world.capacity %d: %w", c.World.Capacity, errInvalid))
	}
	if c.Scheduler.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.workers %d: %w", c.Scheduler.Workers, errInvalid))
	}
	if c.Scheduler.TickRate <= 0 {
		err = multierr.Append(err, fmt.Errorf("scheduler.tick_rate %s: %w", c.Scheduler.TickRate, errInvalid))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format %q: %w", c.Logging.Format, errInvalid))
	}
	if c.Scripting.Enabled && c.Scripting.Dir == "" {
		err = multierr.Append(err, fmt.Errorf("scripting.dir is empty: %w", errInvalid))
	}
	return err
}

// IsInvalid reports whether err came from validation.
func IsInvalid(err error) bool { return errors.Is(err, errInvalid) }
