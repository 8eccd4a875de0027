// Package config loads flacgrab settings: built-in defaults, then an optional
// YAML file, then environment variables. Command-line flags are applied last
// by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/ankit-chaubey/flacgrab/core/flacmeta"
	"github.com/ankit-chaubey/flacgrab/core/grab"
)

// Modes a player state can be received in.
const (
	ModePoll = "poll"
	ModePush = "push"
)

const (
	DefaultVolumioURL   = "http://192.168.0.100:3000"
	DefaultPollInterval = 2 * time.Second
	DefaultListen       = ":8080"
	DefaultHTTPTimeout  = 30 * time.Second
)

// Environment variables overriding the file.
const (
	EnvVolumioURL  = "VOLUMIO_URL"
	EnvDestination = "FLAC_DESTINATION"
	EnvListen      = "FLACGRAB_LISTEN"
)

// Config holds every setting of the grab daemon.
type Config struct {
	VolumioURL   string        `yaml:"volumio_url"`
	Destination  string        `yaml:"destination"`
	Mode         string        `yaml:"mode"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Listen       string        `yaml:"listen"`
	// CallbackURL is registered with Volumio in push mode, e.g.
	// "http://grabber.local:8080/api/v1/state".
	CallbackURL string        `yaml:"callback_url"`
	Filter      string        `yaml:"filter"`
	MaxParallel int           `yaml:"max_parallel"`
	Retries     int           `yaml:"retries"`
	ChunkSize   int           `yaml:"chunk_size"`
	Vendor      string        `yaml:"vendor"`
	SkipID3     bool          `yaml:"skip_id3"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	LogLevel    string        `yaml:"log_level"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		VolumioURL:   DefaultVolumioURL,
		Mode:         ModePoll,
		PollInterval: DefaultPollInterval,
		Listen:       DefaultListen,
		Filter:       grab.DefaultFilter,
		MaxParallel:  grab.DefaultMaxParallel,
		Retries:      grab.DefaultRetries,
		ChunkSize:    flacmeta.DefaultChunkSize,
		Vendor:       flacmeta.DefaultVendor,
		HTTPTimeout:  DefaultHTTPTimeout,
		LogLevel:     "info",
	}
}

// Load returns the defaults overlaid with the YAML file at path, if path is
// not empty, and with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvVolumioURL); ok && v != "" {
		c.VolumioURL = v
	}
	if v, ok := lookup(EnvDestination); ok && v != "" {
		c.Destination = v
	}
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Listen = v
	}
}

// Validate checks the settings. The destination must be an existing
// directory.
func (c Config) Validate() error {
	var errs []error
	if c.Destination == "" {
		errs = append(errs, errors.New("destination is not set"))
	} else if st, err := os.Stat(c.Destination); err != nil {
		errs = append(errs, fmt.Errorf("destination path %s doesn't exist", c.Destination))
	} else if !st.IsDir() {
		errs = append(errs, fmt.Errorf("destination path %s is not a directory", c.Destination))
	}
	if !strings.HasPrefix(c.VolumioURL, "http://") && !strings.HasPrefix(c.VolumioURL, "https://") {
		errs = append(errs, fmt.Errorf("volumio_url %q is not an http(s) URL", c.VolumioURL))
	}
	switch c.Mode {
	case ModePoll:
		if c.PollInterval <= 0 {
			errs = append(errs, errors.New("poll_interval must be positive"))
		}
	case ModePush:
		if c.Listen == "" {
			errs = append(errs, errors.New("listen address is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mode %q (want %s or %s)", c.Mode, ModePoll, ModePush))
	}
	if c.MaxParallel <= 0 {
		errs = append(errs, errors.New("max_parallel must be positive"))
	}
	if c.Retries < 0 {
		errs = append(errs, errors.New("retries must not be negative"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunk_size must be positive"))
	}
	return errors.Join(errs...)
}

// GrabOptions maps the settings onto grab.Options.
func (c Config) GrabOptions() grab.Options {
	return grab.Options{
		Root:        c.Destination,
		Filter:      c.Filter,
		Vendor:      c.Vendor,
		MaxParallel: c.MaxParallel,
		Retries:     c.Retries,
		ChunkSize:   c.ChunkSize,
		SkipID3:     c.SkipID3,
	}
}
