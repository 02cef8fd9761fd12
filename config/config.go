// Package config loads and validates the run configuration of the ingestion
// pipeline.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dudk/strom/signal"
)

// Defaults applied to unset fields.
const (
	DefaultLoopPeriod      = time.Millisecond
	DefaultFetchTimeout    = 2500 * time.Millisecond
	DefaultEmptyFetchLimit = 1100
	DefaultMonitorPeriod   = 5 * time.Second
	DefaultWarnPercent     = 5
	DefaultCriticalPercent = 95
)

// Config is the full run configuration.
type Config struct {
	Streams []Stream `yaml:"streams"`
	Monitor Monitor  `yaml:"monitor"`
}

// Duration is a time.Duration readable from yaml as a Go duration string,
// e.g. "2500ms". Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var n int64
	if err := node.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Stream configures one logical stream and its producer.
type Stream struct {
	Unit      string  `yaml:"unit"`
	Rate      float64 `yaml:"rate"`
	Mux       int     `yaml:"mux"`
	Primary   Layout  `yaml:"primary"`
	Secondary *Layout `yaml:"secondary,omitempty"`
	// LoopPeriod is the target producer cycle period.
	LoopPeriod Duration `yaml:"loop_period"`
	// FetchTimeout bounds a single hardware fetch.
	FetchTimeout Duration `yaml:"fetch_timeout"`
	// EmptyFetchLimit is the number of consecutive empty cycles treated
	// as a fetch timeout.
	EmptyFetchLimit int `yaml:"empty_fetch_limit"`
	// CalibrationOffset compensates a known constant latency of this
	// hardware family. Configuration, never derived at runtime.
	CalibrationOffset Duration `yaml:"calibration_offset"`
}

// Layout mirrors signal.Layout in the configuration file.
type Layout struct {
	MN int `yaml:"mn"`
	MA int `yaml:"ma"`
	XA int `yaml:"xa"`
	XD int `yaml:"xd"`
}

// Signal converts the configured layout.
func (l Layout) Signal() signal.Layout {
	return signal.Layout{MN: l.MN, MA: l.MA, XA: l.XA, XD: l.XD}
}

// Monitor configures the backpressure monitor.
type Monitor struct {
	Period          Duration `yaml:"period"`
	WarnPercent     int      `yaml:"warn_percent"`
	CriticalPercent int      `yaml:"critical_percent"`
}

// Load reads a YAML configuration, applies defaults and validates it.
func Load(r io.Reader) (*Config, error) {
	var c Config
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (c *Config) applyDefaults() {
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.Mux == 0 {
			s.Mux = 1
		}
		if s.LoopPeriod == 0 {
			s.LoopPeriod = Duration(DefaultLoopPeriod)
		}
		if s.FetchTimeout == 0 {
			s.FetchTimeout = Duration(DefaultFetchTimeout)
		}
		if s.EmptyFetchLimit == 0 {
			s.EmptyFetchLimit = DefaultEmptyFetchLimit
		}
	}
	if c.Monitor.Period == 0 {
		c.Monitor.Period = Duration(DefaultMonitorPeriod)
	}
	if c.Monitor.WarnPercent == 0 {
		c.Monitor.WarnPercent = DefaultWarnPercent
	}
	if c.Monitor.CriticalPercent == 0 {
		c.Monitor.CriticalPercent = DefaultCriticalPercent
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if len(c.Streams) == 0 {
		return fmt.Errorf("config: no streams defined")
	}
	units := make(map[string]bool, len(c.Streams))
	for _, s := range c.Streams {
		if s.Unit == "" {
			return fmt.Errorf("config: stream without unit id")
		}
		if units[s.Unit] {
			return fmt.Errorf("config: duplicate unit %q", s.Unit)
		}
		units[s.Unit] = true
		if s.Rate <= 0 {
			return fmt.Errorf("config: unit %q: rate must be positive", s.Unit)
		}
		if s.Mux < 1 {
			return fmt.Errorf("config: unit %q: mux must be at least 1", s.Unit)
		}
		if err := validLayout(s.Unit, s.Primary); err != nil {
			return err
		}
		if s.Secondary != nil {
			if err := validLayout(s.Unit, *s.Secondary); err != nil {
				return err
			}
		}
	}
	if c.Monitor.WarnPercent >= c.Monitor.CriticalPercent {
		return fmt.Errorf("config: monitor warn threshold %d%% must be below critical %d%%",
			c.Monitor.WarnPercent, c.Monitor.CriticalPercent)
	}
	return nil
}

func validLayout(unit string, l Layout) error {
	if l.MN < 0 || l.MA < 0 || l.XA < 0 {
		return fmt.Errorf("config: unit %q: negative channel group", unit)
	}
	if l.XD < 0 || l.XD > 4 {
		return fmt.Errorf("config: unit %q: digital bytes must be 0..4, got %d", unit, l.XD)
	}
	if l.MN+l.MA+l.XA+l.XD == 0 {
		return fmt.Errorf("config: unit %q: empty channel layout", unit)
	}
	return nil
}
