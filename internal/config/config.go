// Package config holds the worker configuration. Defaults match the
// production deployment; a YAML file overlays individual fields.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configurable worker parameters. Interval fields are
// expressed in seconds so config files stay unit-free.
type Config struct {
	BaseDir  string `yaml:"base_dir"`
	DoneqDir string `yaml:"doneq_dir"`

	FaxHost string `yaml:"fax_host"`
	FaxUser string `yaml:"fax_user"`

	SendfaxBin string `yaml:"sendfax_bin"`
	FaxrmBin   string `yaml:"faxrm_bin"`
	FaxstatBin string `yaml:"faxstat_bin"`
	QpdfBin    string `yaml:"qpdf_bin"`

	// HeaderScript is optional; when the path does not exist the
	// document is sent without a header prefix.
	HeaderScript string `yaml:"header_script"`

	MaxInflight int `yaml:"max_inflight"`

	PollIntervalSec    float64 `yaml:"poll_interval_sec"`
	FaxstatRefreshSec  float64 `yaml:"faxstat_refresh_sec"`
	FinalizeTimeoutSec float64 `yaml:"finalize_timeout_sec"`
	SendTimeoutSec     float64 `yaml:"send_timeout_sec"`
	FaxrmTimeoutSec    float64 `yaml:"faxrm_timeout_sec"`
	FaxstatTimeoutSec  float64 `yaml:"faxstat_timeout_sec"`
	HeaderTimeoutSec   float64 `yaml:"header_timeout_sec"`
	CancelPostWaitSec  float64 `yaml:"cancel_postwait_sec"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseDir:            "/srv/kienzlefax",
		DoneqDir:           "/var/spool/hylafax/doneq",
		FaxHost:            "localhost",
		FaxUser:            "faxworker",
		SendfaxBin:         "sendfax",
		FaxrmBin:           "faxrm",
		FaxstatBin:         "faxstat",
		QpdfBin:            "qpdf",
		HeaderScript:       "/usr/local/bin/pdf_with_header.sh",
		MaxInflight:        2,
		PollIntervalSec:    1,
		FaxstatRefreshSec:  2,
		FinalizeTimeoutSec: 30 * 60,
		SendTimeoutSec:     30,
		FaxrmTimeoutSec:    30,
		FaxstatTimeoutSec:  10,
		HeaderTimeoutSec:   60,
		CancelPostWaitSec:  3,
	}
}

// Load reads a YAML config file and overlays it on the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks internal consistency.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if c.DoneqDir == "" {
		return fmt.Errorf("doneq_dir is required")
	}
	if c.MaxInflight < 1 {
		return fmt.Errorf("max_inflight must be at least 1")
	}
	if c.PollIntervalSec <= 0 {
		return fmt.Errorf("poll_interval_sec must be positive")
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// PollInterval returns the inter-tick sleep.
func (c *Config) PollInterval() time.Duration { return seconds(c.PollIntervalSec) }

// FaxstatRefresh returns the minimum interval between faxstat polls.
func (c *Config) FaxstatRefresh() time.Duration { return seconds(c.FaxstatRefreshSec) }

// FinalizeTimeout returns the claim age after which a job still
// waiting for its completion record is logged.
func (c *Config) FinalizeTimeout() time.Duration { return seconds(c.FinalizeTimeoutSec) }

// SendTimeout returns the sendfax subprocess timeout.
func (c *Config) SendTimeout() time.Duration { return seconds(c.SendTimeoutSec) }

// FaxrmTimeout returns the faxrm subprocess timeout.
func (c *Config) FaxrmTimeout() time.Duration { return seconds(c.FaxrmTimeoutSec) }

// FaxstatTimeout returns the faxstat subprocess timeout.
func (c *Config) FaxstatTimeout() time.Duration { return seconds(c.FaxstatTimeoutSec) }

// HeaderTimeout returns the header script timeout.
func (c *Config) HeaderTimeout() time.Duration { return seconds(c.HeaderTimeoutSec) }

// CancelPostWait returns the pause after invoking faxrm before state
// is re-read.
func (c *Config) CancelPostWait() time.Duration { return seconds(c.CancelPostWaitSec) }
