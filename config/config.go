package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ardnew/softtmc/bridge"
	"github.com/ardnew/softtmc/diag"
	"github.com/ardnew/softtmc/hal/sim"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/tmc"
)

// Transport kinds.
const (
	TransportStdio  = "stdio"
	TransportSerial = "serial"
	TransportFIFO   = "fifo"
)

// Config is the simulator configuration.
type Config struct {
	Identity  IdentityConfig  `yaml:"identity"`
	Engine    EngineConfig    `yaml:"engine"`
	Transport TransportConfig `yaml:"transport"`
	PL        PLConfig        `yaml:"pl"`
	Flash     FlashConfig     `yaml:"flash"`
	Diag      DiagConfig      `yaml:"diag"`
	Log       LogConfig       `yaml:"log"`

	path string
}

// IdentityConfig is reported by *IDN?.
type IdentityConfig struct {
	Vendor  string   `yaml:"vendor"`
	Product string   `yaml:"product"`
	Version string   `yaml:"version"`
	UID     []uint32 `yaml:"uid"` // up to three words
}

// EngineConfig sizes and paces the command engine.
type EngineConfig struct {
	BufferSize int           `yaml:"buffer_size"`
	Period     time.Duration `yaml:"period"`
}

// TransportConfig selects how commands reach the engine.
type TransportConfig struct {
	Kind         string        `yaml:"kind"`
	Port         string        `yaml:"port"`
	Baud         int           `yaml:"baud"`
	Mode         string        `yaml:"mode"`
	Bus          string        `yaml:"bus"` // fifo bus directory
	ReplyTimeout time.Duration `yaml:"reply_timeout"`
}

// PLConfig configures the simulated PL.
type PLConfig struct {
	Active    bool   `yaml:"active"`
	PullPolls uint32 `yaml:"pull_polls"`
}

// FlashConfig configures the simulated flash. Zero sizes take the
// simulator defaults.
type FlashConfig struct {
	Size         int    `yaml:"size"`
	PageSize     int    `yaml:"page_size"`
	SectorSize   int    `yaml:"sector_size"`
	BlockSize    int    `yaml:"block_size"`
	ProgramPolls uint32 `yaml:"program_polls"`
	ErasePolls   uint32 `yaml:"erase_polls"`
	Image        string `yaml:"image"` // loaded at start when set
}

// DiagConfig configures the diagnostics server.
type DiagConfig struct {
	Addr     string        `yaml:"addr"` // empty disables
	Interval time.Duration `yaml:"interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	id := tmc.DefaultIdentity()
	fc := sim.DefaultFlashConfig()
	return &Config{
		Identity: IdentityConfig{
			Vendor:  id.Vendor,
			Product: id.Product,
			Version: id.Version,
		},
		Engine: EngineConfig{
			BufferSize: 4096,
			Period:     tmc.DefaultPeriod,
		},
		Transport: TransportConfig{
			Kind:         TransportStdio,
			Port:         "/dev/ttyUSB0",
			Baud:         115200,
			Mode:         bridge.ModeText.String(),
			Bus:          "/tmp/tmc-bus",
			ReplyTimeout: bridge.DefaultReplyTimeout,
		},
		PL: PLConfig{
			PullPolls: 2,
		},
		Flash: FlashConfig{
			Size:         fc.Size,
			PageSize:     fc.PageSize,
			SectorSize:   fc.SectorSize,
			BlockSize:    fc.BlockSize,
			ProgramPolls: fc.ProgramPolls,
			ErasePolls:   fc.ErasePolls,
		},
		Diag: DiagConfig{
			Interval: diag.DefaultInterval,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: pkg.LogFormatText.String(),
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			pkg.LogInfo(pkg.ComponentConfig, "no config file, using defaults", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			pkg.LogInfo(pkg.ComponentConfig, "loaded", "path", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TMC_TRANSPORT"); v != "" {
		c.Transport.Kind = v
	}
	if v := os.Getenv("TMC_PORT"); v != "" {
		c.Transport.Port = v
	}
	if v := os.Getenv("TMC_BAUD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TMC_BAUD %q: %w", v, pkg.ErrInvalidParameter)
		}
		c.Transport.Baud = n
	}
	if v := os.Getenv("TMC_MODE"); v != "" {
		c.Transport.Mode = v
	}
	if v := os.Getenv("TMC_BUS"); v != "" {
		c.Transport.Bus = v
	}
	if v, ok := os.LookupEnv("TMC_DIAG_ADDR"); ok {
		c.Diag.Addr = v
	}
	if v := os.Getenv("TMC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TMC_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Engine.BufferSize < 16:
		return fmt.Errorf("engine.buffer_size %d: %w", c.Engine.BufferSize, pkg.ErrInvalidParameter)
	case c.Engine.Period <= 0:
		return fmt.Errorf("engine.period %v: %w", c.Engine.Period, pkg.ErrInvalidParameter)
	case len(c.Identity.UID) > 3:
		return fmt.Errorf("identity.uid has %d words: %w", len(c.Identity.UID), pkg.ErrInvalidParameter)
	}

	switch c.Transport.Kind {
	case TransportStdio:
	case TransportSerial:
		if c.Transport.Port == "" || c.Transport.Baud <= 0 {
			return fmt.Errorf("serial transport needs port and baud: %w", pkg.ErrInvalidParameter)
		}
	case TransportFIFO:
		if c.Transport.Bus == "" {
			return fmt.Errorf("fifo transport needs a bus directory: %w", pkg.ErrInvalidParameter)
		}
	default:
		return fmt.Errorf("transport.kind %q: %w", c.Transport.Kind, pkg.ErrInvalidParameter)
	}
	if _, err := bridge.ParseMode(c.Transport.Mode); err != nil {
		return err
	}
	if err := c.SimFlash().Validate(); err != nil {
		return fmt.Errorf("flash: %w", err)
	}
	if _, err := pkg.ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := pkg.ParseLogFormat(c.Log.Format); err != nil {
		return err
	}
	return nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	if c.path == "" {
		return fmt.Errorf("save config: %w", pkg.ErrNotConfigured)
	}
	return c.SaveTo(c.path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyLog configures the pkg logger.
func (c *Config) ApplyLog() error {
	level, err := pkg.ParseLogLevel(c.Log.Level)
	if err != nil {
		return err
	}
	format, err := pkg.ParseLogFormat(c.Log.Format)
	if err != nil {
		return err
	}
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(format)
	return nil
}

// TMCIdentity converts the identity section.
func (c *Config) TMCIdentity() tmc.Identity {
	id := tmc.Identity{
		Vendor:  c.Identity.Vendor,
		Product: c.Identity.Product,
		Version: c.Identity.Version,
	}
	copy(id.UID[:], c.Identity.UID)
	return id
}

// BridgeMode returns the parsed line mode.
func (c *Config) BridgeMode() bridge.Mode {
	m, _ := bridge.ParseMode(c.Transport.Mode)
	return m
}

// SimPL converts the PL section.
func (c *Config) SimPL() sim.PLConfig {
	return sim.PLConfig{
		Active:    c.PL.Active,
		PullPolls: c.PL.PullPolls,
	}
}

// SimFlash converts the flash section.
func (c *Config) SimFlash() sim.FlashConfig {
	return sim.FlashConfig{
		Size:         c.Flash.Size,
		PageSize:     c.Flash.PageSize,
		SectorSize:   c.Flash.SectorSize,
		BlockSize:    c.Flash.BlockSize,
		ProgramPolls: c.Flash.ProgramPolls,
		ErasePolls:   c.Flash.ErasePolls,
	}
}
