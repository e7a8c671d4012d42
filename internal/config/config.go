package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// StudioConfig holds configuration for the studio binary.
type StudioConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	FrameRate    int           `yaml:"frame_rate"`
	DisplaySize  int           `yaml:"display_size"`
	GridSize     int           `yaml:"grid_size"`
	Source       string        `yaml:"source"`
	SourceFile   string        `yaml:"source_file"` // re-read on every run
	PingInterval time.Duration `yaml:"ping_interval"`
	ExportDir    string        `yaml:"export_dir"`
	AutoRun      bool          `yaml:"auto_run"`
	Debug        bool          `yaml:"debug"`
	Drafts       DraftsConfig  `yaml:"drafts"`
	Handoff      HandoffConfig `yaml:"handoff"`
}

// DraftsConfig configures the draft store.
type DraftsConfig struct {
	Path string        `yaml:"path"` // ":memory:" keeps drafts in process
	TTL  time.Duration `yaml:"ttl"`
}

// HandoffConfig selects where finished exports go.
type HandoffConfig struct {
	Mode string     `yaml:"mode"` // log, mqtt
	MQTT MQTTConfig `yaml:"mqtt"`
}

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	QoS      int    `yaml:"qos"`
}

// MockConfig holds configuration for the mock rendering backend.
type MockConfig struct {
	Listen        string        `yaml:"listen"`
	Path          string        `yaml:"path"`
	FrameCount    int           `yaml:"frame_count"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	Debug         bool          `yaml:"debug"`
}

func DefaultStudio() *StudioConfig {
	return &StudioConfig{
		Endpoint:     "ws://localhost:8080/ws/render",
		FrameRate:    12,
		DisplaySize:  512,
		GridSize:     16,
		PingInterval: 25 * time.Second,
		ExportDir:    ".",
		AutoRun:      true,
		Drafts:       DraftsConfig{Path: "framereel-drafts.db", TTL: 30 * time.Minute},
		Handoff: HandoffConfig{
			Mode: "log",
			MQTT: MQTTConfig{Topic: "framereel/drafts", QoS: 1},
		},
	}
}

func DefaultMock() *MockConfig {
	return &MockConfig{
		Listen:        ":8080",
		Path:          "/ws/render",
		FrameCount:    24,
		FrameInterval: 20 * time.Millisecond,
	}
}

// ParseStudioFlags parses flags for the studio binary.
func ParseStudioFlags() (*StudioConfig, error) {
	return parseStudio(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:])
}

// ParseMockFlags parses flags for the mockrender binary.
func ParseMockFlags() (*MockConfig, error) {
	return parseMock(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:])
}

func parseStudio(fs *flag.FlagSet, args []string) (*StudioConfig, error) {
	cfg := DefaultStudio()
	var path string
	fs.StringVar(&path, "config", "", "YAML config file (flags override it)")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "Rendering backend WebSocket URL")
	fs.IntVar(&cfg.FrameRate, "fps", cfg.FrameRate, "Playback frames per second")
	fs.IntVar(&cfg.DisplaySize, "size", cfg.DisplaySize, "Display surface size in pixels")
	fs.IntVar(&cfg.GridSize, "grid", cfg.GridSize, "Requested grid side length (1-256)")
	fs.StringVar(&cfg.Source, "source", cfg.Source, "Source text to run")
	fs.StringVar(&cfg.SourceFile, "source-file", cfg.SourceFile, "File holding the source text")
	fs.DurationVar(&cfg.PingInterval, "ping", cfg.PingInterval, "WebSocket keepalive interval")
	fs.StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "Directory for saved sequences")
	fs.BoolVar(&cfg.AutoRun, "autorun", cfg.AutoRun, "Run the source once connected")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Debug logging")
	fs.StringVar(&cfg.Drafts.Path, "drafts", cfg.Drafts.Path, "Draft database path")
	fs.DurationVar(&cfg.Drafts.TTL, "draft-ttl", cfg.Drafts.TTL, "How long drafts stay available")
	fs.StringVar(&cfg.Handoff.Mode, "handoff", cfg.Handoff.Mode, "Hand-off mode: log or mqtt")
	fs.StringVar(&cfg.Handoff.MQTT.Broker, "mqtt-broker", cfg.Handoff.MQTT.Broker, "MQTT broker host:port")
	fs.StringVar(&cfg.Handoff.MQTT.Topic, "mqtt-topic", cfg.Handoff.MQTT.Topic, "MQTT topic for drafts")

	if err := parseWithFile(fs, args, &path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseMock(fs *flag.FlagSet, args []string) (*MockConfig, error) {
	cfg := DefaultMock()
	var path string
	fs.StringVar(&path, "config", "", "YAML config file (flags override it)")
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.Path, "path", cfg.Path, "WebSocket endpoint path")
	fs.IntVar(&cfg.FrameCount, "frames", cfg.FrameCount, "Frames per sequence")
	fs.DurationVar(&cfg.FrameInterval, "interval", cfg.FrameInterval, "Delay between frames")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Debug logging")

	if err := parseWithFile(fs, args, &path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseWithFile parses args, loads the config file named by *path into cfg
// and parses args again so explicit flags win over the file.
func parseWithFile(fs *flag.FlagSet, args []string, path *string, cfg any) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return nil
	}
	if err := LoadFile(*path, cfg); err != nil {
		return err
	}
	return fs.Parse(args)
}

// LoadFile reads a YAML file into cfg. Keys missing from the file keep
// their current values.
func LoadFile(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate fills derived defaults and rejects unusable values.
func (c *StudioConfig) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.FrameRate < 1 || c.FrameRate > 120 {
		errs = append(errs, fmt.Errorf("frame_rate %d out of range 1-120", c.FrameRate))
	}
	if c.DisplaySize < 16 {
		errs = append(errs, fmt.Errorf("display_size %d too small", c.DisplaySize))
	}
	if c.GridSize < 1 || c.GridSize > 256 {
		errs = append(errs, fmt.Errorf("grid_size %d out of range 1-256", c.GridSize))
	}
	if c.PingInterval <= 0 {
		errs = append(errs, errors.New("ping_interval must be positive"))
	}
	switch c.Handoff.Mode {
	case "log":
	case "mqtt":
		if c.Handoff.MQTT.Broker == "" || c.Handoff.MQTT.Topic == "" {
			errs = append(errs, errors.New("handoff mqtt needs broker and topic"))
		}
		if c.Handoff.MQTT.QoS < 0 || c.Handoff.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("handoff mqtt qos %d out of range 0-2", c.Handoff.MQTT.QoS))
		}
		if c.Handoff.MQTT.ClientID == "" {
			c.Handoff.MQTT.ClientID = "framereel-studio-" + uuid.NewString()[:8]
		}
	default:
		errs = append(errs, fmt.Errorf("unknown handoff mode %q", c.Handoff.Mode))
	}
	if c.Drafts.Path == "" {
		c.Drafts.Path = ":memory:"
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *MockConfig) Validate() error {
	if c.Listen == "" {
		return errors.New("invalid configuration: listen address is required")
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("invalid configuration: path %q must start with /", c.Path)
	}
	if c.FrameCount < 1 {
		return fmt.Errorf("invalid configuration: frame_count %d must be positive", c.FrameCount)
	}
	if c.FrameInterval <= 0 {
		return errors.New("invalid configuration: frame_interval must be positive")
	}
	return nil
}
