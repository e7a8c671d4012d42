package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStudioDefaults(t *testing.T) {
	cfg, err := parseStudio(newFlagSet(), nil)
	if err != nil {
		t.Fatalf("parseStudio: %v", err)
	}
	if cfg.FrameRate != 12 || cfg.DisplaySize != 512 || cfg.GridSize != 16 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.PingInterval != 25*time.Second || cfg.Handoff.Mode != "log" {
		t.Errorf("defaults = %+v", cfg)
	}
	if !strings.HasSuffix(cfg.Endpoint, "/ws/render") {
		t.Errorf("endpoint = %s", cfg.Endpoint)
	}
}

func TestStudioFlags(t *testing.T) {
	cfg, err := parseStudio(newFlagSet(), []string{"-fps", "24", "-grid", "64", "-endpoint", "ws://example:9/ws/render"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.FrameRate != 24 || cfg.GridSize != 64 || cfg.Endpoint != "ws://example:9/ws/render" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestStudioFileThenFlags(t *testing.T) {
	path := writeFile(t, `
endpoint: ws://render.internal/ws/render
frame_rate: 8
grid_size: 32
ping_interval: 10s
drafts:
  ttl: 5m
handoff:
  mode: mqtt
  mqtt:
    broker: localhost:1883
    topic: posts/drafts
`)
	cfg, err := parseStudio(newFlagSet(), []string{"-config", path, "-fps", "30"})
	if err != nil {
		t.Fatalf("parseStudio: %v", err)
	}
	if cfg.Endpoint != "ws://render.internal/ws/render" || cfg.GridSize != 32 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.FrameRate != 30 {
		t.Errorf("FrameRate = %d, flag should win", cfg.FrameRate)
	}
	if cfg.PingInterval != 10*time.Second || cfg.Drafts.TTL != 5*time.Minute {
		t.Errorf("durations = %v %v", cfg.PingInterval, cfg.Drafts.TTL)
	}
	if cfg.DisplaySize != 512 {
		t.Errorf("DisplaySize = %d, default should survive", cfg.DisplaySize)
	}
	if cfg.Handoff.MQTT.QoS != 1 || !strings.HasPrefix(cfg.Handoff.MQTT.ClientID, "framereel-studio-") {
		t.Errorf("mqtt = %+v", cfg.Handoff.MQTT)
	}
}

func TestStudioValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fps", []string{"-fps", "0"}, "frame_rate"},
		{"grid", []string{"-grid", "300"}, "grid_size"},
		{"handoff", []string{"-handoff", "carrier-pigeon"}, "unknown handoff mode"},
		{"mqtt", []string{"-handoff", "mqtt", "-mqtt-broker", ""}, "broker and topic"},
		{"endpoint", []string{"-endpoint", ""}, "endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseStudio(newFlagSet(), tt.args)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := parseStudio(newFlagSet(), []string{"-config", filepath.Join(t.TempDir(), "nope.yaml")})
	if err == nil {
		t.Error("missing config file accepted")
	}
}

func TestMockConfig(t *testing.T) {
	path := writeFile(t, "frame_count: 10\nframe_interval: 5ms\n")
	cfg, err := parseMock(newFlagSet(), []string{"-config", path, "-listen", ":9999"})
	if err != nil {
		t.Fatalf("parseMock: %v", err)
	}
	if cfg.FrameCount != 10 || cfg.FrameInterval != 5*time.Millisecond || cfg.Listen != ":9999" || cfg.Path != "/ws/render" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := parseMock(newFlagSet(), []string{"-path", "ws"}); err == nil {
		t.Error("relative path accepted")
	}
}
