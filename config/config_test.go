package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardnew/softtmc/bridge"
	"github.com/ardnew/softtmc/pkg"
	"github.com/ardnew/softtmc/tmc"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tmcsim.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.BufferSize != Default().Engine.BufferSize {
		t.Errorf("BufferSize = %d, want default", cfg.Engine.BufferSize)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
identity:
  vendor: ACME
  uid: [1, 2]
engine:
  buffer_size: 512
  period: 250us
transport:
  kind: serial
  port: /dev/ttyACM0
  mode: hex
pl:
  active: true
flash:
  size: 65536
diag:
  addr: ":9000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Engine.BufferSize != 512 {
		t.Errorf("BufferSize = %d, want 512", cfg.Engine.BufferSize)
	}
	if cfg.Engine.Period != 250*time.Microsecond {
		t.Errorf("Period = %v, want 250µs", cfg.Engine.Period)
	}
	if cfg.Transport.Baud != 115200 {
		t.Errorf("Baud = %d, want default 115200", cfg.Transport.Baud)
	}
	if cfg.BridgeMode() != bridge.ModeHex {
		t.Errorf("BridgeMode() = %v, want hex", cfg.BridgeMode())
	}
	if !cfg.SimPL().Active {
		t.Error("SimPL().Active = false")
	}
	if fc := cfg.SimFlash(); fc.Size != 65536 || fc.PageSize != 256 {
		t.Errorf("SimFlash() = %+v", fc)
	}
	if cfg.Diag.Addr != ":9000" {
		t.Errorf("Diag.Addr = %q", cfg.Diag.Addr)
	}

	id := cfg.TMCIdentity()
	want := tmc.Identity{
		Vendor:  "ACME",
		Product: tmc.DefaultIdentity().Product,
		Version: tmc.DefaultIdentity().Version,
		UID:     [3]uint32{1, 2, 0},
	}
	if id != want {
		t.Errorf("TMCIdentity() = %+v, want %+v", id, want)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TMC_TRANSPORT", "serial")
	t.Setenv("TMC_PORT", "/dev/ttyS3")
	t.Setenv("TMC_BAUD", "9600")
	t.Setenv("TMC_MODE", "hex")
	t.Setenv("TMC_DIAG_ADDR", "127.0.0.1:8080")
	t.Setenv("TMC_LOG_LEVEL", "debug")
	t.Setenv("TMC_LOG_FORMAT", "json")

	path := writeFile(t, "transport:\n  kind: stdio\n  baud: 57600\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tr := cfg.Transport
	if tr.Kind != TransportSerial || tr.Port != "/dev/ttyS3" || tr.Baud != 9600 || tr.Mode != "hex" {
		t.Errorf("Transport = %+v", tr)
	}
	if cfg.Diag.Addr != "127.0.0.1:8080" {
		t.Errorf("Diag.Addr = %q", cfg.Diag.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestEnvFIFO(t *testing.T) {
	t.Setenv("TMC_TRANSPORT", "fifo")
	t.Setenv("TMC_BUS", "/run/tmc")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Transport.Kind != TransportFIFO || cfg.Transport.Bus != "/run/tmc" {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
}

func TestEnvBadBaud(t *testing.T) {
	t.Setenv("TMC_BAUD", "fast")
	if _, err := Load(""); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("Load() error = %v, want ErrInvalidParameter", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "engine: [\n"},
		{"type", "engine:\n  buffer_size: lots\n"},
		{"small buffer", "engine:\n  buffer_size: 8\n"},
		{"zero period", "engine:\n  period: 0s\n"},
		{"uid words", "identity:\n  uid: [1, 2, 3, 4]\n"},
		{"transport kind", "transport:\n  kind: carrier-pigeon\n"},
		{"serial without port", "transport:\n  kind: serial\n  port: \"\"\n"},
		{"fifo without bus", "transport:\n  kind: fifo\n  bus: \"\"\n"},
		{"mode", "transport:\n  mode: base64\n"},
		{"flash size", "flash:\n  size: 1000\n  page_size: 256\n"},
		{"flash page size", "flash:\n  page_size: 200\n"},
		{"flash block past size", "flash:\n  size: 32768\n"},
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeFile(t, tt.content)); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Engine.Period = 3 * time.Millisecond
	cfg.Identity.UID = []uint32{7, 8, 9}
	cfg.Flash.Image = "fpga.bin"
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Engine.Period != 3*time.Millisecond {
		t.Errorf("Period = %v, want 3ms", got.Engine.Period)
	}
	if got.TMCIdentity().UID != [3]uint32{7, 8, 9} {
		t.Errorf("UID = %v", got.TMCIdentity().UID)
	}
	if got.Flash.Image != "fpga.bin" {
		t.Errorf("Image = %q", got.Flash.Image)
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := Default().Save(); !errors.Is(err, pkg.ErrNotConfigured) {
		t.Errorf("Save() = %v, want ErrNotConfigured", err)
	}
}

func TestApplyLog(t *testing.T) {
	prev := pkg.GetLogLevel()
	defer func() {
		pkg.SetLogLevel(prev)
		pkg.SetLogFormat(pkg.LogFormatText)
	}()

	cfg := Default()
	cfg.Log.Level = "error"
	if err := cfg.ApplyLog(); err != nil {
		t.Fatalf("ApplyLog() error = %v", err)
	}
	if got := pkg.GetLogLevel(); got != slog.LevelError {
		t.Errorf("level = %v, want error", got)
	}
}
