package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Axes["x"].StepsPerMM != 80 {
		t.Errorf("expected x steps-per-mm 80, got %f", cfg.Axes["x"].StepsPerMM)
	}
	if cfg.Axes["z"].StepsPerMM != 400 {
		t.Errorf("expected z steps-per-mm 400, got %f", cfg.Axes["z"].StepsPerMM)
	}
	if cfg.Axes["z"].EndstopPin != -1 {
		t.Errorf("expected z without endstop, got pin %d", cfg.Axes["z"].EndstopPin)
	}
	if cfg.Board.CellSizeMM != 50 {
		t.Errorf("expected 50mm cells, got %f", cfg.Board.CellSizeMM)
	}
	if cfg.Motion.DefaultFeed != 1500 {
		t.Errorf("expected default feed 1500, got %f", cfg.Motion.DefaultFeed)
	}
	if cfg.Effector.MagnetSentinel != 255 {
		t.Errorf("expected magnet sentinel 255, got %f", cfg.Effector.MagnetSentinel)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.yaml")

	data := `
board:
  cellsizemm: 62.5
  safeheight: 35
effector:
  idletimeout: 5s
serial:
  device: /dev/ttyUSB0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Board.CellSizeMM != 62.5 {
		t.Errorf("expected cell size 62.5, got %f", cfg.Board.CellSizeMM)
	}
	if cfg.Board.SafeHeight != 35 {
		t.Errorf("expected safe height 35, got %f", cfg.Board.SafeHeight)
	}
	if cfg.Effector.IdleTimeout != 5*time.Second {
		t.Errorf("expected idle timeout 5s, got %v", cfg.Effector.IdleTimeout)
	}
	if cfg.Serial.Device != "/dev/ttyUSB0" {
		t.Errorf("expected device /dev/ttyUSB0, got %q", cfg.Serial.Device)
	}

	// Everything not in the file keeps its default.
	if cfg.Board.PickupHeight != 5 {
		t.Errorf("expected default pickup height 5, got %f", cfg.Board.PickupHeight)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOCHESS_BOARD_CELLSIZEMM", "62.5")
	t.Setenv("AUTOCHESS_SERIAL_DEVICE", "/dev/ttyACM9")
	t.Setenv("AUTOCHESS_AXES_X_STEPSPERMM", "100")
	t.Setenv("AUTOCHESS_EFFECTOR_IDLETIMEOUT", "5s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Board.CellSizeMM != 62.5 {
		t.Errorf("expected cell size 62.5, got %f", cfg.Board.CellSizeMM)
	}
	if cfg.Serial.Device != "/dev/ttyACM9" {
		t.Errorf("expected device /dev/ttyACM9, got %q", cfg.Serial.Device)
	}
	if cfg.Axes["x"].StepsPerMM != 100 {
		t.Errorf("expected x steps-per-mm 100, got %f", cfg.Axes["x"].StepsPerMM)
	}
	if cfg.Effector.IdleTimeout != 5*time.Second {
		t.Errorf("expected idle timeout 5s, got %v", cfg.Effector.IdleTimeout)
	}

	// Untouched keys keep their defaults.
	if cfg.Serial.Baud != 115200 {
		t.Errorf("expected default baud 115200, got %d", cfg.Serial.Baud)
	}
	if cfg.Axes["y"].StepsPerMM != 80 {
		t.Errorf("expected y steps-per-mm 80, got %f", cfg.Axes["y"].StepsPerMM)
	}
}

func TestExplicitZeroPinPreserved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "machine.yaml")

	data := `
axes:
  x:
    endstoppin: 0
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// GPIO 0 is a real pin; an explicit 0 must not fall back to the
	// built-in endstop default.
	if cfg.Axes["x"].EndstopPin != 0 {
		t.Errorf("expected endstop pin 0, got %d", cfg.Axes["x"].EndstopPin)
	}
	if cfg.Axes["x"].StepPin != 2 {
		t.Errorf("expected default step pin 2, got %d", cfg.Axes["x"].StepPin)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/machine.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadHeights(t *testing.T) {
	cfg := Default()
	cfg.Board.PickupHeight = 60 // above safe height

	if err := validate(cfg); err == nil {
		t.Error("expected error when pickup height is above safe height")
	}
}
