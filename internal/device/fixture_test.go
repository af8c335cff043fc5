package device

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFixtureFillsDefaults(t *testing.T) {
	path := writeFixture(t, "name: bench-hmd\n")

	dev, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if dev.Name != "bench-hmd" {
		t.Fatalf("Name = %q, want bench-hmd", dev.Name)
	}
	if len(dev.RefreshRatesHz) != 2 || dev.RefreshRatesHz[0] != 72 || dev.RefreshRatesHz[1] != 90 {
		t.Fatalf("RefreshRatesHz = %v, want [72 90]", dev.RefreshRatesHz)
	}
	if dev.IPD != DefaultIPD {
		t.Fatalf("IPD = %v, want %v", dev.IPD, DefaultIPD)
	}
	if dev.LeftEyeFov != DefaultEyeFov || dev.RightEyeFov != DefaultEyeFov {
		t.Fatalf("eye FOV not defaulted: %+v / %+v", dev.LeftEyeFov, dev.RightEyeFov)
	}
}

func TestLoadFixtureHonorsExplicitValues(t *testing.T) {
	path := writeFixture(t, `
name: calibrated-hmd
refresh_rates_hz: [60, 120]
recommended_eye_width: 1832
recommended_eye_height: 1920
ipd: 0.071
left_eye_fov:
  left: 0.1
  right: 0.2
  top: 0.3
  bottom: 0.4
right_eye_fov:
  left: 0.5
  right: 0.6
  top: 0.7
  bottom: 0.8
`)

	dev, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if dev.Name != "calibrated-hmd" {
		t.Fatalf("Name = %q, want calibrated-hmd", dev.Name)
	}
	if len(dev.RefreshRatesHz) != 2 || dev.RefreshRatesHz[0] != 60 || dev.RefreshRatesHz[1] != 120 {
		t.Fatalf("RefreshRatesHz = %v, want [60 120]", dev.RefreshRatesHz)
	}
	if dev.RecommendedEyeWidth != 1832 || dev.RecommendedEyeHeight != 1920 {
		t.Fatalf("eye dimensions = %dx%d, want 1832x1920", dev.RecommendedEyeWidth, dev.RecommendedEyeHeight)
	}
	if dev.IPD != 0.071 {
		t.Fatalf("IPD = %v, want 0.071", dev.IPD)
	}
	if dev.LeftEyeFov != (EyeFov{Left: 0.1, Right: 0.2, Top: 0.3, Bottom: 0.4}) {
		t.Fatalf("LeftEyeFov = %+v, unexpected", dev.LeftEyeFov)
	}
	if dev.RightEyeFov != (EyeFov{Left: 0.5, Right: 0.6, Top: 0.7, Bottom: 0.8}) {
		t.Fatalf("RightEyeFov = %+v, unexpected", dev.RightEyeFov)
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing fixture file")
	}
}

func TestLoadFixtureInvalidYAML(t *testing.T) {
	path := writeFixture(t, "name: [unterminated\n")
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestStaticAdapterReportsFixedDeviceAndPose(t *testing.T) {
	dev := Device{Name: "static-hmd", IPD: DefaultIPD}
	adapter := StaticAdapter{Dev: dev}

	if got := adapter.GetDevice(); got.Name != "static-hmd" {
		t.Fatalf("GetDevice().Name = %q, want static-hmd", got.Name)
	}

	target := time.Now().Add(11 * time.Millisecond)
	tracking := adapter.GetTracking(target)
	if tracking.HeadOrientation != IdentityQuaternion {
		t.Fatalf("HeadOrientation = %+v, want IdentityQuaternion", tracking.HeadOrientation)
	}
	if !tracking.TargetTimestamp.Equal(target) {
		t.Fatalf("TargetTimestamp = %v, want %v", tracking.TargetTimestamp, target)
	}

	adapter.OnRendered(1, time.Now()) // must not panic
}
