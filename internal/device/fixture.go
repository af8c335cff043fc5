package device

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fixture is the on-disk shape of a --device-file descriptor: everything
// a DeviceAdapter would otherwise derive from real headset hardware or
// engine APIs, expressed as plain YAML for a standalone CLI run or a
// bench/simulator integration.
type fixture struct {
	Name                 string    `yaml:"name"`
	RefreshRatesHz       []float32 `yaml:"refresh_rates_hz"`
	RecommendedEyeWidth  int32     `yaml:"recommended_eye_width"`
	RecommendedEyeHeight int32     `yaml:"recommended_eye_height"`
	IPD                  float32   `yaml:"ipd"`
	LeftEyeFov           *EyeFov   `yaml:"left_eye_fov"`
	RightEyeFov          *EyeFov   `yaml:"right_eye_fov"`
}

// LoadFixture reads a device descriptor YAML file and returns the static
// Device it describes, filling in DefaultEyeFov/DefaultIPD for whatever
// the file omits.
func LoadFixture(path string) (Device, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Device{}, fmt.Errorf("device: read fixture %s: %w", path, err)
	}

	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Device{}, fmt.Errorf("device: parse fixture %s: %w", path, err)
	}

	dev := Device{
		Name:                 f.Name,
		RefreshRatesHz:       f.RefreshRatesHz,
		RecommendedEyeWidth:  f.RecommendedEyeWidth,
		RecommendedEyeHeight: f.RecommendedEyeHeight,
		IPD:                  f.IPD,
		LeftEyeFov:           DefaultEyeFov,
		RightEyeFov:          DefaultEyeFov,
	}
	if dev.Name == "" {
		dev.Name = "headset-client"
	}
	if len(dev.RefreshRatesHz) == 0 {
		dev.RefreshRatesHz = []float32{72, 90}
	}
	if dev.IPD == 0 {
		dev.IPD = DefaultIPD
	}
	if f.LeftEyeFov != nil {
		dev.LeftEyeFov = *f.LeftEyeFov
	}
	if f.RightEyeFov != nil {
		dev.RightEyeFov = *f.RightEyeFov
	}
	return dev, nil
}

// StaticAdapter is a DeviceAdapter that reports a fixed device description
// and a motionless head/controller pose. It is the standalone-CLI stand-in
// for a real platform integration, the same role the teacher's collectors
// play when no live hardware is reachable (see `collectors.NewHardwareCollector`).
type StaticAdapter struct {
	Dev Device
}

func (a StaticAdapter) GetDevice() Device { return a.Dev }

func (a StaticAdapter) GetTracking(target time.Time) Tracking {
	return Tracking{
		HeadOrientation: IdentityQuaternion,
		TargetTimestamp: target,
	}
}

func (a StaticAdapter) OnRendered(frameIndex uint64, renderedAt time.Time) {}
