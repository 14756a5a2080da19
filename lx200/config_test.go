package lx200

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDurationUnmarshalYAML(t *testing.T) {
	for _, test := range []struct {
		in   string
		want time.Duration
		err  bool
	}{
		{in: "1m30s", want: 90 * time.Second},
		{in: "2.5", want: 2500 * time.Millisecond},
		{in: "5", want: 5 * time.Second},
		{in: "0", want: 0},
		{in: "zebra", err: true},
		{in: "[1, 2]", err: true},
	} {
		var got struct {
			D Duration `yaml:"d"`
		}
		err := yaml.Unmarshal([]byte("d: "+test.in), &got)
		if test.err {
			if err == nil {
				t.Errorf("unmarshal %q succeeded, want error", test.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("unmarshal %q: %v", test.in, err)
			continue
		}
		if got.D.D() != test.want {
			t.Errorf("unmarshal %q = %v, want %v", test.in, got.D, test.want)
		}
	}
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{Device: "/dev/ttyS1"}.withDefaults()
	if cfg.Device != "/dev/ttyS1" {
		t.Errorf("Device = %q, want /dev/ttyS1", cfg.Device)
	}
	def := DefaultConfig()
	if cfg.Baud != def.Baud {
		t.Errorf("Baud = %d, want %d", cfg.Baud, def.Baud)
	}
	if cfg.Timeout != def.Timeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, def.Timeout)
	}
	if cfg.StabilizationTime != def.StabilizationTime {
		t.Errorf("StabilizationTime = %v, want %v", cfg.StabilizationTime, def.StabilizationTime)
	}
	if cfg.ParkAlt != def.ParkAlt || cfg.ParkAz != def.ParkAz {
		t.Errorf("park position = alt %v az %v, want alt %v az %v",
			cfg.ParkAlt, cfg.ParkAz, def.ParkAlt, def.ParkAz)
	}
	if cfg.AlignMode != def.AlignMode || cfg.SlewRate != def.SlewRate {
		t.Errorf("AlignMode/SlewRate = %q/%q, want %q/%q",
			cfg.AlignMode, cfg.SlewRate, def.AlignMode, def.SlewRate)
	}
	if cfg.CalibrationFile != def.CalibrationFile {
		t.Errorf("CalibrationFile = %q, want %q", cfg.CalibrationFile, def.CalibrationFile)
	}
}

func TestWithDefaultsKeepsSetFields(t *testing.T) {
	in := Config{
		Device:            "/dev/ttyUSB3",
		Baud:              4800,
		StabilizationTime: Duration(time.Second),
		ParkAlt:           45,
		ParkAz:            90,
	}
	cfg := in.withDefaults()
	if cfg.Device != in.Device || cfg.Baud != in.Baud {
		t.Errorf("Device/Baud = %q/%d, want %q/%d", cfg.Device, cfg.Baud, in.Device, in.Baud)
	}
	if cfg.StabilizationTime != in.StabilizationTime {
		t.Errorf("StabilizationTime = %v, want %v", cfg.StabilizationTime, in.StabilizationTime)
	}
	if cfg.ParkAlt != in.ParkAlt || cfg.ParkAz != in.ParkAz {
		t.Errorf("park position = alt %v az %v, want alt %v az %v",
			cfg.ParkAlt, cfg.ParkAz, in.ParkAlt, in.ParkAz)
	}
}
