package lx200

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML configs can use values like
// "1m30s" or bare numbers of seconds.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (interface{}, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// YAML numbers decode into a string too, so a failed ParseDuration
	// falls through to the bare-seconds form rather than erroring.
	var s string
	if err := value.Decode(&s); err == nil {
		if parsed, err := time.ParseDuration(s); err == nil {
			*d = Duration(parsed)
			return nil
		}
	}
	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("bad duration %q", value.Value)
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// Config holds the telescope driver settings.
type Config struct {
	// Device is the serial port name, e.g. /dev/ttyS0.
	Device  string   `yaml:"device"`
	Baud    int      `yaml:"baud"`
	Timeout Duration `yaml:"timeout"`

	// AlignMode and SlewRate are pushed to the mount during
	// initialization.
	AlignMode string `yaml:"align_mode"`
	SlewRate  string `yaml:"slew_rate"`
	// SkipInit bypasses the device initialization sequence. The mount
	// is still probed for its alignment mode.
	SkipInit bool `yaml:"skip_init"`

	MaxSlewTime       Duration `yaml:"max_slew_time"`
	StabilizationTime Duration `yaml:"stabilization_time"`
	SlewIdleTime      Duration `yaml:"slew_idle_time"`

	// CalibrationTime is the reference duration of each calibration
	// move trial.
	CalibrationTime Duration `yaml:"calibration_time"`
	CalibrationFile string   `yaml:"calibration_file"`

	// TraceFile receives a record of every byte sent and received.
	// Empty disables tracing.
	TraceFile string `yaml:"trace_file"`

	// Azimuth180Correct rotates azimuth values by 180° on both the get
	// and set paths for mounts whose azimuth zero points south. Off in
	// the zero Config; DefaultConfig enables it.
	Azimuth180Correct bool `yaml:"azimuth180_correct"`

	// ParkAlt and ParkAz are the horizontal park position in degrees,
	// used when no site is available to compute an equatorial park.
	ParkAlt float64 `yaml:"park_alt"`
	ParkAz  float64 `yaml:"park_az"`
}

// DefaultConfig returns the settings for a mount on the first serial
// port with conservative slew timing.
func DefaultConfig() Config {
	return Config{
		Device:            "/dev/ttyS0",
		Baud:              9600,
		Timeout:           Duration(5 * time.Second),
		AlignMode:         "POLAR",
		SlewRate:          "MAX",
		MaxSlewTime:       Duration(120 * time.Second),
		StabilizationTime: Duration(2 * time.Second),
		SlewIdleTime:      Duration(100 * time.Millisecond),
		CalibrationTime:   Duration(5 * time.Second),
		CalibrationFile:   "move_calibration.json",
		Azimuth180Correct: true,
		ParkAlt:           90,
		ParkAz:            180,
	}
}

// withDefaults fills zero fields so a partially specified Config (for
// example from a YAML file that only names the device) behaves sanely.
// Boolean fields have no fillable zero value; start from DefaultConfig
// to get Azimuth180Correct enabled.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Device == "" {
		c.Device = def.Device
	}
	if c.Baud == 0 {
		c.Baud = def.Baud
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.AlignMode == "" {
		c.AlignMode = def.AlignMode
	}
	if c.SlewRate == "" {
		c.SlewRate = def.SlewRate
	}
	if c.MaxSlewTime == 0 {
		c.MaxSlewTime = def.MaxSlewTime
	}
	if c.StabilizationTime == 0 {
		c.StabilizationTime = def.StabilizationTime
	}
	if c.SlewIdleTime == 0 {
		c.SlewIdleTime = def.SlewIdleTime
	}
	if c.CalibrationTime == 0 {
		c.CalibrationTime = def.CalibrationTime
	}
	if c.CalibrationFile == "" {
		c.CalibrationFile = def.CalibrationFile
	}
	if c.ParkAlt == 0 {
		c.ParkAlt = def.ParkAlt
	}
	if c.ParkAz == 0 {
		c.ParkAz = def.ParkAz
	}
	return c
}
