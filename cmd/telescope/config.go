package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/w1xm/lx200_interface/coord"
	"github.com/w1xm/lx200_interface/lx200"
)

// Config is the YAML surface of the telescope server.
type Config struct {
	Telescope lx200.Config `yaml:"telescope"`
	// Site is the observing location pushed to the mount at startup.
	// Without it the mount keeps its stored site and clock.
	Site   *SiteConfig  `yaml:"site"`
	Server ServerConfig `yaml:"server"`
}

// SiteConfig holds the observing location. Angles are sexagesimal
// strings as the mount understands them.
type SiteConfig struct {
	// Latitude is signed degrees, e.g. "+42:21:36".
	Latitude string `yaml:"latitude"`
	// Longitude is degrees west of Greenwich, 0-360, e.g. "288:54:36".
	Longitude string `yaml:"longitude"`
	// UTCOffset is the hours added to local time to yield UTC.
	UTCOffset float64 `yaml:"utc_offset"`
}

type ServerConfig struct {
	Listen         string         `yaml:"listen"`
	RotctldListen  string         `yaml:"rotctld_listen"`
	StaticDir      string         `yaml:"static_dir"`
	StatusInterval lx200.Duration `yaml:"status_interval"`
}

func DefaultConfig() Config {
	return Config{
		Telescope: lx200.DefaultConfig(),
		Server: ServerConfig{
			Listen:         "127.0.0.1:8502",
			RotctldListen:  "127.0.0.1:4533",
			StaticDir:      "static",
			StatusInterval: lx200.Duration(time.Second),
		},
	}
}

// LoadConfig reads a YAML config over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func (c SiteConfig) site() (lx200.FixedSite, error) {
	lat, err := coord.ParseDMS(c.Latitude)
	if err != nil {
		return lx200.FixedSite{}, fmt.Errorf("latitude: %w", err)
	}
	long, err := coord.ParseDMS(c.Longitude)
	if err != nil {
		return lx200.FixedSite{}, fmt.Errorf("longitude: %w", err)
	}
	return lx200.FixedSite{Lat: lat, Long: long, UTC: c.UTCOffset}, nil
}
