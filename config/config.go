// Package config loads the daemon-wide tunables that sit outside the
// per-call API: tick interval, timeouts, relay list, and the overlay
// binary path.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every daemon-wide setting. YAML tags give the on-disk file a
// readable, hand-editable shape.
type Config struct {
	// TickInterval is the RoomController's state-machine step period.
	TickInterval time.Duration `yaml:"tick_interval"`

	// HeartbeatTimeout is how long a Scaffolding GUEST entry survives
	// without a fresh c:player_ping.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// MCOfflineThreshold is the number of consecutive failed 0xFE probes
	// before HostRunning (in compatibility mode) moves to Error.
	MCOfflineThreshold int `yaml:"mc_offline_threshold"`

	// EagerMode disables the 0xFE compatibility probe entirely; when
	// false (compat mode, the default) HostRunning runs it on each of its
	// periodic checks (every ~5s, not every TickInterval).
	EagerMode bool `yaml:"eager_mode"`

	// DiscoveryTimeout bounds GuestDiscoveringCenter before it gives up.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// OverlayStartupTimeout bounds HostOverlayStarting/GuestOverlayStarting
	// polling node_info before giving up.
	OverlayStartupTimeout time.Duration `yaml:"overlay_startup_timeout"`

	// RelayURLs is the list of public relay servers offered to the overlay
	// child at startup.
	RelayURLs []string `yaml:"relay_urls"`

	// RelayProbeTimeout bounds each relay's optional TCP reachability
	// probe during relay-list validation.
	RelayProbeTimeout time.Duration `yaml:"relay_probe_timeout"`

	// OverlayBinaryPath is the path to the overlay child executable.
	OverlayBinaryPath string `yaml:"overlay_binary_path"`

	// DataDir is the per-user data location holding machine_id.txt.
	DataDir string `yaml:"data_dir"`
}

// DefaultConfig returns every default named in the specification, so the
// daemon runs correctly with no config file present.
func DefaultConfig() *Config {
	return &Config{
		TickInterval:          250 * time.Millisecond,
		HeartbeatTimeout:      10 * time.Second,
		MCOfflineThreshold:    6,
		EagerMode:             false,
		DiscoveryTimeout:      25 * time.Second,
		OverlayStartupTimeout: 12 * time.Second,
		RelayURLs:             nil,
		RelayProbeTimeout:     3 * time.Second,
		OverlayBinaryPath:     "overlay",
		DataDir:               defaultDataDir(),
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir + string(os.PathSeparator) + "lanbridge"
}

// Load reads and parses a YAML config file at path, filling in any field
// the file omits from DefaultConfig.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
