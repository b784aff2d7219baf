package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all illusiongen configuration.
type Config struct {
	// Root of the partitioning traces, <schedule_dir>/<network>_<word>_<batch>/<config>/*.csv
	ScheduleDir string `yaml:"schedule_dir"`
	// Directory the simulator configs (and the catalog) are written to
	OutputDir string `yaml:"output_dir"`

	Networks []string  `yaml:"networks"`
	Configs  []float64 `yaml:"configs"` // scaling configs, one directory each
	Word     int       `yaml:"word"`
	Batch    int       `yaml:"batch"`

	Reference ReferenceConfig `yaml:"reference"`

	// Link width in bytes; message sizes are divided by it
	LinkWidth int64 `yaml:"link_width"`

	Topology  TopologyConfig  `yaml:"topology"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Watch     WatchConfig     `yaml:"watch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ReferenceConfig locates the trace the canonical layer order is read from.
type ReferenceConfig struct {
	Config string `yaml:"config"` // config directory name
	Suffix string `yaml:"suffix"` // appended to the network name
}

// TopologyConfig selects the network families configs are emitted for.
type TopologyConfig struct {
	Families     []string `yaml:"families"`
	MaxDimension int      `yaml:"max_dimension"`
	Workers      int      `yaml:"workers"` // concurrent writes per schedule
}

// SimulatorConfig holds the fixed BookSim parameters written into every config.
type SimulatorConfig struct {
	NumVCs           int               `yaml:"num_vcs"`
	Traffic          string            `yaml:"traffic"`
	LatencyThreshold float64           `yaml:"latency_thres"`
	SimPower         int               `yaml:"sim_power"`
	TechFile         string            `yaml:"tech_file"`
	Routing          map[string]string `yaml:"routing"` // family -> routing function
}

// CatalogConfig configures the SQLite artifact catalog.
type CatalogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // relative paths resolve against output_dir
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ScheduleDir: "multichip_message_passing_32",
		OutputDir:   "illusion_configs",

		Networks: []string{"alex_net", "resnet50", "vgg_net"},
		Configs:  []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048},
		Word:     16,
		Batch:    1,

		Reference: ReferenceConfig{
			Config: "2048",
			Suffix: "_2048.0_mp.csv",
		},

		LinkWidth: 16,

		Topology: TopologyConfig{
			Families:     []string{"torus", "mesh", "fattree"},
			MaxDimension: 4,
			Workers:      4,
		},

		Simulator: SimulatorConfig{
			NumVCs:           2,
			Traffic:          "illusion",
			LatencyThreshold: 10000.0,
			SimPower:         1,
			TechFile:         "../src/power/techfile.txt",
			Routing: map[string]string{
				"fattree": "nca",
				"torus":   "dim_order",
				"mesh":    "dor",
			},
		},

		Catalog: CatalogConfig{
			Enabled: true,
			Path:    "catalog.db",
		},

		Watch: WatchConfig{
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("ILLUSIONGEN_SCHEDULE_DIR"); dir != "" {
		c.ScheduleDir = dir
	}
	if dir := os.Getenv("ILLUSIONGEN_OUTPUT_DIR"); dir != "" {
		c.OutputDir = dir
	}
	if path := os.Getenv("ILLUSIONGEN_CATALOG"); path != "" {
		c.Catalog.Path = path
	}
}

// Validate checks the settings the generator cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.ScheduleDir == "" {
		errs = append(errs, errors.New("schedule_dir is required"))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir is required"))
	}
	if len(c.Networks) == 0 {
		errs = append(errs, errors.New("at least one network is required"))
	}
	if len(c.Configs) == 0 {
		errs = append(errs, errors.New("at least one scaling config is required"))
	}
	for _, v := range c.Configs {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("scaling config %v must be positive", v))
		}
	}
	if c.Word <= 0 || c.Batch <= 0 {
		errs = append(errs, fmt.Errorf("word (%d) and batch (%d) must be positive", c.Word, c.Batch))
	}
	if c.Reference.Config == "" {
		errs = append(errs, errors.New("reference.config is required"))
	}
	if c.LinkWidth <= 0 {
		errs = append(errs, fmt.Errorf("link_width must be positive, got %d", c.LinkWidth))
	}
	if c.Topology.MaxDimension < 1 {
		errs = append(errs, fmt.Errorf("topology.max_dimension must be at least 1, got %d", c.Topology.MaxDimension))
	}
	for _, f := range c.Topology.Families {
		if _, ok := c.Simulator.Routing[f]; !ok {
			errs = append(errs, fmt.Errorf("no routing function for topology family %q", f))
		}
	}
	if c.Simulator.NumVCs <= 0 {
		errs = append(errs, fmt.Errorf("simulator.num_vcs must be positive, got %d", c.Simulator.NumVCs))
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); c.Watch.Debounce != "" && err != nil {
		errs = append(errs, fmt.Errorf("watch.debounce: %w", err))
	}
	return errors.Join(errs...)
}

// CatalogPath returns the catalog database path.
func (c *Config) CatalogPath() string {
	if filepath.IsAbs(c.Catalog.Path) {
		return c.Catalog.Path
	}
	return filepath.Join(c.OutputDir, c.Catalog.Path)
}

// GetDebounce returns the watch debounce window as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}
