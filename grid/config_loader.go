package grid

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source must be defined")
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, sc := range c.Sources {
		if sc.ID == "" {
			return fmt.Errorf("sources[%d].id is required", i)
		}
		if seen[sc.ID] {
			return fmt.Errorf("sources[%d].id %q is duplicated", i, sc.ID)
		}
		seen[sc.ID] = true
		if sc.Topic == "" && sc.ApiURL == nil {
			return fmt.Errorf("sources[%d] needs a topic or apiUrl for %s", i, sc.ID)
		}
	}

	if c.Merge.Workers < 0 {
		return fmt.Errorf("merge.workers must not be negative")
	}
	if c.Merge.ChunkSize < 0 {
		return fmt.Errorf("merge.chunkSize must not be negative")
	}
	if c.Merge.DispersionThresholdDeg < 0 || c.Merge.DispersionThresholdDeg > 180 {
		return fmt.Errorf("merge.dispersionThresholdDeg must be within [0, 180]")
	}

	if c.Render.Axis != "" {
		if _, err := ParseAxis(c.Render.Axis); err != nil {
			return fmt.Errorf("render.axis: %w", err)
		}
	}
	if c.Render.CellSize < 0 {
		return fmt.Errorf("render.cellSize must not be negative")
	}
	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ParseAxis converts "x", "y" or "z" (any case) to an Axis
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z", "":
		return AxisZ, nil
	}
	return AxisZ, fmt.Errorf("unknown axis %q", s)
}
