package strategy

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML strategy file and overlays it on DefaultConfig.
// Keys absent from the file keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}

// ParseConfig is LoadConfig for an in-memory document.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode strategy config: %w", err)
	}
	cfg.MinimalROI = cfg.MinimalROI.sorted()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalYAML accepts the `minimal_roi: {"0": 0.2, "90": 0.1}` form, keyed
// by elapsed minutes.
func (t *ROITable) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]float64
	if err := node.Decode(&raw); err != nil {
		return err
	}
	out := make(ROITable, 0, len(raw))
	for k, v := range raw {
		minutes, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("minimal_roi key %q: %w", k, err)
		}
		out = append(out, ROIStep{Minutes: minutes, Ratio: v})
	}
	*t = out.sorted()
	return nil
}

// MarshalYAML writes the table back in its keyed form.
func (t ROITable) MarshalYAML() (any, error) {
	out := make(map[string]float64, len(t))
	for _, s := range t {
		out[strconv.Itoa(s.Minutes)] = s.Ratio
	}
	return out, nil
}
