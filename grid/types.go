package grid

// Sample is one raw measurement snapped to a grid point.
type Sample struct {
	Real       float64 `json:"re"`
	Imag       float64 `json:"im"`
	Distance   float64 `json:"d"`
	Confidence float64 `json:"c"`
}

// MergedGridPoint is the consolidated record produced for one group of samples.
// Real and Imag hold the weighted complex value; Magnitude is the weighted mean
// of the per-sample magnitudes and generally differs from |Real + i*Imag|.
type MergedGridPoint struct {
	Magnitude          float64 `json:"magnitude"`
	Real               float64 `json:"real"`
	Imag               float64 `json:"imag"`
	WeightedConfidence float64 `json:"weightedConfidence"`
	WeightedDistance   float64 `json:"weightedDistance"`
	PhaseDispersion    float64 `json:"phaseDispersion"` // radians
}

// Range is the half-open span [Start, End) of a group inside a SampleStore.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples covered by the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// SourceConfig describes one upstream producer of sample batches
type SourceConfig struct {
	ID     string  `yaml:"id" json:"id"`
	Topic  string  `yaml:"topic,omitempty" json:"topic,omitempty"`
	ApiURL *string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"` // Optional URL the batch is fetched from
}

// MergeConfig holds batch merge tuning
type MergeConfig struct {
	Workers                int     `yaml:"workers,omitempty" json:"workers,omitempty"`     // 0 = GOMAXPROCS
	ChunkSize              int     `yaml:"chunkSize,omitempty" json:"chunkSize,omitempty"` // groups per worker task
	DispersionThresholdDeg float64 `yaml:"dispersionThresholdDeg,omitempty" json:"dispersionThresholdDeg,omitempty"`
}

// RenderConfig holds slice rendering settings
type RenderConfig struct {
	CellSize int    `yaml:"cellSize,omitempty" json:"cellSize,omitempty"` // pixels per voxel
	Axis     string `yaml:"axis,omitempty" json:"axis,omitempty"`         // x, y or z
}

// Config represents the full configuration file
type Config struct {
	MQTT    MQTTConfig     `yaml:"mqtt" json:"mqtt"`
	Sources []SourceConfig `yaml:"sources" json:"sources"`
	Merge   MergeConfig    `yaml:"merge,omitempty" json:"merge,omitempty"`
	Render  RenderConfig   `yaml:"render,omitempty" json:"render,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// GetSourceByID returns the source config for the given ID
func (c *Config) GetSourceByID(id string) *SourceConfig {
	for i := range c.Sources {
		if c.Sources[i].ID == id {
			return &c.Sources[i]
		}
	}
	return nil
}

// GetSourceByTopic returns the source ID subscribed to the given topic
func (c *Config) GetSourceByTopic(topic string) (string, bool) {
	for _, s := range c.Sources {
		if s.Topic != "" && s.Topic == topic {
			return s.ID, true
		}
	}
	return "", false
}
