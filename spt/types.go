package spt

// PositionRecord is one detection read from an instrument export
type PositionRecord struct {
	TrackID   int     `json:"track"`
	Frame     int     `json:"frame"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Intensity float64 `json:"intensity"`
}

// DisplacementRecord is a detection together with its offset from the
// preceding detection of the same track.
//
// Frame is a float because a record merged by the Aggregator carries the mean
// frame index of its members.
type DisplacementRecord struct {
	TrackID    int     `json:"track"`
	Frame      float64 `json:"frame"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	DX         float64 `json:"dx"`
	DY         float64 `json:"dy"`
	Rho        float64 `json:"rho"`
	Theta      float64 `json:"theta"`
	Intensity  float64 `json:"intensity"`
	FrameCount int     `json:"framecount"`
}

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Position returns the record's coordinates
func (d DisplacementRecord) Position() Point {
	return Point{X: d.X, Y: d.Y}
}

// AggregationKey identifies a spatial position at the configured precision
type AggregationKey struct {
	X float64
	Y float64
}

// RawTrack is one contiguous run of rows sharing a track id, as emitted by
// BuildDisplacements. Origin is the first detection; it has no displacement
// and never enters the Aggregator.
type RawTrack struct {
	ID     int
	Origin DisplacementRecord
	Steps  []DisplacementRecord
}

// Track is the ordered set of records attributed to one particle
type Track struct {
	ID     int                  `json:"track"`
	Points []DisplacementRecord `json:"points"`
}

// Len returns the number of points in the track
func (t Track) Len() int {
	return len(t.Points)
}

// Config holds the engine parameters and optional collaborators
type Config struct {
	DecimalPrecision int          `yaml:"decimalPrecision" json:"decimalPrecision"`
	MinPoints        int          `yaml:"minPoints" json:"minPoints"`
	MinLength        float64      `yaml:"minLength" json:"minLength"`
	MaxLength        float64      `yaml:"maxLength" json:"maxLength"`
	FrameRate        float64      `yaml:"frameRate" json:"frameRate"`
	MaxMSDLag        int          `yaml:"maxMsdLag" json:"maxMsdLag"`
	Output           OutputConfig `yaml:"output,omitempty" json:"output,omitempty"`
	MQTT             MQTTConfig   `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
}

// OutputConfig names the files written by a run. Relative names resolve
// against Dir.
type OutputConfig struct {
	Dir            string `yaml:"dir,omitempty" json:"dir,omitempty"`
	AggregatedFile string `yaml:"aggregatedFile,omitempty" json:"aggregatedFile,omitempty"`
	MSDFile        string `yaml:"msdFile,omitempty" json:"msdFile,omitempty"`
	WorkbookFile   string `yaml:"workbookFile,omitempty" json:"workbookFile,omitempty"`
	TrajectoryFile string `yaml:"trajectoryFile,omitempty" json:"trajectoryFile,omitempty"`
	Plots          string `yaml:"plots,omitempty" json:"plots,omitempty"` // "", "all", "N" or "from-to"
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker,omitempty" json:"broker,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty" json:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty" json:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// FilterOptions returns the track-quality thresholds of the config
func (c *Config) FilterOptions() FilterOptions {
	return FilterOptions{
		MinPoints: c.MinPoints,
		MinLength: c.MinLength,
		MaxLength: c.MaxLength,
	}
}
