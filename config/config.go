// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"log"

	"github.com/spf13/viper"
)

// SketchSettings are the parameters passed to mash when sketching.
// They are recorded into the reference database and must match between
// every sketch pasted into one database.
type SketchSettings struct {
	// Kmer is the k-mer size (mash -k)
	Kmer int `mapstructure:"kmer"`

	// Size is the number of min-hashes kept per sketch (mash -s)
	Size int `mapstructure:"size"`

	// Seed for the hash function (mash -S)
	Seed int `mapstructure:"seed"`
}

// CurateSettings control which downloaded assemblies are kept.
type CurateSettings struct {
	// MinCompleteness is the lowest CheckM completeness an assembly may
	// have and still be retained. The boundary is inclusive: an assembly
	// at exactly this value is kept. Assemblies without a completeness
	// estimate are kept.
	MinCompleteness float64 `mapstructure:"min-completeness"`

	// AssemblyLevels restricts acquisition to the named tiers
	// (complete, chromosome, scaffold, contig). Empty means all tiers.
	AssemblyLevels []string `mapstructure:"assembly-levels"`
}

// IdentifySettings are the thresholds for calling a species.
type IdentifySettings struct {
	// MaxDistance is the largest mash distance still reported as a match
	MaxDistance float64 `mapstructure:"max-distance"`

	// MinSharedHashes is the smallest shared-hash fraction still
	// reported as a match
	MinSharedHashes float64 `mapstructure:"min-shared-hashes"`

	// MinKmerCopies overrides the coverage-derived -m value when > 0
	MinKmerCopies int `mapstructure:"min-kmer-copies"`

	// Threads passed to mash dist
	Threads int `mapstructure:"threads"`
}

// ToolSettings locate the external binaries. Paths are explicit so no
// stage depends on whatever happens to be first on PATH.
type ToolSettings struct {
	Mash     string `mapstructure:"mash"`
	Datasets string `mapstructure:"datasets"`
}

// Config is the root-level settings struct and is a mix of settings
// available in settings.yaml and those available from the command line.
type Config struct {
	// OutDir is where batch artifacts are written
	OutDir string `mapstructure:"out"`

	// Verbose turns on debug logging
	Verbose bool `mapstructure:"verbose"`

	Sketch   SketchSettings   `mapstructure:"sketch"`
	Curate   CurateSettings   `mapstructure:"curate"`
	Identify IdentifySettings `mapstructure:"identify"`
	Tools    ToolSettings     `mapstructure:"tools"`
}

// SetDefaults seeds viper with the values used when neither
// settings.yaml nor a CLI flag names them.
func SetDefaults() {
	viper.SetDefault("out", ".")
	viper.SetDefault("sketch.kmer", 21)
	viper.SetDefault("sketch.size", 1000)
	viper.SetDefault("sketch.seed", 42)
	viper.SetDefault("curate.min-completeness", 93.0)
	viper.SetDefault("identify.max-distance", 0.05)
	viper.SetDefault("identify.min-shared-hashes", 0.0)
	viper.SetDefault("identify.threads", 4)
	viper.SetDefault("tools.mash", "mash")
	viper.SetDefault("tools.datasets", "datasets")
}

// New returns a new Config struct populated by Viper settings (either
// from the local settings.yaml) and/or command line arguments.
func New() *Config {
	SetDefaults()

	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		log.Fatalf("unable to decode settings into struct: %v", err)
	}

	return &c
}
