// Package lfconfig loads the tunables that size the hazard-pointer domains
// and containers in spec.md §3's "Tunable constants" table from a TOML file.
//
// Grounded on the teacher's config/config.go: Load/generateConfig/
// defaultConfig's "write a commented template on first run, then decode it"
// pattern, carried over verbatim and re-keyed for this module's constants.
package lfconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/semihalev/zlog/v2"
)

const configVersion = "1.0.0"

// Config holds every tunable named in spec.md §3.
type Config struct {
	Version string

	// MaxNumThreads bounds the hazard-pointer slot table: the maximum
	// number of concurrent thread identities a Domain can serve.
	MaxNumThreads int `toml:"max_num_threads"`

	// HPK is K, the number of hazard-pointer slots reserved per thread
	// per container (also called "width" elsewhere in this module).
	HPK int `toml:"hp_k"`

	// MaxLevels caps a skip list node's level count.
	MaxLevels int `toml:"max_levels"`

	// MainArrayLen is the hash set's top-level segment directory size.
	MainArrayLen int `toml:"main_array_len"`

	// SegmentSize is the hash set's per-segment bucket count.
	SegmentSize int `toml:"segment_size"`

	// InitNumBuckets is the hash set's starting bucket count.
	InitNumBuckets int `toml:"init_num_buckets"`

	// LoadFactor is the average bucket chain length that triggers a
	// capacity doubling.
	LoadFactor float64 `toml:"load_factor"`
}

var defaultConfig = `
# Config version, config and build versions can be different.
version = "%s"

# Maximum number of concurrent thread identities a hazard-pointer domain
# serves. Each container allocates its per-thread hazard slot lazily up to
# this bound.
max_num_threads = 64

# Number of hazard-pointer slots reserved per thread for llist/hashset. The
# skip list uses 2*max_levels regardless of this value.
hp_k = 2

# Maximum level a skip list node may occupy.
max_levels = 5

# Hash set top-level segment directory size.
main_array_len = 16

# Hash set per-segment bucket count.
segment_size = 4

# Hash set starting bucket count. Must be a power of two.
init_num_buckets = 2

# Average bucket chain length that triggers the hash set to double its
# capacity.
load_factor = 0.75
`

// Default returns the built-in configuration, identical to what Load
// produces from a freshly generated config file.
func Default() *Config {
	return &Config{
		Version:        configVersion,
		MaxNumThreads:  64,
		HPK:            2,
		MaxLevels:      5,
		MainArrayLen:   16,
		SegmentSize:    4,
		InitNumBuckets: 2,
		LoadFactor:     0.75,
	}
}

// Load reads cfgfile, generating a default one in its place first if it
// does not exist.
func Load(cfgfile string) (*Config, error) {
	cfg := new(Config)

	if _, err := os.Stat(cfgfile); os.IsNotExist(err) {
		if err := generateConfig(cfgfile); err != nil {
			return nil, err
		}
	}

	zlog.Info("loading config file", "path", cfgfile)

	if _, err := toml.DecodeFile(cfgfile, cfg); err != nil {
		return nil, fmt.Errorf("lfconfig: could not load config: %w", err)
	}

	if cfg.Version != configVersion {
		zlog.Warn("config file is out of version, regenerate to see new keys", "have", cfg.Version, "want", configVersion)
	}

	if cfg.MaxNumThreads <= 0 {
		cfg.MaxNumThreads = 64
	}
	if cfg.HPK <= 0 {
		cfg.HPK = 2
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 5
	}
	if cfg.MainArrayLen <= 0 {
		cfg.MainArrayLen = 16
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = 4
	}
	if cfg.InitNumBuckets <= 0 {
		cfg.InitNumBuckets = 2
	}
	if cfg.LoadFactor <= 0 {
		cfg.LoadFactor = 0.75
	}

	return cfg, nil
}

func generateConfig(path string) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lfconfig: could not generate config: %w", err)
	}
	defer func() {
		if err := output.Close(); err != nil {
			zlog.Warn("config generation failed while file closing", "error", err.Error())
		}
	}()

	r := strings.NewReader(fmt.Sprintf(defaultConfig, configVersion))
	if _, err := io.Copy(output, r); err != nil {
		return fmt.Errorf("lfconfig: could not copy default config: %w", err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		zlog.Info("default config file generated", "config", abs)
	}

	return nil
}
