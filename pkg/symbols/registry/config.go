package registry

import (
	"flag"
	"fmt"

	"github.com/grafana/dskit/flagext"
)

type Config struct {
	CacheSize int                    `yaml:"cache_size" category:"advanced"`
	Sources   flagext.StringSliceCSV `yaml:"sources"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("symbols.", f)
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.CacheSize, prefix+"cache-size", 256, "Maximum number of per-trace symbol providers kept in memory. Least recently used providers are closed when the limit is reached.")
	f.Var(&cfg.Sources, prefix+"sources", "Comma-separated list of YAML files declaring symbol provider factories and their priorities.")
}

func (cfg *Config) Validate() error {
	if cfg.CacheSize < 1 {
		return fmt.Errorf("invalid cache-size value %d, must be positive", cfg.CacheSize)
	}
	return nil
}
