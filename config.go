package unitypack

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultLayoutCacheSize is the number of archive layouts Inspect keeps.
const DefaultLayoutCacheSize = 128

// Option configures a Decoder during construction.
type Option func(*Decoder)

// WithLogger sets the logger used for warnings and debug notes.
// A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// WithZstd makes the decoder treat Custom-compressed blocks as zstd
// frames instead of LZ4 blocks.
func WithZstd(on bool) Option {
	return func(d *Decoder) {
		if on {
			d.customCodec = CustomZstd
		} else {
			d.customCodec = CustomLZ4
		}
	}
}

// WithUnityVersion forces the engine revision used for version-gated
// decisions, overriding the one recorded in each archive.
func WithUnityVersion(v Version) Option {
	return func(d *Decoder) {
		d.revision = v
		d.hasRevision = true
	}
}

// WithBufferPool shares pool between decoders. Without it every decoder
// owns a default-sized pool.
func WithBufferPool(p *BufferPool) Option {
	return func(d *Decoder) {
		if p != nil {
			d.pool = p
		}
	}
}

// WithLayoutCacheSize sets how many layouts Inspect caches. Zero disables
// the cache.
func WithLayoutCacheSize(n int) Option {
	return func(d *Decoder) { d.layoutCacheSize = n }
}

// WithBlockCacheSize sets how many decoded blocks ReadEntry caches. Zero
// disables the cache.
func WithBlockCacheSize(n int) Option {
	return func(d *Decoder) { d.blockCacheSize = n }
}

// Config is the file form of the decoder and extractor settings.
//
// Example:
//
//	unity_version: 2021.3.5f1
//	use_zstd: false
//	layout_cache_size: 256
//	block_cache_size: 64
//	pool:
//	  max_length: 268435456
//	  buffers_per_bucket: 5
//	extract:
//	  workers: 8
//	log:
//	  level: debug
type Config struct {
	// UnityVersion, when set, overrides the revision read from archives.
	UnityVersion    string `yaml:"unity_version"`
	UseZstd         bool   `yaml:"use_zstd"`
	LayoutCacheSize *int   `yaml:"layout_cache_size"`
	BlockCacheSize  *int   `yaml:"block_cache_size"`

	Pool struct {
		MaxLength        int `yaml:"max_length"`
		BuffersPerBucket int `yaml:"buffers_per_bucket"`
	} `yaml:"pool"`

	Extract struct {
		Workers int `yaml:"workers"`
	} `yaml:"extract"`

	Log struct {
		// Level is a zap level name: debug, info, warn or error.
		Level string `yaml:"level"`
		// Development switches to the human-readable console encoder.
		Development bool `yaml:"development"`
	} `yaml:"log"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and that the version string parses.
func (c *Config) Validate() error {
	if c.UnityVersion != "" {
		if _, err := ParseVersion(c.UnityVersion); err != nil {
			return fmt.Errorf("config unity_version: %w", err)
		}
	}
	if c.LayoutCacheSize != nil && *c.LayoutCacheSize < 0 {
		return fmt.Errorf("config layout_cache_size must not be negative, got %d", *c.LayoutCacheSize)
	}
	if c.BlockCacheSize != nil && *c.BlockCacheSize < 0 {
		return fmt.Errorf("config block_cache_size must not be negative, got %d", *c.BlockCacheSize)
	}
	if c.Pool.MaxLength < 0 || c.Pool.BuffersPerBucket < 0 {
		return fmt.Errorf("config pool sizes must not be negative")
	}
	if c.Extract.Workers < 0 {
		return fmt.Errorf("config extract.workers must not be negative, got %d", c.Extract.Workers)
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("config log.level: %w", err)
		}
	}
	return nil
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Log.Level != "" {
		lvl, err := zapcore.ParseLevel(c.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("config log.level: %w", err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}

// Options translates the configuration into decoder options. The logger
// is passed separately so callers can share one across components.
func (c *Config) Options(log *zap.Logger) ([]Option, error) {
	opts := []Option{
		WithLogger(log),
		WithZstd(c.UseZstd),
		WithBufferPool(NewBufferPool(c.Pool.MaxLength, c.Pool.BuffersPerBucket)),
	}
	if c.UnityVersion != "" {
		v, err := ParseVersion(c.UnityVersion)
		if err != nil {
			return nil, fmt.Errorf("config unity_version: %w", err)
		}
		opts = append(opts, WithUnityVersion(v))
	}
	if c.LayoutCacheSize != nil {
		opts = append(opts, WithLayoutCacheSize(*c.LayoutCacheSize))
	}
	if c.BlockCacheSize != nil {
		opts = append(opts, WithBlockCacheSize(*c.BlockCacheSize))
	}
	return opts, nil
}

// ExtractorOptions translates the extract section.
func (c *Config) ExtractorOptions() []ExtractorOption {
	var opts []ExtractorOption
	if c.Extract.Workers > 0 {
		opts = append(opts, WithWorkers(c.Extract.Workers))
	}
	return opts
}
