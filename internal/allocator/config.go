package allocator

import (
	"encoding/json"
	"fmt"
	"os"
)

// Configuration for allocators.
type Config struct {
	ArenaSize       uintptr `json:"arena_size"`
	MaxAllocations  int     `json:"max_allocations"`
	MemoryLimit     uintptr `json:"memory_limit"`
	AlignmentSize   uintptr `json:"alignment"`
	EnableTracking  bool    `json:"tracking"`
	EnableDebug     bool    `json:"debug"`
	EnableLeakCheck bool    `json:"leak_check"`
}

type Option func(*Config)

// DefaultConfig returns a copy of the configuration used when none is given.
func DefaultConfig() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		EnableTracking:  true,
		EnableDebug:     false,
		ArenaSize:       64 * 1024 * 1024, // 64MB default arena
		MaxAllocations:  1000000,
		MemoryLimit:     1024 * 1024 * 1024, // 1GB limit
		EnableLeakCheck: true,
		AlignmentSize:   8, // 8-byte accounting granularity
	}
}

// Option functions.
func WithTracking(enabled bool) Option {
	return func(c *Config) { c.EnableTracking = enabled }
}

func WithDebug(enabled bool) Option {
	return func(c *Config) { c.EnableDebug = enabled }
}

func WithArenaSize(size uintptr) Option {
	return func(c *Config) { c.ArenaSize = size }
}

func WithMemoryLimit(limit uintptr) Option {
	return func(c *Config) { c.MemoryLimit = limit }
}

func WithMaxAllocations(n int) Option {
	return func(c *Config) { c.MaxAllocations = n }
}

func WithLeakCheck(enabled bool) Option {
	return func(c *Config) { c.EnableLeakCheck = enabled }
}

func WithAlignment(alignment uintptr) Option {
	return func(c *Config) { c.AlignmentSize = alignment }
}

// NewConfig applies options on top of the defaults.
func NewConfig(options ...Option) *Config {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}
	return config
}

// LoadConfig reads a JSON configuration file. Fields absent from the file
// keep their default values; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read allocator config: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse allocator config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects configurations no allocator can honour.
func (c *Config) Validate() error {
	if c.AlignmentSize == 0 || c.AlignmentSize&(c.AlignmentSize-1) != 0 {
		return fmt.Errorf("alignment must be a power of two, got %d", c.AlignmentSize)
	}
	if c.MaxAllocations < 0 {
		return fmt.Errorf("max_allocations must not be negative, got %d", c.MaxAllocations)
	}
	return nil
}

// accountedSize is the size charged against the memory limit.
func (c *Config) accountedSize(layout Layout) uintptr {
	granule := c.AlignmentSize
	if granule == 0 || layout.Align > granule {
		granule = layout.Align
	}
	return alignUp(layout.Size, granule)
}
