package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"

	"github.com/orizon-lang/sharedref/internal/allocator"
	"github.com/orizon-lang/sharedref/internal/logger"
)

// Version information for all CLI tools
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-16"
)

// CommitSHA is set at link time with -ldflags "-X".
var CommitSHA = "unknown"

// VersionInfo contains version and build information
type VersionInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	CommitSHA string `json:"commit_sha"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Arch      string `json:"arch"`
}

// GetVersionInfo returns structured version information
func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   Version,
		BuildDate: BuildDate,
		CommitSHA: CommitSHA,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// PrintVersion writes version information in a consistent format
func PrintVersion(w io.Writer, toolName string, jsonOutput bool) {
	info := GetVersionInfo()

	if jsonOutput {
		data, err := json.MarshalIndent(map[string]interface{}{
			"tool":         toolName,
			"version_info": info,
		}, "", "  ")
		if err == nil {
			fmt.Fprintln(w, string(data))
			return
		}
		// Fallback to plain text if JSON marshaling fails
		logger.Warn("failed to marshal version info", "error", err)
	}

	fmt.Fprintf(w, "%s v%s\n", toolName, info.Version)
	fmt.Fprintf(w, "Build Date: %s\n", info.BuildDate)
	if info.CommitSHA != "unknown" && info.CommitSHA != "" {
		fmt.Fprintf(w, "Commit: %s\n", info.CommitSHA)
	}
	fmt.Fprintf(w, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(w, "Platform: %s/%s\n", info.Platform, info.Arch)
}

// ExitWithError logs an error message and exits with code 1
func ExitWithError(format string, args ...interface{}) {
	ExitWithCode(1, "Error: "+format, args...)
}

// ExitWithCode exits with the specified code and optional message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// Config represents common configuration for CLI tools
type Config struct {
	Verbose   bool              `json:"verbose"`
	Debug     bool              `json:"debug"`
	LogFormat string            `json:"log_format"`
	LogLevel  string            `json:"log_level,omitempty"`
	Allocator string            `json:"allocator"`
	Memory    *allocator.Config `json:"memory"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		LogFormat: "text",
		Allocator: allocator.SystemAllocatorKind.String(),
		Memory:    allocator.DefaultConfig(),
	}
}

// LoadConfig loads configuration from file. Fields absent from the file keep
// their defaults, including those of the memory section.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil // Default config if file doesn't exist
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Memory == nil {
		config.Memory = allocator.DefaultConfig()
	}
	if err := config.Memory.Validate(); err != nil {
		return nil, fmt.Errorf("invalid memory section: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func (c *Config) SaveConfig(configPath string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SetupLogging routes the shared logger to stderr. An explicit LogLevel
// wins; otherwise Verbose enables info output and Debug lowers the level
// further. With none of them only warnings and errors are shown.
func (c *Config) SetupLogging() {
	level := slog.LevelWarn
	switch {
	case c.LogLevel != "":
		level = logger.ParseLevel(c.LogLevel)
	case c.Debug:
		level = slog.LevelDebug
	case c.Verbose:
		level = slog.LevelInfo
	}

	logger.Init(logger.Options{
		Enabled: true,
		Level:   level,
		Format:  c.LogFormat,
		Output:  os.Stderr,
	})
}

// HandleError logs err and exits when it is non-nil
func HandleError(err error) {
	if err != nil {
		logger.Error("fatal", "error", err)
		ExitWithError("%v", err)
	}
}
