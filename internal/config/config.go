package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Output contains destination configuration for descriptor files.
type Output struct {
	Dir               string `toml:"dir"`
	OverwriteExisting bool   `toml:"overwrite_existing"`
}

// Descriptor contains the options baked into every assembled descriptor.
type Descriptor struct {
	Trackers       []string `toml:"trackers"`
	Private        bool     `toml:"private"`
	Comment        string   `toml:"comment"`
	CreatedBy      string   `toml:"created_by"`
	RequireTracker bool     `toml:"require_tracker"`
	PieceLength    int64    `toml:"piece_length"` // 0 selects automatically
	MaxPieces      int      `toml:"max_pieces"`
	HashAlgorithm  string   `toml:"hash_algorithm"`
	Enriched       bool     `toml:"enriched"`
}

// Hashing contains worker-pool sizing and rebalance configuration.
type Hashing struct {
	MinWorkers        int     `toml:"min_workers"`
	MaxWorkers        int     `toml:"max_workers"` // 0 means host core count
	ReservedCores     int     `toml:"reserved_cores"`
	UtilizationCutoff float64 `toml:"utilization_cutoff"`
	RebalancePieces   int     `toml:"rebalance_pieces"`
	RebalanceSeconds  int     `toml:"rebalance_seconds"`
}

// Batch contains orchestration configuration.
type Batch struct {
	JobParallelism int    `toml:"job_parallelism"`
	HistoryDB      string `toml:"history_db"` // empty disables job history
	LockTimeout    int    `toml:"lock_timeout_seconds"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console, json, or auto
}

// Config is the root configuration document.
type Config struct {
	Output     Output     `toml:"output"`
	Descriptor Descriptor `toml:"descriptor"`
	Hashing    Hashing    `toml:"hashing"`
	Batch      Batch      `toml:"batch"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mediapack/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mediapack.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return err
	}
	if c.Batch.HistoryDB != "" {
		if c.Batch.HistoryDB, err = expandPath(c.Batch.HistoryDB); err != nil {
			return err
		}
	}
	c.Descriptor.HashAlgorithm = strings.ToLower(strings.TrimSpace(c.Descriptor.HashAlgorithm))
	trackers := make([]string, 0, len(c.Descriptor.Trackers))
	for _, tracker := range c.Descriptor.Trackers {
		if trimmed := strings.TrimSpace(tracker); trimmed != "" {
			trackers = append(trackers, trimmed)
		}
	}
	c.Descriptor.Trackers = trackers
	return nil
}

// EnsureDirectories creates the output directory and the history database
// parent when job history is enabled.
func (c *Config) EnsureDirectories() error {
	if strings.TrimSpace(c.Output.Dir) != "" {
		if err := os.MkdirAll(c.Output.Dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", c.Output.Dir, err)
		}
	}
	if strings.TrimSpace(c.Batch.HistoryDB) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Batch.HistoryDB), 0o755); err != nil {
			return fmt.Errorf("create history directory %q: %w", filepath.Dir(c.Batch.HistoryDB), err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
