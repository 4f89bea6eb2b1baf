package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDescriptor(); err != nil {
		return err
	}
	if err := c.validateHashing(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDescriptor() error {
	switch c.Descriptor.HashAlgorithm {
	case "sha1", "blake3":
	default:
		return fmt.Errorf("descriptor.hash_algorithm must be sha1 or blake3, got %q", c.Descriptor.HashAlgorithm)
	}
	if c.Descriptor.MaxPieces <= 0 {
		return errors.New("descriptor.max_pieces must be positive")
	}
	if c.Descriptor.PieceLength != 0 {
		if c.Descriptor.PieceLength&(c.Descriptor.PieceLength-1) != 0 {
			return errors.New("descriptor.piece_length must be a power of two")
		}
		if c.Descriptor.PieceLength < 1<<14 || c.Descriptor.PieceLength > 1<<24 {
			return errors.New("descriptor.piece_length must be between 16 KiB and 16 MiB")
		}
	}
	if c.Descriptor.RequireTracker && len(c.Descriptor.Trackers) == 0 {
		return errors.New("descriptor.require_tracker is set but descriptor.trackers is empty")
	}
	for _, tracker := range c.Descriptor.Trackers {
		if !strings.Contains(tracker, "://") {
			return fmt.Errorf("descriptor.trackers entry %q is not a URL", tracker)
		}
	}
	return nil
}

func (c *Config) validateHashing() error {
	if c.Hashing.MinWorkers < 1 {
		return errors.New("hashing.min_workers must be at least 1")
	}
	if c.Hashing.MaxWorkers < 0 {
		return errors.New("hashing.max_workers must not be negative")
	}
	if c.Hashing.MaxWorkers > 0 && c.Hashing.MaxWorkers < c.Hashing.MinWorkers {
		return errors.New("hashing.max_workers must not be below hashing.min_workers")
	}
	if c.Hashing.ReservedCores < 0 {
		return errors.New("hashing.reserved_cores must not be negative")
	}
	if c.Hashing.UtilizationCutoff <= 0 || c.Hashing.UtilizationCutoff > 100 {
		return errors.New("hashing.utilization_cutoff must be in (0, 100]")
	}
	if c.Hashing.RebalancePieces <= 0 {
		return errors.New("hashing.rebalance_pieces must be positive")
	}
	if c.Hashing.RebalanceSeconds <= 0 {
		return errors.New("hashing.rebalance_seconds must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.JobParallelism < 1 {
		return errors.New("batch.job_parallelism must be at least 1")
	}
	if c.Batch.LockTimeout <= 0 {
		return errors.New("batch.lock_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console, or json, got %q", c.Logging.Format)
	}
	return nil
}
