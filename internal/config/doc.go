// Package config loads, validates, and defaults the TOML configuration that
// drives descriptor assembly, hashing concurrency, and batch orchestration.
package config
