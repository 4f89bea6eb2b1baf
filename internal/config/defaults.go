package config

const (
	defaultOutputDir         = "~/mediapack"
	defaultCreatedBy         = "mediapack"
	defaultMaxPieces         = 1500
	defaultHashAlgorithm     = "sha1"
	defaultMinWorkers        = 1
	defaultReservedCores     = 1
	defaultUtilizationCutoff = 85
	defaultRebalancePieces   = 256
	defaultRebalanceSeconds  = 2
	defaultJobParallelism    = 1
	defaultLockTimeout       = 10
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Output: Output{
			Dir: defaultOutputDir,
		},
		Descriptor: Descriptor{
			CreatedBy:     defaultCreatedBy,
			MaxPieces:     defaultMaxPieces,
			HashAlgorithm: defaultHashAlgorithm,
		},
		Hashing: Hashing{
			MinWorkers:        defaultMinWorkers,
			ReservedCores:     defaultReservedCores,
			UtilizationCutoff: defaultUtilizationCutoff,
			RebalancePieces:   defaultRebalancePieces,
			RebalanceSeconds:  defaultRebalanceSeconds,
		},
		Batch: Batch{
			JobParallelism: defaultJobParallelism,
			LockTimeout:    defaultLockTimeout,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
