package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mediapack/internal/batch"
	"mediapack/internal/budget"
	"mediapack/internal/config"
	"mediapack/internal/descriptor"
	"mediapack/internal/hashing"
	"mediapack/internal/jobstore"
	"mediapack/internal/logging"
	"mediapack/internal/sysmon"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	format := cfg.Logging.Format
	if format == "" || format == "auto" {
		format = "json"
		if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
			format = "console"
		}
	}
	return logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: format,
	})
}

// runtime bundles the long-lived collaborators behind one batch run.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	controller   *budget.Controller
	orchestrator *batch.Orchestrator
	store        *jobstore.Store
}

func (r *runtime) close() {
	r.controller.Close()
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (c *commandContext) buildRuntime() (*runtime, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger()
	if err != nil {
		return nil, err
	}

	monitor := sysmon.NewHostMonitor(0)
	controller := budget.New(budget.Config{
		MinWorkers:        cfg.Hashing.MinWorkers,
		MaxWorkers:        cfg.Hashing.MaxWorkers,
		ReservedCores:     cfg.Hashing.ReservedCores,
		UtilizationCutoff: cfg.Hashing.UtilizationCutoff,
	}, monitor)

	algorithm, err := hashing.ParseAlgorithm(cfg.Descriptor.HashAlgorithm)
	if err != nil {
		controller.Close()
		return nil, err
	}
	pipeline := hashing.New(hashing.Options{
		Controller:        controller,
		Monitor:           monitor,
		Algorithm:         algorithm,
		Logger:            logger,
		RebalancePieces:   cfg.Hashing.RebalancePieces,
		RebalanceInterval: time.Duration(cfg.Hashing.RebalanceSeconds) * time.Second,
	})

	var assembler descriptor.Assembler = descriptor.NewBasic(algorithm)
	if cfg.Descriptor.Enriched {
		assembler = descriptor.NewEnriched(algorithm, descriptor.DefaultAnnotation)
	}

	var store *jobstore.Store
	if cfg.Batch.HistoryDB != "" {
		store, err = jobstore.Open(cfg.Batch.HistoryDB)
		if err != nil {
			controller.Close()
			return nil, err
		}
	}

	orchestratorOpts := batch.OrchestratorOptions{
		Pipeline:          pipeline,
		Assembler:         assembler,
		Logger:            logger,
		JobParallelism:    cfg.Batch.JobParallelism,
		MaxPieces:         cfg.Descriptor.MaxPieces,
		OverwriteExisting: cfg.Output.OverwriteExisting,
	}
	if store != nil {
		orchestratorOpts.History = store
	}
	orchestrator, err := batch.NewOrchestrator(orchestratorOpts)
	if err != nil {
		controller.Close()
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		controller:   controller,
		orchestrator: orchestrator,
		store:        store,
	}, nil
}

// jobFor builds a job from a source path and the configured descriptor
// defaults, with flag overrides already applied by the caller.
func (c *commandContext) jobFor(source string) (batch.Job, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return batch.Job{}, err
	}
	expanded, err := config.ExpandPath(source)
	if err != nil {
		return batch.Job{}, err
	}
	job := batch.NewJob(expanded)
	job.OutputDir = cfg.Output.Dir
	job.Options = batch.Options{
		Trackers:       cfg.Descriptor.Trackers,
		Private:        cfg.Descriptor.Private,
		Comment:        cfg.Descriptor.Comment,
		CreatedBy:      cfg.Descriptor.CreatedBy,
		RequireTracker: cfg.Descriptor.RequireTracker,
		PieceLength:    cfg.Descriptor.PieceLength,
	}
	return job, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
