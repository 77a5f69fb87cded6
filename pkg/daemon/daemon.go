// Package daemon periodically re-evaluates an InSpec results file and keeps
// a Prometheus textfile up to date.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nelssec/aso-compliance/pkg/compliance"
	"github.com/nelssec/aso-compliance/pkg/inspec"
	"github.com/nelssec/aso-compliance/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

type Config struct {
	Interval        time.Duration
	ResultsPath     string
	MetricsFile     string
	Frameworks      []string
	Mapper          *compliance.Mapper
	Logger          *slog.Logger
	ResultsCallback func(*Cycle)
}

// Cycle is the outcome of one evaluation.
type Cycle struct {
	Time       time.Time
	Compliance map[string]*compliance.ComplianceReport
	Coverage   map[string]*compliance.CoverageReport
}

type Daemon struct {
	config  Config
	logger  *slog.Logger
	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
}

func New(cfg Config) (*Daemon, error) {
	if cfg.Mapper == nil {
		return nil, errors.New("mapper is required")
	}
	if cfg.ResultsPath == "" {
		return nil, errors.New("results path is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "daemon")
	}

	return &Daemon{
		config: cfg,
		logger: logger,
	}, nil
}

// Start runs a cycle immediately and then on every tick until Stop is called
// or ctx is done. A failed cycle is logged and retried on the next tick. A
// stopped daemon may be started again.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	stopCh := make(chan struct{})
	d.stopCh = stopCh
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.stopCh = nil
		d.mu.Unlock()
	}()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	d.logger.Info("daemon started", "interval", d.config.Interval, "results", d.config.ResultsPath)

	if err := d.RunCycle(ctx); err != nil {
		d.logger.Error("initial cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			if err := d.RunCycle(ctx); err != nil {
				d.logger.Error("cycle failed", "error", err)
			}
		}
	}
}

// Stop asks a running Start to return. It is a no-op otherwise.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopCh != nil {
		close(d.stopCh)
		d.stopCh = nil
	}
}

func (d *Daemon) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// RunCycle evaluates the results file once.
func (d *Daemon) RunCycle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	report, err := inspec.ParseFile(d.config.ResultsPath)
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}

	reports, err := d.config.Mapper.GenerateComplianceReport(report.Results(), d.config.Frameworks)
	if err != nil {
		return err
	}

	cycle := &Cycle{
		Time:       time.Now().UTC(),
		Compliance: reports,
		Coverage:   d.config.Mapper.ValidateFrameworkCoverage(report.ProfileControlIDs(), d.config.Frameworks),
	}

	if d.config.MetricsFile != "" {
		recorder := metrics.NewRecorder()
		recorder.RecordCompliance(cycle.Compliance)
		recorder.RecordCoverage(cycle.Coverage)
		if err := recorder.WriteTextfile(d.config.MetricsFile); err != nil {
			return err
		}
	}

	d.logger.Debug("cycle complete", "frameworks", len(cycle.Compliance))

	if d.config.ResultsCallback != nil {
		d.config.ResultsCallback(cycle)
	}
	return nil
}
