package telemetry

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig points the Pyroscope agent at a server, e.g.
// http://pyroscope:4040
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Profiler streams CPU, allocation and goroutine profiles to Pyroscope
type Profiler struct {
	agent    *pyroscope.Profiler
	stopOnce sync.Once
	stopErr  error
}

var errProfilerConfig = errors.New("profiler server address and application name are required when profiling is enabled")

// NewProfiler starts the agent. A disabled profiler does nothing.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if !cfg.Enabled {
		return &Profiler{}, nil
	}
	if cfg.ServerAddress == "" || cfg.ApplicationName == "" {
		return nil, errProfilerConfig
	}

	agent, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          logger.Named("pyroscope").Sugar(),
		Tags:            profileTags(),
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	logger.Info("Profiling enabled",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName))
	return &Profiler{agent: agent}, nil
}

func profileTags() map[string]string {
	tags := map[string]string{}
	if host := os.Getenv("HOSTNAME"); host != "" {
		tags["hostname"] = host
	}
	return tags
}

// Stop flushes pending profiles; later calls return the first result
func (p *Profiler) Stop() error {
	p.stopOnce.Do(func() {
		if p.agent != nil {
			if err := p.agent.Stop(); err != nil {
				p.stopErr = fmt.Errorf("failed to stop profiler: %w", err)
			}
		}
	})
	return p.stopErr
}

func (p *Profiler) IsEnabled() bool { return p.agent != nil }
