// Package probe implements the driftprobe agent: it measures ICMP
// round-trip times to a target host and feeds them to a DriftWatch
// server as drift-monitor observations.
package probe

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"go.uber.org/zap"
)

// Config holds the probe agent settings.
type Config struct {
	// ServerURL is the DriftWatch server base URL, e.g. http://localhost:8080.
	ServerURL string
	// APIKey is exchanged for an access token. Empty disables auth.
	APIKey string
	// Target is the host to ping.
	Target string
	// MonitorID identifies an existing monitor to feed. When empty, the
	// agent collects BaselineSamples RTTs, creates a monitor named
	// MonitorName, and then streams to it.
	MonitorID   string
	MonitorName string

	Interval        time.Duration
	PingTimeout     time.Duration
	BatchSize       int
	BaselineSamples int
}

// Agent measures RTTs and ships them to the server.
type Agent struct {
	cfg    Config
	api    *apiClient
	logger *zap.Logger

	// sample measures one RTT in milliseconds. Overridable in tests.
	sample func(ctx context.Context) (float64, error)
}

// NewAgent creates a probe agent.
func NewAgent(cfg Config, logger *zap.Logger) *Agent {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BaselineSamples <= 0 {
		cfg.BaselineSamples = 500
	}
	a := &Agent{
		cfg:    cfg,
		api:    newAPIClient(cfg.ServerURL, cfg.APIKey),
		logger: logger,
	}
	a.sample = a.pingOnce
	return a
}

// Run executes the probe loop until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	monitorID := a.cfg.MonitorID
	if monitorID == "" {
		id, err := a.bootstrap(ctx)
		if err != nil {
			return fmt.Errorf("bootstrap monitor: %w", err)
		}
		monitorID = id
	}

	a.logger.Info("probe streaming observations",
		zap.String("target", a.cfg.Target),
		zap.String("monitor_id", monitorID),
		zap.Duration("interval", a.cfg.Interval),
	)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	batch := make([]float64, 0, a.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			// Flush what we have before exiting.
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if _, err := a.api.sendObservations(flushCtx, monitorID, batch); err != nil {
					a.logger.Warn("final flush failed", zap.Error(err))
				}
			}
			return ctx.Err()
		case <-ticker.C:
			rtt, err := a.sample(ctx)
			if err != nil {
				a.logger.Debug("ping failed", zap.String("target", a.cfg.Target), zap.Error(err))
				continue
			}
			batch = append(batch, rtt)
			if len(batch) < a.cfg.BatchSize {
				continue
			}

			res, err := a.api.sendObservations(ctx, monitorID, batch)
			if err != nil {
				a.logger.Warn("failed to send observations", zap.Error(err))
				// Keep the batch and retry with the next sample.
				continue
			}
			batch = batch[:0]
			if res.State.Drift {
				a.logger.Warn("server reports sustained drift",
					zap.String("monitor_id", monitorID),
					zap.Int("consecutive_violations", res.State.ConsecutiveViolations),
				)
			}
		}
	}
}

// bootstrap collects baseline RTTs and creates a monitor from them.
func (a *Agent) bootstrap(ctx context.Context) (string, error) {
	name := a.cfg.MonitorName
	if name == "" {
		name = "rtt:" + a.cfg.Target
	}

	a.logger.Info("collecting baseline",
		zap.String("target", a.cfg.Target),
		zap.Int("samples", a.cfg.BaselineSamples),
	)

	baseline := make([]float64, 0, a.cfg.BaselineSamples)
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()
	for len(baseline) < a.cfg.BaselineSamples {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			rtt, err := a.sample(ctx)
			if err != nil {
				a.logger.Debug("ping failed during baseline", zap.Error(err))
				continue
			}
			baseline = append(baseline, rtt)
		}
	}

	info, err := a.api.createMonitor(ctx, name, "icmp_rtt_ms", baseline)
	if err != nil {
		return "", err
	}
	a.logger.Info("monitor created",
		zap.String("monitor_id", info.ID),
		zap.String("name", info.Name),
	)
	return info.ID, nil
}

// pingOnce sends a single ICMP echo and returns the RTT in milliseconds.
func (a *Agent) pingOnce(ctx context.Context) (float64, error) {
	pinger, err := probing.NewPinger(a.cfg.Target)
	if err != nil {
		return 0, fmt.Errorf("create pinger: %w", err)
	}
	pinger.Count = 1
	pinger.Timeout = a.cfg.PingTimeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan struct{})
	var runErr error
	go func() {
		runErr = pinger.Run()
		close(done)
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return 0, ctx.Err()
	case <-done:
	}
	if runErr != nil {
		return 0, fmt.Errorf("ping %s: %w", a.cfg.Target, runErr)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("ping %s: no reply", a.cfg.Target)
	}
	return float64(stats.AvgRtt) / float64(time.Millisecond), nil
}
