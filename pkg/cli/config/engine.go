package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/moderato/pkg/service/worker"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Engine tunes the state machine and the expiry sweeper
type Engine struct {
	sweepInterval    time.Duration
	sweepConcurrency int
	externalTimeout  time.Duration
}

func (x *Engine) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Interval between expiry sweeps",
			Category:    "Engine",
			Value:       worker.DefaultSweepInterval,
			Destination: &x.sweepInterval,
			Sources:     cli.EnvVars("MODERATO_SWEEP_INTERVAL"),
		},
		&cli.IntFlag{
			Name:        "sweep-concurrency",
			Usage:       "Maximum number of records expired in parallel",
			Category:    "Engine",
			Value:       worker.DefaultSweepConcurrency,
			Destination: &x.sweepConcurrency,
			Sources:     cli.EnvVars("MODERATO_SWEEP_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:        "external-timeout",
			Usage:       "Timeout of each call to a chat platform",
			Category:    "Engine",
			Value:       usecase.DefaultExternalTimeout,
			Destination: &x.externalTimeout,
			Sources:     cli.EnvVars("MODERATO_EXTERNAL_TIMEOUT"),
		},
	}
}

func (x Engine) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("sweep-interval", x.sweepInterval),
		slog.Int("sweep-concurrency", x.sweepConcurrency),
		slog.Duration("external-timeout", x.externalTimeout),
	)
}

// UseCaseOptions returns the usecase options derived from the flags
func (x *Engine) UseCaseOptions() []usecase.Option {
	return []usecase.Option{usecase.WithExternalTimeout(x.externalTimeout)}
}

// SweeperOptions returns the sweeper options derived from the flags
func (x *Engine) SweeperOptions() []worker.SweeperOption {
	return []worker.SweeperOption{
		worker.WithInterval(x.sweepInterval),
		worker.WithConcurrency(x.sweepConcurrency),
	}
}
