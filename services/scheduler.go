package services

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"blindshake_server/models"
)

// Schedules maps each sweep kind to a cron spec such as "@every 5m".
// An empty spec disables that sweep.
type Schedules struct {
	Pool      string
	Archive   string
	Retention string
	Stats     string
}

func DefaultSchedules() Schedules {
	return Schedules{
		Pool:      "@every 1m",
		Archive:   "@every 5m",
		Retention: "@every 24h",
		Stats:     "@every 24h",
	}
}

// Scheduler runs the sweeps on their schedules. A sweep still running when
// its next tick fires is skipped, so passes of one kind never overlap.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	logger  *slog.Logger
}

func NewScheduler(sweeper *Sweeper, schedules Schedules, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s := &Scheduler{cron: c, sweeper: sweeper, logger: logger}

	jobs := []struct {
		kind string
		spec string
	}{
		{models.SweepPool, schedules.Pool},
		{models.SweepArchive, schedules.Archive},
		{models.SweepRetention, schedules.Retention},
		{models.SweepStats, schedules.Stats},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		kind := j.kind
		if _, err := c.AddFunc(j.spec, func() { s.run(kind) }); err != nil {
			return nil, errors.Wrapf(err, "invalid schedule %q for %s sweep", j.spec, kind)
		}
		logger.Info("sweep scheduled", "kind", kind, "schedule", j.spec)
	}
	return s, nil
}

func (s *Scheduler) run(kind string) {
	if _, err := s.sweeper.RunSweep(context.Background(), kind, false); err != nil {
		s.logger.Error("scheduled sweep failed", "kind", kind, "error", err)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running sweeps until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
