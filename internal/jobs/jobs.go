// Package jobs runs the periodic maintenance of the booking engine: eager
// expiry of lapsed holds and no-show marking.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Maintainer is the part of booking.Service the jobs drive.
type Maintainer interface {
	SweepExpiredHolds(ctx context.Context) (int, error)
	MarkNoShows(ctx context.Context) (int, error)
}

// Config holds the cron specs and the lease duration.  A lease shorter
// than the sweep interval lets another instance take over promptly.
type Config struct {
	HoldSweepSpec string
	NoShowSpec    string
	LeaseTTL      time.Duration
	Timeout       time.Duration // per run
}

const (
	holdSweepLease = "hold-sweep"
	noShowLease    = "no-show"
)

// Scheduler owns the cron instance.
type Scheduler struct {
	cron   *cron.Cron
	svc    Maintainer
	locker Locker
	cfg    Config
	log    logrus.FieldLogger
}

// New registers both jobs.  locker may be nil, in which case every
// instance runs every job; the booking transactions keep that correct.
func New(svc Maintainer, locker Locker, cfg Config, log logrus.FieldLogger) (*Scheduler, error) {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 50 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	s := &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		svc:    svc,
		locker: locker,
		cfg:    cfg,
		log:    log.WithField("component", "jobs"),
	}
	if _, err := s.cron.AddFunc(cfg.HoldSweepSpec, func() { s.SweepHolds(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule hold sweep %q: %w", cfg.HoldSweepSpec, err)
	}
	if _, err := s.cron.AddFunc(cfg.NoShowSpec, func() { s.MarkNoShows(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule no-show job %q: %w", cfg.NoShowSpec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// lease reports whether this instance should run the job now.  A failing
// Redis does not stop the job.
func (s *Scheduler) lease(ctx context.Context, key string) bool {
	if s.locker == nil {
		return true
	}
	ok, err := s.locker.Acquire(ctx, key, s.cfg.LeaseTTL)
	if err != nil {
		s.log.WithError(err).Warn("lease unavailable; running anyway")
		return true
	}
	return ok
}

// SweepHolds expires lapsed holds once.
func (s *Scheduler) SweepHolds(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if !s.lease(ctx, holdSweepLease) {
		return
	}
	n, err := s.svc.SweepExpiredHolds(ctx)
	entry := s.log.WithFields(logrus.Fields{"job": holdSweepLease, "expired": n})
	if err != nil {
		entry.WithError(err).Error("hold sweep failed")
		return
	}
	if n > 0 {
		entry.Info("expired holds swept")
	}
}

// MarkNoShows marks overdue bookings once.
func (s *Scheduler) MarkNoShows(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if !s.lease(ctx, noShowLease) {
		return
	}
	n, err := s.svc.MarkNoShows(ctx)
	entry := s.log.WithFields(logrus.Fields{"job": noShowLease, "marked": n})
	if err != nil {
		entry.WithError(err).Error("no-show job failed")
		return
	}
	if n > 0 {
		entry.Info("bookings marked no-show")
	}
}
