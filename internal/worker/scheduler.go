package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type QuotaRenewer interface {
	RenewDueQuotas(ctx context.Context, now time.Time) (int64, error)
}

type RenewalRecorder interface {
	QuotaRenewed(n int64)
}

// RenewalScheduler periodically resets the monthly usage of starter
// subscriptions whose renewal date has passed.
type RenewalScheduler struct {
	cron     *cron.Cron
	renewer  QuotaRenewer
	recorder RenewalRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewRenewalScheduler(schedule string, renewer QuotaRenewer, recorder RenewalRecorder, logger *slog.Logger) (*RenewalScheduler, error) {
	s := &RenewalScheduler{
		cron:     cron.New(),
		renewer:  renewer,
		recorder: recorder,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}
	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Error("Quota renewal failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid renewal schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce renews every due subscription and returns how many were reset.
func (s *RenewalScheduler) RunOnce(ctx context.Context) (int64, error) {
	n, err := s.renewer.RenewDueQuotas(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if s.recorder != nil {
		s.recorder.QuotaRenewed(n)
	}
	if n > 0 {
		s.logger.Info("Quotas renewed", "subscriptions", n)
	}
	return n, nil
}

func (s *RenewalScheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop halts scheduling and waits for a running renewal to finish.
func (s *RenewalScheduler) Stop() {
	<-s.cron.Stop().Done()
}
