package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"Clubs_Hub/internal/metrics"
	"Clubs_Hub/internal/repository/redis"
)

const schedulerLock = "lifecycle-scheduler"

// LifecycleScheduler 按时间推进活动和招新状态；多实例下靠 redis 锁保证同一时刻只有一个实例执行
type LifecycleScheduler struct {
	events      *EventService
	recruitment *RecruitmentService
	lock        *redis.DistLock
	interval    time.Duration
	now         func() time.Time
}

func NewLifecycleScheduler(events *EventService, recruitment *RecruitmentService, lock *redis.DistLock, interval time.Duration) *LifecycleScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LifecycleScheduler{events: events, recruitment: recruitment, lock: lock, interval: interval, now: time.Now}
}

func (s *LifecycleScheduler) Run(ctx context.Context) error {
	logger := log.With().Str("component", "lifecycle-scheduler").Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Dur("interval", s.interval).Msg("scheduler started")
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler stopped")
			return nil
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				logger.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// SweepOnce 返回是否拿到锁并执行
func (s *LifecycleScheduler) SweepOnce(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := s.lock.Acquire(ctx, schedulerLock, token, s.interval)
	if err != nil {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return false, err
	}
	if !ok {
		metrics.SchedulerSweepsTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), schedulerLock, token); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("release scheduler lock failed")
		}
	}()

	now := s.now().UTC()
	started, err := s.events.StartDue(ctx, now)
	if err != nil {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return true, err
	}
	closed, err := s.events.CloseOverdue(ctx, now)
	if err != nil {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return true, err
	}
	if err := s.recruitment.SyncWindows(ctx, now); err != nil {
		metrics.SchedulerSweepsTotal.WithLabelValues("error").Inc()
		return true, err
	}
	metrics.SchedulerSweepsTotal.WithLabelValues("ran").Inc()
	if started+closed > 0 {
		log.Ctx(ctx).Info().Int("started", started).Int("closed", closed).Msg("sweep finished")
	}
	return true, nil
}
