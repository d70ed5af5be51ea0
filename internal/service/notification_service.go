package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/pkg/jobs"
	"github.com/noah-isme/oncall-api/pkg/notify"
)

const transitionJobType = "shift_transition"

// NotificationService decouples transition delivery from the scheduling
// tick: transitions are enqueued onto a worker queue and delivered through
// the configured sink under a per-dispatch deadline. A slow or failing sink
// can never stall arming or disarming.
type NotificationService struct {
	sink    notify.Sink
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService builds the dispatcher around a sink.
func NewNotificationService(sink notify.Sink, dispatchTimeout time.Duration, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		sink:    sink,
		metrics: metrics,
		logger:  logger,
	}
	svc.queue = jobs.NewQueue("notifications", svc.handle, jobs.QueueConfig{
		Workers:    1,
		JobTimeout: dispatchTimeout,
		Logger:     logger,
	})
	return svc
}

// Start begins queue consumption.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch enqueues a transition for delivery.
func (s *NotificationService) Dispatch(transition models.ShiftTransition) error {
	return s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    transitionJobType,
		Payload: transition,
	})
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	transition, ok := job.Payload.(models.ShiftTransition)
	if !ok {
		return fmt.Errorf("unexpected payload type for job %s", job.ID)
	}

	if err := s.sink.Deliver(ctx, transition); err != nil {
		s.metrics.ObserveDispatch("failure")
		s.logger.Error("notification delivery failed",
			zap.String("layer", transition.LayerKey),
			zap.Time("occurrence", transition.Occurrence),
			zap.Error(err),
		)
		// Reported, not retried: retry policy belongs to the sink's
		// own client and the occurrence already counts as fired.
		return nil
	}

	s.metrics.ObserveDispatch("success")
	return nil
}

// FiredGuard deduplicates occurrence firing across process restarts with a
// Redis SETNX marker. The in-memory state machine already prevents duplicate
// firing within one process; the guard extends that across rebuilds.
type FiredGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewFiredGuard builds the guard. A nil client disables it.
func NewFiredGuard(client *redis.Client, logger *zap.Logger) *FiredGuard {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FiredGuard{client: client, ttl: 72 * time.Hour, logger: logger}
}

// FirstFire claims the occurrence marker. On Redis failure it reports true:
// a duplicate notification beats a silently missed one.
func (g *FiredGuard) FirstFire(ctx context.Context, layerKey string, occurrence time.Time) bool {
	if g == nil {
		return true
	}
	key := fmt.Sprintf("oncall:fired:%s:%s", layerKey, occurrence.UTC().Format(time.RFC3339))
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		g.logger.Warn("fired guard unavailable", zap.Error(err))
		return true
	}
	return ok
}
