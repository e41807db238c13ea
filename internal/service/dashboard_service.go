package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cmcs-platform/claims-api/internal/dto"
	appErrors "github.com/cmcs-platform/claims-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:hr"

type dashboardRepository interface {
	DashboardStats(ctx context.Context) (*dto.HRDashboardResponse, error)
}

// dashboardInvalidator is implemented by DashboardService and wired into the
// services whose mutations change the cached counters.
type dashboardInvalidator interface {
	Invalidate(ctx context.Context)
}

// DashboardService serves the HR landing page counters with a cache-aside
// Redis layer. A cold or unavailable cache falls through to the database.
type DashboardService struct {
	repo    dashboardRepository
	redis   *redis.Client
	metrics *MetricsService
	logger  *zap.Logger
	ttl     time.Duration
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(repo dashboardRepository, redisClient *redis.Client, metrics *MetricsService, logger *zap.Logger, ttl time.Duration) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &DashboardService{repo: repo, redis: redisClient, metrics: metrics, logger: logger, ttl: ttl}
}

// Stats returns the dashboard counters, cached for the configured TTL.
func (s *DashboardService) Stats(ctx context.Context) (*dto.HRDashboardResponse, error) {
	if s.redis != nil {
		start := time.Now()
		cached, err := s.redis.Get(ctx, dashboardCacheKey).Bytes()
		if err == nil {
			var stats dto.HRDashboardResponse
			if jsonErr := json.Unmarshal(cached, &stats); jsonErr == nil {
				s.metrics.RecordCacheOperation(true, time.Since(start))
				return &stats, nil
			}
		}
		s.metrics.RecordCacheOperation(false, time.Since(start))
	}

	stats, err := s.repo.DashboardStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard stats")
	}

	if s.redis != nil {
		if payload, err := json.Marshal(stats); err == nil {
			if err := s.redis.Set(ctx, dashboardCacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn("failed to cache dashboard stats", zap.Error(err))
			}
		}
	}

	return stats, nil
}

// Invalidate drops the cached counters, called after mutations that change them.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, dashboardCacheKey).Err(); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}
