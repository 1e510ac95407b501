package ratelimiter

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/pkg/constvars"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultWindow = time.Minute

// TenantQuota is a fixed-window counter in Redis that caps how many export
// jobs a tenant may start per window across every worker replica. The
// in-process token bucket of the source client only protects one replica.
type TenantQuota struct {
	redis    contracts.RedisRepository
	log      *zap.Logger
	maxQuota int
	window   time.Duration
	clock    func() time.Time
}

// NewTenantQuota returns nil when no quota is configured.
func NewTenantQuota(redis contracts.RedisRepository, cfg *config.InternalConfig, log *zap.Logger) *TenantQuota {
	if redis == nil || cfg.Export.TenantJobsPerWindow <= 0 {
		return nil
	}
	window := time.Duration(cfg.Export.TenantWindowInSeconds) * time.Second
	if window <= 0 {
		window = defaultWindow
	}
	return &TenantQuota{
		redis:    redis,
		log:      log,
		maxQuota: cfg.Export.TenantJobsPerWindow,
		window:   window,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// Allow counts one job for tenantID. When the quota is spent it returns false
// with the time left until the next window.
func (q *TenantQuota) Allow(ctx context.Context, tenantID string) (bool, time.Duration, error) {
	tenant := strings.ToLower(strings.TrimSpace(tenantID))
	if tenant == "" {
		return false, q.window, fmt.Errorf("tenant quota: empty tenant id")
	}

	now := q.clock()
	windowSec := int64(q.window / time.Second)
	windowID := now.Unix() / windowSec
	key := fmt.Sprintf(constvars.RedisTenantQuotaKeyFormat, tenant, windowID)

	count, err := q.redis.IncrementWithTTL(ctx, key, q.window+time.Second)
	if err != nil {
		q.log.Error("TenantQuota.Allow increment failed",
			zap.String(constvars.LoggingRedisKey, key),
			zap.Error(err),
		)
		return false, 0, err
	}

	if count > q.maxQuota {
		nextWindowStart := time.Unix((windowID+1)*windowSec, 0)
		return false, nextWindowStart.Sub(now), nil
	}
	return true, 0, nil
}
