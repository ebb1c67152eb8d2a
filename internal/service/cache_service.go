package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/ims-admission-api/internal/models"
	appErrors "github.com/noah-isme/ims-admission-api/pkg/errors"
)

// Admission reads cache under a single prefix so one pattern drop
// invalidates every list and detail view after a committed transition.
const admissionKeyPrefix = "admissions:"

func admissionRecordKey(id string) string {
	return admissionKeyPrefix + "id:" + id
}

func admissionListKey(filter models.AdmissionFilter) string {
	var status, method string
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	if filter.PaymentMethod != nil {
		method = string(*filter.PaymentMethod)
	}

	var builder strings.Builder
	builder.Grow(64)
	builder.WriteString(admissionKeyPrefix + "list")
	for _, part := range []string{
		status,
		method,
		filter.Search,
		filter.SortBy,
		filter.SortOrder,
		strconv.Itoa(filter.Page),
		strconv.Itoa(filter.PageSize),
	} {
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}

// cacheStore is the slice of the Redis repository the cache facade needs.
type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService fronts Redis for admission read models and feeds the hit and
// miss counters. A nil or disabled service degrades to pass-through, so
// callers never branch on cache availability.
type CacheService struct {
	store      cacheStore
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService wires the cache facade. MetricsService methods tolerate a
// nil receiver, so only the logger needs normalizing here.
func NewCacheService(store cacheStore, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{
		store:      store,
		metrics:    metrics,
		defaultTTL: defaultTTL,
		logger:     logger,
		enabled:    enabled,
	}
}

// Enabled reports whether reads and writes reach Redis at all.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil
}

// Get loads a cached entry into dest and reports whether it was a hit. A
// miss and a broken cache both come back false; only the latter carries an
// error, and the read paths treat both as "go to Postgres".
func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	start := time.Now()
	err := s.store.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if errors.Is(err, appErrors.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		s.logger.Warn("cache read", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Set writes through with the default TTL unless the caller picked one.
func (s *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.store.Set(ctx, key, value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache write", zap.String("key", key), zap.Error(err))
	}
	return err
}

// Invalidate drops every key matching the pattern.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) error {
	if !s.Enabled() {
		return nil
	}
	if err := s.store.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

// InvalidateAdmissions drops every cached admission read.
func (s *CacheService) InvalidateAdmissions(ctx context.Context) error {
	return s.Invalidate(ctx, admissionKeyPrefix+"*")
}
