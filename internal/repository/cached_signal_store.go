package repository

import (
	"context"
	"errors"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"
)

const signalsCachePrefix = "signals:"

var (
	latestCacheKey           = cache.GenerateKey("signals", "latest")
	latestNormalizedCacheKey = cache.GenerateKeyWithParams("signals", "latest", "normalized")
)

// CachedSignalStore serves latest-snapshot reads from a cache and drops the
// cached copies on every save. History reads always go to the inner store.
type CachedSignalStore struct {
	inner domrepo.SignalStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedSignalStore(inner domrepo.SignalStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedSignalStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedSignalStore{inner: inner, cache: c, ttl: ttl, l: l.Component("signal_cache")}
}

func (s *CachedSignalStore) Save(ctx context.Context, signals []models.Signal) (string, error) {
	ts, err := s.inner.Save(ctx, signals)
	// the snapshot may have been replaced even when the append failed
	s.Invalidate(ctx)
	return ts, err
}

func (s *CachedSignalStore) ReadLatest(ctx context.Context) (models.LatestSnapshot, error) {
	return readThrough(ctx, s, latestCacheKey, s.inner.ReadLatest)
}

func (s *CachedSignalStore) ReadLatestNormalized(ctx context.Context) (models.SignalsResponse, error) {
	return readThrough(ctx, s, latestNormalizedCacheKey, s.inner.ReadLatestNormalized)
}

func (s *CachedSignalStore) ReadHistory(ctx context.Context, symbol string, limit int) ([]models.NormalizedSignal, error) {
	return s.inner.ReadHistory(ctx, symbol, limit)
}

// Invalidate drops every cached snapshot. Used after an out-of-process job
// rewrote the files.
func (s *CachedSignalStore) Invalidate(ctx context.Context) {
	if err := s.cache.DeleteByPattern(ctx, cache.BuildPattern(signalsCachePrefix)); err != nil {
		s.l.Warn("cache invalidation failed", applogger.Error(err))
	}
}

func readThrough[T any](ctx context.Context, s *CachedSignalStore, key string, load func(context.Context) (T, error)) (T, error) {
	if s.ttl > 0 {
		v, err := cache.GetTyped[T](ctx, s.cache, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.l.Warn("cache read failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if s.ttl > 0 {
		if err := s.cache.Set(ctx, key, v, s.ttl); err != nil {
			s.l.Warn("cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return v, nil
}

var _ domrepo.SignalStore = (*CachedSignalStore)(nil)
