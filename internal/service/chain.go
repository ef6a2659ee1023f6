package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tokoerp/backend/internal/cache"
	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/store"
	"tokoerp/backend/internal/unitconv"
)

// chainLoader pre-fetches base-unit chains into a unitconv.Chain so the
// conversion engine never touches storage.
type chainLoader struct {
	repo     store.UnitRepository
	cache    cache.UnitCache
	cacheTTL time.Duration
	maxHops  int
	logger   *zap.Logger
}

func newChainLoader(repo store.UnitRepository, unitCache cache.UnitCache, cacheTTL time.Duration, maxDepth int, logger *zap.Logger) *chainLoader {
	if unitCache == nil {
		unitCache = cache.NoopUnitCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	return &chainLoader{
		repo:     repo,
		cache:    unitCache,
		cacheTTL: cacheTTL,
		maxHops:  maxDepth + 1,
		logger:   logger,
	}
}

// unit reads one unit, cache first. A cache failure falls through to the repository.
func (l *chainLoader) unit(ctx context.Context, id int64) (domain.Unit, error) {
	if cached, ok, err := l.cache.Get(ctx, id); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		l.logger.Warn("unit cache read failed", zap.Int64("unit_id", id), zap.Error(err))
	}

	u, err := l.repo.GetUnit(ctx, id)
	if err != nil {
		return domain.Unit{}, err
	}
	if err := l.cache.Set(ctx, u, l.cacheTTL); err != nil {
		l.logger.Warn("unit cache write failed", zap.Int64("unit_id", id), zap.Error(err))
	}
	return *u, nil
}

// load walks the base references of every start unit and adds what it finds
// to chain. Start units are added as given, so a candidate that has not been
// stored yet is traversed in place of its persisted version. The walk stops
// at the root, at a unit already loaded, at a missing reference, or after
// maxHops fetches; the engine reports the actual failure.
func (l *chainLoader) load(ctx context.Context, chain unitconv.Chain, starts ...domain.Unit) error {
	for _, start := range starts {
		chain.Add(start)
	}
	for _, start := range starts {
		next := start.BaseUnitID
		for hops := 0; next != nil && hops < l.maxHops; hops++ {
			if known, ok := chain.Unit(*next); ok {
				next = known.BaseUnitID
				continue
			}
			u, err := l.unit(ctx, *next)
			if errors.Is(err, store.ErrNotFound) {
				break
			}
			if err != nil {
				return err
			}
			chain.Add(u)
			next = u.BaseUnitID
		}
	}
	return nil
}

func (l *chainLoader) invalidate(ctx context.Context, ids ...int64) {
	if err := l.cache.Delete(ctx, ids...); err != nil {
		l.logger.Warn("unit cache invalidation failed", zap.Int64s("unit_ids", ids), zap.Error(err))
	}
}
