package cache

import (
	"context"
	"strconv"
	"time"

	"tokoerp/backend/internal/domain"
)

// UnitCache holds unit definitions read while walking conversion chains.
type UnitCache interface {
	Get(ctx context.Context, id int64) (*domain.Unit, bool, error)
	Set(ctx context.Context, unit *domain.Unit, ttl time.Duration) error
	Delete(ctx context.Context, ids ...int64) error
}

type NoopUnitCache struct{}

func (NoopUnitCache) Get(_ context.Context, _ int64) (*domain.Unit, bool, error) {
	return nil, false, nil
}

func (NoopUnitCache) Set(_ context.Context, _ *domain.Unit, _ time.Duration) error {
	return nil
}

func (NoopUnitCache) Delete(_ context.Context, _ ...int64) error {
	return nil
}

func unitKey(id int64) string {
	return "unit:" + strconv.FormatInt(id, 10)
}
