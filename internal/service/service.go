package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tokoerp/backend/internal/cache"
	"tokoerp/backend/internal/domain"
	"tokoerp/backend/internal/store"
	"tokoerp/backend/internal/unitconv"
)

var (
	ErrForbidden = errors.New("permission denied")
	ErrUnitInUse = errors.New("unit is the base unit of an active unit")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	CacheTTL time.Duration
	MaxDepth int
	Guard    string
}

type Service struct {
	repo     store.Repository
	chains   *chainLoader
	maxDepth int
	guard    string
	logger   *zap.Logger
}

func New(repo store.Repository, unitCache cache.UnitCache, logger *zap.Logger, opts Options) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = unitconv.DefaultMaxDepth
	}
	opts.Guard = strings.TrimSpace(opts.Guard)
	if opts.Guard == "" {
		opts.Guard = domain.DefaultGuard
	}

	return &Service{
		repo:     repo,
		chains:   newChainLoader(repo, unitCache, opts.CacheTTL, opts.MaxDepth, logger),
		maxDepth: opts.MaxDepth,
		guard:    opts.Guard,
		logger:   logger.Named("service"),
	}
}

func (s *Service) Guard() string {
	return s.guard
}

// Authorize reports whether role holds permission under the service guard.
func (s *Service) Authorize(ctx context.Context, role string, permission string) (bool, error) {
	if strings.TrimSpace(role) == "" || strings.TrimSpace(permission) == "" {
		return false, nil
	}
	return s.repo.RoleHasPermission(ctx, role, s.guard, permission)
}

// Require checks the actor stored in ctx against permission.
func (s *Service) Require(ctx context.Context, permission string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	granted, err := s.Authorize(ctx, actor.Role, permission)
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("%s requires %s: %w", actor.Username, permission, ErrForbidden)
	}
	return nil
}

func (s *Service) actorField(ctx context.Context) zap.Field {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return zap.String("actor", "system")
	}
	return zap.String("actor", actor.Username)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
