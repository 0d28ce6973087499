// Package identity resolves actor contexts for the mutation pipeline. It
// fronts the profile store with a short-lived Redis cache so hot actors do
// not hit Postgres on every request.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldops/opsconsole/internal/domain"
	"github.com/fieldops/opsconsole/internal/repository"
)

// ErrActorNotFound is returned when no actor exists for the id.
var ErrActorNotFound = errors.New("actor not found")

// Resolver supplies {id, role, email} contexts for callers.
type Resolver interface {
	Resolve(ctx context.Context, actorID int64) (*domain.Actor, error)
	// Invalidate drops the cached context, e.g. after a role change.
	Invalidate(ctx context.Context, actorID int64)
}

// cachedActor is the trimmed context stored in Redis. Credentials never
// enter the cache.
type cachedActor struct {
	ID     int64       `json:"id"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	Active bool        `json:"active"`
}

type resolver struct {
	actors repository.ActorRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver builds a resolver. cache may be nil, in which case every
// lookup goes to the store.
func NewResolver(actors repository.ActorRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) Resolver {
	return &resolver{actors: actors, cache: cache, ttl: ttl, logger: logger}
}

func (r *resolver) Resolve(ctx context.Context, actorID int64) (*domain.Actor, error) {
	if cached := r.fromCache(ctx, actorID); cached != nil {
		return cached, nil
	}

	actor, err := r.actors.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrActorNotFound
		}
		return nil, err
	}
	if !actor.Active {
		return nil, ErrActorNotFound
	}

	r.store(ctx, actor)
	return actor, nil
}

func (r *resolver) Invalidate(ctx context.Context, actorID int64) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(actorID)).Err(); err != nil {
		r.logger.Warn("actor cache invalidate failed", zap.Int64("actor_id", actorID), zap.Error(err))
	}
}

func (r *resolver) fromCache(ctx context.Context, actorID int64) *domain.Actor {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, cacheKey(actorID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("actor cache read failed", zap.Int64("actor_id", actorID), zap.Error(err))
		}
		return nil
	}
	var cached cachedActor
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}
	return &domain.Actor{
		ID:     cached.ID,
		Name:   cached.Name,
		Email:  cached.Email,
		Role:   cached.Role,
		Active: cached.Active,
	}
}

func (r *resolver) store(ctx context.Context, actor *domain.Actor) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedActor{
		ID:     actor.ID,
		Name:   actor.Name,
		Email:  actor.Email,
		Role:   actor.Role,
		Active: actor.Active,
	})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(actor.ID), raw, r.ttl).Err(); err != nil {
		r.logger.Warn("actor cache write failed", zap.Int64("actor_id", actor.ID), zap.Error(err))
	}
}

func cacheKey(actorID int64) string {
	return fmt.Sprintf("actor:%d", actorID)
}
