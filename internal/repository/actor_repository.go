package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldops/opsconsole/internal/domain"
)

// ActorRepository loads actor identities from the profile store.
type ActorRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Actor, error)
	GetByEmail(ctx context.Context, email string) (*domain.Actor, error)
}

type actorRepository struct {
	pool *pgxpool.Pool
}

// NewActorRepository instantiates the repository.
func NewActorRepository(pool *pgxpool.Pool) ActorRepository {
	return &actorRepository{pool: pool}
}

const actorSelect = `
        SELECT id, name, email, password_hash, role, active, created_at, updated_at
        FROM actors`

func (r *actorRepository) GetByID(ctx context.Context, id int64) (*domain.Actor, error) {
	return r.fetchSingle(ctx, actorSelect+` WHERE id=$1`, id)
}

func (r *actorRepository) GetByEmail(ctx context.Context, email string) (*domain.Actor, error) {
	return r.fetchSingle(ctx, actorSelect+` WHERE email=$1`, email)
}

func (r *actorRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Actor, error) {
	var actor domain.Actor
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&actor.ID,
		&actor.Name,
		&actor.Email,
		&actor.PasswordHash,
		&actor.Role,
		&actor.Active,
		&actor.CreatedAt,
		&actor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &actor, nil
}
