package utils

import (
	"context"

	"food-delivery/internal/entities"
	"food-delivery/pkg/contextkeys"
	apperrors "food-delivery/pkg/errors"
)

func WithActor(ctx context.Context, actor entities.Actor) context.Context {
	ctx = context.WithValue(ctx, contextkeys.ActorIDKey, actor.ID)
	return context.WithValue(ctx, contextkeys.ActorRoleKey, actor.Role)
}

func GetActorFromCtx(ctx context.Context) (entities.Actor, error) {
	id, ok := ctx.Value(contextkeys.ActorIDKey).(string)
	if !ok || id == "" {
		return entities.Actor{}, apperrors.ErrActorNotFoundInContext
	}
	role, ok := ctx.Value(contextkeys.ActorRoleKey).(entities.ActorRole)
	if !ok || !role.IsValid() {
		return entities.Actor{}, apperrors.ErrActorNotFoundInContext
	}
	return entities.Actor{Role: role, ID: id}, nil
}
