package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskapi/internal/auth"
	apperrors "taskapi/internal/errors"
	"taskapi/internal/policy"
	"taskapi/internal/repository"
)

const principalCacheTTL = 5 * time.Minute

// PrincipalResolver turns a bearer token into the principal for one request.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (policy.Principal, error)
}

type principalResolver struct {
	tokens *auth.TokenService
	users  repository.UserRepository
	cache  auth.PrincipalCacheInterface
	ttl    time.Duration
	logger *slog.Logger
}

// NewPrincipalResolver creates a resolver. cache may be nil; ttl <= 0 uses
// the default.
func NewPrincipalResolver(tokens *auth.TokenService, users repository.UserRepository, cache auth.PrincipalCacheInterface, ttl time.Duration, logger *slog.Logger) PrincipalResolver {
	if cache == nil {
		cache = auth.NewPrincipalCache(nil)
	}
	if ttl <= 0 {
		ttl = principalCacheTTL
	}
	return &principalResolver{
		tokens: tokens,
		users:  users,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve validates token and loads the role of its subject. A token whose
// subject no longer exists is treated as invalid.
func (r *principalResolver) Resolve(ctx context.Context, token string) (policy.Principal, error) {
	userID, err := r.tokens.Resolve(token)
	if err != nil {
		if errors.Is(err, apperrors.ErrExpiredToken) {
			r.logger.InfoContext(ctx, "rejected expired token")
		} else {
			r.logger.WarnContext(ctx, "rejected invalid token")
		}
		return policy.Principal{}, err
	}

	if principal, ok := r.cache.Get(ctx, userID); ok {
		return principal, nil
	}

	user, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			r.logger.WarnContext(ctx, "token subject no longer exists", "user_id", userID)
			return policy.Principal{}, apperrors.ErrInvalidToken
		}
		return policy.Principal{}, fmt.Errorf("load principal: %w", err)
	}

	principal := policy.Principal{UserID: user.ID, Role: user.Role}
	if err := r.cache.Store(ctx, principal, r.ttl); err != nil {
		r.logger.DebugContext(ctx, "cache principal failed", "user_id", principal.UserID, "error", err)
	}
	return principal, nil
}
