package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskapi/internal/cache"
	"taskapi/internal/model"
	"taskapi/internal/policy"
)

const principalKeyPrefix = "principal:"

// PrincipalCacheInterface defines the cache used when resolving principals.
type PrincipalCacheInterface interface {
	Get(ctx context.Context, userID uuid.UUID) (policy.Principal, bool)
	Store(ctx context.Context, principal policy.Principal, ttl time.Duration) error
	Evict(ctx context.Context, userID uuid.UUID) error
}

// PrincipalCache keeps resolved principals in Redis so that a request does
// not need a user lookup once the role is known.
type PrincipalCache struct {
	cache *cache.Client
}

// Ensure PrincipalCache implements PrincipalCacheInterface
var _ PrincipalCacheInterface = (*PrincipalCache)(nil)

// NewPrincipalCache creates a new principal cache.
func NewPrincipalCache(cache *cache.Client) *PrincipalCache {
	return &PrincipalCache{cache: cache}
}

type cachedPrincipal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Store saves the principal with TTL.
func (s *PrincipalCache) Store(ctx context.Context, principal policy.Principal, ttl time.Duration) error {
	payload, err := json.Marshal(cachedPrincipal{
		UserID: principal.UserID.String(),
		Role:   string(principal.Role),
	})
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	return s.cache.Set(ctx, principalKeyPrefix+principal.UserID.String(), payload, ttl)
}

// Get returns the cached principal for userID. Corrupt entries count as a miss.
func (s *PrincipalCache) Get(ctx context.Context, userID uuid.UUID) (policy.Principal, bool) {
	data, err := s.cache.Get(ctx, principalKeyPrefix+userID.String())
	if err != nil || data == nil {
		return policy.Principal{}, false
	}

	var cached cachedPrincipal
	if err := json.Unmarshal(data, &cached); err != nil {
		return policy.Principal{}, false
	}
	id, err := uuid.Parse(cached.UserID)
	if err != nil || id != userID {
		return policy.Principal{}, false
	}
	role := model.Role(cached.Role)
	if !role.Valid() {
		return policy.Principal{}, false
	}
	return policy.Principal{UserID: id, Role: role}, true
}

// Evict removes the cached principal for userID.
func (s *PrincipalCache) Evict(ctx context.Context, userID uuid.UUID) error {
	return s.cache.Delete(ctx, principalKeyPrefix+userID.String())
}
