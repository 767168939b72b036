package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"taskapi/internal/cache"
	"taskapi/internal/model"
	"taskapi/internal/policy"
)

func TestPrincipalCache_DisabledAlwaysMisses(t *testing.T) {
	c := NewPrincipalCache(nil)
	ctx := context.Background()
	p := policy.Principal{UserID: uuid.New(), Role: model.RoleAdmin}

	assert.NoError(t, c.Store(ctx, p, time.Minute))
	_, ok := c.Get(ctx, p.UserID)
	assert.False(t, ok)
	assert.NoError(t, c.Evict(ctx, p.UserID))
}

func TestPrincipalCache_UnreachableRedisMisses(t *testing.T) {
	client := cache.New("127.0.0.1:1", "", 0)
	defer client.Close()
	c := NewPrincipalCache(client)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p := policy.Principal{UserID: uuid.New(), Role: model.RoleUser}
	assert.NoError(t, c.Store(ctx, p, time.Minute))
	_, ok := c.Get(ctx, p.UserID)
	assert.False(t, ok)
}
