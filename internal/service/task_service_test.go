package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskapi/internal/auth"
	"taskapi/internal/clock"
	apperrors "taskapi/internal/errors"
	"taskapi/internal/logging"
	"taskapi/internal/model"
	"taskapi/internal/policy"
	"taskapi/internal/repository"
	"taskapi/internal/testutil"
)

// memoryPrincipalCache is an in-process PrincipalCacheInterface.
type memoryPrincipalCache struct {
	mu       sync.Mutex
	entries  map[uuid.UUID]policy.Principal
	evicted  []uuid.UUID
	storeErr error
}

func newMemoryPrincipalCache() *memoryPrincipalCache {
	return &memoryPrincipalCache{entries: map[uuid.UUID]policy.Principal{}}
}

func (c *memoryPrincipalCache) Get(_ context.Context, userID uuid.UUID) (policy.Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[userID]
	return p, ok
}

func (c *memoryPrincipalCache) Store(_ context.Context, p policy.Principal, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storeErr != nil {
		return c.storeErr
	}
	c.entries[p.UserID] = p
	return nil
}

func (c *memoryPrincipalCache) Evict(_ context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	c.evicted = append(c.evicted, userID)
	return nil
}

type fixture struct {
	clock    *clock.FakeClock
	auth     AuthService
	tasks    TaskService
	users    UserService
	userRepo repository.UserRepository
	cache    *memoryPrincipalCache
	tokens   map[string]string
	ids      map[string]uuid.UUID
}

// newFixture registers alice and bob as users and root as admin, and logs
// each of them in.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB := testutil.NewDB(t)
	logger := logging.Discard()

	clk := clock.Fake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	tokens := auth.NewTokenService("test-secret", time.Hour, clk)
	userRepo := repository.NewUserRepository(gormDB)
	taskRepo := repository.NewTaskRepository(gormDB)
	cache := newMemoryPrincipalCache()
	principals := NewPrincipalResolver(tokens, userRepo, cache, time.Minute, logger)

	f := &fixture{
		clock:    clk,
		auth:     NewAuthService(userRepo, tokens, logger),
		tasks:    NewTaskService(principals, userRepo, taskRepo, logger),
		users:    NewUserService(principals, userRepo, cache, logger),
		userRepo: userRepo,
		cache:    cache,
		tokens:   map[string]string{},
		ids:      map[string]uuid.UUID{},
	}

	ctx := context.Background()
	for _, name := range []string{"alice", "bob"} {
		_, err := f.auth.Register(ctx, name, name+"@x.com", name+"-pw")
		require.NoError(t, err)
	}
	_, err := f.auth.CreateUser(ctx, "root", "root@x.com", "root-pw", model.RoleAdmin)
	require.NoError(t, err)

	for _, name := range []string{"alice", "bob", "root"} {
		token, _, user, err := f.auth.Login(ctx, name, name+"-pw")
		require.NoError(t, err)
		f.tokens[name] = token
		f.ids[name] = user.ID
	}
	return f
}

func strPtr(s string) *string { return &s }

func TestTaskService_OwnershipScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: "T1"})
	require.NoError(t, err)
	assert.Equal(t, f.ids["alice"], created.UserID)
	assert.Equal(t, model.TaskStatusPending, created.Status)
	assert.Equal(t, model.TaskPriorityMedium, created.Priority)

	_, err = f.tasks.GetTask(ctx, f.tokens["bob"], created.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.tasks.UpdateTask(ctx, f.tokens["bob"], created.ID, model.TaskPatch{Title: strPtr("hijacked")})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.tokens["bob"], created.ID), apperrors.ErrForbidden)

	bobTasks, err := f.tasks.ListTasks(ctx, f.tokens["bob"])
	require.NoError(t, err)
	assert.Empty(t, bobTasks)

	adminTasks, err := f.tasks.ListTasks(ctx, f.tokens["root"])
	require.NoError(t, err)
	require.Len(t, adminTasks, 1)
	assert.Equal(t, created.ID, adminTasks[0].ID)

	adminView, err := f.tasks.GetTask(ctx, f.tokens["root"], created.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", adminView.Title)

	require.NoError(t, f.tasks.DeleteTask(ctx, f.tokens["root"], created.ID))

	_, err = f.tasks.GetTask(ctx, f.tokens["alice"], created.ID)
	assert.ErrorIs(t, err, apperrors.ErrTaskNotFound)
	assert.ErrorIs(t, f.tasks.DeleteTask(ctx, f.tokens["alice"], created.ID), apperrors.ErrTaskNotFound)
}

func TestTaskService_CreateIgnoresClaimedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bobID := f.ids["bob"]

	task, err := f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: "sneaky", UserID: &bobID})
	require.NoError(t, err)
	assert.Equal(t, f.ids["alice"], task.UserID)

	bobTasks, err := f.tasks.ListTasks(ctx, f.tokens["bob"])
	require.NoError(t, err)
	assert.Empty(t, bobTasks)
}

func TestTaskService_UpdatePreservesOwnerAndCreatedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task, err := f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: "draft", Priority: "low"})
	require.NoError(t, err)

	updated, err := f.tasks.UpdateTask(ctx, f.tokens["alice"], task.ID, model.TaskPatch{
		Title:  strPtr("final"),
		Status: strPtr("in_progress"),
	})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, model.TaskStatusInProgress, updated.Status)
	assert.Equal(t, model.TaskPriorityLow, updated.Priority)
	assert.Equal(t, f.ids["alice"], updated.UserID)
	assert.True(t, task.CreatedAt.Equal(updated.CreatedAt))
	assert.True(t, updated.UpdatedAt.After(task.UpdatedAt))

	byAdmin, err := f.tasks.UpdateTask(ctx, f.tokens["root"], task.ID, model.TaskPatch{Status: strPtr("completed")})
	require.NoError(t, err)
	assert.Equal(t, f.ids["alice"], byAdmin.UserID)

	_, err = f.tasks.UpdateTask(ctx, f.tokens["alice"], task.ID, model.TaskPatch{Status: strPtr("archived")})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestTaskService_ValidationBeforeInsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: ""})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	tasks, err := f.tasks.ListTasks(ctx, f.tokens["alice"])
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestTaskService_ListAllTasksRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.CreateTask(ctx, f.tokens["bob"], model.TaskDraft{Title: "b"})
	require.NoError(t, err)

	_, err = f.tasks.ListAllTasks(ctx, f.tokens["alice"])
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	all, err := f.tasks.ListAllTasks(ctx, f.tokens["root"])
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTaskService_RejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.ListTasks(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = f.tasks.ListTasks(ctx, "not.a.token")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	f.clock.Advance(time.Hour)
	_, err = f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: "late"})
	assert.ErrorIs(t, err, apperrors.ErrExpiredToken)
	assert.Equal(t, apperrors.KindAuthentication, apperrors.KindOf(err))
}

func TestAuthService_DuplicateRegistrationAgainstStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.auth.Register(ctx, "alice", "new@x.com", "pw")
	assert.ErrorIs(t, err, apperrors.ErrUsernameTaken)

	_, err = f.auth.Register(ctx, "newbie", "alice@x.com", "pw")
	assert.ErrorIs(t, err, apperrors.ErrEmailTaken)

	_, _, _, err = f.auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, _, _, err = f.auth.Login(ctx, "ghost", "alice-pw")
	assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestUserService_MeAndDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	me, err := f.users.Me(ctx, f.tokens["alice"])
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	for _, title := range []string{"a1", "a2"} {
		_, err := f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: title})
		require.NoError(t, err)
	}

	_, err = f.users.DeleteUser(ctx, f.tokens["bob"], f.ids["alice"])
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.users.ListUsers(ctx, f.tokens["bob"])
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	removed, err := f.users.DeleteUser(ctx, f.tokens["root"], f.ids["alice"])
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)
	assert.Contains(t, f.cache.evicted, f.ids["alice"])

	all, err := f.tasks.ListAllTasks(ctx, f.tokens["root"])
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = f.users.Me(ctx, f.tokens["alice"])
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = f.users.DeleteUser(ctx, f.tokens["root"], f.ids["alice"])
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	users, err := f.users.ListUsers(ctx, f.tokens["root"])
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestPrincipalResolver_UsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.ListTasks(ctx, f.tokens["bob"])
	require.NoError(t, err)

	cached, ok := f.cache.Get(ctx, f.ids["bob"])
	require.True(t, ok)
	assert.Equal(t, model.RoleUser, cached.Role)
}

func TestTaskService_CreateTaskForRemovedOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Warm the cache, then drop alice without evicting her principal.
	_, err := f.tasks.ListTasks(ctx, f.tokens["alice"])
	require.NoError(t, err)
	require.NoError(t, f.userRepo.Delete(ctx, f.ids["alice"]))

	_, err = f.tasks.CreateTask(ctx, f.tokens["alice"], model.TaskDraft{Title: "orphan"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	all, err := f.tasks.ListAllTasks(ctx, f.tokens["root"])
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPrincipalResolver_CacheStoreFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var buf bytes.Buffer
	logger, err := logging.New(&buf, "debug", "json")
	require.NoError(t, err)
	cache := newMemoryPrincipalCache()
	cache.storeErr = errors.New("connection refused")
	tokens := auth.NewTokenService("test-secret", time.Hour, f.clock)
	resolver := NewPrincipalResolver(tokens, f.userRepo, cache, time.Minute, logger)

	principal, err := resolver.Resolve(ctx, f.tokens["alice"])
	require.NoError(t, err)
	assert.Equal(t, f.ids["alice"], principal.UserID)

	_, cached := cache.Get(ctx, f.ids["alice"])
	assert.False(t, cached)
	assert.Contains(t, buf.String(), "cache principal failed")
	assert.Contains(t, buf.String(), "connection refused")
}
