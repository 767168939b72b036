package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "taskapi/internal/errors"
	"taskapi/internal/model"
	"taskapi/internal/testutil"
)

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()

	user := &model.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, model.RoleUser, user.Role)

	byID, err := repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = repo.FindByUsername(ctx, "bob")
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)

	exists, err := repo.UsernameExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.EmailExists(ctx, "bob@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_UniqueIndexes(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &model.User{Username: "alice", Email: "alice@x.com", PasswordHash: "h"}))

	err := repo.Create(ctx, &model.User{Username: "alice", Email: "other@x.com", PasswordHash: "h"})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))

	err = repo.Create(ctx, &model.User{Username: "other", Email: "alice@x.com", PasswordHash: "h"})
	assert.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestUserRepository_DeleteWithTasksInTransaction(t *testing.T) {
	gormDB := testutil.NewDB(t)
	users := NewUserRepository(gormDB)
	tasks := NewTaskRepository(gormDB)
	ctx := context.Background()

	user := &model.User{Username: "alice", Email: "alice@x.com", PasswordHash: "h"}
	require.NoError(t, users.Create(ctx, user))
	_, err := tasks.Insert(ctx, model.TaskDraft{Title: "t"}, user.ID)
	require.NoError(t, err)

	err = users.WithTransaction(ctx, func(ctx context.Context, txUsers UserRepository, txTasks TaskRepository) error {
		if _, err := txTasks.DeleteByOwner(ctx, user.ID); err != nil {
			return err
		}
		return txUsers.Delete(ctx, user.ID)
	})
	require.NoError(t, err)

	_, err = users.FindByID(ctx, user.ID)
	assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
	remaining, err := tasks.ListByOwner(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	assert.ErrorIs(t, users.Delete(ctx, user.ID), apperrors.ErrUserNotFound)
}

func TestUserRepository_FindByIDForUpdate(t *testing.T) {
	repo := NewUserRepository(testutil.NewDB(t))
	ctx := context.Background()

	user := &model.User{Username: "alice", Email: "alice@x.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, user))

	err := repo.WithTransaction(ctx, func(ctx context.Context, users UserRepository, _ TaskRepository) error {
		locked, err := users.FindByIDForUpdate(ctx, user.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, "alice", locked.Username)

		_, err = users.FindByIDForUpdate(ctx, uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		return nil
	})
	require.NoError(t, err)
}
