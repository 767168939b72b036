package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskapi/internal/db"
	"taskapi/internal/model"
	"taskapi/internal/repository"
)

func writeConfig(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "tasks.db")
	configPath = filepath.Join(dir, "taskapi.toml")
	content := fmt.Sprintf("db-driver = \"sqlite\"\ndatabase-dsn = %q\nredis-addr = \"\"\n", dbPath)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))
	return configPath, dbPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTaskctl_UserLifecycle(t *testing.T) {
	configPath, dbPath := writeConfig(t)

	out, err := runCmd(t, "--config", configPath, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	out, err = runCmd(t, "-c", configPath, "create-user", "root", "--email", "root@x.com", "--password", "pw", "--admin")
	require.NoError(t, err)
	assert.Contains(t, out, "created admin root")

	out, err = runCmd(t, "-c", configPath, "create-user", "alice", "--email", "alice@x.com", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "created user alice")

	_, err = runCmd(t, "-c", configPath, "create-user", "alice", "--email", "other@x.com", "--password", "pw")
	assert.Error(t, err)

	gormDB, err := db.NewSQLite(dbPath)
	require.NoError(t, err)
	users := repository.NewUserRepository(gormDB)
	alice, err := users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	_, err = repository.NewTaskRepository(gormDB).Insert(context.Background(), model.TaskDraft{Title: "t"}, alice.ID)
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	out, err = runCmd(t, "-c", configPath, "delete-user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted alice and 1 task(s)")

	_, err = runCmd(t, "-c", configPath, "delete-user", "alice")
	assert.Error(t, err)
}

func TestTaskctl_CreateUserRequiresFlags(t *testing.T) {
	configPath, _ := writeConfig(t)

	_, err := runCmd(t, "-c", configPath, "create-user", "bob")
	assert.Error(t, err)
}
