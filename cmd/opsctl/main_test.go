package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	content := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "ops.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateUserAddAndAuditList(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "migrations applied")

	out, err = run(t, "--config", cfg, "user", "add", "--username", "carol", "--email", "carol@example.com", "--role", "Administrator")
	require.NoError(t, err)
	assert.Contains(t, out, "created carol (Administrator)")
	assert.Contains(t, out, "generated password:")

	_, err = run(t, "--config", cfg, "user", "add", "--username", "carol", "--email", "other@example.com")
	assert.Error(t, err)

	out, err = run(t, "--config", cfg, "--json", "audit", "list", "--category", "USER_CREATED")
	require.NoError(t, err)
	var listed struct {
		Items []struct {
			Description string `json:"description"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed.Items, 1)
	assert.Equal(t, "Admin opsctl created user carol", listed.Items[0].Description)

	out, err = run(t, "--config", cfg, "audit", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "USER_CREATED")
	assert.Contains(t, out, "page 1/1, 1 records")
}

func TestUserAddRejectsUnknownRole(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "--config", cfg, "user", "add", "--username", "dave", "--email", "dave@example.com", "--role", "root")
	assert.ErrorContains(t, err, "unknown role")
}

func TestServiceStatusReadsCache(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "--config", cfg, "migrate")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "service", "status", "nginx")
	require.NoError(t, err)
	assert.Contains(t, out, "nginx: unknown (last checked never")

	_, err = run(t, "--config", cfg, "service", "status", "--", "-bad")
	assert.ErrorContains(t, err, "invalid service name")

	_, err = run(t, "--config", cfg, "service", "status")
	assert.Error(t, err)
}

func TestAuditListRejectsUnknownCategory(t *testing.T) {
	cfg := writeConfig(t)
	_, err := run(t, "--config", cfg, "audit", "list", "--category", "NOPE")
	assert.ErrorContains(t, err, "unknown category")
}
