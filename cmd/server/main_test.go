package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "momentum dev\n", out)
}

func TestSeedRollupExport(t *testing.T) {
	// GIVEN: A fresh database file and no config file
	dir := t.TempDir()
	global := []string{
		"--config", filepath.Join(dir, "absent.toml"),
		"--db", filepath.Join(dir, "data", "momentum.db"),
	}

	// WHEN: A scenario is seeded
	out, err := run(t, append(global, "seed", "pipe-rack")...)
	require.NoError(t, err)
	projectID := strings.TrimSpace(out)
	require.NotEmpty(t, projectID)

	// THEN: rollup prints the hierarchy from the same file
	out, err = run(t, append(global, "rollup", projectID)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Pipe Rack 3 Extension")
	assert.Contains(t, out, "Structural Steel")
	assert.Contains(t, out, "in-progress")

	// AND: export writes a workbook
	file := filepath.Join(dir, "out.xlsx")
	_, err = run(t, append(global, "export", projectID, "-o", file)...)
	require.NoError(t, err)
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestRollup_UnknownProject(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--config", filepath.Join(dir, "absent.toml"), "--db", filepath.Join(dir, "m.db"), "rollup", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSeed_UnknownScenario(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--config", filepath.Join(dir, "absent.toml"), "--db", filepath.Join(dir, "m.db"), "seed", "moon-base")
	require.Error(t, err)
}

func TestDBDir(t *testing.T) {
	assert.Equal(t, "", dbDir(":memory:"))
	assert.Equal(t, "", dbDir("momentum.db"))
	assert.Equal(t, "data", dbDir("data/momentum.db"))
}
