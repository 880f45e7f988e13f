package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// field returns the whitespace separated token following key on the line
// starting with prefix.
func field(t *testing.T, out, prefix, key string) float64 {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		tok := strings.Fields(line)
		for i := range tok[:len(tok)-1] {
			if tok[i] == key {
				v, err := strconv.ParseFloat(tok[i+1], 64)
				require.NoError(t, err)
				return v
			}
		}
	}
	t.Fatalf("no %q after %q in output:\n%s", key, prefix, out)
	return 0
}

func TestApplyCommand(t *testing.T) {
	out, err := execute(t, "apply", "-n", "2", "--points", "2", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "apply_13: 8 hexahedra, 8 points each")
	// Interior jitter keeps the cube volume.
	assert.InDelta(t, 1.0, field(t, out, "mesh volume", "volume"), 1e-12)
	assert.Greater(t, field(t, out, "energy", "mass"), 0.0)
}

func TestApplyCommand_StrategiesAgree(t *testing.T) {
	block, err := execute(t, "apply", "-n", "3", "--strategy", "block", "--partition-size", "4")
	require.NoError(t, err)
	rr, err := execute(t, "apply", "-n", "3", "--strategy", "round-robin", "--partition-size", "4")
	require.NoError(t, err)
	assert.Equal(t, field(t, block, "energy", "diffusion"), field(t, rr, "energy", "diffusion"))

	_, err = execute(t, "apply", "--strategy", "metis")
	assert.Error(t, err)
	_, err = execute(t, "apply", "-n", "0")
	assert.Error(t, err)
}

func TestOptimizeCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metric_id: 2\ntarget_id: 1\nmax_it: 50\n"), 0o644))

	out, err := execute(t, "optimize", "-n", "4", "--options", path)
	require.NoError(t, err)
	assert.Contains(t, out, "2D mesh: 25 nodes, 32 elements")

	var before, after float64
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "quality") {
			tok := strings.Fields(line)
			require.Len(t, tok, 4)
			before, err = strconv.ParseFloat(tok[1], 64)
			require.NoError(t, err)
			after, err = strconv.ParseFloat(tok[3], 64)
			require.NoError(t, err)
		}
	}
	assert.Less(t, after, before)
}

func TestOptimizeCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metric_id: 5\n"), 0o644))

	_, err := execute(t, "optimize", "--options", path)
	assert.Error(t, err)
	_, err = execute(t, "optimize", "--options", filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	_, err = execute(t, "optimize", "--perturb", "1.5")
	assert.Error(t, err)
}
