package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stateYAML = `zones:
  - id: z1
    category: Duct
    system_type: Chilled Water Supply
    cluster_sleeve_id: 10
    resolved: true
    level: L1
  - id: z2
    category: Duct
    system_type: Chilled Water Supply
    cluster_sleeve_id: 10
    resolved: true
    level: L1
  - id: z5
    category: Duct
    system_type: Exhaust Air
    sleeve_instance_id: 30
    level: L1
elements:
  - id: 10
    category: Duct
    kind: cluster
    level: L1
    point: {x: 1, y: 1, z: 0}
  - id: 30
    category: Duct
    kind: individual
    level: L1
    point: {x: 50, y: 50, z: 0}
    attributes:
      Combined Instance Id: {kind: id, id: 900}
snapshots:
  - kind: combined
    key: 900
    conduit_id: 1
    conduit: {Size: 200x150}
    captured_at: 2024-03-01T09:00:00Z
`

const settingsYAML = `overrides:
  Duct:
    - system_type: Chilled Water Supply
      prefix: CHW
`

const transferYAML = `name: duct-sizes
mappings:
  - source: Size
    target: MEP Size
    kind: conduit_to_opening
    enabled: true
    categories: [Duct]
`

type cli struct {
	t   *testing.T
	dir string
}

func newCLI(t *testing.T) cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SLEEVEMARK_STORAGE_DRIVER", "sqlite")
	t.Setenv("SLEEVEMARK_SQLITE_PATH", filepath.Join(dir, "state.db"))
	t.Setenv("SLEEVEMARK_BLOB_DRIVER", "fs")
	t.Setenv("SLEEVEMARK_BLOB_FS_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("SLEEVEMARK_LOG_LEVEL", "error")
	t.Setenv("SLEEVEMARK_METRICS_TEXTFILE", filepath.Join(dir, "sleevemark.prom"))
	t.Setenv("SLEEVEMARK_TRACE_FILE", filepath.Join(dir, "trace.jsonl"))
	return cli{t: t, dir: dir}
}

func (c cli) file(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (c cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", filepath.Join(c.dir, "sleevemark.yaml")}, args...)
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIMarkTransferReset(t *testing.T) {
	c := newCLI(t)

	code, out, stderr := c.run("load", c.file("state.yaml", stateYAML))
	require.Equal(t, 0, code, stderr)
	assert.JSONEq(t, `{"zones":3,"elements":2,"snapshots":1}`, out)

	code, _, stderr = c.run("settings", "import", c.file("settings.yaml", settingsYAML))
	require.Equal(t, 0, code, stderr)

	code, out, stderr = c.run("mark")
	require.Equal(t, 0, code, stderr)
	var report struct {
		Status    string         `json:"status"`
		Processed int            `json:"processed"`
		Numbered  int            `json:"numbered"`
		Rules     map[string]int `json:"rules"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "committed", report.Status)
	assert.Equal(t, 2, report.Numbered)
	assert.Equal(t, map[string]int{"system_type_override": 1, "category_default": 1}, report.Rules)

	code, out, stderr = c.run("export")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "CHW001")
	assert.Contains(t, out, "D001")

	code, out, stderr = c.run("transfer", "--file", c.file("transfer.yaml", transferYAML), "30")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"transferred": 1`)

	code, out, stderr = c.run("export")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "200x150")

	code, out, stderr = c.run("reset", "--bbox", "100,100,10,0,0,-10")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"Cleared": 2`)
	assert.Contains(t, out, `"CountersReset": 0`)

	raw, err := os.ReadFile(filepath.Join(c.dir, "sleevemark.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `sleevemark_operations_total{operation="reset_marks",status="success"} 1`)

	trace, err := os.ReadFile(filepath.Join(c.dir, "trace.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trace)), "\n")
	assert.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, lines[len(lines)-1], `"operation":"reset_marks"`)
	assert.Contains(t, string(trace), `"operation":"mark_sleeves"`)
}

func TestCLIStoredTransferConfiguration(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("load", c.file("state.yaml", stateYAML))
	require.Equal(t, 0, code, stderr)

	code, _, stderr = c.run("settings", "import-transfer", c.file("transfer.yaml", transferYAML))
	require.Equal(t, 0, code, stderr)

	code, out, stderr := c.run("settings", "transfers")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "duct-sizes\n", out)

	code, out, stderr = c.run("transfer", "--name", "duct-sizes", "--all")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"success": true`)
}

func TestCLIMarkModesAndFlags(t *testing.T) {
	c := newCLI(t)
	code, _, stderr := c.run("load", c.file("state.yaml", stateYAML))
	require.Equal(t, 0, code, stderr)
	settings := c.file("settings.yaml", settingsYAML)

	code, out, stderr := c.run("mark", "--settings", settings, "--mode", "prefix-only", "--project-prefix", "B7X")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"prefixed": 2`)

	code, out, stderr = c.run("mark", "--settings", settings, "--mode", "number-only")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"numbered": 2`)

	code, out, _ = c.run("export")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "B7X-CHW001")

	code, out, stderr = c.run("mark", "--settings", settings, "--remark-all", "--discipline", "duct=DX", "--category", "Duct")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"counters_reset"`)
	code, out, _ = c.run("export")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "DX001")
}

func TestCLIErrors(t *testing.T) {
	c := newCLI(t)
	cases := map[string][]string{
		"unbounded reset":     {"reset"},
		"bad bbox":            {"reset", "--bbox", "1,2,3"},
		"unknown mode":        {"mark", "--mode", "sideways"},
		"unknown category":    {"mark", "--category", "Plumbing"},
		"bad discipline":      {"mark", "--discipline", "Duct"},
		"transfer source":     {"transfer"},
		"bad target":          {"transfer", "--file", "x.yaml", "abc"},
		"missing load file":   {"load", filepath.Join(c.dir, "missing.yaml")},
		"missing transfer":    {"transfer", "--name", "nope", "--all"},
		"no targets":          {"transfer", "--file", "x.yaml"},
		"targets and all":     {"transfer", "--file", "x.yaml", "--all", "30"},
		"invalid settings":    {"settings", "validate", c.file("bad.yaml", "number_format: \"\"\nunknown: 1\n")},
		"unknown subcommand":  {"frobnicate"},
		"numeric project":     {"mark", "--project-prefix", "P1"},
		"load needs argument": {"load"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			code, _, stderr := c.run(args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestCLISettingsShowAndValidate(t *testing.T) {
	c := newCLI(t)
	code, out, stderr := c.run("settings", "show")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, "number_format: \"000\"")

	code, out, stderr = c.run("settings", "validate", c.file("settings.yaml", settingsYAML))
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "ok\n", out)
}

func TestCLIInvalidConfig(t *testing.T) {
	c := newCLI(t)
	t.Setenv("SLEEVEMARK_TRANSFER_WORKERS", "many")
	code, _, stderr := c.run("settings", "show")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "SLEEVEMARK_TRANSFER_WORKERS")
}
