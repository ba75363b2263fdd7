package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizhibei/go-stdio-rpc/jsonrpc"
)

func TestLoadDefaults(t *testing.T) {
	app, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "notebooklm-mcp", app.Session.ExecutablePath)
	assert.Equal(t, "notebook_list", app.Session.ToolName)
	assert.Equal(t, jsonrpc.ProtocolVersion, app.Session.ProtocolVersion)
	assert.Equal(t, 60*time.Second, app.Session.ReadTimeout)
	assert.Equal(t, "Тренды AI 2026", app.Overview.Title)
	assert.Equal(t, "audio_overview_create", app.Overview.Tools.CreateAudio)
	assert.Empty(t, app.Session.Env)
	assert.Equal(t, "info", app.LogLevel)

	require.NoError(t, app.Session.Validate())
	require.NoError(t, app.Overview.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  executable_path: /opt/notebooklm-mcp
  args: ["--transport", "stdio"]
  tool_name: notebook_get
  read_timeout: 15s
tool_arguments: '{"notebookId": "nb-1", "sourceIds": ["a"], "Limit": 5}'

env:
  - HTTP_PROXY=http://127.0.0.1:2080
  - HTTPS_PROXY=http://127.0.0.1:2080
  - NOTEBOOKLM_BL=boq_labs-tailwind-frontend_20260101.00_p0
site:
  files: [en.html, de.html, zh.html]
  rules:
    - old: foo
      new: bar
`), 0o644))

	t.Setenv("NBRPC_SESSION_CLIENT_NAME", "nbrpc")
	t.Setenv("NBRPC_LOG_LEVEL", "debug")

	app, err := Load(New(), path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/notebooklm-mcp", app.Session.ExecutablePath)
	assert.Equal(t, []string{"--transport", "stdio"}, app.Session.Args)
	assert.Equal(t, "notebook_get", app.Session.ToolName)
	assert.Equal(t, map[string]any{
		"notebookId": "nb-1",
		"sourceIds":  []any{"a"},
		"Limit":      float64(5),
	}, app.Session.ToolArguments)
	assert.Equal(t, 15*time.Second, app.Session.ReadTimeout)
	assert.Equal(t, "nbrpc", app.Session.ClientName)
	assert.Equal(t, "debug", app.LogLevel)
	assert.Equal(t, map[string]string{
		"HTTP_PROXY":    "http://127.0.0.1:2080",
		"HTTPS_PROXY":   "http://127.0.0.1:2080",
		"NOTEBOOKLM_BL": "boq_labs-tailwind-frontend_20260101.00_p0",
	}, app.Session.Env)
	assert.Equal(t, []string{"en.html", "de.html", "zh.html"}, app.Site.Files)
	require.Len(t, app.Site.Rules, 1)
	assert.Equal(t, "bar", app.Site.Rules[0].New)
}

func TestLoadBadEnvEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbrpc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"env":["NOVALUE"]}`), 0o644))

	_, err := Load(New(), path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadToolArgumentsFromEnv(t *testing.T) {
	t.Setenv("NBRPC_TOOL_ARGUMENTS", `{"notebookId":"nb-2"}`)

	app, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"notebookId": "nb-2"}, app.Session.ToolArguments)
}

func TestLoadDefaultToolArgumentsEmpty(t *testing.T) {
	app, err := Load(New(), "")
	require.NoError(t, err)
	assert.NotNil(t, app.Session.ToolArguments)
	assert.Empty(t, app.Session.ToolArguments)
}

func TestLoadRejectsToolArgumentsMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nbrpc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  tool_arguments:
    notebookId: nb-1
`), 0o644))

	_, err := Load(New(), path)
	assert.ErrorContains(t, err, "tool_arguments")
}

func TestLoadBadToolArguments(t *testing.T) {
	t.Setenv("NBRPC_TOOL_ARGUMENTS", `["not", "an", "object"]`)

	_, err := Load(New(), "")
	assert.Error(t, err)
}
