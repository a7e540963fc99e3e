package demoscript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesEachActionKind(t *testing.T) {
	path := writeScript(t, `
version: 1
steps:
  - action: upload
    device: dev1
    name: a.bin
    content: hello
  - action: url_download
    device: dev1
    url: https://example.com/a.bin
  - action: install
    device: dev1
    file_name: a.bin
`)
	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Steps, 3)
	require.Equal(t, ActionUpload, s.Steps[0].Action)
	require.Equal(t, ActionURLDownload, s.Steps[1].Action)
	require.Equal(t, ActionInstall, s.Steps[2].Action)
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	path := writeScript(t, "version: 1\nsteps:\n  - action: teleport\n    device: dev1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredFieldPerAction(t *testing.T) {
	path := writeScript(t, "version: 1\nsteps:\n  - action: upload\n    device: dev1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEmptySteps(t *testing.T) {
	path := writeScript(t, "version: 1\nsteps: []\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestDefaultScriptIsValidShape(t *testing.T) {
	s := Default()
	require.Equal(t, 1, s.Version)
	require.NotEmpty(t, s.Steps)
}
