package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
version: 1
general:
  data_root: ~/data
  store_root: ~/store
  max_file_size_bytes: 104857600
  max_chunk_size_bytes: 262144
network:
  timeout_seconds: 30
  user_agent: filelink-go/1.0
  tls_verify: true
  max_redirects: 5
retry:
  max_chunk_retries: 3
  backoff_min_ms: 100
  backoff_max_ms: 2000
firmware:
  marker_path: ~/firmware.marker
  current_version: ${FILELINK_TEST_VERSION}
  installer_path: /opt/installer.sh
logging:
  level: debug
  format: human
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadExpandsEnvAndTilde(t *testing.T) {
	t.Setenv("FILELINK_TEST_VERSION", "2.1.0")
	path := writeConfig(t, sampleYAML)

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1, c.Version)
	require.Equal(t, "2.1.0", c.Firmware.CurrentVersion)
	require.NotContains(t, c.General.DataRoot, "~")
	require.NotContains(t, c.Firmware.MarkerPath, "~")
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, "version: 1\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestNetworkTimeoutConvertsSecondsToDuration(t *testing.T) {
	n := Network{TimeoutSeconds: 45}
	require.Equal(t, int64(45), n.NetworkTimeout().Milliseconds()/1000)
}

func TestValidateDetailedCollectsMultipleFieldErrors(t *testing.T) {
	c := &Config{Version: 1}
	errs := c.ValidateDetailed()
	require.NotEmpty(t, errs)

	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	require.True(t, fields["general.data_root"])
	require.True(t, fields["general.store_root"])
	require.True(t, fields["firmware.current_version"])
}

func TestValidateWithFriendlyErrorsWrapsHardFailureFirst(t *testing.T) {
	c := &Config{Version: 2}
	err := c.ValidateWithFriendlyErrors()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported config version")
}

func TestValidateWithFriendlyErrorsReturnsNilForValidConfig(t *testing.T) {
	t.Setenv("FILELINK_TEST_VERSION", "1.0.0")
	path := writeConfig(t, sampleYAML)
	c, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, c.ValidateWithFriendlyErrors())
}
