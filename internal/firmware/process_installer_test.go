package firmware

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProcessInstallerSuccessExitCode(t *testing.T) {
	script := filepath.Join(t.TempDir(), "ok.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755))

	inst := ProcessInstaller{Path: script}
	require.True(t, inst.Install("/opt/fw.bin"))
}

func TestProcessInstallerFailureExitCode(t *testing.T) {
	script := filepath.Join(t.TempDir(), "fail.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nexit 1\n"), 0o755))

	inst := ProcessInstaller{Path: script}
	require.False(t, inst.Install("/opt/fw.bin"))
}

func TestProcessInstallerEmptyPathIsRejection(t *testing.T) {
	inst := ProcessInstaller{}
	require.False(t, inst.Install("/opt/fw.bin"))
}
