package sealbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealbox.yaml")
	content := "dataPath: /var/lib/sealbox\nminimumFreeGB: 5\nverifyWorkers: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/var/lib/sealbox"}, conf.Paths)
	assert.Equal(t, uint(5), conf.MinimumFreeGB)
	assert.Equal(t, 3, conf.VerifyWorkers)
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("minimumFreeGB: 2\n"), 0o600))

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, conf.Paths)
	assert.Equal(t, uint(2), conf.MinimumFreeGB)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dataPath: [unclosed"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}
