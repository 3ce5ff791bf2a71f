package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockedConfig = `
webhook:
  app_secret: s3cret
trigger:
  enabled: false
`

func TestLockThenLoadVerifies(t *testing.T) {
	path := writeConfig(t, lockedConfig)

	checksumPath, hash, err := Lock(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(path), ChecksumFile), checksumPath)
	assert.Len(t, hash, 64)

	info, err := os.Stat(checksumPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoadRejectsTamperedConfig(t *testing.T) {
	path := writeConfig(t, lockedConfig)
	_, _, err := Lock(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(lockedConfig+"\nservice:\n  log_level: debug\n"), 0o600))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestLoadRejectsUnlistedConfig(t *testing.T) {
	dir := t.TempDir()
	locked := filepath.Join(dir, "config.yaml")
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(locked, []byte(lockedConfig), 0o600))
	require.NoError(t, os.WriteFile(other, []byte(lockedConfig), 0o600))

	_, _, err := Lock(locked)
	require.NoError(t, err)

	_, err = Load(other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no hash")
}

func TestLockMergesExistingManifest(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	b := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(a, []byte("a: 1\n"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("b: 2\n"), 0o600))

	_, _, err := Lock(a)
	require.NoError(t, err)
	_, _, err = Lock(b)
	require.NoError(t, err)

	manifest, err := LoadChecksums(dir)
	require.NoError(t, err)
	assert.Contains(t, manifest.Hashes, "a.yaml")
	assert.Contains(t, manifest.Hashes, "b.yaml")
}

func TestVerifyFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.yaml")
	require.NoError(t, os.WriteFile(path, []byte("x: 1\n"), 0o600))

	hash, err := ComputeBlake3Hash(path)
	require.NoError(t, err)

	assert.NoError(t, VerifyFileHash(path, hash))

	flipped := "0"
	if hash[0] == '0' {
		flipped = "1"
	}
	assert.Error(t, VerifyFileHash(path, flipped+hash[1:]))
}
