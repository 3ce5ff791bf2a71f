package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to the config file.
const ChecksumFile = ".checksums"

// ChecksumManifest records BLAKE3 hashes of config files by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

var errNoManifest = errors.New("checksums file not found")

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// Lock hashes configPath and merges it into the manifest in the same
// directory. Returns the manifest path and the recorded hash.
func Lock(configPath string) (string, string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", "", fmt.Errorf("resolve config path %q: %w", configPath, err)
	}
	dir := filepath.Dir(absPath)

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash %s: %w", absPath, err)
	}

	manifest, err := LoadChecksums(dir)
	if errors.Is(err, errNoManifest) {
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	} else if err != nil {
		return "", "", err
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[filepath.Base(absPath)] = hash

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	checksumPath := filepath.Join(dir, ChecksumFile)
	// Restrictive permissions: the manifest is the trust anchor for the config.
	if err := os.WriteFile(checksumPath, data, 0o600); err != nil {
		return "", "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return checksumPath, hash, nil
}

// LoadChecksums reads the manifest from a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, ChecksumFile)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNoManifest
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}

	return &manifest, nil
}

// verifyConfigHash checks path against the manifest in its directory.
// A missing manifest disables verification.
func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, errNoManifest) {
		return nil
	}
	if err != nil {
		return err
	}

	basename := filepath.Base(path)
	expectedHash, ok := manifest.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in %s\n"+
			"Run: courier config lock --config %s", basename, filepath.Join(dir, ChecksumFile), path)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: courier config lock --config %s", path, err, path)
	}
	return nil
}
