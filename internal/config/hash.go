package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/imageledger/internal/fingerprint"
)

// ChecksumFile is the manifest name written next to the config file.
const ChecksumFile = ".checksums"

// ErrNoChecksums is returned by LoadChecksums when no manifest exists.
var ErrNoChecksums = errors.New("no checksum manifest")

// ChecksumManifest maps config file names to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// LockReport describes what Lock computed.
type LockReport struct {
	ConfigFile   string
	ChecksumPath string
	Hash         string
	Written      bool
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	return fingerprint.File(filePath)
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

// Lock hashes configFile and, unless dryRun, records the hash in the
// manifest beside it. Other entries in an existing manifest are kept.
func Lock(configFile string, dryRun bool) (*LockReport, error) {
	configFile, err := filepath.Abs(configFile)
	if err != nil {
		return nil, err
	}
	dir, name := filepath.Split(configFile)

	hash, err := ComputeBlake3Hash(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", name, err)
	}
	report := &LockReport{
		ConfigFile:   configFile,
		ChecksumPath: filepath.Join(dir, ChecksumFile),
		Hash:         hash,
	}
	if dryRun {
		return report, nil
	}

	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		manifest = &ChecksumManifest{Version: 1}
	} else if err != nil {
		return nil, err
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	manifest.Hashes[name] = hash
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true
	return report, nil
}

// LoadChecksums reads the manifest in configDir.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoChecksums
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	return &manifest, nil
}

// verifyConfigHash checks configFile against its manifest entry. A missing
// manifest, or a manifest without an entry for the file, is not an error.
func verifyConfigHash(configFile string) error {
	manifest, err := LoadChecksums(filepath.Dir(configFile))
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}
	expected, ok := manifest.Hashes[filepath.Base(configFile)]
	if !ok {
		return nil
	}
	if err := VerifyFileHash(configFile, expected); err != nil {
		return fmt.Errorf("integrity check failed: %w\n"+
			"Hint: run 'imageledger config lock' after editing the config", err)
	}
	return nil
}
