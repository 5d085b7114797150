//go:build !darwin && !linux

package storage

// Filesystem type detection is not implemented here; the guard is skipped.
func detectFilesystemType(path string) (string, error) {
	return "", nil
}
