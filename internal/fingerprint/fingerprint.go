// Package fingerprint computes the content identity used as the ledger's dedup key.
//
// A fingerprint is the hex-encoded BLAKE3-256 digest of a file's bytes. It is a
// dedup key only and must not be treated as a security boundary.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/imageledger/internal/failure"
)

// Size is the length of a fingerprint string in hex characters.
const Size = 64

// Bytes fingerprints an in-memory buffer.
func Bytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Reader fingerprints everything readable from r.
func Reader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File fingerprints the file at path. Any read problem (missing file, permission,
// file shrinking mid-read) is reported as an IO failure.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", failure.New(failure.KindIO, "open "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", failure.New(failure.KindIO, "stat "+path, err)
	}
	if info.IsDir() {
		return "", failure.Newf(failure.KindIO, "fingerprint", "%s is a directory", path)
	}

	h := blake3.New()
	read, err := io.Copy(h, f)
	if err != nil {
		return "", failure.New(failure.KindIO, "read "+path, err)
	}
	if read < info.Size() {
		return "", failure.New(failure.KindIO, "read "+path,
			fmt.Errorf("truncated: read %d of %d bytes", read, info.Size()))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether s looks like a fingerprint.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
