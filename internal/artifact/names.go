// Package artifact maps source images to their derived files and manages the
// derived directory.
//
// A derived artifact is always named after the source stem with a ".jpg"
// extension, so "a.png" and "a.jpg" in the source directory both map to
// "a.jpg". Names are compared in Unicode NFC so that the same filename written
// by different tools (macOS NFD, Linux NFC) maps to one artifact.
package artifact

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Ext is the extension of every derived artifact.
const Ext = ".jpg"

var recognized = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Recognized reports whether path has an image extension the pipeline handles.
// Matching is case-insensitive.
func Recognized(path string) bool {
	_, ok := recognized[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Name returns the derived artifact filename for a source path.
func Name(src string) string {
	return Stem(src) + Ext
}

// Stem returns the NFC-normalized filename of src without its extension.
func Stem(src string) string {
	base := filepath.Base(src)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return norm.NFC.String(base)
}

// Key returns the comparison key for a file in either tree: its stem folded to
// NFC. A source file and a derived file correspond when their keys are equal.
func Key(name string) string {
	return Stem(name)
}
