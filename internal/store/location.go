package store

import (
	"fmt"
	"path/filepath"

	"github.com/viant/afs/url"
)

// Normalize turns a dataset location into an afs URL. Relative paths become
// absolute file:// URLs; gs://, s3:// and other scheme URLs pass through.
func Normalize(location string) (string, error) {
	norm := location
	if url.Scheme(norm, "") == "" && url.IsRelative(norm) {
		abs, err := filepath.Abs(norm)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", location, err)
		}
		norm = abs
	}
	if url.Scheme(norm, "") == "" && !url.IsRelative(norm) {
		norm = url.ToFileURL(norm)
	}
	return norm, nil
}

// Join appends path elements to a normalized base location.
func Join(base string, elems ...string) string {
	out := base
	for _, e := range elems {
		out = url.Join(out, e)
	}
	return out
}
