package build

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// Builder builds IR and metainfo.
type Builder interface {
	Build() (*Program, error)
}

// PkgSrc is a set of package patterns or filenames, as accepted by go list.
type PkgSrc struct {
	Patterns []string
}

// FromFiles returns a non-nil Builder from a slice of filenames or package
// patterns.
func FromFiles(files []string) Configurer {
	return newConfig(&PkgSrc{Patterns: files})
}

// CachedSrc is source code of a single file read from a reader.
type CachedSrc struct {
	cached []byte
	err    error
}

// FromReader returns a non-nil Builder for a reader.
// This is typically used for testing or building a temporary file.
func FromReader(r io.Reader) Configurer {
	b, err := io.ReadAll(r)
	if err != nil {
		err = errors.Wrap(err, "failed to read from reader")
	}
	return newConfig(&CachedSrc{cached: b, err: err})
}

// NewReader returns a reader for reading the cached content.
func (s *CachedSrc) NewReader() io.Reader {
	return bytes.NewReader(s.cached)
}
