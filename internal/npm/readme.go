package npm

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrReadmeNotFound is returned when a tarball contains no README.
var ErrReadmeNotFound = errors.New("README not found in package tarball")

var readmePath = regexp.MustCompile(`^package/readme(\.[^/]+)?$`)

// maxReadmeSize caps the README read out of a tarball.
const maxReadmeSize = 8 << 20

// ExtractReadme reads a gzipped npm tarball entry by entry and returns the
// first file named package/README or package/README.<ext>, matched without
// regard to case. Other entries are skipped without being buffered.
func ExtractReadme(r io.Reader) (string, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("reading tarball: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return "", ErrReadmeNotFound
		}
		if err != nil {
			return "", fmt.Errorf("reading tarball: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !readmePath.MatchString(strings.ToLower(hdr.Name)) {
			continue
		}

		body, err := io.ReadAll(io.LimitReader(tr, maxReadmeSize+1))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", hdr.Name, err)
		}
		if len(body) > maxReadmeSize {
			return "", fmt.Errorf("%s exceeds the %d byte README limit", hdr.Name, maxReadmeSize)
		}
		return string(body), nil
	}
}
