package compress

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Archive types accepted for uploads and exports.
const (
	TypeCSV = "csv"
	TypeZip = "zip"
	TypeTar = "tar"
)

var (
	ErrNoCSV       = errors.New("CSV file not found")
	ErrUnknownType = errors.New("unknown archive type")
	ErrTooLarge    = errors.New("content exceeds the size limit")
)

// TypeFromName picks the archive type from a file name extension.
// Anything that is not .zip or .tar is read as plain CSV.
func TypeFromName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		return TypeZip
	case ".tar":
		return TypeTar
	default:
		return TypeCSV
	}
}

// OpenCSV returns a reader over the CSV content of r, unpacking it first
// when kind is an archive type.
func OpenCSV(kind string, r io.Reader) (io.ReadCloser, error) {
	switch kind {
	case TypeCSV, "":
		return io.NopCloser(r), nil
	case TypeZip:
		zr, err := NewZipReader(r)
		if err != nil {
			return nil, err
		}
		return zr, nil
	case TypeTar:
		tr, err := NewTarReader(r)
		if err != nil {
			return nil, err
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
}

// NewLimitReader reads at most n bytes from r and fails with ErrTooLarge
// once r holds more. Unlike io.LimitReader it never truncates silently.
func NewLimitReader(r io.Reader, n int64) io.Reader {
	return &limitReader{r: r, left: n}
}

type limitReader struct {
	r    io.Reader
	left int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.left <= 0 {
		var probe [1]byte
		n, err := l.r.Read(probe[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.left {
		p = p[:l.left]
	}
	n, err := l.r.Read(p)
	l.left -= int64(n)
	return n, err
}
