package compress

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// TarReader implements io.ReadCloser over the first CSV entry of a TAR archive.
type TarReader struct {
	current io.Reader
}

// NewTarReader scans the archive until it finds a regular file with a .csv suffix.
func NewTarReader(r io.Reader) (*TarReader, error) {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar archive: %w", err)
		}
		if header.Typeflag == tar.TypeReg && isCSV(header.Name) {
			return &TarReader{current: tr}, nil
		}
	}

	return nil, fmt.Errorf("%w in the TAR archive", ErrNoCSV)
}

// Read reads data from the CSV entry.
func (t *TarReader) Read(p []byte) (int, error) {
	return t.current.Read(p)
}

// Close is a no-op; the archive stream belongs to the caller.
func (t *TarReader) Close() error {
	return nil
}

// WriteTar packs data into a TAR archive as a single file called name.
func WriteTar(w io.Writer, name string, data []byte) error {
	tw := tar.NewWriter(w)
	header := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	if _, err := io.Copy(tw, bytes.NewReader(data)); err != nil {
		return err
	}
	return tw.Close()
}

func isCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}
