package backup

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Archive layout. Every backup is one tar.gz with these entries:
//
//	database/<dbname>     raw database file bytes
//	config/settings.yaml  settings snapshot plus embedded backup info
//	logs/*.log            recent log files, best-effort
//	backup_metadata.json  top-level metadata record
const (
	metadataEntry  = "backup_metadata.json"
	configEntry    = "config/settings.yaml"
	databasePrefix = "database/"
	logsPrefix     = "logs/"
)

// archiveWriter writes one backup archive. Callers must either Close (seal)
// or Abort (discard the partial file) on every path.
type archiveWriter struct {
	path string
	file *os.File
	gz   *gzip.Writer
	tw   *tar.Writer
}

func newArchiveWriter(path string) (*archiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive %q: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &archiveWriter{path: path, file: f, gz: gz, tw: tar.NewWriter(gz)}, nil
}

// addFile copies the file at srcPath into the archive under name.
func (w *archiveWriter) addFile(name, srcPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name

	if err := w.tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(w.tw, f)
	return err
}

// addBytes writes data into the archive under name.
func (w *archiveWriter) addBytes(name string, data []byte, mod time.Time) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: mod,
	}
	if err := w.tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := w.tw.Write(data)
	return err
}

// Close seals the archive. After Close returns nil the file on disk is
// complete and its checksum may be computed.
func (w *archiveWriter) Close() error {
	if err := w.tw.Close(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.gz.Close(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// Abort discards a partially written archive.
func (w *archiveWriter) Abort() {
	w.tw.Close()
	w.gz.Close()
	w.file.Close()
	os.Remove(w.path)
}

// readArchiveEntry returns the contents of the exactly named entry.
func readArchiveEntry(path, name string) ([]byte, error) {
	var data []byte
	err := walkArchive(path, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if hdr.Name != name {
			return false, nil
		}
		var err error
		data, err = io.ReadAll(r)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("entry %q not found in %q", name, path)
	}
	return data, nil
}

// readArchivePrefix returns the first entry whose name starts with prefix.
func readArchivePrefix(path, prefix string) (string, []byte, error) {
	var (
		name string
		data []byte
	)
	err := walkArchive(path, func(hdr *tar.Header, r io.Reader) (bool, error) {
		if !strings.HasPrefix(hdr.Name, prefix) {
			return false, nil
		}
		name = hdr.Name
		var err error
		data, err = io.ReadAll(r)
		return true, err
	})
	if err != nil {
		return "", nil, err
	}
	if data == nil {
		return "", nil, fmt.Errorf("no entry under %q in %q", prefix, path)
	}
	return name, data, nil
}

// walkArchive iterates the archive entries until fn reports done.
func walkArchive(path string, fn func(hdr *tar.Header, r io.Reader) (bool, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %q: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("read archive %q: %w", path, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive %q: %w", path, err)
		}
		done, err := fn(hdr, tr)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
