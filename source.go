package uploader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// Source is the content of a file to upload.
type Source interface {
	io.ReaderAt
	// Size returns the number of bytes to upload.
	Size() int64
	// Name returns the base file name.
	Name() string
}

type bytesSource struct {
	name string
	r    *bytes.Reader
}

// NewBytesSource returns a Source serving data under the given name.
func NewBytesSource(name string, data []byte) Source {
	return &bytesSource{name: name, r: bytes.NewReader(data)}
}

func (s *bytesSource) ReadAt(p []byte, off int64) (int, error) { return s.r.ReadAt(p, off) }
func (s *bytesSource) Size() int64                              { return s.r.Size() }
func (s *bytesSource) Name() string                             { return s.name }

// fileSource serves a file opened from a go-billy filesystem.
type fileSource struct {
	file billy.File
	name string
	size int64
}

// OpenSource opens path on fsys for uploading. The returned Source also
// implements io.Closer; the uploader closes it when the file is removed or
// the uploader is closed.
func OpenSource(fsys billy.Filesystem, name string) (Source, error) {
	info, err := fsys.Stat(name)
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", name, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %q: is a directory", name)
	}

	f, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}

	return &fileSource{
		file: f,
		name: path.Base(info.Name()),
		size: info.Size(),
	}, nil
}

// OpenOSSource opens a file on the local disk.
func OpenOSSource(name string) (Source, error) {
	abs, err := filepath.Abs(name)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	return OpenSource(osfs.New(filepath.Dir(abs)), filepath.Base(abs))
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.file.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("readat %q off=%d: %w", s.file.Name(), off, err)
	}
	return n, err
}

func (s *fileSource) Size() int64  { return s.size }
func (s *fileSource) Name() string { return s.name }

func (s *fileSource) Close() error {
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("close %q: %w", s.file.Name(), err)
	}
	return nil
}

// readRange reads [start, end) of src into buf, which must have capacity for
// end-start bytes. A short read at end of file is an error.
func readRange(src Source, buf []byte, start, end int64) ([]byte, error) {
	n := int(end - start)
	buf = buf[:n]
	if n == 0 {
		return buf, nil
	}
	read, err := src.ReadAt(buf, start)
	if read == n {
		return buf, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("read bytes %d-%d of %s: %w", start, end, src.Name(), err)
}
