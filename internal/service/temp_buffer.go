package service

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// TempStore creates spill files for incoming upload bodies.
type TempStore struct {
	fs  afero.Fs
	dir string
}

// NewTempStore creates a TempStore writing under dir on fs. Pass
// afero.NewOsFs() in production and afero.NewMemMapFs() in tests.
func NewTempStore(fs afero.Fs, dir string) *TempStore {
	if dir == "" {
		dir = os.TempDir()
	}
	_ = fs.MkdirAll(dir, 0o700)
	return &TempStore{fs: fs, dir: dir}
}

// Create opens a new empty buffer.
func (s *TempStore) Create() (*TempBuffer, error) {
	f, err := afero.TempFile(s.fs, s.dir, "imguard-upload-*")
	if err != nil {
		return nil, err
	}
	return &TempBuffer{fs: s.fs, file: f}, nil
}

// Pending returns the number of buffers still on disk. It exists for leak checks.
func (s *TempStore) Pending() (int, error) {
	entries, err := s.leftovers()
	return len(entries), err
}

// Sweep removes buffers left behind by a previous process that died before
// releasing them. Call it before serving, never while uploads are in flight.
func (s *TempStore) Sweep() (int, error) {
	entries, err := s.leftovers()
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, path := range entries {
		if err := s.fs.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func (s *TempStore) leftovers() ([]string, error) {
	return afero.Glob(s.fs, filepath.Join(s.dir, "imguard-upload-*"))
}

// TempBuffer is one upload payload spilled to a file. Release is idempotent
// and safe on a nil buffer.
type TempBuffer struct {
	fs   afero.Fs
	file afero.File
	size int64

	once       sync.Once
	releaseErr error
}

func (b *TempBuffer) Write(p []byte) (int, error) {
	n, err := b.file.Write(p)
	b.size += int64(n)
	return n, err
}

// Size returns the number of bytes written.
func (b *TempBuffer) Size() int64 {
	return b.size
}

// Head returns up to n leading bytes.
func (b *TempBuffer) Head(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := b.file.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:read], nil
}

// Reader rewinds the buffer and returns it for reading.
func (b *TempBuffer) Reader() (io.ReadSeeker, error) {
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return b.file, nil
}

// Release closes and removes the file. Later calls return the first result.
func (b *TempBuffer) Release() error {
	if b == nil {
		return nil
	}
	b.once.Do(func() {
		name := b.file.Name()
		closeErr := b.file.Close()
		removeErr := b.fs.Remove(name)
		b.releaseErr = errors.Join(closeErr, removeErr)
	})
	return b.releaseErr
}
