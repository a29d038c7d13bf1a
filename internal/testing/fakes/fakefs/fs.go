// Package fakefs is an in-memory ports.FileSystem for tests.
package fakefs

import (
	"io/fs"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/acolita/ptyd/internal/ports"
)

// FS keeps files and directories in maps keyed by cleaned path.
type FS struct {
	mu    sync.RWMutex
	files map[string]*file
	dirs  map[string]bool
	home  string
	env   map[string]string
}

type file struct {
	data    []byte
	mode    fs.FileMode
	modTime time.Time
}

// New returns an empty filesystem with home directory /home/test.
func New() *FS {
	return &FS{
		files: map[string]*file{},
		dirs:  map[string]bool{"/": true},
		home:  "/home/test",
		env:   map[string]string{},
	}
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fl, ok := f.files[path.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), fl.data...), nil
}

// WriteFile stores a copy of data, creating parent directories.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = path.Clean(name)
	f.mkdirAllLocked(path.Dir(name))
	f.files[name] = &file{data: append([]byte(nil), data...), mode: perm, modTime: time.Now()}
	return nil
}

// OpenFile honours O_CREATE, O_EXCL, O_TRUNC and O_APPEND. Writes land in
// the map immediately so tests can ReadFile while the handle is open.
func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name = path.Clean(name)

	fl, exists := f.files[name]
	switch {
	case exists && flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	case !exists && flag&os.O_CREATE == 0:
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	case !exists:
		if !f.dirs[path.Dir(name)] {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		fl = &file{mode: perm, modTime: time.Now()}
		f.files[name] = fl
	}
	if flag&os.O_TRUNC != 0 {
		fl.data = nil
	}
	return &handle{fs: f, name: name, file: fl}, nil
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	name = path.Clean(name)
	if f.dirs[name] {
		return &info{name: path.Base(name), mode: fs.ModeDir | 0o755, modTime: time.Now()}, nil
	}
	fl, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return &info{name: path.Base(name), size: int64(len(fl.data)), mode: fl.mode, modTime: fl.modTime}, nil
}

func (f *FS) MkdirAll(p string, _ fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAllLocked(p)
	return nil
}

func (f *FS) mkdirAllLocked(p string) {
	p = path.Clean(p)
	for p != "/" && p != "." {
		f.dirs[p] = true
		p = path.Dir(p)
	}
}

func (f *FS) UserHomeDir() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.home, nil
}

func (f *FS) Getenv(key string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.env[key]
}

// SetHome changes what UserHomeDir returns.
func (f *FS) SetHome(dir string) {
	f.mu.Lock()
	f.home = dir
	f.mkdirAllLocked(dir)
	f.mu.Unlock()
}

// Setenv sets a variable visible through Getenv.
func (f *FS) Setenv(key, value string) {
	f.mu.Lock()
	f.env[key] = value
	f.mu.Unlock()
}

// Files lists every stored file path in sorted order.
func (f *FS) Files() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.files))
	for name := range f.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Exists reports whether name is a file or directory.
func (f *FS) Exists(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	name = path.Clean(name)
	_, ok := f.files[name]
	return ok || f.dirs[name]
}

type handle struct {
	fs     *FS
	name   string
	file   *file
	closed bool
}

func (h *handle) Name() string { return h.name }

func (h *handle) Write(p []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return 0, os.ErrClosed
	}
	h.file.data = append(h.file.data, p...)
	h.file.modTime = time.Now()
	return len(p), nil
}

func (h *handle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	return nil
}

type info struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
}

func (i *info) Name() string       { return i.name }
func (i *info) Size() int64        { return i.size }
func (i *info) Mode() fs.FileMode  { return i.mode }
func (i *info) ModTime() time.Time { return i.modTime }
func (i *info) IsDir() bool        { return i.mode.IsDir() }
func (i *info) Sys() any           { return nil }

var _ ports.FileSystem = (*FS)(nil)
