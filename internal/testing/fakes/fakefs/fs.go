// Package fakefs provides an in-memory FileSystem implementation for testing.
package fakefs

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acolita/termtap/internal/ports"
)

// FS is an in-memory file system.
type FS struct {
	mu      sync.Mutex
	files   map[string]*fakeFile
	dirs    map[string]bool
	env     map[string]string
	homeDir string
}

type fakeFile struct {
	data    bytes.Buffer
	mode    fs.FileMode
	modTime time.Time
}

// New creates an empty fake file system.
func New() *FS {
	return &FS{
		files:   make(map[string]*fakeFile),
		dirs:    make(map[string]bool),
		env:     make(map[string]string),
		homeDir: "/home/testuser",
	}
}

// AddFile seeds a file with content.
func (f *FS) AddFile(name string, data []byte, mode fs.FileMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &fakeFile{mode: mode, modTime: time.Now()}
	file.data.Write(data)
	f.files[name] = file
	f.mkdirAllLocked(filepath.Dir(name))
}

// SetHomeDir overrides the fake home directory.
func (f *FS) SetHomeDir(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeDir = dir
}

// SetEnv sets a fake environment variable.
func (f *FS) SetEnv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// Files returns the sorted paths of all files.
func (f *FS) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadFile reads the named file and returns its contents.
func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), file.data.Bytes()...), nil
}

// WriteFile writes data to the named file, creating it if necessary.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file := &fakeFile{mode: perm, modTime: time.Now()}
	file.data.Write(data)
	f.files[name] = file
	f.mkdirAllLocked(filepath.Dir(name))
	return nil
}

// OpenFile opens a file for streaming writes.
func (f *FS) OpenFile(name string, flag int, perm fs.FileMode) (ports.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, exists := f.files[name]
	if exists && flag&os.O_EXCL != 0 {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrExist}
	}
	if !exists {
		if flag&os.O_CREATE == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
		file = &fakeFile{mode: perm, modTime: time.Now()}
		f.files[name] = file
		f.mkdirAllLocked(filepath.Dir(name))
	} else if flag&os.O_TRUNC != 0 {
		file.data.Reset()
	}

	return &handle{fs: f, file: file, name: name}, nil
}

// Stat returns file info for the named file or directory.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if file, ok := f.files[name]; ok {
		return &fileInfo{
			name:    filepath.Base(name),
			size:    int64(file.data.Len()),
			mode:    file.mode,
			modTime: file.modTime,
		}, nil
	}
	if f.dirs[name] {
		return &fileInfo{name: filepath.Base(name), mode: fs.ModeDir | 0755, isDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadDir lists the immediate children of the named directory.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.dirs[name] {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	prefix := strings.TrimSuffix(name, "/") + "/"
	seen := make(map[string]fs.DirEntry)
	for path, file := range f.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			sub := rest[:idx]
			seen[sub] = &dirEntry{info: &fileInfo{name: sub, mode: fs.ModeDir | 0755, isDir: true}}
			continue
		}
		seen[rest] = &dirEntry{info: &fileInfo{
			name:    rest,
			size:    int64(file.data.Len()),
			mode:    file.mode,
			modTime: file.modTime,
		}}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)

	entries := make([]fs.DirEntry, 0, len(names))
	for _, n := range names {
		entries = append(entries, seen[n])
	}
	return entries, nil
}

// MkdirAll creates a directory and all parent directories.
func (f *FS) MkdirAll(path string, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAllLocked(path)
	return nil
}

func (f *FS) mkdirAllLocked(path string) {
	for path != "" && path != "/" && path != "." {
		f.dirs[path] = true
		path = filepath.Dir(path)
	}
}

// Remove removes the named file or empty directory.
func (f *FS) Remove(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[name]; ok {
		delete(f.files, name)
		return nil
	}
	if f.dirs[name] {
		prefix := strings.TrimSuffix(name, "/") + "/"
		for path := range f.files {
			if strings.HasPrefix(path, prefix) {
				return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrInvalid}
			}
		}
		delete(f.dirs, name)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
}

// Rename renames (moves) oldpath to newpath.
func (f *FS) Rename(oldpath, newpath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	delete(f.files, oldpath)
	f.files[newpath] = file
	f.mkdirAllLocked(filepath.Dir(newpath))
	return nil
}

// Chtimes changes the modification time of the named file.
func (f *FS) Chtimes(name string, atime, mtime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, ok := f.files[name]
	if !ok {
		return &fs.PathError{Op: "chtimes", Path: name, Err: fs.ErrNotExist}
	}
	file.modTime = mtime
	return nil
}

// UserHomeDir returns the fake home directory.
func (f *FS) UserHomeDir() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.homeDir, nil
}

// Getenv retrieves a fake environment variable.
func (f *FS) Getenv(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.env[key]
}

// handle is an open fake file.
type handle struct {
	fs     *FS
	file   *fakeFile
	name   string
	closed bool
}

func (h *handle) Write(b []byte) (int, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.closed {
		return 0, fs.ErrClosed
	}
	h.file.modTime = time.Now()
	return h.file.data.Write(b)
}

func (h *handle) Close() error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	h.closed = true
	return nil
}

func (h *handle) Name() string {
	return h.name
}

type fileInfo struct {
	name    string
	size    int64
	mode    fs.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) Sys() any           { return nil }

type dirEntry struct {
	info *fileInfo
}

func (d *dirEntry) Name() string               { return d.info.name }
func (d *dirEntry) IsDir() bool                { return d.info.isDir }
func (d *dirEntry) Type() fs.FileMode          { return d.info.mode.Type() }
func (d *dirEntry) Info() (fs.FileInfo, error) { return d.info, nil }

// Ensure FS implements ports.FileSystem.
var _ ports.FileSystem = (*FS)(nil)
