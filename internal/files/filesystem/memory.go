package filesystem

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryFileInfo struct {
	name    string
	size    int64
	modTime time.Time
	isDir   bool
}

func (f *memoryFileInfo) Name() string       { return f.name }
func (f *memoryFileInfo) Size() int64        { return f.size }
func (f *memoryFileInfo) ModTime() time.Time { return f.modTime }
func (f *memoryFileInfo) IsDir() bool        { return f.isDir }
func (f *memoryFileInfo) Sys() any           { return nil }

func (f *memoryFileInfo) Mode() fs.FileMode {
	if f.isDir {
		return 0o755 | fs.ModeDir
	}
	return 0o644
}

type memoryFile struct {
	absPath string
	relPath string
	info    *memoryFileInfo
}

func (f *memoryFile) Path() string         { return f.absPath }
func (f *memoryFile) RelativePath() string { return f.relPath }
func (f *memoryFile) Info() FileInfo       { return f.info }

type memoryDirectory struct {
	absPath string
	fs      *MemoryFileSystem
}

func (d *memoryDirectory) Path() string { return d.absPath }

func (d *memoryDirectory) Walk(fn func(File, error) error) error {
	for _, entry := range d.fs.entriesUnder(d.absPath) {
		if err := fn(entry, nil); err != nil {
			return err
		}
	}
	return nil
}

// MemoryFileSystem implements FileSystemProvider in memory. Paths always use forward slashes.
// It is safe for concurrent use.
type MemoryFileSystem struct {
	mu       sync.RWMutex
	contents map[string][]byte
	dirs     map[string]time.Time
	modTimes map[string]time.Time
}

func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		contents: make(map[string][]byte),
		dirs:     map[string]time.Time{"/": time.Now()},
		modTimes: make(map[string]time.Time),
	}
}

func clean(p string) string {
	return path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
}

// AddFile stores content at p, creating parent directories.
func (m *MemoryFileSystem) AddFile(p string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addFileLocked(clean(p), content)
}

func (m *MemoryFileSystem) addFileLocked(p string, content []byte) {
	now := time.Now()
	for dir := path.Dir(p); ; dir = path.Dir(dir) {
		if _, ok := m.dirs[dir]; !ok {
			m.dirs[dir] = now
		}
		if dir == "/" {
			break
		}
	}
	m.contents[p] = append([]byte(nil), content...)
	m.modTimes[p] = now
}

// Content returns a copy of the file at p.
func (m *MemoryFileSystem) Content(p string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contents[clean(p)]
	return append([]byte(nil), c...), ok
}

func (m *MemoryFileSystem) Open(p string) (Directory, error) {
	p = clean(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.dirs[p]; !ok {
		if _, isFile := m.contents[p]; isFile {
			return nil, fmt.Errorf("path is not a directory: %s", p)
		}
		return nil, fmt.Errorf("failed to access path: %s: %w", p, fs.ErrNotExist)
	}
	return &memoryDirectory{absPath: p, fs: m}, nil
}

func (m *MemoryFileSystem) Stat(p string) (FileInfo, error) {
	p = clean(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.contents[p]; ok {
		return &memoryFileInfo{name: path.Base(p), size: int64(len(c)), modTime: m.modTimes[p]}, nil
	}
	if t, ok := m.dirs[p]; ok {
		return &memoryFileInfo{name: path.Base(p), modTime: t, isDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

func (m *MemoryFileSystem) WriteFile(p string, r io.Reader) (int64, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return n, fmt.Errorf("write %s: %w", p, err)
	}
	m.AddFile(p, buf.Bytes())
	return n, nil
}

// entriesUnder returns every directory and file strictly below root, sorted by path.
func (m *MemoryFileSystem) entriesUnder(root string) []*memoryFile {
	m.mu.RLock()
	defer m.mu.RUnlock()

	prefix := root + "/"
	if root == "/" {
		prefix = "/"
	}
	rel := func(p string) string { return strings.TrimPrefix(p, prefix) }

	var out []*memoryFile
	for p, t := range m.dirs {
		if p != root && strings.HasPrefix(p, prefix) {
			out = append(out, &memoryFile{absPath: p, relPath: rel(p), info: &memoryFileInfo{name: path.Base(p), modTime: t, isDir: true}})
		}
	}
	for p, c := range m.contents {
		if strings.HasPrefix(p, prefix) {
			out = append(out, &memoryFile{absPath: p, relPath: rel(p), info: &memoryFileInfo{name: path.Base(p), size: int64(len(c)), modTime: m.modTimes[p]}})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].absPath < out[j].absPath })
	return out
}
