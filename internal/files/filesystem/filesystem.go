package filesystem

import (
	"io"
	"io/fs"
)

// FileInfo is an alias for fs.FileInfo from the standard library.
type FileInfo = fs.FileInfo

// File is one entry found while walking a Directory.
type File interface {
	// Path returns the full path of the entry.
	Path() string

	// RelativePath returns the path relative to the walked root, with forward slashes.
	RelativePath() string

	Info() FileInfo
}

// Directory is a tree of batch files.
type Directory interface {
	Path() string

	// Walk visits every entry below the directory in lexical order.
	// If fn returns an error, walking stops and that error is returned.
	Walk(fn func(File, error) error) error
}

// FileSystemProvider opens directories and reads or writes single files.
type FileSystemProvider interface {
	Open(path string) (Directory, error)

	// Stat returns fs.ErrNotExist (wrapped) for missing paths.
	Stat(path string) (FileInfo, error)

	// WriteFile stores the contents of r at path, creating parent directories.
	// The file appears only once it is complete.
	WriteFile(path string, r io.Reader) (int64, error)
}
