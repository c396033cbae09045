// Package filesystem abstracts the local directory that holds downloaded batch files.
//
// Key interfaces:
//   - FileSystemProvider: opens directories, stats and writes files
//   - Directory: a tree that can be walked
//   - File: one entry found during a walk
//
// Implementations:
//   - OSFileSystem: production implementation on the OS filesystem
//   - MemoryFileSystem: in-memory implementation for tests
package filesystem
