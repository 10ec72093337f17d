// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package vfs

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// Filesystem is a mapping from normalized relative paths to Files.
//
// The zero value is ready to use. Filesystem is not safe for concurrent
// use; callers serialize access the way the rest of the pipeline does
// (see spec.md §5).
type Filesystem struct {
	files map[string]*File
}

// New returns an empty Filesystem.
func New() *Filesystem {
	return &Filesystem{files: map[string]*File{}}
}

// Normalize converts p to a forward-slash, `.`/`..`-collapsed relative
// path, and rejects it if the result escapes the root or is absolute.
func Normalize(p string) (string, error) {
	slashed := strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean(slashed)
	switch {
	case path.IsAbs(cleaned):
		return "", errors.Reason("path %q is absolute", p).Tag(corerr.Filesystem).Err()
	case cleaned == ".." || strings.HasPrefix(cleaned, "../"):
		return "", errors.Reason("path %q escapes the filesystem root", p).Tag(corerr.Filesystem).Err()
	case cleaned == ".":
		return "", errors.Reason("path %q does not name a file", p).Tag(corerr.Filesystem).Err()
	default:
		return cleaned, nil
	}
}

// Add inserts or replaces the file at path. The path is normalized first.
func (fsys *Filesystem) Add(p string, f *File) error {
	norm, err := Normalize(p)
	if err != nil {
		return err
	}
	if fsys.files == nil {
		fsys.files = map[string]*File{}
	}
	fsys.files[norm] = f
	return nil
}

// Remove deletes the file at path. A no-op if the path is absent or
// unparsable.
func (fsys *Filesystem) Remove(p string) {
	norm, err := Normalize(p)
	if err != nil {
		return
	}
	delete(fsys.files, norm)
}

// Get returns the file at path and whether it was present.
func (fsys *Filesystem) Get(p string) (*File, bool) {
	norm, err := Normalize(p)
	if err != nil {
		return nil, false
	}
	f, ok := fsys.files[norm]
	return f, ok
}

// Rename moves the file at old to new, overwriting any file already at
// new. A no-op (not an error) if old does not exist, which lets a rename
// mapping that matches nothing act as a silent pass-through.
func (fsys *Filesystem) Rename(oldPath, newPath string) error {
	oldNorm, err := Normalize(oldPath)
	if err != nil {
		return err
	}
	f, ok := fsys.files[oldNorm]
	if !ok {
		return nil
	}
	newNorm, err := Normalize(newPath)
	if err != nil {
		return err
	}
	if oldNorm == newNorm {
		return nil
	}
	delete(fsys.files, oldNorm)
	fsys.files[newNorm] = f
	return nil
}

// Len returns the number of files.
func (fsys *Filesystem) Len() int { return len(fsys.files) }

// Paths returns every path present, sorted lexically.
func (fsys *Filesystem) Paths() []string {
	out := make([]string, 0, len(fsys.files))
	for p := range fsys.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Entry is one (path, file) pair yielded by Files.
type Entry struct {
	Path string
	File *File
}

// Files returns every (path, file) pair, sorted by path so iteration is
// reproducible (spec.md §3: "order irrelevant for semantics but iteration
// must be reproducible").
func (fsys *Filesystem) Files() []Entry {
	paths := fsys.Paths()
	out := make([]Entry, len(paths))
	for i, p := range paths {
		out[i] = Entry{Path: p, File: fsys.files[p]}
	}
	return out
}

// Glob returns every path matching pattern, sorted lexically. Pattern
// syntax is doublestar's: `*` within a segment, `**` across segments,
// character classes and `?`.
func (fsys *Filesystem) Glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(fsAdapter{fsys}, pattern)
	if err != nil {
		return nil, errors.Annotate(err, "bad glob pattern %q", pattern).Tag(corerr.Filesystem).Err()
	}
	sort.Strings(matches)
	return matches, nil
}

// Merge copies every file from src into fsys, last writer wins (src wins
// on any path collision). Used by phase 5's local overlay.
func (fsys *Filesystem) Merge(src *Filesystem) {
	for _, e := range src.Files() {
		fsys.Add(e.Path, e.File)
	}
}

// Clone returns a deep copy.
func (fsys *Filesystem) Clone() *Filesystem {
	out := New()
	for p, f := range fsys.files {
		out.files[p] = f.Clone()
	}
	return out
}

// fsAdapter exposes a Filesystem as an io/fs.FS so doublestar.Glob can
// walk it without the pipeline depending on host directories.
type fsAdapter struct{ fsys *Filesystem }

func (a fsAdapter) Open(name string) (fs.File, error) {
	if name == "." {
		return &dirHandle{entries: a.fsys.Files()}, nil
	}
	f, ok := a.fsys.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return &fileHandle{name: name, file: f}, nil
}

type fileHandle struct {
	name   string
	file   *File
	offset int
}

func (h *fileHandle) Stat() (fs.FileInfo, error) { return fileInfo{name: path.Base(h.name), file: h.file}, nil }

func (h *fileHandle) Read(b []byte) (int, error) {
	if h.offset >= len(h.file.Content) {
		return 0, io.EOF
	}
	n := copy(b, h.file.Content[h.offset:])
	h.offset += n
	return n, nil
}

func (h *fileHandle) Close() error { return nil }

type dirHandle struct {
	entries []Entry
	pos     int
}

func (d *dirHandle) Stat() (fs.FileInfo, error) {
	return fileInfo{name: ".", dir: true}, nil
}
func (d *dirHandle) Read([]byte) (int, error) { return 0, io.EOF }
func (d *dirHandle) Close() error             { return nil }

// ReadDir lets doublestar enumerate the virtual root in one shot: every
// file path is exposed as a direct child of "." (doublestar walks
// whatever ReadDir reports; since our FS is flat-keyed, not a real tree,
// we special-case "." to report every file and glob matching handles the
// slashes in the name itself).
func (d *dirHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	out := make([]fs.DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, dirEntry{path: e.Path, file: e.File})
	}
	return out, nil
}

type dirEntry struct {
	path string
	file *File
}

func (e dirEntry) Name() string               { return e.path }
func (e dirEntry) IsDir() bool                 { return false }
func (e dirEntry) Type() fs.FileMode           { return e.file.Mode.Type() }
func (e dirEntry) Info() (fs.FileInfo, error)  { return fileInfo{name: e.path, file: e.file}, nil }

type fileInfo struct {
	name string
	file *File
	dir  bool
}

func (i fileInfo) Name() string { return i.name }
func (i fileInfo) Size() int64 {
	if i.file == nil {
		return 0
	}
	return int64(len(i.file.Content))
}
func (i fileInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return i.file.Mode
}
func (i fileInfo) ModTime() time.Time {
	if i.file == nil {
		return time.Time{}
	}
	return i.file.ModTime
}
func (i fileInfo) IsDir() bool      { return i.dir }
func (i fileInfo) Sys() interface{} { return nil }
