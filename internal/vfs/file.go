// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package vfs implements the in-memory filesystem every pipeline phase
// operates on: a mapping from normalized relative paths to Files, with
// glob enumeration, atomic rename and no dependency on host I/O.
package vfs

import (
	"os"
	"time"
)

// File is an owned byte buffer plus the metadata the pipeline cares about.
//
// Files have no directory identity of their own; a Filesystem's keys are
// what give them a place in a tree.
type File struct {
	Content []byte

	// Mode holds the nine low POSIX permission bits. Other bits (setuid,
	// sticky, directory, ...) are never set or consulted.
	Mode os.FileMode

	ModTime time.Time

	// IsTemplate marks a file for substitution during phase 4's template
	// processing. Set by the `template` operation, consumed by Compose.
	IsTemplate bool
}

// Clone returns a deep copy of f so mutating the copy never affects f.
func (f *File) Clone() *File {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Content = append([]byte(nil), f.Content...)
	return &cp
}

const defaultMode os.FileMode = 0o644

// New returns a File with the default permission bits and the given
// content, time-stamped now.
func New(content []byte) *File {
	return &File{Content: content, Mode: defaultMode, ModTime: time.Now()}
}

// NewWithMeta returns a File with explicit mode and modification time, for
// callers restoring a file from an external source (the blob cache, a host
// directory walk) that already carries that metadata.
func NewWithMeta(content []byte, mode os.FileMode, modTime time.Time) *File {
	return &File{Content: content, Mode: mode, ModTime: modTime}
}
