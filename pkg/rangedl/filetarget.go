// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package rangedl

import (
	"os"
	"path/filepath"
)

// fileTarget is a pre-sized destination file with random-access writes
// at segment offsets.
type fileTarget struct {
	path string
}

// createFileTarget ensures dir exists, removes any existing file at path,
// creates a new file, and pre-extends it to size bytes when size > 0
// (sparse allocation). For size <= 0 it creates an empty file.
func createFileTarget(dir, name string, size int64) (*fileTarget, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if size > 0 {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &fileTarget{path: path}, nil
}

// openForRangeWrite opens the file with write access positioned at offset.
func (t *fileTarget) openForRangeWrite(offset int64) (*os.File, error) {
	f, err := os.OpenFile(t.path, os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(offset, os.SEEK_SET); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// remove is a best-effort delete used to clean up on failure/abort.
func (t *fileTarget) remove() {
	_ = os.Remove(t.path)
}

// deriveFileName returns saveFileName if set, otherwise the final path
// component of url.
func deriveFileName(saveFileName, url string) string {
	if saveFileName != "" {
		return saveFileName
	}
	base := filepath.Base(url)
	// strip any query string that filepath.Base left attached
	for i, c := range base {
		if c == '?' {
			base = base[:i]
			break
		}
	}
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return base
}
