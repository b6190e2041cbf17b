// Package state owns the canonical on-disk runtime layout under the DB
// path.
package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the resolved runtime folder layout.
type Paths struct {
	Root      string
	Crash     string
	Retention string
	Tmp       string
}

// Resolve returns the layout for a DB path without touching the disk.
func Resolve(dbPath string) Paths {
	statePath := filepath.Join(dbPath, "state")
	return Paths{
		Root:      statePath,
		Crash:     filepath.Join(statePath, "crash"),
		Retention: filepath.Join(statePath, "retention"),
		Tmp:       filepath.Join(statePath, "tmp"),
	}
}

// EnsureStateDirs creates the runtime folder layout under the DB path. It
// rejects symlinks and permissive modes and verifies writability.
func EnsureStateDirs(dbPath string) (Paths, error) {
	p := Resolve(dbPath)
	for _, dir := range []string{p.Crash, p.Retention, p.Tmp} {
		if err := os.MkdirAll(filepath.Dir(dir), 0o700); err != nil {
			return Paths{}, fmt.Errorf("cannot create parent for %s: %w", dir, err)
		}
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return Paths{}, fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return Paths{}, fmt.Errorf("path exists and is not a directory: %s", dir)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return Paths{}, fmt.Errorf("path has permissive mode (group/other write): %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Paths{}, fmt.Errorf("cannot create path %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return Paths{}, fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return p, nil
}
