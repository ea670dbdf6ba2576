package state

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the canonical runtime folder layout under the data dir.
type Paths struct {
	Data    string
	Store   string // pebble database
	Holding string // default work-source holding area
	State   string
	Leases  string
	Audit   string
	Tel     string
	Logs    string
	Tmp     string
	Crash   string
}

// PathsFor computes the runtime layout rooted at dataDir.
func PathsFor(dataDir string) Paths {
	statePath := filepath.Join(dataDir, "state")
	return Paths{
		Data:    dataDir,
		Store:   filepath.Join(dataDir, "store"),
		Holding: filepath.Join(dataDir, "holding"),

		State:  statePath,
		Leases: filepath.Join(statePath, "leases"),
		Audit:  filepath.Join(statePath, "audit"),
		Tel:    filepath.Join(statePath, "telemetry"),
		Logs:   filepath.Join(statePath, "logs"),
		Tmp:    filepath.Join(statePath, "tmp"),
		Crash:  filepath.Join(statePath, "crash"),
	}
}

// PathsVar is the layout for the running process, set once at startup by
// EnsureStateDirs.
var PathsVar Paths

// Convenience helpers
func StorePath(dataDir string) string   { return PathsFor(dataDir).Store }
func HoldingPath(dataDir string) string { return PathsFor(dataDir).Holding }
func StatePath(dataDir string) string   { return PathsFor(dataDir).State }
func LeasesPath(dataDir string) string  { return PathsFor(dataDir).Leases }
func AuditPath(dataDir string) string   { return PathsFor(dataDir).Audit }
func TelPath(dataDir string) string     { return PathsFor(dataDir).Tel }
func CrashPath(dataDir string) string   { return PathsFor(dataDir).Crash }

// EnsureStateDirs ensures the canonical runtime folder layout exists under
// the provided data dir. It verifies paths are not symlinks and have
// restrictive permissions, and that they are writable by the process.
func EnsureStateDirs(dataDir string) error {
	p := PathsFor(dataDir)
	dirs := []string{p.Store, p.Holding, p.Leases, p.Audit, p.Tel, p.Logs, p.Tmp, p.Crash}

	for _, d := range dirs {
		// ensure parent exists
		if err := os.MkdirAll(filepath.Dir(d), 0o700); err != nil {
			return fmt.Errorf("cannot create parent for %s: %w", d, err)
		}

		// if path exists, reject symlinks and non-directories
		if fi, err := os.Lstat(d); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink: %s", d)
			}
			if !fi.IsDir() {
				return fmt.Errorf("path exists and is not a directory: %s", d)
			}
			if fi.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode (group/other write): %s", d)
			}
		}

		// create directory if missing
		if err := os.MkdirAll(d, 0o700); err != nil {
			return fmt.Errorf("cannot create path %s: %w", d, err)
		}

		// double-check no symlink after creation
		if fi2, err := os.Lstat(d); err == nil {
			if fi2.Mode()&os.ModeSymlink != 0 {
				return fmt.Errorf("path is a symlink after creation: %s", d)
			}
			if fi2.Mode().Perm()&0o022 != 0 {
				return fmt.Errorf("path has permissive mode after creation: %s", d)
			}
		}

		// writability check: create and remove a temp file
		tmp, err := os.CreateTemp(d, ".validate-*")
		if err != nil {
			return fmt.Errorf("path not writable: %s: %w", d, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	PathsVar = p
	return nil
}
