// Package workspace reads and writes files under a project root on behalf
// of proposed file edits.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/youruser/contextco/internal/logging"
)

var (
	// ErrNoRoot is returned when no workspace root has been set.
	ErrNoRoot = errors.New("workspace root not set")
	log       = logging.Get()
)

// Workspace is a project directory that edits are read from and applied to.
type Workspace struct {
	root string
}

// New returns a workspace rooted at root. The directory must exist.
func New(root string) (*Workspace, error) {
	if root == "" {
		return nil, ErrNoRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps an edit path to an absolute path inside the workspace.
func (w *Workspace) Resolve(path string) (string, error) {
	rel, err := Relative(w.root, path)
	if err != nil {
		return "", err
	}
	return SafeJoin(w.root, rel)
}

// Read returns the current content of path. ok is false when the file does
// not exist; any other failure is returned as an error. A path that resolves
// outside the root through a symlink fails with ErrPathEscape.
func (w *Workspace) Read(ctx context.Context, path string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	full, err := w.contained(path)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// Apply writes content to path, creating parent directories as needed.
// Existing file permissions are preserved.
func (w *Workspace) Apply(path, content string) error {
	full, err := w.contained(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if info, err := os.Stat(full); err == nil {
		mode = info.Mode().Perm()
	}

	log.Info("Applying edit to %s (%d bytes)", full, len(content))
	return os.WriteFile(full, []byte(content), mode)
}

// contained resolves path and checks the result still lies under the root
// once symlinks are followed.
func (w *Workspace) contained(path string) (string, error) {
	full, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	within, err := IsWithinDirReal(w.root, full)
	if err != nil {
		return "", err
	}
	if !within {
		log.Error("refusing access outside workspace: root=%s path=%s", w.root, full)
		return "", ErrPathEscape
	}
	return full, nil
}
