package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/liamcoop/vouchermacro/macro"
)

// Dir is a template set laid out on disk the way the automation app exports
// it: the template at the root and fragments under action_1/ and action_2/.
// It also serves as a macro.ArtifactSink writing into the same root.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory the store reads and writes.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) resolve(rel string) (string, error) {
	rel = filepath.Clean(filepath.FromSlash(rel))
	if rel == "." || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return filepath.Join(d.root, rel), nil
}

func (d *Dir) read(rel string) (string, error) {
	path, err := d.resolve(rel)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(b), nil
}

// GetTemplate reads the template file name.
func (d *Dir) GetTemplate(_ context.Context, name string) (string, error) {
	return d.read(name)
}

// PutTemplate replaces the template file name.
func (d *Dir) PutTemplate(_ context.Context, name, content string) error {
	path, err := d.resolve(name)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(content))
}

// Fragments reads every fragment file that exists.
func (d *Dir) Fragments(context.Context) (macro.FragmentSet, error) {
	set := make(macro.FragmentSet)
	for _, kind := range macro.FragmentKinds {
		for i := 1; i <= macro.SlotCount; i++ {
			text, err := d.read(kind.FileName(i))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			set[macro.FragmentKey{Kind: kind, Index: i}] = text
		}
	}
	return set, nil
}

// PutFragment replaces one fragment file.
func (d *Dir) PutFragment(_ context.Context, kind macro.FragmentKind, index int, content string) error {
	if err := checkFragmentIndex(index); err != nil {
		return err
	}
	path, err := d.resolve(kind.FileName(index))
	if err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(content))
}

// Put writes an artifact file, replacing any previous one.
func (d *Dir) Put(ctx context.Context, name string, content []byte) (macro.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return macro.ArtifactRef{}, err
	}
	path, err := d.resolve(name)
	if err != nil {
		return macro.ArtifactRef{}, err
	}
	if err := writeFileAtomic(path, content); err != nil {
		return macro.ArtifactRef{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return macro.ArtifactRef{ID: name, Name: name, URL: "file://" + filepath.ToSlash(abs)}, nil
}

// writeFileAtomic writes to a temporary file in the destination directory and
// renames it into place.
func writeFileAtomic(dest string, content []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, 0o644)

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return nil
}

var (
	_ TemplateStore      = (*Dir)(nil)
	_ macro.ArtifactSink = (*Dir)(nil)
)
