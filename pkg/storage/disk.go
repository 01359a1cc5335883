package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrInvalidPath is returned for names that would escape the root.
	ErrInvalidPath = errors.New("invalid storage path")
	// ErrTooLarge is returned by SaveStream when the content exceeds the limit.
	ErrTooLarge = errors.New("content exceeds size limit")
)

// Disk keeps uploads and generated exports under one root directory. Writes
// land in a temp file first and are renamed into place, so readers never
// see a partial file.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	if root == "" {
		root = "./uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Disk{root: root}, nil
}

// Save writes data at name and returns name.
func (d *Disk) Save(name string, data []byte) (string, error) {
	if _, err := d.write(name, func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	}); err != nil {
		return "", err
	}
	return name, nil
}

// SaveStream copies r to name, failing with ErrTooLarge past maxBytes. A
// non-positive maxBytes disables the limit.
func (d *Disk) SaveStream(name string, r io.Reader, maxBytes int64) (int64, error) {
	return d.write(name, func(w io.Writer) (int64, error) {
		src := r
		if maxBytes > 0 {
			src = io.LimitReader(r, maxBytes+1)
		}
		n, err := io.Copy(w, src)
		if err == nil && maxBytes > 0 && n > maxBytes {
			err = ErrTooLarge
		}
		return n, err
	})
}

func (d *Disk) write(name string, fill func(io.Writer) (int64, error)) (int64, error) {
	path, err := d.resolve(name)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("prepare storage directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := fill(tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(tmp.Name(), 0o644)
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		if errors.Is(err, ErrTooLarge) {
			return 0, err
		}
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return n, nil
}

// Open returns a read-only handle for name.
func (d *Disk) Open(name string) (*os.File, error) {
	path, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Delete removes name; a missing file is not an error.
func (d *Disk) Delete(name string) error {
	path, err := d.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// CleanupOlderThan deletes files under dir last modified more than ttl ago
// and returns their names relative to the root.
func (d *Disk) CleanupOlderThan(dir string, ttl time.Duration) ([]string, error) {
	start, err := d.resolve(dir)
	if err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-ttl)
	var removed []string
	err = filepath.WalkDir(start, func(path string, entry fs.DirEntry, err error) error {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return filepath.SkipDir
		case err != nil:
			return err
		case entry.IsDir():
			return nil
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		rel, _ := filepath.Rel(d.root, path)
		removed = append(removed, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("cleanup %s: %w", dir, err)
	}
	return removed, nil
}

func (d *Disk) resolve(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", ErrInvalidPath
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return filepath.Join(d.root, clean), nil
}
