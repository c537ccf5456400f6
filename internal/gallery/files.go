package gallery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facegate/internal/utils"
)

// ErrNotFound is returned when no gallery file carries the requested name.
var ErrNotFound = errors.New("no gallery image with that name")

// ValidName reports whether name can be used as a gallery file stem: it must
// be non-blank, must not be "." or "..", and must not contain a path separator.
func ValidName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("name cannot be empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid name %q: must not contain a path separator", name)
	}
	return nil
}

// Rename renames every gallery image whose stem is oldName to newName,
// keeping each file's extension. Nothing is renamed if any target exists.
// It returns the new file names.
func Rename(dir, oldName, newName string) ([]string, error) {
	if err := ValidName(newName); err != nil {
		return nil, err
	}
	files, err := ImageFiles(dir)
	if err != nil {
		return nil, err
	}

	var from, to []string
	for _, name := range files {
		if utils.NameFromFile(name) != oldName {
			continue
		}
		target := newName + filepath.Ext(name)
		if _, err := os.Stat(filepath.Join(dir, target)); err == nil {
			return nil, fmt.Errorf("%s already exists", target)
		}
		from = append(from, name)
		to = append(to, target)
	}
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}

	for i := range from {
		if err := os.Rename(filepath.Join(dir, from[i]), filepath.Join(dir, to[i])); err != nil {
			return to[:i], err
		}
	}
	return to, nil
}

// Clear deletes every gallery image in dir and returns how many were removed.
// Other files are left alone.
func Clear(dir string) (int, error) {
	files, err := ImageFiles(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	for i, name := range files {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return i, err
		}
	}
	return len(files), nil
}
