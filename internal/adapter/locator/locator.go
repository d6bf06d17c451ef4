package locator

import (
	"os"
	"path/filepath"
	"strings"

	"sharpinstall/internal/domain"
)

// Locator walks an install tree looking for a native module file.
type Locator struct {
	skip map[string]bool
}

// New creates a Locator. Entries named in skip are ignored when they appear
// directly under the searched root (the staging directory, for instance).
func New(skip ...string) *Locator {
	l := &Locator{skip: make(map[string]bool, len(skip))}
	for _, s := range skip {
		l.skip[s] = true
	}
	return l
}

// Locate returns the directory holding the first *.node file found beneath
// rootDir, depth first. A missing or unreadable root yields domain.ErrNotFound.
// Symlinked directories are not followed.
func (l *Locator) Locate(rootDir string) (string, error) {
	stack := []string{rootDir}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		var subdirs []string
		for _, e := range entries {
			if dir == rootDir && l.skip[e.Name()] {
				continue
			}
			if e.IsDir() {
				subdirs = append(subdirs, filepath.Join(dir, e.Name()))
				continue
			}
			if e.Type().IsRegular() && strings.HasSuffix(e.Name(), domain.ModuleSuffix) {
				return dir, nil
			}
		}
		// Push in reverse so the lexically first subdirectory is visited next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}
	return "", domain.ErrNotFound
}
