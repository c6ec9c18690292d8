package invoice

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wiffzack/printspool/internal/core"
)

//go:embed templates/*.html
var builtinTemplates embed.FS

const templateExt = ".html"

// FileTemplateStore loads {dir}/{name}.html, falling back to the templates
// compiled into the binary.
type FileTemplateStore struct {
	dir      string
	fallback fs.FS
}

func NewFileTemplateStore(dir string) *FileTemplateStore {
	sub, _ := fs.Sub(builtinTemplates, "templates")
	return &FileTemplateStore{dir: dir, fallback: sub}
}

func (s *FileTemplateStore) LoadTemplate(_ context.Context, name string) (string, error) {
	if !validName(name) {
		return "", fmt.Errorf("invalid template name %q: %w", name, core.ErrTemplateNotFound)
	}
	file := name + templateExt

	if s.dir != "" {
		data, err := os.ReadFile(filepath.Join(s.dir, file))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %w", core.ErrTemplateNotFound, err)
		}
	}

	data, err := fs.ReadFile(s.fallback, file)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", name, core.ErrTemplateNotFound)
	}
	return string(data), nil
}

// Names lists the templates available from either location.
func (s *FileTemplateStore) Names() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(entries []fs.DirEntry) {
		for _, e := range entries {
			n, ok := strings.CutSuffix(e.Name(), templateExt)
			if !ok || e.IsDir() || seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}

	if s.dir != "" {
		if entries, err := os.ReadDir(s.dir); err == nil {
			add(entries)
		}
	}
	if entries, err := fs.ReadDir(s.fallback, "."); err == nil {
		add(entries)
	}
	return names
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}
