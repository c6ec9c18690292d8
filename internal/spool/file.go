package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wiffzack/printspool/internal/core"
)

// FileSink writes {root}/{staff}/{template}_{invoice}. A separate print
// daemon picks the files up.
type FileSink struct {
	root string
}

func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

// Path returns where an artifact ends up.
func (s *FileSink) Path(a *core.Artifact) string {
	return filepath.Join(s.root, staffDir(a.StaffID), artifactName(a))
}

func (s *FileSink) Write(_ context.Context, a *core.Artifact) error {
	target := s.Path(a)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create spool dir %s: %w: %w", dir, core.ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("create spool file: %w: %w", core.ErrIO, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write spool file: %w: %w", core.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close spool file: %w: %w", core.ErrIO, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename spool file: %w: %w", core.ErrIO, err)
	}
	return nil
}
