// Package spool delivers rendered artifacts: into a directory tree, to a
// network printer, to an S3 bucket or to a plain writer.
package spool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wiffzack/printspool/internal/config"
	"github.com/wiffzack/printspool/internal/core"
)

const unknownStaff = "_unknown_waiter_"

var nameReplacer = strings.NewReplacer("/", "_", `\`, "_", "\x00", "_")

// New builds the sink for the configured backend.
func New(ctx context.Context, cfg config.SpoolConfig, logger *zap.Logger) (core.Sink, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileSink(cfg.Root), nil
	case "device":
		return NewDeviceSink(cfg.Device, logger), nil
	case "s3":
		return NewS3Sink(ctx, cfg.S3, logger)
	}
	return nil, fmt.Errorf("unknown spool backend %q", cfg.Backend)
}

func staffDir(staff string) string {
	if strings.TrimSpace(staff) == "" {
		return unknownStaff
	}
	return safeName(staff)
}

func artifactName(a *core.Artifact) string {
	return safeName(a.Template) + "_" + strconv.FormatInt(a.InvoiceID, 10)
}

// safeName keeps a path component from escaping its parent.
func safeName(s string) string {
	s = nameReplacer.Replace(s)
	if s == "." || s == ".." {
		return "_"
	}
	return s
}
