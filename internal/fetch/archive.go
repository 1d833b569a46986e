package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sevigo/codesentry/internal/core"
)

// ArchiveFetcher unpacks an uploaded zip archive into scratch disk, rejecting
// absolute paths, ".." segments, symlinks that resolve outside the root, and
// a running total of uncompressed bytes over SizeCap.
type ArchiveFetcher struct {
	ScratchRoot string
	SizeCap     int64
	Logger      *slog.Logger
}

// NewArchiveFetcher returns an ArchiveFetcher rooted at scratchRoot, enforcing sizeCap bytes uncompressed.
func NewArchiveFetcher(scratchRoot string, sizeCap int64, logger *slog.Logger) *ArchiveFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveFetcher{ScratchRoot: scratchRoot, SizeCap: sizeCap, Logger: logger}
}

var _ core.SourceFetcher = (*ArchiveFetcher)(nil)

// Fetch unpacks repo.ArchivePath into a fresh scratch directory.
func (f *ArchiveFetcher) Fetch(ctx context.Context, repo core.Repository) (string, func(), error) {
	if err := os.MkdirAll(f.ScratchRoot, 0o750); err != nil {
		return "", nil, core.NewKindError(core.ErrKindResource, fmt.Errorf("failed to create scratch root: %w", err))
	}

	dir := filepath.Join(f.ScratchRoot, "codesentry-repo-"+uuid.NewString())
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", nil, core.NewKindError(core.ErrKindResource, fmt.Errorf("failed to create scratch dir: %w", err))
	}
	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			f.Logger.Error("failed to remove scratch dir", "path", dir, "error", rmErr)
		}
	}

	if err := f.unpack(ctx, repo.ArchivePath, dir); err != nil {
		cleanup()
		return "", nil, err
	}

	return dir, cleanup, nil
}

func (f *ArchiveFetcher) unpack(ctx context.Context, archivePath, destRoot string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return core.NewKindError(core.ErrKindValidation, fmt.Errorf("failed to open archive: %w", err))
	}
	defer r.Close()

	var totalUncompressed int64
	for _, entry := range r.File {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		destPath, err := safeJoin(destRoot, entry.Name)
		if err != nil {
			return core.NewKindError(core.ErrKindValidation, fmt.Errorf("%w: %s: %v", core.ErrArchiveUnsafe, entry.Name, err))
		}

		if entry.Mode()&os.ModeSymlink != 0 {
			if err := f.extractSymlink(entry, destRoot, destPath); err != nil {
				return err
			}
			continue
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o750); err != nil {
				return core.NewKindError(core.ErrKindResource, err)
			}
			continue
		}

		totalUncompressed += int64(entry.UncompressedSize64)
		if f.SizeCap > 0 && totalUncompressed > f.SizeCap {
			return core.NewKindError(core.ErrKindValidation, core.ErrArchiveTooLarge)
		}

		if err := extractFile(entry, destPath, f.SizeCap-totalUncompressed+int64(entry.UncompressedSize64)); err != nil {
			return err
		}
	}
	return nil
}

func (f *ArchiveFetcher) extractSymlink(entry *zip.File, destRoot, destPath string) error {
	rc, err := entry.Open()
	if err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}
	defer rc.Close()

	target, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}

	resolved := target
	if !filepath.IsAbs(string(resolved)) {
		resolved = []byte(filepath.Join(filepath.Dir(destPath), string(target)))
	}
	if _, err := safeJoin(destRoot, strings.TrimPrefix(string(resolved), destRoot)); err != nil {
		return core.NewKindError(core.ErrKindValidation, fmt.Errorf("%w: symlink escapes root", core.ErrArchiveUnsafe))
	}
	rel, err := filepath.Rel(destRoot, string(resolved))
	if err != nil || strings.HasPrefix(rel, "..") {
		return core.NewKindError(core.ErrKindValidation, fmt.Errorf("%w: symlink escapes root", core.ErrArchiveUnsafe))
	}
	return nil // symlinks are rejected by not writing them; archive entry is skipped
}

func extractFile(entry *zip.File, destPath string, remainingBudget int64) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}

	rc, err := entry.Open()
	if err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}
	defer out.Close()

	if remainingBudget < 0 {
		remainingBudget = 0
	}
	written, err := io.Copy(out, io.LimitReader(rc, remainingBudget+1))
	if err != nil {
		return core.NewKindError(core.ErrKindResource, err)
	}
	if written > remainingBudget {
		return core.NewKindError(core.ErrKindValidation, core.ErrArchiveTooLarge)
	}
	return nil
}

// safeJoin joins root and name, rejecting absolute paths and traversal that
// would resolve outside root.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("unsafe path %q", name)
	}
	joined := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("path %q escapes root", name)
	}
	return joined, nil
}
