package tasks

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/desertthunder/bidshelf/internal/models"
)

// FolderCopier copies a local dataset folder into managed storage at destination/<base of source>.
type FolderCopier struct{}

// Handle implements [Handler].
func (FolderCopier) Handle(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error) {
	info, err := os.Stat(job.Source)
	if err != nil {
		return "", fmt.Errorf("source folder: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source %s is not a directory", job.Source)
	}

	target := filepath.Join(job.Destination, filepath.Base(filepath.Clean(job.Source)))
	step := 0

	err = filepath.WalkDir(job.Source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(job.Source, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(dst, 0755)
		case d.Type().IsRegular():
			step++
			sendProgress(progress, ProgressUpdate{Phase: Copy, Step: step, Message: rel})
			return copyFile(path, dst)
		default:
			return nil
		}
	})
	if err != nil {
		return "", fmt.Errorf("failed to copy %s: %w", job.Source, err)
	}

	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
