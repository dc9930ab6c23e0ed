package tasks

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

// ArchiveFormat identifies a supported archive type.
type ArchiveFormat string

const (
	FormatZip      ArchiveFormat = "zip"
	FormatTar      ArchiveFormat = "tar"
	FormatTarGzip  ArchiveFormat = "tar.gz"
	FormatSevenZip ArchiveFormat = "7z"
)

// DetectArchive picks the format from the file name.
func DetectArchive(name string) (ArchiveFormat, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGzip, nil
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, nil
	case strings.HasSuffix(lower, ".7z"):
		return FormatSevenZip, nil
	default:
		return "", fmt.Errorf("%w: %s", shared.ErrUnsupportedArchive, filepath.Base(name))
	}
}

// ArchiveUnpacker extracts an uploaded archive into the job destination.
//
// When the archive holds a single top-level directory that directory is the result folder.
// The uploaded archive is removed once extraction finishes, successfully or not.
type ArchiveUnpacker struct {
	logger *log.Logger
}

// NewArchiveUnpacker creates an ArchiveUnpacker.
func NewArchiveUnpacker(logger *log.Logger) *ArchiveUnpacker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ArchiveUnpacker{logger: logger}
}

// Handle implements [Handler].
func (u *ArchiveUnpacker) Handle(ctx context.Context, job models.Job, progress chan<- ProgressUpdate) (string, error) {
	defer func() {
		if err := os.Remove(job.Archive); err != nil && !os.IsNotExist(err) {
			u.logger.Warn("failed to remove uploaded archive", "path", job.Archive, "error", err)
		}
	}()

	format, err := DetectArchive(job.Archive)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(job.Destination, 0755); err != nil {
		return "", fmt.Errorf("failed to create destination: %w", err)
	}

	sendProgress(progress, ProgressUpdate{Phase: Extract, Message: "extracting " + filepath.Base(job.Archive)})

	switch format {
	case FormatZip:
		err = unzip(ctx, job.Archive, job.Destination, progress)
	case FormatTar, FormatTarGzip:
		err = untar(ctx, job.Archive, job.Destination, format == FormatTarGzip, progress)
	case FormatSevenZip:
		err = un7z(ctx, job.Archive, job.Destination, progress)
	}
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", filepath.Base(job.Archive), err)
	}

	sendProgress(progress, ProgressUpdate{Phase: Finalize, Message: "extraction complete"})
	return resultFolder(job.Destination)
}

// safeJoin resolves name under root, rejecting absolute paths and parent traversal.
func safeJoin(root, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("illegal path in archive: %s", name)
	}
	return filepath.Join(root, clean), nil
}

// writeEntry creates the file or directory for one archive entry.
func writeEntry(root, name string, isDir bool, mode fs.FileMode, r io.Reader) error {
	target, err := safeJoin(root, name)
	if err != nil {
		return err
	}

	if isDir {
		return os.MkdirAll(target, 0755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	if mode&0777 == 0 {
		mode = 0644
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode&0777)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func unzip(ctx context.Context, path, dest string, progress chan<- ProgressUpdate) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	total := len(zr.File)
	for i, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Mode()&fs.ModeSymlink != 0 {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(dest, f.Name, f.FileInfo().IsDir(), f.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
		sendProgress(progress, ProgressUpdate{Phase: Extract, Step: i + 1, Total: total, Message: f.Name})
	}
	return nil
}

func untar(ctx context.Context, path, dest string, gzipped bool, progress chan<- ProgressUpdate) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for step := 1; ; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			err = writeEntry(dest, hdr.Name, true, 0, nil)
		case tar.TypeReg:
			err = writeEntry(dest, hdr.Name, false, fs.FileMode(hdr.Mode), tr)
		default:
			continue
		}
		if err != nil {
			return err
		}
		sendProgress(progress, ProgressUpdate{Phase: Extract, Step: step, Message: hdr.Name})
	}
}

func un7z(ctx context.Context, path, dest string, progress chan<- ProgressUpdate) error {
	r, err := sevenzip.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	total := len(r.File)
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		info := f.FileInfo()
		if info.Mode()&fs.ModeSymlink != 0 {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}
		err = writeEntry(dest, f.Name, info.IsDir(), info.Mode(), rc)
		rc.Close()
		if err != nil {
			return err
		}
		sendProgress(progress, ProgressUpdate{Phase: Extract, Step: i + 1, Total: total, Message: f.Name})
	}
	return nil
}

// resultFolder returns dest's only child directory when dest holds nothing else, otherwise dest.
func resultFolder(dest string) (string, error) {
	entries, err := os.ReadDir(dest)
	if err != nil {
		return "", err
	}

	var visible []fs.DirEntry
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || e.Name() == "__MACOSX" {
			continue
		}
		visible = append(visible, e)
	}

	if len(visible) == 1 && visible[0].IsDir() {
		return filepath.Join(dest, visible[0].Name()), nil
	}
	return dest, nil
}
