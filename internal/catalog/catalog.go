// Package catalog is the dataset service shared by the web handlers, the CLI and the TUI.
//
// It registers datasets (submitting an acquisition job when one is needed),
// returns reconciled records and serves parsed metadata through the view cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

// Store is the dataset record store (see repositories.DatasetRepository).
type Store interface {
	models.Repository[*models.Dataset]
	tasks.DatasetStore
}

// VersionResolver looks up the latest snapshot tag of a remote dataset.
type VersionResolver interface {
	LatestSnapshot(ctx context.Context, databaseID string) (string, error)
}

// Upload is a file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// CreateRequest holds the creation form fields.
type CreateRequest struct {
	Name       string
	Folder     string
	DatabaseID string
	Version    string
	CopyFolder bool
	Icon       *Upload
	Archive    *Upload
}

// Options wires a [Service]. Versions may be nil.
type Options struct {
	Store      Store
	Submitter  tasks.Submitter
	Reconciler *tasks.Reconciler
	Cache      *bids.Cache
	Versions   VersionResolver
	Storage    shared.StorageConfig
	Logger     *log.Logger
}

type Service struct {
	store      Store
	submitter  tasks.Submitter
	reconciler *tasks.Reconciler
	cache      *bids.Cache
	versions   VersionResolver
	storage    shared.StorageConfig
	logger     *log.Logger
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Service{
		store:      opts.Store,
		submitter:  opts.Submitter,
		reconciler: opts.Reconciler,
		cache:      opts.Cache,
		versions:   opts.Versions,
		storage:    opts.Storage,
		logger:     shared.WithLogger(opts.Logger, "component", "catalog"),
	}
}

// Create registers a dataset.
//
// An archive becomes an unpack job, a database id a download job and a folder with CopyFolder a copy job.
// A folder alone is registered as is, in state SUCCESS. Job-backed datasets start PENDING and
// get their folder from the task result.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Dataset, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Folder = strings.TrimSpace(req.Folder)
	req.DatabaseID = strings.TrimSpace(req.DatabaseID)
	req.Version = strings.TrimSpace(req.Version)

	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", shared.ErrValidation)
	}
	if req.Version != "" && req.DatabaseID == "" {
		return nil, fmt.Errorf("%w: version requires a database id", shared.ErrValidation)
	}
	if req.CopyFolder && req.Folder == "" && req.Archive == nil && req.DatabaseID == "" {
		return nil, fmt.Errorf("%w: copy requested without a folder", shared.ErrValidation)
	}

	id := shared.GenerateID()
	logger := shared.WithLogger(s.logger, "dataset_id", id)

	var icon string
	if req.Icon != nil {
		name, err := s.saveIcon(id, req.Icon)
		if err != nil {
			return nil, err
		}
		icon = name
	}

	job, err := s.plan(ctx, id, &req)
	if err != nil {
		s.removeIcon(icon)
		return nil, err
	}

	params := models.DatasetParams{
		Name:       req.Name,
		Folder:     req.Folder,
		DatabaseID: req.DatabaseID,
		Version:    req.Version,
		Icon:       icon,
	}
	if job != nil {
		params.Folder = ""
	}
	d := models.NewDataset(params)
	d.SetID(id)
	if err := d.Validate(); err != nil {
		s.removeIcon(icon)
		s.removeArchive(job)
		return nil, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	if job != nil {
		taskID, err := s.submitter.Submit(ctx, *job)
		if err != nil {
			s.removeIcon(icon)
			s.removeArchive(job)
			return nil, err
		}
		d.AttachTask(taskID)
		logger.Info("acquisition submitted", "task_id", taskID, "kind", job.Kind)
	}

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}

	logger.Info("dataset registered", "name", d.Name(), "state", d.State())
	return d, nil
}

// plan picks the acquisition job for req, saving an uploaded archive first. A nil job means none is needed.
func (s *Service) plan(ctx context.Context, id string, req *CreateRequest) (*models.Job, error) {
	switch {
	case req.Archive != nil:
		path, err := s.saveArchive(id, req.Archive)
		if err != nil {
			return nil, err
		}
		return &models.Job{
			Kind:        models.JobUnpackArchive,
			DatasetID:   id,
			Archive:     path,
			Destination: filepath.Join(s.storage.DataDir, id),
		}, nil

	case req.DatabaseID != "":
		if req.Version == "" {
			req.Version = s.resolveVersion(ctx, req.DatabaseID)
		}
		return &models.Job{
			Kind:        models.JobOpenNeuroDownload,
			DatasetID:   id,
			DatabaseID:  req.DatabaseID,
			Version:     req.Version,
			Destination: s.storage.DataDir,
		}, nil

	case req.Folder != "" && req.CopyFolder:
		return &models.Job{
			Kind:        models.JobCopyFolder,
			DatasetID:   id,
			Source:      req.Folder,
			Destination: filepath.Join(s.storage.DataDir, id),
		}, nil

	default:
		return nil, nil
	}
}

func (s *Service) resolveVersion(ctx context.Context, databaseID string) string {
	if s.versions == nil {
		return ""
	}
	tag, err := s.versions.LatestSnapshot(ctx, databaseID)
	if err != nil {
		s.logger.Warn("could not resolve latest snapshot", "database_id", databaseID, "error", err)
		return ""
	}
	return tag
}

// saveIcon stores an uploaded icon as <icon dir>/<dataset id><ext> after checking it decodes as an image.
func (s *Service) saveIcon(id string, up *Upload) (string, error) {
	tmp, err := s.spool(up, "icon-*")
	if err != nil {
		return "", err
	}

	if err := checkImage(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	name := id + ext
	if err := os.MkdirAll(s.storage.IconDir, 0755); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to create icon directory: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.storage.IconDir, name)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to store icon: %w", err)
	}
	return name, nil
}

func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("%w: icon file not supported", shared.ErrValidation)
	}
	return nil
}

// saveArchive stores an uploaded archive under the upload directory, rejecting unknown formats.
func (s *Service) saveArchive(id string, up *Upload) (string, error) {
	if _, err := tasks.DetectArchive(up.Filename); err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	tmp, err := s.spool(up, "archive-*")
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.storage.UploadDir, id+"-"+filepath.Base(up.Filename))
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to store archive: %w", err)
	}
	return path, nil
}

// spool copies an upload into a new file in the upload directory and returns its path.
func (s *Service) spool(up *Upload, pattern string) (string, error) {
	if up.Body == nil || filepath.Base(up.Filename) == "." {
		return "", fmt.Errorf("%w: empty upload", shared.ErrValidation)
	}
	if err := os.MkdirAll(s.storage.UploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	f, err := os.CreateTemp(s.storage.UploadDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, up.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to receive upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func (s *Service) removeIcon(name string) {
	if name == "" {
		return
	}
	if err := os.Remove(filepath.Join(s.storage.IconDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove icon", "icon", name, "error", err)
	}
}

func (s *Service) removeArchive(job *models.Job) {
	if job == nil || job.Archive == "" {
		return
	}
	if err := os.Remove(job.Archive); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove archive", "path", job.Archive, "error", err)
	}
}

// List returns every dataset reconciled, in creation order. Per-record failures are in the outcomes.
func (s *Service) List(ctx context.Context) ([]tasks.Outcome, error) {
	datasets, err := s.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	return s.reconciler.ReconcileAll(ctx, datasets), nil
}

// Get returns one reconciled dataset. Missing ids wrap [shared.ErrNotFound].
func (s *Service) Get(ctx context.Context, id string) (tasks.Outcome, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return tasks.Outcome{}, err
	}
	return s.reconciler.Reconcile(ctx, d), nil
}

// View returns the reconciled dataset and its parsed metadata.
//
// Datasets still being acquired (or failed) wrap [shared.ErrNotReady]; unreadable folders wrap [shared.ErrParse].
func (s *Service) View(ctx context.Context, id string) (*models.Dataset, *bids.Dataset, error) {
	out, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	d := out.Dataset
	if out.Err != nil {
		return d, nil, out.Err
	}
	if d.State() != models.StateSuccess {
		return d, nil, fmt.Errorf("%w: dataset %s is %s", shared.ErrNotReady, d.Name(), d.State())
	}

	parsed, err := s.cache.GetOrLoad(ctx, d.Folder())
	if err != nil {
		return d, nil, err
	}
	return d, parsed, nil
}

// Subjects returns the subject table of a dataset.
func (s *Service) Subjects(ctx context.Context, id string) (*models.Dataset, bids.Table, error) {
	d, parsed, err := s.View(ctx, id)
	if err != nil {
		return d, bids.Table{}, err
	}
	return d, parsed.SubjectTable(), nil
}
