package web

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/catalog"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

const multipartMemory = 32 << 20

type shellPage struct {
	MainViewURL string
}

type card struct {
	Dataset *models.Dataset
	Err     error
}

type listPage struct {
	Cards []card
}

type viewPage struct {
	Dataset  *models.Dataset
	MetaData []bids.Field
	Subjects int
}

type tablePage struct {
	Dataset *models.Dataset
	Table   bids.Table
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") != ""
}

func cards(outcomes []tasks.Outcome) []card {
	out := make([]card, len(outcomes))
	for i, o := range outcomes {
		out[i] = card{Dataset: o.Dataset, Err: o.Err}
	}
	return out
}

func (a *App) root(w http.ResponseWriter, _ *http.Request) {
	a.shell(w, "/datasets")
}

func (a *App) shell(w http.ResponseWriter, mainViewURL string) {
	a.render(w, http.StatusOK, "root", shellPage{MainViewURL: mainViewURL})
}

func (a *App) datasets(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		a.shell(w, "/datasets")
		return
	}
	a.list(w, r, http.StatusOK)
}

func (a *App) list(w http.ResponseWriter, r *http.Request, status int) {
	outcomes, err := a.catalog.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, status, "datasets", listPage{Cards: cards(outcomes)})
}

func (a *App) card(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		a.shell(w, "/datasets")
		return
	}

	out, err := a.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, http.StatusOK, "dataset_card", card{Dataset: out.Dataset, Err: out.Err})
}

func (a *App) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.fail(w, r, errors.Join(shared.ErrInvalidInput, err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	req := catalog.CreateRequest{
		Name:       r.FormValue("name"),
		Folder:     r.FormValue("folder"),
		DatabaseID: r.FormValue("DatabaseID"),
		Version:    r.FormValue("Version"),
		CopyFolder: r.FormValue("CopyFolder") == "on",
	}

	icon, closeIcon, err := formFile(r, "icon")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer closeIcon()
	req.Icon = icon

	archive, closeArchive, err := formFile(r, "zipfile")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer closeArchive()
	req.Archive = archive

	d, err := a.catalog.Create(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Info("dataset created", "dataset_id", d.ID(), "name", d.Name(), "state", d.State())

	a.list(w, r, http.StatusCreated)
}

// formFile returns nil when the field was left empty.
func formFile(r *http.Request, field string) (*catalog.Upload, func(), error) {
	f, hdr, err := r.FormFile(field)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return nil, func() {}, nil
	case err != nil:
		return nil, func() {}, errors.Join(shared.ErrInvalidInput, err)
	}
	if hdr.Filename == "" || hdr.Size == 0 {
		f.Close()
		return nil, func() {}, nil
	}
	return &catalog.Upload{Filename: hdr.Filename, Body: f}, func() { f.Close() }, nil
}

func (a *App) view(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		a.shell(w, r.URL.Path)
		return
	}

	d, parsed, err := a.catalog.View(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, http.StatusOK, "dataset_view", viewPage{
		Dataset:  d,
		MetaData: parsed.AllMetaData(),
		Subjects: len(parsed.Subjects),
	})
}

func (a *App) subjects(w http.ResponseWriter, r *http.Request) {
	if !isHTMX(r) {
		a.shell(w, "/dataset/"+r.PathValue("id"))
		return
	}

	d, table, err := a.catalog.Subjects(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.render(w, http.StatusOK, "table", tablePage{Dataset: d, Table: table})
}

func (a *App) icon(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("file")
	if name == "" || name != filepath.Base(name) || a.iconDir == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, filepath.Join(a.iconDir, name))
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
