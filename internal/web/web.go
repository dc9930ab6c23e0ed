// Package web serves the HTMX dataset browser.
//
// Every page is a fragment. A request without the HX-Request header gets the root shell,
// which loads the requested fragment into #main on page load, so fragment URLs can be
// bookmarked and reloaded.
//
// # Routes
//
//	GET  /                       → root shell loading /datasets
//	GET  /datasets               → dataset cards plus the creation form
//	GET  /dataset_card/{id}      → one card, polled while its task runs
//	POST /datasets/create        → multipart creation form, re-renders the list
//	GET  /dataset/{id}           → dataset metadata
//	GET  /dataset/{id}/subjects  → subject table
//	GET  /static/                → embedded stylesheet
//	GET  /icons/{file}           → uploaded dataset icons
//	GET  /metrics                → Prometheus exposition
//	GET  /health                 → liveness probe
//
// Errors render the error fragment with a status derived from the shared sentinel errors.
package web

import (
	"context"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/bidshelf/internal/bids"
	"github.com/desertthunder/bidshelf/internal/catalog"
	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/server"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/desertthunder/bidshelf/internal/tasks"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DefaultMaxUpload bounds the size of a creation form (icon plus archive).
const DefaultMaxUpload int64 = 8 << 30

// Catalog is the dataset service behind the pages (see [catalog.Service]).
type Catalog interface {
	Create(ctx context.Context, req catalog.CreateRequest) (*models.Dataset, error)
	List(ctx context.Context) ([]tasks.Outcome, error)
	Get(ctx context.Context, id string) (tasks.Outcome, error)
	View(ctx context.Context, id string) (*models.Dataset, *bids.Dataset, error)
	Subjects(ctx context.Context, id string) (*models.Dataset, bids.Table, error)
}

// Options wires an [App]. Metrics may be nil.
type Options struct {
	Catalog   Catalog
	IconDir   string
	MaxUpload int64
	Metrics   *metrics.Metrics
	Logger    *log.Logger
}

// App renders the dataset pages.
type App struct {
	catalog   Catalog
	iconDir   string
	maxUpload int64
	metrics   *metrics.Metrics
	logger    *log.Logger
	pages     *template.Template
	static    fs.FS
}

// New parses the embedded templates.
func New(opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = DefaultMaxUpload
	}

	pages, err := template.New("pages").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}

	return &App{
		catalog:   opts.Catalog,
		iconDir:   opts.IconDir,
		maxUpload: opts.MaxUpload,
		metrics:   opts.Metrics,
		logger:    shared.WithLogger(opts.Logger, "component", "web"),
		pages:     pages,
		static:    static,
	}, nil
}

// Mount registers every route on r.
func (a *App) Mount(r server.Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.root))
	r.Handle(http.MethodGet, "/datasets", http.HandlerFunc(a.datasets))
	r.Handle(http.MethodGet, "/dataset_card/{id}", http.HandlerFunc(a.card))
	r.Handle(http.MethodPost, "/datasets/create", http.HandlerFunc(a.create))
	r.Handle(http.MethodGet, "/dataset/{id}", http.HandlerFunc(a.view))
	r.Handle(http.MethodGet, "/dataset/{id}/subjects", http.HandlerFunc(a.subjects))

	r.Handle(http.MethodGet, "/static/", http.StripPrefix("/static/", http.FileServerFS(a.static)))
	r.Handle(http.MethodGet, "/icons/{file}", http.HandlerFunc(a.icon))
	r.Handle(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(health))
}

// Handler returns a router with the standard middleware and every route mounted.
func (a *App) Handler() http.Handler {
	r := server.NewBasicRouter()
	r.Use(server.Recover(a.logger), server.Logging(a.logger), server.Instrument(a.metrics))
	a.Mount(r)
	return r
}
