package web

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/desertthunder/bidshelf/internal/models"
	"github.com/desertthunder/bidshelf/internal/shared"
)

var funcs = template.FuncMap{
	"stateClass": func(s models.State) string { return "state-" + strings.ToLower(s.String()) },
	"terminal":   func(s models.State) bool { return s.IsTerminal() },
	"short":      func(id string) string { return id[:min(8, len(id))] },
}

type errorPage struct {
	Status  int
	Title   string
	Message string
}

// statusFor maps the shared sentinel errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, shared.ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrTransientWorker), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		a.logger.Warn("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}

	a.render(w, status, "error", errorPage{
		Status:  status,
		Title:   http.StatusText(status),
		Message: err.Error(),
	})
}

// render executes into a buffer so a template failure can still produce a clean 500.
func (a *App) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := a.pages.ExecuteTemplate(&buf, name, data); err != nil {
		a.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
