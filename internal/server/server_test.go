package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/bidshelf/internal/metrics"
	"github.com/desertthunder/bidshelf/internal/shared"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticHandler struct{ routes []string }

func (h staticHandler) Routes() []string { return h.routes }

func (h staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("static:" + r.URL.Path))
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Patterns And Path Values", func(t *testing.T) {
		r := NewBasicRouter()
		r.HandleFunc(http.MethodGet, "/dataset/{id}", func(w http.ResponseWriter, req *http.Request) {
			w.Write([]byte("dataset " + req.PathValue("id")))
		})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dataset/abc", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "dataset abc" {
			t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dataset/abc", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("first"), mark("second"))
		r.HandleFunc(http.MethodGet, "/", func(http.ResponseWriter, *http.Request) { order = append(order, "handler") })

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		want := []string{"first", "second", "handler"}
		if strings.Join(order, ",") != strings.Join(want, ",") {
			t.Errorf("expected %v, got %v", want, order)
		}
	})

	t.Run("Handler Routes", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handler(staticHandler{routes: []string{"GET /static/", "GET /icons/{file}"}})

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
		if rec.Body.String() != "static:/static/app.css" {
			t.Errorf("unexpected body %q", rec.Body.String())
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/icons/a.png", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Recover", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewBasicRouter()
		r.Use(Recover(shared.NewLogger(&buf)))
		r.HandleFunc(http.MethodGet, "/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if !strings.Contains(buf.String(), "kaboom") {
			t.Errorf("expected panic to be logged, got %q", buf.String())
		}
	})

	t.Run("Logging", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewBasicRouter()
		r.Use(Logging(shared.NewLogger(&buf)))
		r.HandleFunc(http.MethodGet, "/teapot", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

		out := buf.String()
		if !strings.Contains(out, "/teapot") || !strings.Contains(out, "418") {
			t.Errorf("expected path and status in log, got %q", out)
		}
	})

	t.Run("Instrument", func(t *testing.T) {
		m := metrics.New("test")
		r := NewBasicRouter()
		r.Use(Instrument(m))
		r.HandleFunc(http.MethodGet, "/dataset/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok"))
		})

		for _, id := range []string{"a", "b"} {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dataset/"+id, nil))
		}

		count, err := testutil.GatherAndCount(m.Registry(), "test_http_request_seconds")
		if err != nil {
			t.Fatalf("failed to gather metrics: %v", err)
		}
		if count != 1 {
			t.Errorf("expected a single route series, got %d", count)
		}
	})
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := New("127.0.0.1:0", http.NotFoundHandler())

	done := make(chan error, 1)
	go func() { done <- Run(ctx, srv, shared.NewLogger(&bytes.Buffer{})) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
