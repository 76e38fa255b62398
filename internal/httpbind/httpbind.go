// Package httpbind serves compiled operations over HTTP. Every operation
// with a verb and a route becomes a chi route.
package httpbind

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/executor"
	"github.com/opmodel/opc/internal/manifest"
	"github.com/opmodel/opc/internal/output"
)

// Binder turns an HTTP request into the operation instance for d.
type Binder func(d *core.OperationDescriptor, r *http.Request) (any, error)

// Options configures the router.
type Options struct {
	// Binder is required.
	Binder Binder

	// Metrics, when set, is exposed on /metrics.
	Metrics *prometheus.Registry
}

// Route describes one bound operation.
type Route struct {
	Operation string `json:"operation"`
	Verb      string `json:"verb"`
	Route     string `json:"route"`
}

// NewRouter binds every routed operation of exec. exec must be compiled.
func NewRouter(exec *executor.Executor, opts Options) (http.Handler, error) {
	if exec.State() != executor.StateCompiled {
		return nil, fmt.Errorf("%w: executor is %s", oerrors.ErrNotCompiled, exec.State())
	}
	if opts.Binder == nil {
		return nil, errors.New("httpbind: no binder configured")
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	var routes []Route
	for _, d := range exec.Operations() {
		if d.Verb == "" || d.Route == "" {
			continue
		}
		r.Method(d.Verb, d.Route, handler(exec, d, opts.Binder))
		routes = append(routes, Route{Operation: d.Name, Verb: d.Verb, Route: d.Route})
		output.Debug("bound route", "operation", d.Name, "verb", d.Verb, "route", d.Route)
	}
	if routes == nil {
		routes = []Route{}
	}

	r.Get("/_operations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, routes)
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	return r, nil
}

func handler(exec *executor.Executor, d *core.OperationDescriptor, bind Binder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op, err := bind(d, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}

		res, err := exec.Execute(r.Context(), op)
		if err != nil {
			status, code := statusOf(err)
			if status >= http.StatusInternalServerError {
				output.Error("operation failed", "operation", d.Name, "err", err)
			}
			writeError(w, status, code, err.Error())
			return
		}

		body, err := json.Marshal(res)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ENCODING_ERROR", err.Error())
			return
		}
		switch {
		case bytes.Equal(body, []byte("null")):
			w.WriteHeader(http.StatusNoContent)
		case d.Verb == http.MethodPost:
			writeBody(w, http.StatusCreated, body)
		default:
			writeBody(w, http.StatusOK, body)
		}
	}
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		output.Warn("writing response", "err", err)
	}
}

// statusOf maps operation failures onto HTTP statuses.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, oerrors.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, oerrors.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, oerrors.ErrCancelled):
		return http.StatusServiceUnavailable, "CANCELLED"
	default:
		return http.StatusInternalServerError, "OPERATION_FAILED"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		output.Warn("encoding response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

// ManifestBinder builds manifest requests. The payload is the JSON body
// object, overlaid with query parameters and then route parameters.
func ManifestBinder(m *manifest.Manifest) Binder {
	return func(d *core.OperationDescriptor, r *http.Request) (any, error) {
		payload := map[string]any{}
		if r.Body != nil {
			defer r.Body.Close()
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("decoding body: %w", err)
			}
			if payload == nil {
				payload = map[string]any{}
			}
		}
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				payload[k] = vs[len(vs)-1]
			}
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, k := range rctx.URLParams.Keys {
				if k != "*" {
					payload[k] = rctx.URLParams.Values[i]
				}
			}
		}
		return m.NewRequest(d.Name, payload)
	}
}
