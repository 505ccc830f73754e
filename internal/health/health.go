// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz answers
// 200 only while the server is not draining and every [Checker] passes; the
// body carries a per-check verdict so operators can see which dependency is
// missing.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

const (
	statusOK       = "ok"
	statusFail     = "fail"
	statusDraining = "draining"
)

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Configured returns a Checker that fails while v is nil. It covers providers
// that are optional in the config file but required by an enabled feature.
func Configured(name string, v any) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if v == nil {
			return fmt.Errorf("%s not configured", name)
		}
		return nil
	}}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves both probes. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
	draining atomic.Bool
}

func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// SetDraining toggles the shutdown flag. While set, /readyz answers 503
// without running any checker.
func (h *Handler) SetDraining(v bool) { h.draining.Store(v) }

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: statusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		respond(w, http.StatusServiceUnavailable, report{Status: statusDraining})
		return
	}

	verdicts := h.run(r.Context())
	rep := report{Status: statusOK, Checks: verdicts}
	code := http.StatusOK
	for v := range maps.Values(verdicts) {
		if v != statusOK {
			rep.Status, code = statusFail, http.StatusServiceUnavailable
			break
		}
	}
	respond(w, code, rep)
}

// run evaluates every checker concurrently, each under its own deadline.
func (h *Handler) run(ctx context.Context) map[string]string {
	var (
		mu       sync.Mutex
		verdicts = make(map[string]string, len(h.checkers))
		g        errgroup.Group
	)
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			v := statusOK
			if err := c.Check(cctx); err != nil {
				v = statusFail + ": " + err.Error()
			}
			mu.Lock()
			verdicts[c.Name] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return verdicts
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
