// Package metrics keeps per-route latency histograms.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/julienschmidt/httprouter"
)

const (
	minLatencyMicros = 1
	maxLatencyMicros = 60_000_000
	sigFigs          = 3
)

type route struct {
	hist   *hdrhistogram.Histogram
	errors int64
}

type Registry struct {
	mu     sync.Mutex
	routes map[string]*route
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]*route)}
}

// Observe records one request against name. Latencies beyond a minute are
// clamped so that they are still counted.
func (r *Registry) Observe(name string, d time.Duration, status int) {
	us := d.Microseconds()
	if us < minLatencyMicros {
		us = minLatencyMicros
	}
	if us > maxLatencyMicros {
		us = maxLatencyMicros
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.routes[name]
	if !ok {
		rt = &route{hist: hdrhistogram.New(minLatencyMicros, maxLatencyMicros, sigFigs)}
		r.routes[name] = rt
	}
	rt.hist.RecordValue(us)
	if status >= http.StatusInternalServerError {
		rt.errors++
	}
}

type RouteStats struct {
	Route      string  `json:"route"`
	Count      int64   `json:"count"`
	Errors     int64   `json:"errors"`
	MeanMicros float64 `json:"meanMicros"`
	P50Micros  int64   `json:"p50Micros"`
	P95Micros  int64   `json:"p95Micros"`
	P99Micros  int64   `json:"p99Micros"`
	MaxMicros  int64   `json:"maxMicros"`
}

// Snapshot returns the stats of every route, sorted by route name.
func (r *Registry) Snapshot() []RouteStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]RouteStats, 0, len(r.routes))
	for name, rt := range r.routes {
		h := rt.hist
		out = append(out, RouteStats{
			Route:      name,
			Count:      h.TotalCount(),
			Errors:     rt.errors,
			MeanMicros: h.Mean(),
			P50Micros:  h.ValueAtQuantile(50),
			P95Micros:  h.ValueAtQuantile(95),
			P99Micros:  h.ValueAtQuantile(99),
			MaxMicros:  h.Max(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Wrap times h under the name "METHOD path".
func (r *Registry) Wrap(method, path string, h httprouter.Handle) httprouter.Handle {
	name := method + " " + path
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		start := time.Now()
		sw := NewStatusWriter(w)
		h(sw, req, ps)
		r.Observe(name, time.Since(start), sw.Status)
	}
}

// StatusWriter remembers the status code written through it.
type StatusWriter struct {
	http.ResponseWriter
	Status int
}

func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	return &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (s *StatusWriter) WriteHeader(code int) {
	s.Status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the wrapper.
func (s *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.Status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *StatusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
