// Package visualizer exposes a read-only HTTP status endpoint reporting
// allocator and shape stats, adapted from the teacher's visualizer/server.go
// (SPEC_FULL.md §2.2). It never mutates the tree; a pure diagnostic
// collaborator per spec.md §1.
package visualizer

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/pagedtree/pagedtree/internal/btree"
	"github.com/pagedtree/pagedtree/internal/carbonaware"
)

// Status is the JSON payload served at /status.
type Status struct {
	PagesAllocated uint64                       `json:"pagesAllocated"`
	Depth          uint32                       `json:"depth"`
	RootPage       uint64                       `json:"rootPage"`
	DataHead       uint64                       `json:"dataHead"`
	DataTail       uint64                       `json:"dataTail"`
	FreeListLength int                          `json:"freeListLength"`
	CarbonSignal   *carbonaware.IntensitySignal `json:"carbonSignal,omitempty"`
}

type statusHandler struct {
	tree     *btree.Tree
	provider carbonaware.IntensityProvider
	region   string
	log      *zap.Logger
}

func (h *statusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tree.Stats()
	if err != nil {
		http.Error(w, "failed to read tree stats", http.StatusInternalServerError)
		h.log.Warn("visualizer: stats read failed", zap.Error(err))
		return
	}

	payload := Status{
		PagesAllocated: stats.PagesAllocated,
		Depth:          stats.Depth,
		RootPage:       uint64(stats.RootPage),
		DataHead:       uint64(stats.DataHead),
		DataTail:       uint64(stats.DataTail),
		FreeListLength: stats.FreeListLength,
	}
	if h.provider != nil {
		if sig, err := h.provider.GetCurrentIntensity(h.region); err == nil {
			payload.CarbonSignal = &sig
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Warn("visualizer: encode status failed", zap.Error(err))
	}
}

// Server wraps the underlying http.Server so callers can shut it down
// gracefully (see Shutdown).
type Server struct {
	http *http.Server
}

// Start begins serving /status on addr in a background goroutine. provider
// may be nil if carbon-aware fsync scheduling is disabled.
func Start(addr string, tree *btree.Tree, provider carbonaware.IntensityProvider, region string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/status", &statusHandler{tree: tree, provider: provider, region: region, log: log})

	httpSrv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn("visualizer: server error", zap.Error(err))
		}
	}()
	log.Info("visualizer: serving status endpoint", zap.String("addr", addr))
	return &Server{http: httpSrv}
}

// Shutdown stops the server, waiting for in-flight requests to complete or
// ctx to be cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
