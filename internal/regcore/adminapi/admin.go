// Package adminapi exposes the one Subscriber Manager operation that has
// no SIP-facing trigger: administrative replacement of an AoR's
// associated-URI set. Routing follows the retrieval pack's go-chi idiom;
// the headless Start/Stop lifecycle follows the teacher's own signaling
// API server.
package adminapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sebas/regcore/internal/regcore/aor"
	"github.com/sebas/regcore/internal/regcore/manager"
)

// Server is a headless HTTP API surfacing administrative Subscriber
// Manager operations.
type Server struct {
	addr       string
	httpServer *http.Server
	mgr        *manager.Manager
}

// NewServer constructs a Server listening on addr once Start is called.
func NewServer(addr string, mgr *manager.Manager) *Server {
	s := &Server{addr: addr, mgr: mgr}

	r := chi.NewRouter()
	r.Put("/aors/{aorID}/associated-uris", s.handleUpdateAssociatedURIs)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start begins listening for HTTP requests in the background.
func (s *Server) Start() error {
	slog.Info("[ADMINAPI] starting HTTP admin server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[ADMINAPI] server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type updateAssociatedURIsRequest struct {
	AssociatedURIs []aor.AssociatedURI `json:"associated_uris"`
}

// handleUpdateAssociatedURIs handles PUT /aors/{aorID}/associated-uris,
// replacing the AoR's implicit registration set in place.
func (s *Server) handleUpdateAssociatedURIs(w http.ResponseWriter, r *http.Request) {
	aorID := chi.URLParam(r, "aorID")
	if aorID == "" {
		http.Error(w, "missing aorID", http.StatusBadRequest)
		return
	}

	var req updateAssociatedURIsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	result, err := s.mgr.UpdateAssociatedURIs(r.Context(), aorID, req.AssociatedURIs)
	if err != nil && result == nil {
		slog.Error("[ADMINAPI] update associated uris failed", "aor_id", aorID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	_ = json.NewEncoder(w).Encode(result)
}
