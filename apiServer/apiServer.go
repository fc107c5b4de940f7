// Package apiServer exposes the memory palace over HTTP: palace
// provisioning, guest credentials, capsule store/ingest/recall and the
// public QR-target capsule route.
package apiServer

import (
	"log/slog"
	"net/http"

	palace "github.com/cuer-ai/memory-palace"
)

const (
	defaultRecallLimit = 10
	maxRecallLimit     = 50
	contextChainDepth  = 20
)

type Server struct {
	mux     *http.ServeMux
	palace  *palace.Palace
	log     *slog.Logger
	qr      QRCodec
	baseURL string
}

func New(p *palace.Palace, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		palace:  p,
		log:     slog.Default(),
		qr:      unavailableCodec{},
		baseURL: "http://localhost:4242",
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/palace", s.handlePalaceCreate)
	s.mux.HandleFunc("GET /api/palace", s.handlePalaceContext)
	s.mux.HandleFunc("POST /api/palace/agents", s.handleAgentInvite)
	s.mux.HandleFunc("GET /api/palace/agents", s.handleAgentList)
	s.mux.HandleFunc("DELETE /api/palace/agents", s.handleAgentRevoke)
	s.mux.HandleFunc("POST /api/store", s.handleStore)
	s.mux.HandleFunc("GET /api/ingest", s.handleIngest)
	s.mux.HandleFunc("GET /api/recall", s.handleRecall)
	s.mux.HandleFunc("POST /api/scan", s.handleScan)
	s.mux.HandleFunc("POST /api/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/export", s.handleExport)
	s.mux.HandleFunc("GET /q/{id}", s.handleCapsule)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	} else {
		w.Header().Set("Vary", "Origin")
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)

	allowedHeaders := r.Header.Get("Access-Control-Request-Headers")
	if allowedHeaders == "" {
		allowedHeaders = "Content-Type, Accept, Authorization"
	}
	w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}
