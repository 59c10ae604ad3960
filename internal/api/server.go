// Package api exposes the record store over HTTP.
//
// Routes:
//
//	POST   /upload         → multipart "file"; decoded and stored as records
//	POST   /search         → {search?, conditions?}; matching records
//	DELETE /delete         → {id}; removes one record
//	GET    /fields         → searchable fields and operators
//	POST   /query/compile  → {conditions}; wire form of the compiled filter
//	GET    /healthz        → repository ping
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/amirmursal/medinet-process-data/internal/ingest"
	"github.com/amirmursal/medinet-process-data/internal/storage"
)

// Config controls the HTTP layer.
type Config struct {
	Addr        string
	UploadDir   string
	MaxUploadMB int
	// Fields is the enumeration offered to condition builders.
	Fields []string
	// Job labels metrics.
	Job string
}

// Server routes requests to the repository and the ingestion pipeline.
type Server struct {
	cfg      Config
	repo     storage.Repository
	pipeline *ingest.Pipeline
	router   *mux.Router
}

// NewServer constructs a Server with its routes registered.
func NewServer(cfg Config, repo storage.Repository, pipeline *ingest.Pipeline) *Server {
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}
	s := &Server{
		cfg:      cfg,
		repo:     repo,
		pipeline: pipeline,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/delete", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/fields", s.handleFields).Methods(http.MethodGet)
	s.router.HandleFunc("/query/compile", s.handleCompile).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped in CORS and request logging. The
// middleware sits outside the router so preflight requests never reach
// method matching.
func (s *Server) Handler() http.Handler {
	return logRequests(cors(s.router))
}

// HTTPServer returns an http.Server bound to cfg.Addr.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
