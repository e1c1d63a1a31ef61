// Package server exposes the recognition service: the websocket frame
// endpoint for camera clients and the REST API for the person directory and
// model lifecycle.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-watch/internal/config"
	"github.com/kozaktomas/face-watch/internal/directory"
	"github.com/kozaktomas/face-watch/internal/gallery"
	"github.com/kozaktomas/face-watch/internal/match"
	"github.com/kozaktomas/face-watch/internal/train"
)

// Server is the recognition service.
type Server struct {
	cfg     *config.Config
	store   directory.Store
	encoder gallery.FaceEncoder
	engine  *match.Engine
	trainer *train.Trainer
	model   *Model
	results *ResultLog

	router     *chi.Mux
	httpServer *http.Server
}

// NewServer wires the service together. The model is loaded from the
// configured gallery path; a missing or corrupt gallery does not prevent
// startup, recognition requests report the load error until a train run
// replaces the model.
func NewServer(cfg *config.Config, store directory.Store, enc gallery.FaceEncoder, results *ResultLog, addr string) *Server {
	r := chi.NewRouter()

	s := &Server{
		cfg:     cfg,
		store:   store,
		encoder: enc,
		engine:  match.NewEngine(cfg.Recognition.Tolerance, cfg.Recognition.MinConfidence),
		trainer: train.NewTrainer(enc, store, store, cfg.Encoder.Model, cfg.Gallery.Path),
		model:   NewModel(cfg.Gallery.Path),
		results: results,
		router:  r,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting recognition server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down recognition server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if s.results != nil {
		if err := s.results.Close(); err != nil {
			return fmt.Errorf("closing result log: %w", err)
		}
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", healthCheck)

	// Long lived, the request timeout does not apply here.
	s.router.Get("/ws", s.handleWebsocket)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(2 * time.Minute))

		r.Get("/people", s.listPeople)
		r.Post("/people", s.addPerson)
		r.Get("/people/{id}", s.getPerson)
		r.Put("/people/{id}", s.updatePerson)
		r.Delete("/people/{id}", s.deletePerson)
		r.Get("/people/{id}/references", s.listReferences)
		r.Post("/people/{id}/references", s.addReference)
		r.Delete("/references/{id}", s.deleteReference)

		r.Get("/sightings", s.listSightings)
		r.Post("/recognize", s.recognizeImage)

		r.Get("/model", s.modelStatus)
		r.Post("/model/train", s.trainModel)
		r.Post("/model/validate", s.validateModel)
	})
}
