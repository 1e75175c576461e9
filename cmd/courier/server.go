package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"courier/internal/constants"
	"courier/internal/database"
	"courier/internal/middleware"
	"courier/internal/models"
	"courier/internal/privacy"
	"courier/internal/service"
	"courier/internal/validation"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server is the admin surface: message submission, read-only listing,
// health and metrics. Dispatch itself never goes through here.
type Server struct {
	router *mux.Router
	logger *logrus.Logger
	db     *database.Database
	queue  service.Fallback
	cfg    models.ServerConfig
	server *http.Server
}

func NewServer(cfg models.ServerConfig, db *database.Database, queue service.Fallback, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		db:     db,
		queue:  queue,
		cfg:    cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.HandleFunc("/messages", s.handleSubmitMessage()).Methods(http.MethodPost)
	s.router.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	s.router.HandleFunc("/messages/{id:[0-9]+}", s.handleGetMessage()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  constants.DefaultServerReadTimeoutSec * time.Second,
		WriteTimeout: constants.DefaultServerWriteTimeoutSec * time.Second,
		IdleTimeout:  constants.DefaultServerIdleTimeoutSec * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":               "ok",
			"fallback_queue_depth": s.queue.Len(),
		})
	}
}

type submitMessageRequest struct {
	ChatID      string `json:"chatId,omitempty"`
	Destination string `json:"destination"`
	Body        string `json:"body"`
	MediaURL    string `json:"mediaUrl,omitempty"`
}

// handleSubmitMessage accepts an outbound message and stores it in the
// approved state, ready for the next dispatch cycle.
func (s *Server) handleSubmitMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		destination, err := validation.NormalizeDestination(req.Destination)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := validation.ValidateBody(req.Body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var chatID *string
		if req.ChatID != "" {
			chatID = &req.ChatID
		}

		record := &models.MessageRecord{
			ChatID:      chatID,
			Sender:      models.SenderAdmin,
			Destination: destination,
			Body:        req.Body,
			MediaURL:    req.MediaURL,
			Status:      models.MessageStatusApproved,
		}

		if err := s.db.InsertMessage(r.Context(), record); err != nil {
			s.logger.WithError(err).WithField("destination", privacy.MaskDestination(destination)).
				Error("Failed to store submitted message")
			writeError(w, http.StatusInternalServerError, "failed to store message")
			return
		}

		writeJSON(w, http.StatusCreated, record)
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := models.MessageFilter{
			Status: models.MessageStatus(r.URL.Query().Get("status")),
			Limit:  constants.DefaultListLimit,
		}

		records, err := s.db.ListMessages(r.Context(), filter)
		if err != nil {
			s.logger.WithError(err).Error("Failed to list messages")
			writeError(w, http.StatusInternalServerError, "failed to list messages")
			return
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func (s *Server) handleGetMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id int64
		if _, err := fmt.Sscanf(mux.Vars(r)["id"], "%d", &id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid message id")
			return
		}

		record, err := s.db.GetMessage(r.Context(), id)
		if err != nil {
			s.logger.WithError(err).WithField("message_id", id).Error("Failed to load message")
			writeError(w, http.StatusInternalServerError, "failed to load message")
			return
		}
		if record == nil {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}

		writeJSON(w, http.StatusOK, record)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
