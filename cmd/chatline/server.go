package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"chatline/internal/constants"
	"chatline/internal/errors"
	"chatline/internal/metrics"
	"chatline/internal/middleware"
	"chatline/internal/models"
	"chatline/internal/service"
	"chatline/internal/tracing"
	"chatline/internal/validation"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server exposes health, metrics and a small read/write API over the chat session
type Server struct {
	router   *mux.Router
	svc      service.ChatService
	registry *metrics.Registry
	logger   *logrus.Logger
	addr     string
	server   *http.Server
}

type stateResponse struct {
	Username     string                  `json:"username"`
	Room         string                  `json:"room"`
	Connection   models.ConnectionStatus `json:"connection"`
	Typing       string                  `json:"typing,omitempty"`
	Participants []string                `json:"participants"`
	Messages     int                     `json:"messages"`
}

type sendRequest struct {
	Text string `json:"text"`
}

type sendResponse struct {
	ID int64 `json:"id"`
}

func NewServer(svc service.ChatService, registry *metrics.Registry, logger *logrus.Logger, addr string) *Server {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	s := &Server{
		router:   mux.NewRouter(),
		svc:      svc,
		registry: registry,
		logger:   logger,
		addr:     addr,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.registry, s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/metrics/prometheus", promhttp.HandlerFor(
		metrics.NewPrometheusRegistry(s.registry),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleListMessages()).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	api.HandleFunc("/retry", s.handleRetry()).Methods(http.MethodPost)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(constants.DefaultServerReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(constants.DefaultServerWriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(constants.DefaultServerIdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("addr", s.addr).Info("Starting status server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := s.svc.ConnectionStatus()
		code := http.StatusOK
		if status.State == models.StateFailed {
			code = http.StatusServiceUnavailable
		}
		s.writeJSON(w, r, code, map[string]string{
			"status":     http.StatusText(code),
			"connection": status.State.String(),
		})
	}
}

func (s *Server) handleState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusOK, stateResponse{
			Username:     s.svc.Username(),
			Room:         s.svc.RoomName(),
			Connection:   s.svc.ConnectionStatus(),
			Typing:       s.svc.Typing(),
			Participants: s.svc.Participants(),
			Messages:     len(s.svc.Messages()),
		})
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		var msgs []models.Message
		switch {
		case query.Get("starred") == "true":
			msgs = s.svc.Starred()
		case query.Get("q") != "":
			msgs = s.svc.Search(query.Get("q"))
		default:
			msgs = s.svc.Messages()
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		s.writeJSON(w, r, http.StatusOK, msgs)
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := validation.ValidateHTTPRequestSize(r, constants.MaxRequestBodyBytes); err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)

		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, errors.NewValidationError("body", "expected a JSON object with a text field"))
			return
		}

		id, err := s.svc.SendMessage(r.Context(), req.Text)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, sendResponse{ID: id})
	}
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.svc.RetryConnection(r.Context()); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, s.svc.ConnectionStatus())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).
			WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
			Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	code := errors.HTTPStatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.WithError(err).WithFields(logrus.Fields{
			service.LogFieldRequestID: requestID,
			service.LogFieldErrorCode: errors.GetCode(err),
		}).Error("Request failed")
	}
	s.writeJSON(w, r, code, errors.ToHTTPResponse(err, requestID))
}
