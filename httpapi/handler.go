// Package httpapi serves survey sessions over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tbxark/surveyagent/agent"
	"github.com/tbxark/surveyagent/session"
)

type ErrorCode string

const (
	ErrorNotFound        ErrorCode = "NOT_FOUND"
	ErrorSessionTerminal ErrorCode = "SESSION_TERMINAL"
	ErrorTimedOut        ErrorCode = "TIMED_OUT"
	ErrorInvalidInput    ErrorCode = "INVALID_INPUT"
	ErrorInternal        ErrorCode = "INTERNAL_ERROR"
)

const maxBodyBytes = 64 << 10

type ErrorResponse struct {
	Error   ErrorCode `json:"error"`
	Message string    `json:"message"`
}

type StartRequest struct {
	UserID string `json:"user_id"`
}

type StartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

type TurnRequest struct {
	UserInput string `json:"user_input"`
}

type TurnResponse struct {
	SessionID string `json:"session_id"`
	*agent.Response
}

type DeleteResponse struct {
	Message     string            `json:"message"`
	FinalStatus *session.Snapshot `json:"final_status"`
}

type ListResponse struct {
	TotalSessions int                 `json:"total_sessions"`
	Sessions      []*session.Snapshot `json:"sessions"`
}

type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	ActiveSessions int       `json:"active_sessions"`
}

// Handler exposes a session registry.
type Handler struct {
	registry       *session.Registry
	sessionTimeout time.Duration
	logger         *slog.Logger
	newID          func() string
	now            func() time.Time
}

func NewHandler(registry *session.Registry, sessionTimeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:       registry,
		sessionTimeout: sessionTimeout,
		logger:         logger,
		newID:          uuid.NewString,
		now:            time.Now,
	}
}

// Router builds the full route tree with the standard middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.Start)
		r.Get("/", h.List)
		r.Post("/cleanup", h.Cleanup)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.Status)
			r.Delete("/", h.Delete)
			r.Post("/turns", h.Turn)
		})
	})
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			Error(w, http.StatusBadRequest, ErrorInvalidInput, "request body must be a JSON object")
			return
		}
	}
	id := h.newID()
	s, err := h.registry.Create(r.Context(), id, req.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	greeting := s.Greet(r.Context())
	JSON(w, http.StatusOK, StartResponse{SessionID: id, Message: greeting, Status: "active"})
}

func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req TurnRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, ErrorInvalidInput, "request body must be a JSON object")
		return
	}
	if strings.TrimSpace(req.UserInput) == "" {
		Error(w, http.StatusBadRequest, ErrorInvalidInput, "user_input cannot be empty")
		return
	}
	s, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	resp, err := s.ProcessTurn(r.Context(), req.UserInput)
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, TurnResponse{SessionID: id, Response: resp})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.registry.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, s.Snapshot(true))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.Delete(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, DeleteResponse{Message: "Session ended", FinalStatus: snap})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	JSON(w, http.StatusOK, ListResponse{TotalSessions: len(sessions), Sessions: sessions})
}

func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.registry.Sweep(r.Context(), h.sessionTimeout))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Timestamp:      h.now().UTC(),
		ActiveSessions: h.registry.Len(r.Context()),
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		Error(w, http.StatusNotFound, ErrorNotFound, "Session not found")
	case errors.Is(err, session.ErrSessionTerminal):
		Error(w, http.StatusConflict, ErrorSessionTerminal, "Session has ended")
	case errors.Is(err, session.ErrTurnTimeout):
		Error(w, http.StatusRequestTimeout, ErrorTimedOut, "Processing timed out, please try again")
	case errors.Is(err, context.Canceled):
		Error(w, http.StatusRequestTimeout, ErrorTimedOut, "Request cancelled")
	default:
		h.logger.Error("Request failed", "error", err)
		Error(w, http.StatusInternalServerError, ErrorInternal, "Something went wrong")
	}
}

// JSON writes a JSON response.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error": "INTERNAL_ERROR", "message": "failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: code, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	return sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
