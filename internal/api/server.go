package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"callboard/internal/auth"
	"callboard/internal/websocket"
	"callboard/pkg/types"
)

// CallService is the call lifecycle surface the HTTP layer drives.
type CallService interface {
	CreateCall(ctx context.Context, actor types.Identity, studentID string) (*types.CallDetail, error)
	UpdateCallStatus(ctx context.Context, actor types.Identity, callID string, status types.CallStatus) (*types.CallDetail, error)
	GetCall(ctx context.Context, actor types.Identity, callID string) (*types.CallDetail, error)
	ListCalls(ctx context.Context, actor types.Identity, filter types.CallFilter) ([]*types.CallDetail, error)
	ListClassQueue(ctx context.Context, actor types.Identity, classID string, activeOnly bool) ([]*types.CallDetail, error)
}

// HealthChecker reports store health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Registry interface to avoid tight coupling to websocket.Registry implementation
type Registry interface {
	Stats() websocket.RegistryStats
}

// RequestResolver turns the credentials on a request into a caller identity.
type RequestResolver interface {
	ResolveRequest(r *http.Request) (types.Identity, error)
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	calls    CallService
	health   HealthChecker
	registry Registry
	identity RequestResolver
	logger   *zap.Logger
	router   *http.ServeMux
	handler  http.Handler
}

// NewServer wires the routes. socket serves /ws/{channel}; it may be nil when
// the API is mounted without classroom sockets.
func NewServer(
	calls CallService,
	health HealthChecker,
	registry Registry,
	identity RequestResolver,
	socket http.Handler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		calls:    calls,
		health:   health,
		registry: registry,
		identity: identity,
		logger:   logger.Named("api"),
		router:   http.NewServeMux(),
	}

	s.setupRoutes(socket)
	s.handler = s.corsMiddleware(s.router)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions with proper middleware
// Every /api route resolves the caller before the handler runs
func (s *Server) setupRoutes(socket http.Handler) {
	s.router.Handle("POST /api/calls", s.jsonMiddleware(s.authMiddleware(s.createCall)))
	s.router.Handle("GET /api/calls", s.jsonMiddleware(s.authMiddleware(s.listCalls)))
	s.router.Handle("GET /api/calls/{id}", s.jsonMiddleware(s.authMiddleware(s.getCall)))
	s.router.Handle("PATCH /api/calls/{id}/status", s.jsonMiddleware(s.authMiddleware(s.updateCallStatus)))
	s.router.Handle("GET /api/classes/{id}/calls", s.jsonMiddleware(s.authMiddleware(s.listClassQueue)))
	s.router.Handle("GET /health", s.jsonMiddleware(http.HandlerFunc(s.healthCheck)))

	if socket != nil {
		s.router.Handle("GET /ws/{channel}", socket)
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization
type CreateCallRequest struct {
	StudentID string `json:"student_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type ListCallsResponse struct {
	Calls []*types.CallDetail `json:"calls"`
	Count int                 `json:"count"`
}

type HealthResponse struct {
	Status      string                   `json:"status"`
	Timestamp   time.Time                `json:"timestamp"`
	Database    string                   `json:"database"`
	Connections websocket.RegistryStats `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// Machine-readable reasons carried in ErrorResponse.Reason
const (
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonVersionConflict   = "VERSION_CONFLICT"
)

type identityKey struct{}

// identityFrom returns the caller resolved by authMiddleware.
func identityFrom(ctx context.Context) types.Identity {
	identity, _ := ctx.Value(identityKey{}).(types.Identity)
	return identity
}

// POST /api/calls
func (s *Server) createCall(w http.ResponseWriter, r *http.Request) {
	var req CreateCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StudentID == "" {
		s.sendError(w, "student_id is required", http.StatusBadRequest)
		return
	}

	detail, err := s.calls.CreateCall(r.Context(), identityFrom(r.Context()), req.StudentID)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, detail)
}

// GET /api/calls
func (s *Server) listCalls(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	calls, err := s.calls.ListCalls(r.Context(), identityFrom(r.Context()), filter)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, newListResponse(calls))
}

// GET /api/calls/{id}
func (s *Server) getCall(w http.ResponseWriter, r *http.Request) {
	detail, err := s.calls.GetCall(r.Context(), identityFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, detail)
}

// PATCH /api/calls/{id}/status
func (s *Server) updateCallStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	status, err := types.ParseCallStatus(req.Status)
	if err != nil {
		s.sendError(w, fmt.Sprintf("unknown status %q", req.Status), http.StatusBadRequest)
		return
	}

	detail, err := s.calls.UpdateCallStatus(r.Context(), identityFrom(r.Context()), r.PathValue("id"), status)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, detail)
}

// GET /api/classes/{id}/calls
func (s *Server) listClassQueue(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := parseBool(r.URL.Query().Get("active_only"))
	if err != nil {
		s.sendError(w, "active_only must be a boolean", http.StatusBadRequest)
		return
	}

	calls, err := s.calls.ListClassQueue(r.Context(), identityFrom(r.Context()), r.PathValue("id"), activeOnly)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, newListResponse(calls))
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.Stats(),
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, code, response)
}

func newListResponse(calls []*types.CallDetail) ListCallsResponse {
	if calls == nil {
		calls = []*types.CallDetail{}
	}
	return ListCallsResponse{Calls: calls, Count: len(calls)}
}

func parseFilter(r *http.Request) (types.CallFilter, error) {
	q := r.URL.Query()
	filter := types.CallFilter{
		SchoolID:  q.Get("school_id"),
		ClassID:   q.Get("class_id"),
		ParentID:  q.Get("parent_id"),
		StudentID: q.Get("student_id"),
	}

	var err error
	if filter.ActiveOnly, err = parseBool(q.Get("active_only")); err != nil {
		return filter, errors.New("active_only must be a boolean")
	}
	if filter.Skip, err = parseInt(q.Get("skip")); err != nil || filter.Skip < 0 {
		return filter, errors.New("skip must be a non-negative integer")
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil || filter.Limit < 0 {
		return filter, errors.New("limit must be a non-negative integer")
	}
	return filter, nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func parseInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// sendServiceError maps domain sentinels onto status codes.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, types.ErrUnauthenticated):
		s.sendError(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, types.ErrForbidden):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, types.ErrInvalidTransition):
		s.sendReason(w, err.Error(), ReasonInvalidTransition, http.StatusBadRequest)
	case errors.Is(err, types.ErrVersionConflict):
		s.sendReason(w, err.Error(), ReasonVersionConflict, http.StatusConflict)
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.sendError(w, "Internal error", http.StatusInternalServerError)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendReason(w, message, "", code)
}

func (s *Server) sendReason(w http.ResponseWriter, message, reason string, code int) {
	s.sendJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Reason:  reason,
		Message: message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

// authMiddleware resolves the bearer token into the request identity.
func (s *Server) authMiddleware(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.identity.ResolveRequest(r)
		if errors.Is(err, auth.ErrMissingToken) {
			s.sendError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if err != nil {
			s.logger.Debug("rejected bearer token", zap.Error(err))
			s.sendError(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, identity)))
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins; parent and staff apps are served from other hosts
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// FUNCTIONAL DISCOVERY: Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
