// Package server exposes the HTTP API: signup and login, order management,
// chat history and moderation, plus the realtime chat endpoint.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"orderchat/internal/app"
	"orderchat/internal/ratelimit"
	"orderchat/internal/util"
	"orderchat/pkg/domain"
	"orderchat/pkg/metrics"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	Chat                     http.Handler
	Metrics                  *metrics.Metrics
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	TrustedProxies           []string
}

// Server exposes HTTP endpoints for the backend.
type Server struct {
	app           *app.App
	chat          http.Handler
	metrics       *metrics.Metrics
	mux           *http.ServeMux
	trusted       *util.TrustedProxies
	signupLimiter *ratelimit.FixedWindowLimiter
	loginLimiter  *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured. Rate limiting is
// enabled only when the corresponding per-minute limit is positive.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("parse trusted proxies: %w", err)
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		if limit <= 0 {
			return nil, nil
		}
		prefix := "orderchat:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", cfg.SignupRateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		return nil, err
	}
	s := &Server{
		app:           cfg.App,
		chat:          cfg.Chat,
		metrics:       cfg.Metrics,
		mux:           http.NewServeMux(),
		trusted:       trusted,
		signupLimiter: signupLimiter,
		loginLimiter:  loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	if s.metrics != nil {
		h = s.withMetrics(h)
	}
	return util.WithRequestID(util.WithRequestLog("orderchat", util.WithSecurityHeaders(util.WithCORS(h))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}

	// auth
	s.mux.HandleFunc("/api/v1/auth/user/signup", s.handleSignup(domain.RoleUser))
	s.mux.HandleFunc("/api/v1/auth/admin/signup", s.handleSignup(domain.RoleAdmin))
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin)

	// orders (auth required)
	s.mux.Handle("/api/v1/order", s.authenticated(s.handleOrders))
	s.mux.Handle("/api/v1/order/", s.authenticated(s.handleOrderSubpath))

	// chat: realtime endpoint plus history and moderation
	if s.chat != nil {
		s.mux.Handle("/api/v1/chat", s.chat)
	}
	s.mux.Handle("/api/v1/chat/", s.authenticated(s.handleChatSubpath))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, app.ErrTokenInvalid.Error())
			return
		}
		user, err := s.app.UserFromToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, app.ErrTokenInvalid.Error())
			return
		}
		next(w, r, user)
	})
}

// requireAdmin rejects non-admin users. Role gating happens here at the
// boundary, not inside the application core.
func requireAdmin(w http.ResponseWriter, user domain.User) bool {
	if user.Role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "Forbidden resource")
		return false
	}
	return true
}

// auth handlers
type authRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userPublic is the client-visible slice of a user record.
type userPublic struct {
	ID    string          `json:"id"`
	Email string          `json:"email"`
	Role  domain.UserRole `json:"role"`
}

type loginResponse struct {
	userPublic
	Token string `json:"token"`
}

func (s *Server) handleSignup(role domain.UserRole) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.allowRate(w, r, s.signupLimiter, "too many signup attempts") {
			return
		}
		var req authRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		user, err := s.app.SignUp(req.Email, req.Password, role)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusCreated, "User registered successfully", userPublic{
			ID:    user.ID,
			Email: user.Email,
			Role:  user.Role,
		})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		return
	}
	var req authRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, token, err := s.app.SignIn(req.Email, req.Password)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Login successful", loginResponse{
		userPublic: userPublic{ID: user.ID, Email: user.Email, Role: user.Role},
		Token:      token,
	})
}

// order handlers
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateOrder(w, r, user)
	case http.MethodGet:
		s.handleListOrders(w, r, user)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.CreateOrderInput
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	order, room, err := s.app.CreateOrder(user.ID, req)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Order created successfully", map[string]any{
		"order":    order,
		"chatRoom": room,
	})
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request, _ domain.User) {
	orders, err := s.app.ListOrders()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Orders retrieved successfully", orders)
}

// handleOrderSubpath serves /api/v1/order/{id}/complete.
func (s *Server) handleOrderSubpath(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/order/")
	orderID, action, ok := splitAction(rest)
	if !ok || action != "complete" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}
	if !requireAdmin(w, user) {
		return
	}
	order, err := s.app.MarkCompleted(user.ID, orderID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Order marked as completed", order)
}

// handleChatSubpath serves /api/v1/chat/{id}/history and
// /api/v1/chat/{id}/close.
func (s *Server) handleChatSubpath(w http.ResponseWriter, r *http.Request, user domain.User) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/chat/")
	roomID, action, ok := splitAction(rest)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch action {
	case "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		messages, err := s.app.ChatHistory(user.ID, roomID)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Chat history retrieved successfully", messages)
	case "close":
		if r.Method != http.MethodPatch {
			methodNotAllowed(w)
			return
		}
		if !requireAdmin(w, user) {
			return
		}
		var req struct {
			Summary string `json:"summary"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		room, err := s.app.CloseChat(roomID, req.Summary)
		if err != nil {
			s.writeAppError(w, r, err)
			return
		}
		writeSuccess(w, http.StatusOK, "Chat room closed successfully", room)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// splitAction parses "{id}/{action}" path remainders.
func splitAction(rest string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// writeAppError maps application errors onto HTTP statuses.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	logger := util.LoggerFromContext(r.Context())
	var transition *app.InvalidTransitionError
	switch {
	case errors.Is(err, app.ErrEmailExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrUserNotFound),
		errors.Is(err, app.ErrOrderNotFound),
		errors.Is(err, app.ErrChatRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrTokenInvalid):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrChatAccessDenied):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrEmailAndPasswordRequired),
		errors.Is(err, app.ErrInvalidPassword),
		errors.Is(err, app.ErrOrderFieldsRequired),
		errors.Is(err, app.ErrMessageFieldsRequired),
		errors.Is(err, app.ErrChatRoomClosed),
		errors.Is(err, app.ErrChatAlreadyClosed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &transition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + util.ClientIP(r, s.trusted)
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Unwrap lets http.ResponseController reach the underlying writer for
// the websocket upgrade on /api/v1/chat.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequests.WithLabelValues(r.Method, routePattern(r.URL.Path), strconv.Itoa(rec.status)).Inc()
	})
}

// routePattern collapses resource IDs and unrouted paths so the request
// counter keeps a bounded label set.
func routePattern(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/order/"):
		if _, action, ok := splitAction(strings.TrimPrefix(path, "/api/v1/order/")); ok && action == "complete" {
			return "/api/v1/order/{id}/" + action
		}
		return "/api/v1/order/{unrouted}"
	case strings.HasPrefix(path, "/api/v1/chat/"):
		if _, action, ok := splitAction(strings.TrimPrefix(path, "/api/v1/chat/")); ok && (action == "history" || action == "close") {
			return "/api/v1/chat/{id}/" + action
		}
		return "/api/v1/chat/{unrouted}"
	case path == "/healthz", path == "/metrics",
		path == "/api/v1/auth/user/signup", path == "/api/v1/auth/admin/signup", path == "/api/v1/auth/login",
		path == "/api/v1/order", path == "/api/v1/chat":
		return path
	}
	return "/{unrouted}"
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

type successEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type errorEnvelope struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successEnvelope{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{
		Status:    "error",
		Message:   msg,
		Data:      nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
