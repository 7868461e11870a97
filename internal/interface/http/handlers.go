// Package http implements the REST API for the referral service.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/idorecall/referral-service/internal/application/command"
	"github.com/idorecall/referral-service/internal/application/query"
	"github.com/idorecall/referral-service/internal/domain/shared"
	"github.com/idorecall/referral-service/internal/domain/user"
	"github.com/idorecall/referral-service/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Referral Service API",
		"version":     "v1",
		"description": "REST API for referral-code signups and points ranking",
		"endpoints": map[string]string{
			"health":   "/health",
			"signup":   "/api/v1/users",
			"user":     "/api/v1/users/{id}",
			"behind":   "/api/v1/users/{id}/behind",
			"ahead":    "/api/v1/users/{id}/ahead",
			"top_user": "/api/v1/users/top",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SIGNUP HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateUserRequest is the JSON body of POST /api/v1/users.
type CreateUserRequest struct {
	Username string         `json:"username,omitempty"`
	Email    string         `json:"email,omitempty"`
	Emails   []EmailPayload `json:"emails,omitempty"`
	Profile  map[string]any `json:"profile,omitempty"`

	// ReferralCode is the code of the referring user, if any.
	ReferralCode string `json:"referral_code,omitempty"`
}

// EmailPayload is one email address in a signup request.
type EmailPayload struct {
	Address  string `json:"address"`
	Verified bool   `json:"verified,omitempty"`
}

// handleCreateUser handles POST /api/v1/users
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.CreateUserHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Signup handler not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req CreateUserRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON payload")
			return
		}
	}

	emails := make([]user.EmailAddress, 0, len(req.Emails)+1)
	for _, e := range req.Emails {
		emails = append(emails, user.EmailAddress{Address: e.Address, Verified: e.Verified})
	}
	if req.Email != "" {
		emails = append(emails, user.EmailAddress{Address: req.Email})
	}

	cmd := command.CreateUserCommand{
		Username:     req.Username,
		Emails:       emails,
		Profile:      req.Profile,
		ReferralCode: req.ReferralCode,
		VisitorInfo: user.VisitorInfo{
			IP:          getClientIP(r),
			UserAgent:   r.UserAgent(),
			Language:    r.Header.Get("Accept-Language"),
			ReferrerURL: r.Referer(),
		},
	}

	result, err := s.deps.CreateUserHandler.Handle(r.Context(), cmd)
	if err != nil {
		// The user may exist despite the error: an unknown referral code
		// fails only the linking step, after the record is durable.
		if result != nil && errors.Is(err, user.ErrInvalidReferralCode) {
			writeJSONPartial(w, http.StatusCreated, result, "invalid_referral_code", "Referral code does not belong to any user")
			return
		}

		switch {
		case shared.IsValidation(err):
			writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, user.ErrCodeSpaceExhausted):
			s.logger.Error("code generation exhausted", logger.Err(err))
			writeJSONError(w, http.StatusServiceUnavailable, "code_generation_failed", "Could not allocate a referral code, please retry")
		default:
			s.logger.Error("signup failed", logger.Err(err))
			writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to create user")
		}
		return
	}

	if result.AlreadyExists {
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// USER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUser handles GET /api/v1/users/{id}
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.GetUserHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "User handler not configured")
		return
	}

	result, err := s.deps.GetUserHandler.Handle(r.Context(), query.GetUserQuery{UserID: userID})
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		s.logger.Error("failed to get user", logger.Err(err), logger.UserID(userID))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// RANKING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUsersBehind handles GET /api/v1/users/{id}/behind
func (s *Server) handleUsersBehind(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.UsersBehindHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Ranking handler not configured")
		return
	}

	q := query.UsersBehindQuery{
		UserID:  userID,
		HowMany: getQueryParamInt(r, "n", query.DefaultRange),
	}

	result, err := s.deps.UsersBehindHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeRankingError(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleUsersAhead handles GET /api/v1/users/{id}/ahead
func (s *Server) handleUsersAhead(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "User ID is required")
		return
	}

	if s.deps.UsersAheadHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Ranking handler not configured")
		return
	}

	q := query.UsersAheadQuery{
		UserID:  userID,
		HowMany: getQueryParamInt(r, "n", query.DefaultRange),
	}

	result, err := s.deps.UsersAheadHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeRankingError(w, err, userID)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleTopUser handles GET /api/v1/users/top
func (s *Server) handleTopUser(w http.ResponseWriter, r *http.Request) {
	if s.deps.TopUserHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Ranking handler not configured")
		return
	}

	result, err := s.deps.TopUserHandler.Handle(r.Context())
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeJSONError(w, http.StatusNotFound, "not_found", "No users registered yet")
			return
		}
		s.logger.Error("failed to get top user", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to get top user")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// writeRankingError maps ranking query errors onto HTTP responses.
// A missing target user is a hard 404, never an empty list.
func (s *Server) writeRankingError(w http.ResponseWriter, err error, userID string) {
	if errors.Is(err, user.ErrUserNotFound) {
		writeJSONError(w, http.StatusNotFound, "not_found", "User not found")
		return
	}
	s.logger.Error("ranking query failed", logger.Err(err), logger.UserID(userID))
	writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to run ranking query")
}
