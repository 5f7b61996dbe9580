package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"MiniMixLab/config"
	"MiniMixLab/core/align"
	"MiniMixLab/core/analysis"
	"MiniMixLab/core/auth"
	"MiniMixLab/core/catalog"
	"MiniMixLab/core/progress"
	"MiniMixLab/core/timeline"
	"MiniMixLab/repository"
)

// APIHandler holds dependencies for API handlers.
type APIHandler struct {
	cfg        *config.Config
	userRepo   repository.UserRepository
	sourceRepo repository.SourceTrackRepository
	analysis   *analysis.Client
	catalog    *catalog.Catalog
	sessions   *timeline.Manager
	planner    *align.Planner
	hub        *progress.Hub
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	sourceRepo repository.SourceTrackRepository,
	analysisClient *analysis.Client,
	cat *catalog.Catalog,
	sessions *timeline.Manager,
	alignPlanner *align.Planner,
	hub *progress.Hub,
) *APIHandler {
	return &APIHandler{
		cfg:        cfg,
		userRepo:   userRepo,
		sourceRepo: sourceRepo,
		analysis:   analysisClient,
		catalog:    cat,
		sessions:   sessions,
		planner:    alignPlanner,
		hub:        hub,
	}
}

// writeJSON serializes a response body as JSON.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Get the Authorization header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		// Check if the header has the correct format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		// Parse and validate the token
		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// Add user info to the request context
		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		// Call the next handler with the updated context
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// sessionForRequest resolves the session in the URL path and checks ownership.
// Writes the error response itself and returns nil when the session is unusable.
func (h *APIHandler) sessionForRequest(w http.ResponseWriter, r *http.Request, sessionID string) *timeline.Session {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil
	}
	if sess.UserID != userID {
		http.Error(w, "Session belongs to another user", http.StatusForbidden)
		return nil
	}
	return sess
}
