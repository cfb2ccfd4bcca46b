// Package handlers exposes the task service as a JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/danielmtz/newslearn/internal/app"
	"github.com/danielmtz/newslearn/internal/logger"
	"github.com/danielmtz/newslearn/internal/quota"
	"github.com/danielmtz/newslearn/internal/sources"
	"github.com/danielmtz/newslearn/internal/storage"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// anonymousUser is used when no X-User-Id header is supplied.
const anonymousUser = "anonymous"

type Handler struct {
	Tasks    *app.TaskService
	Ledger   *quota.Ledger
	Tiers    *quota.TierConfig
	Catalog  *sources.Catalog
	Storage  *storage.Manager
	APIKey   string
	Logger   *logger.Logger
	validate *validator.Validate
}

func NewHandler(tasks *app.TaskService, ledger *quota.Ledger, tiers *quota.TierConfig, catalog *sources.Catalog, sm *storage.Manager, apiKey string, log *logger.Logger) *Handler {
	return &Handler{
		Tasks:    tasks,
		Ledger:   ledger,
		Tiers:    tiers,
		Catalog:  catalog,
		Storage:  sm,
		APIKey:   apiKey,
		Logger:   log.WithComponent("http"),
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.auth)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", h.CreateTask)
			r.Get("/", h.ListTasks)
			r.Get("/{id}", h.GetTask)
			r.Delete("/{id}", h.DeleteTask)
			r.Post("/{id}/cancel", h.CancelTask)
			r.Get("/{id}/download", h.DownloadOutput)
		})

		r.Get("/sources", h.ListSources)
		r.Get("/quota", h.GetQuota)
		r.Get("/tiers", h.ListTiers)

		r.Route("/admin", func(r chi.Router) {
			r.Get("/users", h.AllUserStats)
			r.Put("/users/{id}/tier", h.SetUserTier)
			r.Post("/reload", h.ReloadConfig)
			r.Get("/storage", h.StorageStats)
			r.Post("/storage/maintenance", h.RunMaintenance)
		})
	})
}

// auth enforces the shared API key when one is configured and resolves the
// calling user from the X-User-Id header.
func (h *Handler) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.APIKey != "" && r.Header.Get("X-API-Key") != h.APIKey {
			h.respondError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			userID = anonymousUser
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestUser(r *http.Request) string {
	if id, ok := r.Context().Value(userIDKey).(string); ok {
		return id
	}
	return anonymousUser
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, map[string]string{"error": msg})
}
