package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielmtz/newslearn/internal/domain"
)

func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	includeDisabled := r.URL.Query().Get("all") == "true"
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sources": h.Catalog.List(includeDisabled),
	})
}

func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Ledger.GetUserStats(requestUser(r)))
}

func (h *Handler) ListTiers(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"tiers": h.Tiers.AllTiers()})
}

func (h *Handler) AllUserStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.Ledger.AllUserStats()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"users": stats, "count": len(stats)})
}

type setTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=free basic premium"`
}

func (h *Handler) SetUserTier(w http.ResponseWriter, r *http.Request) {
	var req setTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage := h.Ledger.SetTier(chi.URLParam(r, "id"), domain.UserTier(req.Tier))
	h.respondJSON(w, http.StatusOK, usage)
}

// ReloadConfig re-reads the tier and source files from disk.
func (h *Handler) ReloadConfig(w http.ResponseWriter, _ *http.Request) {
	h.Tiers.Reload()
	h.Catalog.Reload()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (h *Handler) StorageStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{"local": h.Storage.Stats()}
	if used, ok := h.Storage.RemoteUsage(); ok {
		resp["remote_bytes"] = used
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) RunMaintenance(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, h.Storage.RunMaintenance())
}
