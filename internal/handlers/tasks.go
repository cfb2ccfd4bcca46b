package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/danielmtz/newslearn/internal/app"
	"github.com/danielmtz/newslearn/internal/domain"
	"github.com/danielmtz/newslearn/internal/store"
)

type createTaskRequest struct {
	SourceID       string `json:"source_id" validate:"required"`
	VideoURL       string `json:"video_url" validate:"required,url"`
	ProcessingMode string `json:"processing_mode" validate:"required"`
	Resolution     string `json:"resolution" validate:"omitempty,oneof=360p 480p 720p 1080p audio_only"`
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.Tasks.CreateTask(r.Context(), requestUser(r),
		req.SourceID, req.VideoURL, domain.ProcessingMode(req.ProcessingMode), req.Resolution)
	if err != nil {
		h.respondTaskError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, task)
}

func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var status *domain.TaskStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.TaskStatus(s)
		status = &st
	}

	tasks, err := h.Tasks.ListTasks(requestUser(r), status, queryInt(r, "limit"))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks, "count": len(tasks)})
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.GetTask(requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondTaskError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, task)
}

func (h *Handler) CancelTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.CancelTask(requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondTaskError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.DeleteTask(requestUser(r), chi.URLParam(r, "id")); err != nil {
		h.respondTaskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadOutput streams the finished output file to the caller.
func (h *Handler) DownloadOutput(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.GetTask(requestUser(r), chi.URLParam(r, "id"))
	if err != nil {
		h.respondTaskError(w, err)
		return
	}
	if task.Status != domain.TaskStatusCompleted || task.OutputFile == nil {
		h.respondError(w, http.StatusConflict, "task has no output yet")
		return
	}
	if _, err := os.Stat(*task.OutputFile); err != nil {
		h.respondError(w, http.StatusGone, "output file no longer available")
		return
	}
	http.ServeFile(w, r, *task.OutputFile)
}

// respondTaskError maps service errors to status codes.
func (h *Handler) respondTaskError(w http.ResponseWriter, err error) {
	var quotaErr *app.QuotaError
	switch {
	case errors.As(err, &quotaErr):
		h.respondJSON(w, http.StatusForbidden, map[string]interface{}{
			"error":           quotaErr.Result.Reason,
			"tier":            quotaErr.Result.Tier,
			"remaining_today": quotaErr.Result.RemainingToday,
		})
	case errors.Is(err, app.ErrQueueFull):
		h.respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, app.ErrInvalidMode), errors.Is(err, app.ErrUnknownSource):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrVideoUnavailable):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, app.ErrTaskActive), errors.Is(err, app.ErrNotCancellable):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrTaskNotFound):
		h.respondError(w, http.StatusNotFound, "task not found")
	default:
		h.Logger.Error("Request failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryInt(r *http.Request, key string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(key))
	return v
}
