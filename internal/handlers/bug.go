package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/bugtrackr/apiserver/internal/auth"
	"github.com/bugtrackr/apiserver/internal/services"
	"github.com/bugtrackr/apiserver/types"
)

const (
	maxMultipartMemory = 8 << 20
	formFieldTitle     = "title"
	formFieldDesc      = "description"
	formFieldDeadline  = "deadline"
	formFieldType      = "type"
	formFieldAssignee  = "assigned_to"
	formFieldImage     = "image"
)

// ImageFile represents an uploaded bug screenshot.
type ImageFile struct {
	Filename string
	Data     []byte
}

// BugHandler provides HTTP handlers for bugs.
type BugHandler struct {
	bugService *services.BugService
}

// NewBugHandler constructs a handler with the provided service.
func NewBugHandler(bugService *services.BugService) *BugHandler {
	return &BugHandler{bugService: bugService}
}

// BugRouter registers bug routes on the given router. All routes require
// an authenticated actor.
func BugRouter(r chi.Router, bugService *services.BugService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewBugHandler(bugService)

	r.Use(authMiddleware)
	r.Get("/qa", handler.ListCreatedBugs)
	r.Get("/dev", handler.ListAssignedBugs)
	r.Route("/{bugID}", func(r chi.Router) {
		r.Get("/", handler.GetBug)
		r.Patch("/status", handler.UpdateBugStatus)
		r.Post("/lock", handler.ToggleBugLock)
		r.Delete("/", handler.DeleteBug)
		r.Get("/image", handler.GetBugImage)
	})
}

func (h *BugHandler) GetBug(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugID, err := parseIDParam(r, "bugID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bug, err := h.bugService.Get(r.Context(), actor, bugID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (h *BugHandler) UpdateBugStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugID, err := parseIDParam(r, "bugID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	bug, err := h.bugService.Transition(r.Context(), actor, bugID, types.BugStatus(req.Status))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (h *BugHandler) ToggleBugLock(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugID, err := parseIDParam(r, "bugID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bug, err := h.bugService.ToggleLock(r.Context(), actor, bugID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bug)
}

func (h *BugHandler) DeleteBug(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugID, err := parseIDParam(r, "bugID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bugService.Delete(r.Context(), actor, bugID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCreatedBugs is the QA dashboard.
func (h *BugHandler) ListCreatedBugs(w http.ResponseWriter, r *http.Request) {
	h.listBugs(w, r, h.bugService.ListCreated)
}

// ListAssignedBugs is the developer dashboard.
func (h *BugHandler) ListAssignedBugs(w http.ResponseWriter, r *http.Request) {
	h.listBugs(w, r, h.bugService.ListAssigned)
}

func (h *BugHandler) GetBugImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugID, err := parseIDParam(r, "bugID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, contentType, err := h.bugService.OpenImage(r.Context(), actor, bugID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (h *BugHandler) listBugs(w http.ResponseWriter, r *http.Request, list func(context.Context, auth.Actor) ([]types.Bug, error)) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	bugs, err := list(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if bugs == nil {
		bugs = []types.Bug{}
	}
	writeJSON(w, http.StatusOK, BugListResponse{Bugs: bugs})
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type BugListResponse struct {
	Bugs []types.Bug `json:"bugs"`
}

func parseBugForm(r *http.Request) (services.CreateBugInput, ImageFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return services.CreateBugInput{}, ImageFile{}, errors.New("invalid multipart form")
	}

	input := services.CreateBugInput{
		Title:       strings.TrimSpace(r.FormValue(formFieldTitle)),
		Description: strings.TrimSpace(r.FormValue(formFieldDesc)),
		Type:        types.BugType(strings.TrimSpace(r.FormValue(formFieldType))),
	}

	if raw := strings.TrimSpace(r.FormValue(formFieldDeadline)); raw != "" {
		deadline, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return services.CreateBugInput{}, ImageFile{}, errors.New("invalid deadline, expected RFC 3339")
		}
		input.Deadline = &deadline
	}

	if raw := strings.TrimSpace(r.FormValue(formFieldAssignee)); raw != "" {
		assignee, err := strconv.Atoi(raw)
		if err != nil || assignee < 1 {
			return services.CreateBugInput{}, ImageFile{}, errors.New("invalid assignee")
		}
		input.AssignedTo = &assignee
	}

	image, err := parseImageFile(r.MultipartForm)
	if err != nil {
		return services.CreateBugInput{}, ImageFile{}, err
	}

	return input, image, nil
}

func parseImageFile(form *multipart.Form) (ImageFile, error) {
	if form == nil {
		return ImageFile{}, nil
	}

	files := form.File[formFieldImage]
	if len(files) == 0 {
		return ImageFile{}, nil
	}
	if len(files) > 1 {
		return ImageFile{}, errors.New("only one image is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return ImageFile{}, fmt.Errorf("failed to read image: %w", err)
	}

	data, err := readFileLimited(file, services.MaxImageBytes)
	_ = file.Close()
	if err != nil {
		return ImageFile{}, err
	}

	return ImageFile{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
