package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/bugtrackr/apiserver/internal/services"
	"github.com/bugtrackr/apiserver/types"
)

// ProjectHandler provides HTTP handlers for projects.
type ProjectHandler struct {
	projectService *services.ProjectService
	bugService     *services.BugService
}

// NewProjectHandler constructs a handler with the provided services.
func NewProjectHandler(projectService *services.ProjectService, bugService *services.BugService) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		bugService:     bugService,
	}
}

// ProjectRouter registers project routes on the given router. All routes
// require an authenticated actor.
func ProjectRouter(
	r chi.Router,
	projectService *services.ProjectService,
	bugService *services.BugService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProjectHandler(projectService, bugService)

	r.Use(authMiddleware)
	r.Post("/", handler.CreateProject)
	r.Get("/", handler.ListProjects)
	r.Route("/{projectID}", func(r chi.Router) {
		r.Put("/", handler.UpdateProject)
		r.Delete("/", handler.DeleteProject)
		r.Get("/bugs", handler.ListProjectBugs)
		r.Post("/bugs", handler.CreateBug)
		r.Get("/developers", handler.ListProjectDevelopers)
	})
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProjectUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	project, err := h.projectService.Create(r.Context(), actor, req.Name, req.DeveloperEmails, req.QAEmails)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, project)
}

func (h *ProjectHandler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ProjectUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	project, err := h.projectService.UpdateMembers(r.Context(), actor, projectID, req.DeveloperEmails, req.QAEmails)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (h *ProjectHandler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.projectService.Delete(r.Context(), actor, projectID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projects, err := h.projectService.ListForActor(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if projects == nil {
		projects = []types.Project{}
	}
	writeJSON(w, http.StatusOK, ProjectListResponse{Projects: projects})
}

func (h *ProjectHandler) ListProjectBugs(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bugs, err := h.bugService.ListForProject(r.Context(), actor, projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if bugs == nil {
		bugs = []types.Bug{}
	}
	writeJSON(w, http.StatusOK, BugListResponse{Bugs: bugs})
}

func (h *ProjectHandler) ListProjectDevelopers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	developers, err := h.projectService.Developers(r.Context(), actor, projectID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	members := make([]MemberResponse, 0, len(developers))
	for _, dev := range developers {
		members = append(members, MemberResponse{ID: dev.ID, Name: dev.Name, Email: dev.Email})
	}
	writeJSON(w, http.StatusOK, MemberListResponse{Developers: members})
}

// CreateBug reports a new bug in the project. The request is multipart
// so an optional image attachment can ride along with the fields.
func (h *ProjectHandler) CreateBug(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	input, image, err := parseBugForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bug, err := h.bugService.Create(r.Context(), actor, projectID, input)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if image.Data != nil {
		bug, err = h.bugService.AttachImage(r.Context(), actor, bug.ID, image.Filename, image.Data)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, bug)
}

// ProjectUpsertRequest carries project fields; membership is given as
// member emails and resolved to accounts server-side.
type ProjectUpsertRequest struct {
	Name            string   `json:"name"`
	DeveloperEmails []string `json:"developer_emails"`
	QAEmails        []string `json:"qa_emails"`
}

type ProjectListResponse struct {
	Projects []types.Project `json:"projects"`
}

type MemberResponse struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type MemberListResponse struct {
	Developers []MemberResponse `json:"developers"`
}

func parseIDParam(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
