package handlers

import (
	"net/http"
	"strings"

	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/api/validation"
	"github.com/hugh/projectcamp/internal/projects"
)

type ProjectHandler struct {
	projects *projects.Service
}

func NewProjectHandler(projectService *projects.Service) *ProjectHandler {
	return &ProjectHandler{projects: projectService}
}

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (r CreateProjectRequest) Validate() map[string]string {
	errors := make(map[string]string)
	name := strings.TrimSpace(r.Name)
	if name == "" {
		errors["name"] = "Name is required"
	} else if validation.TooLong(name, 100) {
		errors["name"] = "Name must be at most 100 characters"
	}
	if validation.TooLong(r.Description, 2000) {
		errors["description"] = "Description must be at most 2000 characters"
	}
	return errors
}

// UpdateProjectRequest only changes the fields that are present.
type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (r UpdateProjectRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			errors["name"] = "Name cannot be empty"
		} else if validation.TooLong(name, 100) {
			errors["name"] = "Name must be at most 100 characters"
		}
	}
	if r.Description != nil && validation.TooLong(*r.Description, 2000) {
		errors["description"] = "Description must be at most 2000 characters"
	}
	return errors
}

// List handles GET /api/v1/projects
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.projects.ListForUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewProjectSummaryDTOs(list), "Projects fetched successfully")
}

// Create handles POST /api/v1/projects
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	project, err := h.projects.Create(r.Context(), projects.CreateInput{
		Name:        validation.SanitizeString(req.Name),
		Description: validation.SanitizeString(req.Description),
		CreatorID:   middleware.GetUserID(r.Context()),
	})
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, dto.NewProjectDTO(project), "Project created successfully")
}

// Get handles GET /api/v1/projects/{projectId}
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	project, err := h.projects.Get(r.Context(), grant.ProjectID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewProjectDTO(project), "Project fetched successfully")
}

// Update handles PUT /api/v1/projects/{projectId}
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	var req UpdateProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	input := projects.UpdateInput{}
	if req.Name != nil {
		name := validation.SanitizeString(*req.Name)
		input.Name = &name
	}
	if req.Description != nil {
		desc := validation.SanitizeString(*req.Description)
		input.Description = &desc
	}

	project, err := h.projects.Update(r.Context(), grant.ProjectID, input)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewProjectDTO(project), "Project updated successfully")
}

// Delete handles DELETE /api/v1/projects/{projectId}
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	project, err := h.projects.Get(r.Context(), grant.ProjectID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if _, err := h.projects.Delete(r.Context(), grant.ProjectID); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewProjectDTO(project), "Project deleted successfully")
}
