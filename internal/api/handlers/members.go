package handlers

import (
	"net/http"
	"strings"

	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/api/validation"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
)

type MemberHandler struct {
	projects *projects.Service
}

func NewMemberHandler(projectService *projects.Service) *MemberHandler {
	return &MemberHandler{projects: projectService}
}

type AddMemberRequest struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

func (r AddMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(strings.TrimSpace(r.Email)) {
		errors["email"] = "Email is invalid"
	}
	if !r.Role.Valid() {
		errors["role"] = "Role must be one of admin, project_admin, member"
	}
	return errors
}

type ChangeRoleRequest struct {
	NewRole models.Role `json:"newRole"`
}

func (r ChangeRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)
	if !r.NewRole.Valid() {
		errors["newRole"] = "Role must be one of admin, project_admin, member"
	}
	return errors
}

// List handles GET /api/v1/projects/{projectId}/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	members, err := h.projects.ListMembers(r.Context(), grant.ProjectID)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewMemberDTOs(members), "Project members fetched successfully")
}

// Add handles POST /api/v1/projects/{projectId}/members. Adding an existing
// member updates their role.
func (h *MemberHandler) Add(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	var req AddMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	member, created, err := h.projects.AddOrUpdateMember(r.Context(), grant.ProjectID, req.Email, req.Role)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if !created {
		response.JSON(w, http.StatusOK, dto.NewMemberDTO(member), "Project member role updated successfully")
		return
	}
	response.JSON(w, http.StatusCreated, dto.NewMemberDTO(member), "Project member added successfully")
}

// ChangeRole handles PUT /api/v1/projects/{projectId}/members/{userId}
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	userID, err := uuidParam(r, "userId", "user")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req ChangeRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	member, err := h.projects.ChangeRole(r.Context(), grant.ProjectID, userID, req.NewRole)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewMemberDTO(member), "Project member role updated successfully")
}

// Remove handles DELETE /api/v1/projects/{projectId}/members/{userId}
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	userID, err := uuidParam(r, "userId", "user")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.projects.RemoveMember(r.Context(), grant.ProjectID, userID); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"userId": userID.String()}, "Project member deleted successfully")
}
