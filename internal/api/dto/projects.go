package dto

import (
	"time"

	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
)

type ProjectDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewProjectDTO(p *models.Project) ProjectDTO {
	return ProjectDTO{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedByID.String(),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// ProjectSummaryDTO is a project in the caller's project list.
type ProjectSummaryDTO struct {
	Project ProjectDTO `json:"project"`
	Role    string     `json:"role"`
	Members int64      `json:"members"`
}

func NewProjectSummaryDTOs(list []projects.Summary) []ProjectSummaryDTO {
	out := make([]ProjectSummaryDTO, len(list))
	for i := range list {
		out[i] = ProjectSummaryDTO{
			Project: NewProjectDTO(&list[i].Project),
			Role:    string(list[i].Role),
			Members: list[i].MemberCount,
		}
	}
	return out
}

type MemberDTO struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	User      *UserSummary `json:"user"`
	Role      string       `json:"role"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func NewMemberDTO(m *models.ProjectMember) MemberDTO {
	user := NewUserSummary(m.User)
	if user == nil {
		user = &UserSummary{ID: m.UserID.String()}
	}
	return MemberDTO{
		ID:        m.ID.String(),
		ProjectID: m.ProjectID.String(),
		User:      user,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func NewMemberDTOs(members []models.ProjectMember) []MemberDTO {
	out := make([]MemberDTO, len(members))
	for i := range members {
		out[i] = NewMemberDTO(&members[i])
	}
	return out
}
