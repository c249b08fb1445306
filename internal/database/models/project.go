package models

import "github.com/google/uuid"

// Role is a user's role within a single project.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleProjectAdmin Role = "project_admin"
	RoleMember       Role = "member"
)

// AvailableRoles lists every assignable project role.
var AvailableRoles = []Role{RoleAdmin, RoleProjectAdmin, RoleMember}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectAdmin, RoleMember:
		return true
	}
	return false
}

type Project struct {
	Base
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null;index" json:"createdBy"`
}

func (Project) TableName() string {
	return "projects"
}

// ProjectMember is the single source of truth for who may do what in a
// project. There is at most one row per (user, project).
type ProjectMember struct {
	Base
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_user_project" json:"userId"`
	ProjectID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_project_members_user_project;index" json:"projectId"`
	Role      Role      `gorm:"type:varchar(32);not null;default:'member'" json:"role"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ProjectMember) TableName() string {
	return "project_members"
}
