// Package access decides whether a user may act within a project. Every
// decision is made from the membership table at request time: roles are never
// cached, carried in tokens, or attached to the user record.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound = apperr.NewNotFound("Project not found")
	ErrForbidden       = apperr.NewForbidden("You do not have permission to perform this action")
)

// Grant is the outcome of a successful authorization. It is a value: handlers
// read it from the request context and cannot change what was decided.
type Grant struct {
	UserID    uuid.UUID
	ProjectID uuid.UUID
	Role      models.Role
}

// Allows reports whether the granted role is one of roles. An empty list
// allows every member.
func (g Grant) Allows(roles ...models.Role) bool {
	if len(roles) == 0 {
		return g.Role.Valid()
	}
	for _, r := range roles {
		if g.Role == r {
			return true
		}
	}
	return false
}

type Authorizer struct {
	db *gorm.DB
}

func NewAuthorizer(db *gorm.DB) *Authorizer {
	return &Authorizer{db: db}
}

// Authorize checks that userID is a member of projectID holding one of roles
// (any role when roles is empty). A missing project and a missing membership
// both report ErrProjectNotFound, so non-members cannot probe which projects
// exist.
func (a *Authorizer) Authorize(ctx context.Context, userID, projectID uuid.UUID, roles ...models.Role) (Grant, error) {
	var member models.ProjectMember
	err := a.db.WithContext(ctx).
		Joins("JOIN projects ON projects.id = project_members.project_id").
		Where("project_members.user_id = ? AND project_members.project_id = ?", userID, projectID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Grant{}, ErrProjectNotFound
		}
		return Grant{}, apperr.Wrap(apperr.Internal, "loading membership", err)
	}

	grant := Grant{UserID: userID, ProjectID: projectID, Role: member.Role}
	if !grant.Allows(roles...) {
		return Grant{}, ErrForbidden
	}
	return grant, nil
}

type grantKey struct{}

// WithGrant returns a copy of ctx carrying g.
func WithGrant(ctx context.Context, g Grant) context.Context {
	return context.WithValue(ctx, grantKey{}, g)
}

// GrantFrom returns the grant stored by WithGrant.
func GrantFrom(ctx context.Context) (Grant, bool) {
	g, ok := ctx.Value(grantKey{}).(Grant)
	return g, ok
}
