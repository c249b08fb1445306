package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/access"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
)

// ProjectIDParam is the URL parameter holding the project id on scoped routes.
const ProjectIDParam = "projectId"

// ProjectAuthorizer is satisfied by *access.Authorizer.
type ProjectAuthorizer interface {
	Authorize(ctx context.Context, userID, projectID uuid.UUID, roles ...models.Role) (access.Grant, error)
}

// RequireProjectRole authorizes the authenticated user against the project
// named in the URL and stores the resulting grant in the request context.
// With no roles every member passes. It must run after Auth.
func RequireProjectRole(authz ProjectAuthorizer, roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := GetUserID(r.Context())
			if userID == uuid.Nil {
				response.Error(w, r, errUnauthorized)
				return
			}

			projectID, err := uuid.Parse(chi.URLParam(r, ProjectIDParam))
			if err != nil {
				response.Error(w, r, apperr.NewInvalidArgument("Invalid project id"))
				return
			}

			grant, err := authz.Authorize(r.Context(), userID, projectID, roles...)
			if err != nil {
				response.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithGrant(r.Context(), grant)))
		})
	}
}

// GetGrant returns the grant stored by RequireProjectRole.
func GetGrant(ctx context.Context) access.Grant {
	g, _ := access.GrantFrom(ctx)
	return g
}
