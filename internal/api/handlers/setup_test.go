package handlers_test

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/projectcamp/internal/access"
	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/handlers"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
	"github.com/hugh/projectcamp/internal/testutil"
	"github.com/hugh/projectcamp/pkg/util"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	*testutil.TestSetup
	router   *chi.Mux
	store    *storage.LocalStore
	cleaner  *testutil.RecordingCleaner
	notifier *testutil.RecordingNotifier
}

// newTestEnv mounts every handler behind the same auth and role middleware
// the API router uses.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tc := testutil.NewTestContext(t)
	t.Cleanup(tc.Cleanup)

	store, err := storage.NewLocalStore(t.TempDir(), "http://api.test/images")
	require.NoError(t, err)

	env := &testEnv{
		TestSetup: tc,
		store:     store,
		cleaner:   &testutil.RecordingCleaner{},
		notifier:  &testutil.RecordingNotifier{},
	}

	logger := util.DiscardLogger()
	authService := auth.NewService(tc.DB, tc.JWTService, env.notifier, auth.Links{
		ServerURL:        "http://api.test",
		ResetPasswordURL: "http://app.test/reset-password",
	}, logger)
	projectService := projects.NewService(tc.DB, env.cleaner, logger)
	authz := access.NewAuthorizer(tc.DB)

	authHandler := handlers.NewAuthHandler(authService, time.Hour, 24*time.Hour, false)
	projectHandler := handlers.NewProjectHandler(projectService)
	memberHandler := handlers.NewMemberHandler(projectService)
	taskHandler := handlers.NewTaskHandler(tc.DB, store, env.cleaner, logger)
	noteHandler := handlers.NewNoteHandler(tc.DB)

	anyMember := middleware.RequireProjectRole(authz)
	admin := middleware.RequireProjectRole(authz, models.RoleAdmin)
	leads := middleware.RequireProjectRole(authz, models.RoleAdmin, models.RoleProjectAdmin)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh-token", authHandler.RefreshToken)
		r.Post("/auth/forgot-password", authHandler.ForgotPassword)
		r.Post("/auth/reset-password/{resetToken}", authHandler.ResetPassword)
		r.Get("/auth/verify-email/{verificationToken}", authHandler.VerifyEmail)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tc.JWTService))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/current-user", authHandler.CurrentUser)
			r.Post("/auth/change-password", authHandler.ChangePassword)
			r.Post("/auth/resend-email-verification", authHandler.ResendVerification)

			r.Get("/projects", projectHandler.List)
			r.Post("/projects", projectHandler.Create)
			r.With(anyMember).Get("/projects/{projectId}", projectHandler.Get)
			r.With(admin).Put("/projects/{projectId}", projectHandler.Update)
			r.With(admin).Delete("/projects/{projectId}", projectHandler.Delete)
			r.With(anyMember).Get("/projects/{projectId}/members", memberHandler.List)
			r.With(admin).Post("/projects/{projectId}/members", memberHandler.Add)
			r.With(admin).Put("/projects/{projectId}/members/{userId}", memberHandler.ChangeRole)
			r.With(admin).Delete("/projects/{projectId}/members/{userId}", memberHandler.Remove)

			r.With(anyMember).Get("/tasks/{projectId}", taskHandler.List)
			r.With(leads).Post("/tasks/{projectId}", taskHandler.Create)
			r.With(anyMember).Put("/tasks/{projectId}/st/{subTaskId}", taskHandler.UpdateSubtask)
			r.With(leads).Delete("/tasks/{projectId}/st/{subTaskId}", taskHandler.DeleteSubtask)
			r.With(anyMember).Get("/tasks/{projectId}/{taskId}", taskHandler.Get)
			r.With(leads).Put("/tasks/{projectId}/{taskId}", taskHandler.Update)
			r.With(leads).Delete("/tasks/{projectId}/{taskId}", taskHandler.Delete)
			r.With(leads).Post("/tasks/{projectId}/{taskId}/subtasks", taskHandler.CreateSubtask)

			r.With(anyMember).Get("/notes/{projectId}", noteHandler.List)
			r.With(admin).Post("/notes/{projectId}", noteHandler.Create)
			r.With(anyMember).Get("/notes/{projectId}/n/{noteId}", noteHandler.Get)
			r.With(admin).Put("/notes/{projectId}/n/{noteId}", noteHandler.Update)
			r.With(admin).Delete("/notes/{projectId}/n/{noteId}", noteHandler.Delete)
		})
	})

	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.AuthenticatedRequest(t, method, path, body, token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

// tokenFor returns an access token for user.
func (e *testEnv) tokenFor(t *testing.T, user *models.User) string {
	return testutil.GenerateTestToken(t, e.JWTService, user)
}

// failReadsFrom makes every query against table fail on db.
func failReadsFrom(t *testing.T, db *gorm.DB, table string) {
	t.Helper()
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:fail_reads_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table == table {
			tx.AddError(errors.New("read failed"))
		}
	}))
}

type upload struct {
	name        string
	contentType string
	content     string
}

// multipartRequest builds a multipart/form-data request with fields and
// files under "attachments".
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files []upload, token string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="attachments"; filename="`+f.name+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func parseError(t *testing.T, rr *httptest.ResponseRecorder) dto.APIError {
	t.Helper()
	var resp dto.APIError
	testutil.ParseJSONResponse(t, rr, &resp)
	return resp
}
