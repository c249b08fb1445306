package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/auth"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every user created by CreateTestUser.
const TestPassword = "testpassword123"

// Hashing with bcrypt's default cost for every fixture user is slow, so the
// fixture hash is computed once.
var (
	passwordHashOnce sync.Once
	passwordHash     string
)

// SetupTestDB creates an isolated in-memory SQLite database for testing.
// A single connection keeps every query on the same in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestUser creates a verified user whose password is TestPassword.
func CreateTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	passwordHashOnce.Do(func() {
		hash, err := auth.HashPassword(TestPassword)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		passwordHash = hash
	})

	if username == "" {
		username = "user" + uuid.NewString()[:8]
	}

	user := &models.User{
		Base: models.Base{
			ID: uuid.New(),
		},
		Email:           username + "@example.com",
		Username:        username,
		FullName:        "Test " + username,
		PasswordHash:    passwordHash,
		IsEmailVerified: true,
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTestProject creates a project owned by owner with the owner's admin
// membership, the same shape project creation produces.
func CreateTestProject(t *testing.T, db *gorm.DB, owner *models.User, name string) *models.Project {
	t.Helper()

	if name == "" {
		name = "Project " + uuid.NewString()[:8]
	}

	project := &models.Project{
		Base: models.Base{
			ID: uuid.New(),
		},
		Name:        name,
		Description: "Test project",
		CreatedByID: owner.ID,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProjectMember{
			UserID:    owner.ID,
			ProjectID: project.ID,
			Role:      models.RoleAdmin,
		}).Error
	})
	if err != nil {
		t.Fatalf("failed to create test project: %v", err)
	}

	return project
}

// AddTestMember inserts a membership row.
func AddTestMember(t *testing.T, db *gorm.DB, project *models.Project, user *models.User, role models.Role) *models.ProjectMember {
	t.Helper()

	member := &models.ProjectMember{
		UserID:    user.ID,
		ProjectID: project.ID,
		Role:      role,
	}
	if err := db.Create(member).Error; err != nil {
		t.Fatalf("failed to add test member: %v", err)
	}
	return member
}

// CreateTestTask creates a todo task in project.
func CreateTestTask(t *testing.T, db *gorm.DB, project *models.Project, by *models.User, attachments ...models.Attachment) *models.Task {
	t.Helper()

	task := &models.Task{
		Title:        "Task " + uuid.NewString()[:8],
		Description:  "Test task description",
		ProjectID:    project.ID,
		AssignedByID: by.ID,
		Status:       models.TaskStatusTodo,
		Attachments:  attachments,
	}
	if err := db.Create(task).Error; err != nil {
		t.Fatalf("failed to create test task: %v", err)
	}
	return task
}

func CreateTestSubtask(t *testing.T, db *gorm.DB, task *models.Task, by *models.User) *models.Subtask {
	t.Helper()

	subtask := &models.Subtask{
		TaskID:      task.ID,
		Title:       "Subtask " + uuid.NewString()[:8],
		CreatedByID: by.ID,
	}
	if err := db.Create(subtask).Error; err != nil {
		t.Fatalf("failed to create test subtask: %v", err)
	}
	return subtask
}

func CreateTestNote(t *testing.T, db *gorm.DB, project *models.Project, by *models.User) *models.Note {
	t.Helper()

	note := &models.Note{
		ProjectID:   project.ID,
		Content:     "Test note",
		CreatedByID: by.ID,
	}
	if err := db.Create(note).Error; err != nil {
		t.Fatalf("failed to create test note: %v", err)
	}
	return note
}

// CountRows counts rows of model matching the optional condition.
func CountRows(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-access-secret", time.Hour, "test-refresh-secret", 24*time.Hour)
}

// GenerateTestToken generates a valid access token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateAccessToken(user.ID, user.Email, user.Username)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}

	return token
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// ParseEnvelopeData decodes the data member of a success envelope into v.
func ParseEnvelopeData(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	ParseJSONResponse(t, rr, &envelope)
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("failed to parse envelope data: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	User       *models.User
	Token      string
}

// NewTestContext creates a complete test setup with DB, user, and token
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	user := CreateTestUser(t, db, "")
	token := GenerateTestToken(t, jwtService, user)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		User:       user,
		Token:      token,
	}
}

// Cleanup closes the test database
func (ts *TestSetup) Cleanup() {
	if ts.DB != nil {
		sqlDB, err := ts.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}
