package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskFixture struct {
	env      *testEnv
	project  *models.Project
	lead     *models.User
	member   *models.User
	outsider *models.User
	base     string
}

func newTaskFixture(t *testing.T) *taskFixture {
	env := newTestEnv(t)
	project := testutil.CreateTestProject(t, env.DB, env.User, "Artemis")
	lead := testutil.CreateTestUser(t, env.DB, "lead")
	member := testutil.CreateTestUser(t, env.DB, "member")
	testutil.AddTestMember(t, env.DB, project, lead, models.RoleProjectAdmin)
	testutil.AddTestMember(t, env.DB, project, member, models.RoleMember)

	return &taskFixture{
		env:      env,
		project:  project,
		lead:     lead,
		member:   member,
		outsider: testutil.CreateTestUser(t, env.DB, "outsider"),
		base:     "/api/v1/tasks/" + project.ID.String(),
	}
}

func (f *taskFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.env.router.ServeHTTP(rr, req)
	return rr
}

func TestTaskHandler_Create(t *testing.T) {
	f := newTaskFixture(t)

	t.Run("json body", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{
			"title":      "Launch checklist",
			"assignedTo": f.member.ID.String(),
		}, f.env.tokenFor(t, f.lead))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var task dto.TaskDTO
		testutil.ParseEnvelopeData(t, rr, &task)
		assert.Equal(t, "Launch checklist", task.Title)
		assert.Equal(t, "todo", task.Status)
		assert.Equal(t, f.lead.ID.String(), task.AssignedBy)
		require.NotNil(t, task.AssignedTo)
		assert.Equal(t, f.member.Username, task.AssignedTo.Username)
		assert.Empty(t, task.Attachments)
	})

	t.Run("multipart with attachments", func(t *testing.T) {
		req := multipartRequest(t, "POST", f.base, map[string]string{
			"title":  "Design review",
			"status": "in_progress",
		}, []upload{
			{name: "Mockup.PNG", contentType: "image/png", content: "png-bytes"},
			{name: "notes.txt", contentType: "text/plain", content: "hello"},
		}, f.env.Token)
		rr := f.serve(req)
		testutil.AssertStatus(t, rr, http.StatusCreated)

		var task dto.TaskDTO
		testutil.ParseEnvelopeData(t, rr, &task)
		assert.Equal(t, "in_progress", task.Status)
		require.Len(t, task.Attachments, 2)
		assert.Equal(t, "Mockup.PNG", task.Attachments[0].Name)
		assert.Equal(t, "image/png", task.Attachments[0].MimeType)
		assert.Equal(t, int64(len("png-bytes")), task.Attachments[0].Size)
		assert.True(t, strings.HasPrefix(task.Attachments[0].URL, "http://api.test/images/projects/"+f.project.ID.String()+"/"))
		assert.True(t, strings.HasSuffix(task.Attachments[0].URL, ".png"))

		var stored models.Task
		require.NoError(t, f.env.DB.Where("id = ?", task.ID).First(&stored).Error)
		data, err := os.ReadFile(filepath.Join(f.env.store.Dir(), filepath.FromSlash(stored.Attachments[0].Key)))
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
	})

	t.Run("too many attachments", func(t *testing.T) {
		files := make([]upload, 11)
		for i := range files {
			files[i] = upload{name: "f.txt", contentType: "text/plain", content: "x"}
		}
		rr := f.serve(multipartRequest(t, "POST", f.base, map[string]string{"title": "Flood"}, files, f.env.Token))
		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	})

	t.Run("assignee must be a member", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{
			"title":      "Outsourced",
			"assignedTo": f.outsider.ID.String(),
		}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
		assert.Contains(t, parseError(t, rr).Errors[0], "assignedTo")
	})

	t.Run("validation", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{"status": "blocked"}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
		assert.Len(t, parseError(t, rr).Errors, 2)
	})

	t.Run("member cannot create", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{"title": "Sneaky"}, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("outsider gets not found", func(t *testing.T) {
		rr := f.env.do(t, "GET", f.base, nil, f.env.tokenFor(t, f.outsider))
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	t.Run("member lists", func(t *testing.T) {
		rr := f.env.do(t, "GET", f.base, nil, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var tasks []dto.TaskDTO
		testutil.ParseEnvelopeData(t, rr, &tasks)
		assert.Len(t, tasks, 2)
	})
}

func TestTaskHandler_Update(t *testing.T) {
	f := newTaskFixture(t)
	original := models.Attachment{URL: "http://api.test/images/old.png", Key: "projects/x/old.png", MimeType: "image/png", Size: 3, Name: "old.png"}
	task := testutil.CreateTestTask(t, f.env.DB, f.project, f.env.User, original)
	path := f.base + "/" + task.ID.String()

	t.Run("status only leaves the rest intact", func(t *testing.T) {
		rr := f.env.do(t, "PUT", path, map[string]string{"status": "done"}, f.env.tokenFor(t, f.lead))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var got models.Task
		require.NoError(t, f.env.DB.Where("id = ?", task.ID).First(&got).Error)
		assert.Equal(t, models.TaskStatusDone, got.Status)
		assert.Equal(t, task.Title, got.Title)
		assert.Equal(t, task.Description, got.Description)
		assert.Equal(t, models.Attachments{original}, got.Attachments)
		assert.Empty(t, f.env.cleaner.Keys())
	})

	t.Run("files replace attachments", func(t *testing.T) {
		req := multipartRequest(t, "PUT", path, map[string]string{"title": "Renamed"}, []upload{
			{name: "new.pdf", contentType: "application/pdf", content: "%PDF"},
		}, f.env.Token)
		rr := f.serve(req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var dtoTask dto.TaskDTO
		testutil.ParseEnvelopeData(t, rr, &dtoTask)
		assert.Equal(t, "Renamed", dtoTask.Title)
		require.Len(t, dtoTask.Attachments, 1)
		assert.Equal(t, "new.pdf", dtoTask.Attachments[0].Name)
		assert.Equal(t, []string{"projects/x/old.png"}, f.env.cleaner.Keys())
	})

	t.Run("clear assignee", func(t *testing.T) {
		rr := f.env.do(t, "PUT", path, map[string]string{"assignedTo": f.member.ID.String()}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = f.env.do(t, "PUT", path, map[string]string{"assignedTo": ""}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		var got models.Task
		require.NoError(t, f.env.DB.Where("id = ?", task.ID).First(&got).Error)
		assert.Nil(t, got.AssignedToID)
	})

	t.Run("member cannot update", func(t *testing.T) {
		rr := f.env.do(t, "PUT", path, map[string]string{"status": "todo"}, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("task from another project", func(t *testing.T) {
		other := testutil.CreateTestProject(t, f.env.DB, f.env.User, "Elsewhere")
		foreign := testutil.CreateTestTask(t, f.env.DB, other, f.env.User)

		rr := f.env.do(t, "PUT", f.base+"/"+foreign.ID.String(), map[string]string{"status": "done"}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
		assert.Equal(t, "Task not found", parseError(t, rr).Message)
	})
}

func TestTaskHandler_GetAndDelete(t *testing.T) {
	f := newTaskFixture(t)
	task := testutil.CreateTestTask(t, f.env.DB, f.project, f.env.User,
		models.Attachment{Key: "projects/a/1.png", URL: "u1"},
		models.Attachment{Key: "projects/a/2.png", URL: "u2"},
	)
	testutil.CreateTestSubtask(t, f.env.DB, task, f.lead)
	testutil.CreateTestSubtask(t, f.env.DB, task, f.lead)
	path := f.base + "/" + task.ID.String()

	rr := f.env.do(t, "GET", path, nil, f.env.tokenFor(t, f.member))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var detail dto.TaskDetailDTO
	testutil.ParseEnvelopeData(t, rr, &detail)
	require.Len(t, detail.Subtasks, 2)
	assert.Equal(t, f.lead.Username, detail.Subtasks[0].CreatedBy.Username)

	rr = f.env.do(t, "DELETE", path, nil, f.env.tokenFor(t, f.member))
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = f.env.do(t, "DELETE", path, nil, f.env.tokenFor(t, f.lead))
	testutil.AssertStatus(t, rr, http.StatusOK)

	assert.Zero(t, testutil.CountRows(t, f.env.DB, &models.Task{}, "id = ?", task.ID))
	assert.Zero(t, testutil.CountRows(t, f.env.DB, &models.Subtask{}, "task_id = ?", task.ID))
	assert.ElementsMatch(t, []string{"projects/a/1.png", "projects/a/2.png"}, f.env.cleaner.Keys())

	rr = f.env.do(t, "GET", path, nil, f.env.Token)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestTaskHandler_Subtasks(t *testing.T) {
	f := newTaskFixture(t)
	task := testutil.CreateTestTask(t, f.env.DB, f.project, f.env.User)

	var subtask dto.SubtaskDTO
	t.Run("create", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base+"/"+task.ID.String()+"/subtasks", map[string]string{"title": "Draft"}, f.env.tokenFor(t, f.lead))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		testutil.ParseEnvelopeData(t, rr, &subtask)
		assert.Equal(t, "Draft", subtask.Title)
		assert.False(t, subtask.IsCompleted)
		assert.Equal(t, f.lead.Username, subtask.CreatedBy.Username)
	})

	t.Run("member cannot create", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base+"/"+task.ID.String()+"/subtasks", map[string]string{"title": "Nope"}, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("parent must be in the project", func(t *testing.T) {
		other := testutil.CreateTestProject(t, f.env.DB, f.env.User, "Other")
		foreign := testutil.CreateTestTask(t, f.env.DB, other, f.env.User)

		rr := f.env.do(t, "POST", f.base+"/"+foreign.ID.String()+"/subtasks", map[string]string{"title": "Cross"}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)

		st := testutil.CreateTestSubtask(t, f.env.DB, foreign, f.env.User)
		rr = f.env.do(t, "PUT", f.base+"/st/"+st.ID.String(), map[string]bool{"isCompleted": true}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})

	stPath := func() string { return f.base + "/st/" + subtask.ID }

	t.Run("member toggles completion", func(t *testing.T) {
		rr := f.env.do(t, "PUT", stPath(), map[string]bool{"isCompleted": true}, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var got dto.SubtaskDTO
		testutil.ParseEnvelopeData(t, rr, &got)
		assert.True(t, got.IsCompleted)
		assert.Equal(t, "Draft", got.Title)
	})

	t.Run("member cannot rename", func(t *testing.T) {
		rr := f.env.do(t, "PUT", stPath(), map[string]string{"title": "Mine now"}, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	t.Run("lead renames", func(t *testing.T) {
		rr := f.env.do(t, "PUT", stPath(), map[string]string{"title": "Final draft"}, f.env.tokenFor(t, f.lead))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var got dto.SubtaskDTO
		testutil.ParseEnvelopeData(t, rr, &got)
		assert.Equal(t, "Final draft", got.Title)
		assert.True(t, got.IsCompleted)
	})

	t.Run("delete", func(t *testing.T) {
		rr := f.env.do(t, "DELETE", stPath(), nil, f.env.tokenFor(t, f.member))
		testutil.AssertStatus(t, rr, http.StatusForbidden)

		rr = f.env.do(t, "DELETE", stPath(), nil, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusOK)

		rr = f.env.do(t, "DELETE", stPath(), nil, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusNotFound)
	})
}

func TestHandlers_FailedReloadAfterCreate(t *testing.T) {
	f := newTaskFixture(t)
	task := testutil.CreateTestTask(t, f.env.DB, f.project, f.env.User)
	leadToken := f.env.tokenFor(t, f.lead)
	notes := "/api/v1/notes/" + f.project.ID.String()

	failReadsFrom(t, f.env.DB, "users")

	t.Run("subtask", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base+"/"+task.ID.String()+"/subtasks", map[string]string{"title": "Draft"}, leadToken)
		testutil.AssertStatus(t, rr, http.StatusInternalServerError)
		assert.Equal(t, "Internal server error", parseError(t, rr).Message)
	})

	t.Run("task with assignee", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{
			"title":      "Assigned",
			"assignedTo": f.member.ID.String(),
		}, leadToken)
		testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	})

	t.Run("note", func(t *testing.T) {
		rr := f.env.do(t, "POST", notes, map[string]string{"content": "Standup at nine"}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	})
}

func TestTaskHandler_TitleLengthCountsCharacters(t *testing.T) {
	f := newTaskFixture(t)
	token := f.env.tokenFor(t, f.lead)

	t.Run("multibyte title at the limit", func(t *testing.T) {
		title := strings.Repeat("é", 200)
		rr := f.env.do(t, "POST", f.base, map[string]string{"title": title}, token)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})

	t.Run("multibyte title over the limit", func(t *testing.T) {
		rr := f.env.do(t, "POST", f.base, map[string]string{"title": strings.Repeat("日", 201)}, token)
		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
		errs := parseError(t, rr).Errors
		require.Len(t, errs, 1)
		assert.Equal(t, "Title must be at most 200 characters", errs[0]["title"])
	})

	t.Run("multibyte project name at the limit", func(t *testing.T) {
		rr := f.env.do(t, "POST", "/api/v1/projects", map[string]string{"name": strings.Repeat("ü", 100)}, f.env.Token)
		testutil.AssertStatus(t, rr, http.StatusCreated)
	})
}
