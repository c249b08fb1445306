package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/api/validation"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"github.com/hugh/projectcamp/internal/projects"
	"github.com/hugh/projectcamp/internal/storage"
	"gorm.io/gorm"
)

const (
	MaxAttachments    = 10
	maxUploadBytes    = 50 << 20
	attachmentsField  = "attachments"
	maxTitleLength    = 200
	maxDescriptionLen = 5000
)

var (
	ErrTaskNotFound    = apperr.NewNotFound("Task not found")
	ErrSubtaskNotFound = apperr.NewNotFound("Subtask not found")
	errAssigneeInvalid = apperr.Field("assignedTo", "Assignee must be a member of the project")
)

type TaskHandler struct {
	db      *gorm.DB
	store   storage.Store
	cleaner projects.BlobCleaner
	logger  *slog.Logger
}

func NewTaskHandler(db *gorm.DB, store storage.Store, cleaner projects.BlobCleaner, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{db: db, store: store, cleaner: cleaner, logger: logger}
}

// TaskRequest carries task fields from either a JSON or a multipart body.
// Nil fields were not sent.
type TaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	AssignedTo  *string `json:"assignedTo"`
	Status      *string `json:"status"`
}

func (r TaskRequest) Validate(creating bool) map[string]string {
	errors := make(map[string]string)
	if r.Title != nil || creating {
		switch title := strings.TrimSpace(deref(r.Title)); {
		case title == "":
			errors["title"] = "Title is required"
		case validation.TooLong(title, maxTitleLength):
			errors["title"] = "Title must be at most 200 characters"
		}
	}
	if r.Description != nil && validation.TooLong(*r.Description, maxDescriptionLen) {
		errors["description"] = "Description must be at most 5000 characters"
	}
	if r.AssignedTo != nil && *r.AssignedTo != "" {
		if !validation.IsValidUUID(*r.AssignedTo) {
			errors["assignedTo"] = "Assignee must be a user id"
		}
	}
	if r.Status != nil && !models.TaskStatus(*r.Status).Valid() {
		errors["status"] = "Status must be one of todo, in_progress, done"
	}
	return errors
}

type SubtaskRequest struct {
	Title       *string `json:"title"`
	IsCompleted *bool   `json:"isCompleted"`
}

func (r SubtaskRequest) Validate(creating bool) map[string]string {
	errors := make(map[string]string)
	if r.Title != nil || creating {
		switch title := strings.TrimSpace(deref(r.Title)); {
		case title == "":
			errors["title"] = "Title is required"
		case validation.TooLong(title, maxTitleLength):
			errors["title"] = "Title must be at most 200 characters"
		}
	}
	return errors
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List handles GET /api/v1/tasks/{projectId}
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	var tasks []models.Task
	if err := h.db.WithContext(r.Context()).
		Preload("AssignedTo").
		Where("project_id = ?", grant.ProjectID).
		Order("created_at DESC").
		Find(&tasks).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewTaskDTOs(tasks), "Tasks fetched successfully")
}

// Get handles GET /api/v1/tasks/{projectId}/{taskId}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	taskID, err := uuidParam(r, "taskId", "task")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var task models.Task
	if err := h.db.WithContext(r.Context()).
		Preload("AssignedTo").
		Preload("Subtasks", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Subtasks.CreatedBy").
		Where("id = ? AND project_id = ?", taskID, grant.ProjectID).
		First(&task).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrTaskNotFound.Message))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewTaskDetailDTO(&task), "Task fetched successfully")
}

// Create handles POST /api/v1/tasks/{projectId}. The body is either JSON or
// multipart/form-data with up to MaxAttachments files under "attachments".
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	req, files, err := parseTaskRequest(w, r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate(true)); err != nil {
		response.Error(w, r, err)
		return
	}

	assignee, err := h.resolveAssignee(r.Context(), grant.ProjectID, req.AssignedTo)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	task := models.Task{
		ProjectID:    grant.ProjectID,
		Title:        validation.SanitizeString(*req.Title),
		Description:  validation.SanitizeString(deref(req.Description)),
		AssignedToID: assignee,
		AssignedByID: grant.UserID,
		Status:       models.TaskStatusTodo,
	}
	if req.Status != nil {
		task.Status = models.TaskStatus(*req.Status)
	}

	attachments, err := h.storeFiles(r.Context(), grant.ProjectID, files)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	task.Attachments = attachments

	if err := h.db.WithContext(r.Context()).Create(&task).Error; err != nil {
		h.discard(r.Context(), grant.ProjectID, attachments)
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}

	if err := h.reload(r.Context(), &task); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, dto.NewTaskDTO(&task), "Task created successfully")
}

// Update handles PUT /api/v1/tasks/{projectId}/{taskId}. Only the fields
// sent are changed. Sending files replaces the attachment list and queues
// the old blobs for deletion; sending none leaves attachments as they are.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	taskID, err := uuidParam(r, "taskId", "task")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var task models.Task
	if err := h.db.WithContext(r.Context()).
		Where("id = ? AND project_id = ?", taskID, grant.ProjectID).
		First(&task).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrTaskNotFound.Message))
		return
	}

	req, files, err := parseTaskRequest(w, r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate(false)); err != nil {
		response.Error(w, r, err)
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.Description != nil {
		updates["description"] = validation.SanitizeString(*req.Description)
	}
	if req.Status != nil {
		updates["status"] = models.TaskStatus(*req.Status)
	}
	if req.AssignedTo != nil {
		assignee, err := h.resolveAssignee(r.Context(), grant.ProjectID, req.AssignedTo)
		if err != nil {
			response.Error(w, r, err)
			return
		}
		updates["assigned_to_id"] = assignee
	}

	var stored, replaced models.Attachments
	if len(files) > 0 {
		stored, err = h.storeFiles(r.Context(), grant.ProjectID, files)
		if err != nil {
			response.Error(w, r, err)
			return
		}
		replaced = task.Attachments
		updates["attachments"] = stored
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(&task).Updates(updates).Error; err != nil {
			h.discard(r.Context(), grant.ProjectID, stored)
			response.Error(w, r, apperr.FromDB(err, ErrTaskNotFound.Message))
			return
		}
	}

	h.discard(r.Context(), grant.ProjectID, replaced)

	if err := h.db.WithContext(r.Context()).Where("id = ?", task.ID).First(&task).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrTaskNotFound.Message))
		return
	}
	if err := h.reload(r.Context(), &task); err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewTaskDTO(&task), "Task updated successfully")
}

// Delete handles DELETE /api/v1/tasks/{projectId}/{taskId}. Subtasks go with
// the task; attachment blobs are queued for deletion afterwards.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	taskID, err := uuidParam(r, "taskId", "task")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var task models.Task
	err = h.db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND project_id = ?", taskID, grant.ProjectID).First(&task).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Subtask{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", task.ID).Delete(&models.Task{}).Error
	})
	if err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrTaskNotFound.Message))
		return
	}

	h.discard(r.Context(), grant.ProjectID, task.Attachments)
	response.JSON(w, http.StatusOK, dto.NewTaskDTO(&task), "Task deleted successfully")
}

// CreateSubtask handles POST /api/v1/tasks/{projectId}/{taskId}/subtasks
func (h *TaskHandler) CreateSubtask(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	taskID, err := uuidParam(r, "taskId", "task")
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var count int64
	if err := h.db.WithContext(r.Context()).Model(&models.Task{}).
		Where("id = ? AND project_id = ?", taskID, grant.ProjectID).
		Count(&count).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}
	if count == 0 {
		response.Error(w, r, ErrTaskNotFound)
		return
	}

	var req SubtaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate(true)); err != nil {
		response.Error(w, r, err)
		return
	}

	subtask := models.Subtask{
		TaskID:      taskID,
		Title:       validation.SanitizeString(*req.Title),
		CreatedByID: grant.UserID,
	}
	if req.IsCompleted != nil {
		subtask.IsCompleted = *req.IsCompleted
	}
	if err := h.db.WithContext(r.Context()).Create(&subtask).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}

	if err := h.db.WithContext(r.Context()).Preload("CreatedBy").Where("id = ?", subtask.ID).First(&subtask).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrSubtaskNotFound.Message))
		return
	}
	response.JSON(w, http.StatusCreated, dto.NewSubtaskDTO(&subtask), "Subtask created successfully")
}

// UpdateSubtask handles PUT /api/v1/tasks/{projectId}/st/{subTaskId}. Any
// member may mark a subtask done or not done; renaming it takes admin or
// project_admin.
func (h *TaskHandler) UpdateSubtask(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	subtask, err := h.findSubtask(r, grant.ProjectID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req SubtaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate(false)); err != nil {
		response.Error(w, r, err)
		return
	}
	if req.Title != nil && !grant.Allows(models.RoleAdmin, models.RoleProjectAdmin) {
		response.Error(w, r, apperr.NewForbidden("Only project admins can rename subtasks"))
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		updates["title"] = validation.SanitizeString(*req.Title)
	}
	if req.IsCompleted != nil {
		updates["is_completed"] = *req.IsCompleted
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(r.Context()).Model(subtask).Updates(updates).Error; err != nil {
			response.Error(w, r, apperr.FromDB(err, ErrSubtaskNotFound.Message))
			return
		}
	}

	if err := h.db.WithContext(r.Context()).Preload("CreatedBy").Where("id = ?", subtask.ID).First(subtask).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrSubtaskNotFound.Message))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewSubtaskDTO(subtask), "Subtask updated successfully")
}

// DeleteSubtask handles DELETE /api/v1/tasks/{projectId}/st/{subTaskId}
func (h *TaskHandler) DeleteSubtask(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	subtask, err := h.findSubtask(r, grant.ProjectID)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.db.WithContext(r.Context()).Where("id = ?", subtask.ID).Delete(&models.Subtask{}).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrSubtaskNotFound.Message))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewSubtaskDTO(subtask), "Subtask deleted successfully")
}

// findSubtask loads the subtask named in the URL, requiring its parent task
// to belong to projectID.
func (h *TaskHandler) findSubtask(r *http.Request, projectID uuid.UUID) (*models.Subtask, error) {
	subtaskID, err := uuidParam(r, "subTaskId", "subtask")
	if err != nil {
		return nil, err
	}

	var subtask models.Subtask
	if err := h.db.WithContext(r.Context()).
		Joins("JOIN tasks ON tasks.id = subtasks.task_id").
		Where("subtasks.id = ? AND tasks.project_id = ?", subtaskID, projectID).
		First(&subtask).Error; err != nil {
		return nil, apperr.FromDB(err, ErrSubtaskNotFound.Message)
	}
	return &subtask, nil
}

// resolveAssignee parses an assignee id and checks project membership. An
// empty value clears the assignee.
func (h *TaskHandler) resolveAssignee(ctx context.Context, projectID uuid.UUID, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	userID, err := uuid.Parse(*raw)
	if err != nil {
		return nil, errAssigneeInvalid
	}

	var count int64
	if err := h.db.WithContext(ctx).Model(&models.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Count(&count).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	if count == 0 {
		return nil, errAssigneeInvalid
	}
	return &userID, nil
}

// storeFiles uploads every file. If one fails, the ones already stored are
// queued for deletion and the error is returned.
func (h *TaskHandler) storeFiles(ctx context.Context, projectID uuid.UUID, files []*multipart.FileHeader) (models.Attachments, error) {
	attachments := make(models.Attachments, 0, len(files))
	for _, fh := range files {
		att, err := h.storeFile(ctx, projectID, fh)
		if err != nil {
			h.discard(ctx, projectID, attachments)
			return nil, apperr.Wrap(apperr.Internal, "storing attachment", err)
		}
		attachments = append(attachments, att)
	}
	return attachments, nil
}

func (h *TaskHandler) storeFile(ctx context.Context, projectID uuid.UUID, fh *multipart.FileHeader) (models.Attachment, error) {
	f, err := fh.Open()
	if err != nil {
		return models.Attachment{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := storage.NewKey(projectID, fh.Filename)
	url, err := h.store.Put(ctx, key, f, fh.Size, contentType)
	if err != nil {
		return models.Attachment{}, err
	}
	return models.Attachment{
		URL:      url,
		Key:      key,
		MimeType: contentType,
		Size:     fh.Size,
		Name:     validation.TruncateString(validation.SanitizeString(fh.Filename), 255),
	}, nil
}

func (h *TaskHandler) discard(ctx context.Context, projectID uuid.UUID, attachments models.Attachments) {
	keys := attachments.Keys()
	if len(keys) == 0 || h.cleaner == nil {
		return
	}
	if err := h.cleaner.DeleteAttachments(ctx, projectID, keys); err != nil {
		h.logger.WarnContext(ctx, "failed to schedule attachment cleanup",
			"project_id", projectID,
			"keys", len(keys),
			"error", err,
		)
	}
}

// reload fills in the assignee after a write.
func (h *TaskHandler) reload(ctx context.Context, task *models.Task) error {
	task.AssignedTo = nil
	if task.AssignedToID == nil {
		return nil
	}
	var user models.User
	if err := h.db.WithContext(ctx).Where("id = ?", *task.AssignedToID).First(&user).Error; err != nil {
		return apperr.Wrap(apperr.Internal, "loading assignee", err)
	}
	task.AssignedTo = &user
	return nil
}

// parseTaskRequest reads a task body sent as JSON or as a multipart form.
func parseTaskRequest(w http.ResponseWriter, r *http.Request) (TaskRequest, []*multipart.FileHeader, error) {
	var req TaskRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := decodeJSON(w, r, &req)
		return req, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, nil, apperr.NewInvalidArgument("Upload is too large")
		}
		return req, nil, errInvalidBody
	}

	form := r.MultipartForm
	field := func(name string) *string {
		if values, ok := form.Value[name]; ok && len(values) > 0 {
			v := values[0]
			return &v
		}
		return nil
	}
	req.Title = field("title")
	req.Description = field("description")
	req.AssignedTo = field("assignedTo")
	req.Status = field("status")

	files := form.File[attachmentsField]
	if len(files) > MaxAttachments {
		return req, nil, apperr.Field(attachmentsField, fmt.Sprintf("At most %d attachments are allowed", MaxAttachments))
	}
	return req, files, nil
}
