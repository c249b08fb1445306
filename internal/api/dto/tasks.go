package dto

import (
	"time"

	"github.com/hugh/projectcamp/internal/database/models"
)

type AttachmentDTO struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Name     string `json:"name"`
}

type TaskDTO struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	AssignedTo  *UserSummary    `json:"assignedTo"`
	AssignedBy  string          `json:"assignedBy"`
	Attachments []AttachmentDTO `json:"attachments"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// TaskDetailDTO is a task with its subtasks.
type TaskDetailDTO struct {
	TaskDTO
	Subtasks []SubtaskDTO `json:"subtasks"`
}

func NewTaskDTO(t *models.Task) TaskDTO {
	out := TaskDTO{
		ID:          t.ID.String(),
		ProjectID:   t.ProjectID.String(),
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		AssignedTo:  NewUserSummary(t.AssignedTo),
		AssignedBy:  t.AssignedByID.String(),
		Attachments: make([]AttachmentDTO, len(t.Attachments)),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if out.AssignedTo == nil && t.AssignedToID != nil {
		out.AssignedTo = &UserSummary{ID: t.AssignedToID.String()}
	}
	for i, a := range t.Attachments {
		out.Attachments[i] = AttachmentDTO{URL: a.URL, MimeType: a.MimeType, Size: a.Size, Name: a.Name}
	}
	return out
}

func NewTaskDTOs(tasks []models.Task) []TaskDTO {
	out := make([]TaskDTO, len(tasks))
	for i := range tasks {
		out[i] = NewTaskDTO(&tasks[i])
	}
	return out
}

func NewTaskDetailDTO(t *models.Task) TaskDetailDTO {
	subtasks := make([]SubtaskDTO, len(t.Subtasks))
	for i := range t.Subtasks {
		subtasks[i] = NewSubtaskDTO(&t.Subtasks[i])
	}
	return TaskDetailDTO{TaskDTO: NewTaskDTO(t), Subtasks: subtasks}
}

type SubtaskDTO struct {
	ID          string       `json:"id"`
	TaskID      string       `json:"taskId"`
	Title       string       `json:"title"`
	IsCompleted bool         `json:"isCompleted"`
	CreatedBy   *UserSummary `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func NewSubtaskDTO(s *models.Subtask) SubtaskDTO {
	createdBy := NewUserSummary(s.CreatedBy)
	if createdBy == nil {
		createdBy = &UserSummary{ID: s.CreatedByID.String()}
	}
	return SubtaskDTO{
		ID:          s.ID.String(),
		TaskID:      s.TaskID.String(),
		Title:       s.Title,
		IsCompleted: s.IsCompleted,
		CreatedBy:   createdBy,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

type NoteDTO struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"projectId"`
	Content   string       `json:"content"`
	CreatedBy *UserSummary `json:"createdBy"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func NewNoteDTO(n *models.Note) NoteDTO {
	createdBy := NewUserSummary(n.CreatedBy)
	if createdBy == nil {
		createdBy = &UserSummary{ID: n.CreatedByID.String()}
	}
	return NoteDTO{
		ID:        n.ID.String(),
		ProjectID: n.ProjectID.String(),
		Content:   n.Content,
		CreatedBy: createdBy,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func NewNoteDTOs(notes []models.Note) []NoteDTO {
	out := make([]NoteDTO, len(notes))
	for i := range notes {
		out[i] = NewNoteDTO(&notes[i])
	}
	return out
}
