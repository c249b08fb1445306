package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

var AvailableTaskStatuses = []TaskStatus{TaskStatusTodo, TaskStatusInProgress, TaskStatusDone}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Attachment describes a blob stored for a task. Key is the storage key used
// for deletion; URL is what clients fetch.
type Attachment struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Name     string `json:"name"`
}

// Attachments is stored as a JSON array column
type Attachments []Attachment

// Scan implements the sql.Scanner interface for reading from database
func (a *Attachments) Scan(value interface{}) error {
	if value == nil {
		*a = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("Attachments: expected []byte or string, got %T", value)
	}

	if len(data) == 0 {
		*a = nil
		return nil
	}

	var result Attachments
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("Attachments: %w", err)
	}
	*a = result
	return nil
}

// Value implements the driver.Valuer interface for writing to database
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Keys returns the storage keys of all attachments.
func (a Attachments) Keys() []string {
	keys := make([]string, 0, len(a))
	for _, att := range a {
		if att.Key != "" {
			keys = append(keys, att.Key)
		}
	}
	return keys
}

type Task struct {
	Base
	Title        string      `gorm:"not null" json:"title"`
	Description  string      `json:"description"`
	ProjectID    uuid.UUID   `gorm:"type:uuid;not null;index" json:"projectId"`
	AssignedToID *uuid.UUID  `gorm:"type:uuid;index" json:"assignedTo"`
	AssignedByID uuid.UUID   `gorm:"type:uuid;not null" json:"assignedBy"`
	Status       TaskStatus  `gorm:"type:varchar(32);not null;default:'todo'" json:"status"`
	Attachments  Attachments `gorm:"type:jsonb" json:"attachments"`

	AssignedTo *User     `gorm:"foreignKey:AssignedToID" json:"-"`
	Subtasks   []Subtask `gorm:"foreignKey:TaskID" json:"-"`
}

func (Task) TableName() string {
	return "tasks"
}

type Subtask struct {
	Base
	TaskID      uuid.UUID `gorm:"type:uuid;not null;index" json:"taskId"`
	Title       string    `gorm:"not null" json:"title"`
	IsCompleted bool      `gorm:"not null;default:false" json:"isCompleted"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null" json:"createdBy"`

	CreatedBy *User `gorm:"foreignKey:CreatedByID" json:"-"`
}

func (Subtask) TableName() string {
	return "subtasks"
}
