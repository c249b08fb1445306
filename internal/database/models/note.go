package models

import "github.com/google/uuid"

type Note struct {
	Base
	ProjectID   uuid.UUID `gorm:"type:uuid;not null;index" json:"projectId"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null" json:"createdBy"`

	CreatedBy *User `gorm:"foreignKey:CreatedByID" json:"-"`
}

func (Note) TableName() string {
	return "notes"
}
