package handlers

import (
	"net/http"
	"strings"

	"github.com/hugh/projectcamp/internal/api/dto"
	"github.com/hugh/projectcamp/internal/api/middleware"
	"github.com/hugh/projectcamp/internal/api/response"
	"github.com/hugh/projectcamp/internal/api/validation"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
)

const maxNoteLength = 10000

var ErrNoteNotFound = apperr.NewNotFound("Note not found")

type NoteHandler struct {
	db *gorm.DB
}

func NewNoteHandler(db *gorm.DB) *NoteHandler {
	return &NoteHandler{db: db}
}

type NoteRequest struct {
	Content string `json:"content"`
}

func (r NoteRequest) Validate() map[string]string {
	errors := make(map[string]string)
	content := strings.TrimSpace(r.Content)
	if content == "" {
		errors["content"] = "Content is required"
	} else if validation.TooLong(content, maxNoteLength) {
		errors["content"] = "Content must be at most 10000 characters"
	}
	return errors
}

// List handles GET /api/v1/notes/{projectId}
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	var notes []models.Note
	if err := h.db.WithContext(r.Context()).
		Preload("CreatedBy").
		Where("project_id = ?", grant.ProjectID).
		Order("created_at DESC").
		Find(&notes).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewNoteDTOs(notes), "Notes fetched successfully")
}

// Get handles GET /api/v1/notes/{projectId}/n/{noteId}
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	note, err := h.find(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, dto.NewNoteDTO(note), "Note fetched successfully")
}

// Create handles POST /api/v1/notes/{projectId}
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	grant := middleware.GetGrant(r.Context())

	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	note := models.Note{
		ProjectID:   grant.ProjectID,
		Content:     validation.SanitizeString(req.Content),
		CreatedByID: grant.UserID,
	}
	if err := h.db.WithContext(r.Context()).Create(&note).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ""))
		return
	}

	if err := h.db.WithContext(r.Context()).Preload("CreatedBy").Where("id = ?", note.ID).First(&note).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrNoteNotFound.Message))
		return
	}
	response.JSON(w, http.StatusCreated, dto.NewNoteDTO(&note), "Note created successfully")
}

// Update handles PUT /api/v1/notes/{projectId}/n/{noteId}
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	note, err := h.find(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, r, err)
		return
	}
	if err := validated(req.Validate()); err != nil {
		response.Error(w, r, err)
		return
	}

	content := validation.SanitizeString(req.Content)
	if err := h.db.WithContext(r.Context()).Model(note).Update("content", content).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrNoteNotFound.Message))
		return
	}
	note.Content = content
	response.JSON(w, http.StatusOK, dto.NewNoteDTO(note), "Note updated successfully")
}

// Delete handles DELETE /api/v1/notes/{projectId}/n/{noteId}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	note, err := h.find(r)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	if err := h.db.WithContext(r.Context()).Where("id = ?", note.ID).Delete(&models.Note{}).Error; err != nil {
		response.Error(w, r, apperr.FromDB(err, ErrNoteNotFound.Message))
		return
	}
	response.JSON(w, http.StatusOK, dto.NewNoteDTO(note), "Note deleted successfully")
}

func (h *NoteHandler) find(r *http.Request) (*models.Note, error) {
	grant := middleware.GetGrant(r.Context())

	noteID, err := uuidParam(r, "noteId", "note")
	if err != nil {
		return nil, err
	}

	var note models.Note
	if err := h.db.WithContext(r.Context()).
		Preload("CreatedBy").
		Where("id = ? AND project_id = ?", noteID, grant.ProjectID).
		First(&note).Error; err != nil {
		return nil, apperr.FromDB(err, ErrNoteNotFound.Message)
	}
	return &note, nil
}
