// Package projects owns the project membership lifecycle: creating a project
// together with its first admin, changing membership, and deleting a project
// with everything that hangs off it.
package projects

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProjectNotFound = apperr.NewNotFound("Project not found")
	ErrUserNotFound    = apperr.NewNotFound("User not found")
	ErrMemberNotFound  = apperr.NewNotFound("Member not found")
	ErrNameTaken       = apperr.NewConflict("Project with this name already exists")
	ErrLastAdmin       = apperr.NewConflict("Project must keep at least one admin")
	ErrInvalidRole     = apperr.Field("role", "Role is invalid")
)

// BlobCleaner removes stored attachment blobs. Calls are best effort and must
// tolerate keys that no longer exist.
type BlobCleaner interface {
	DeleteAttachments(ctx context.Context, projectID uuid.UUID, keys []string) error
}

type Service struct {
	db      *gorm.DB
	cleaner BlobCleaner
	logger  *slog.Logger
}

func NewService(db *gorm.DB, cleaner BlobCleaner, logger *slog.Logger) *Service {
	return &Service{db: db, cleaner: cleaner, logger: logger}
}

type CreateInput struct {
	Name        string
	Description string
	CreatorID   uuid.UUID
}

type UpdateInput struct {
	Name        *string
	Description *string
}

// Summary is a project as seen by one of its members.
type Summary struct {
	Project     models.Project
	Role        models.Role
	MemberCount int64
}

// Create writes the project and the creator's admin membership in one
// transaction. Either both rows exist afterwards or neither does.
func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Project, error) {
	project := models.Project{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		CreatedByID: input.CreatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, project.Name, uuid.Nil); err != nil {
			return err
		}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		return tx.Create(&models.ProjectMember{
			UserID:    input.CreatorID,
			ProjectID: project.ID,
			Role:      models.RoleAdmin,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameTaken
		}
		return nil, apperr.FromDB(err, "")
	}

	s.logger.InfoContext(ctx, "project created", "project_id", project.ID, "created_by", input.CreatorID)
	return &project, nil
}

func (s *Service) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).Where("id = ?", projectID).First(&project).Error; err != nil {
		return nil, apperr.FromDB(err, ErrProjectNotFound.Message)
	}
	return &project, nil
}

// Update applies only the fields that are set.
func (s *Service) Update(ctx context.Context, projectID uuid.UUID, input UpdateInput) (*models.Project, error) {
	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}

	var project models.Project
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", projectID).First(&project).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if name, ok := updates["name"].(string); ok && name != project.Name {
			if err := ensureNameFree(tx, name, projectID); err != nil {
				return err
			}
		}
		if err := tx.Model(&project).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", projectID).First(&project).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameTaken
		}
		return nil, apperr.FromDB(err, ErrProjectNotFound.Message)
	}
	return &project, nil
}

// ListForUser returns every project userID belongs to with the caller's role
// and the member count, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	db := s.db.WithContext(ctx)

	var memberships []models.ProjectMember
	if err := db.Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	if len(memberships) == 0 {
		return []Summary{}, nil
	}

	roles := make(map[uuid.UUID]models.Role, len(memberships))
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		roles[m.ProjectID] = m.Role
		ids = append(ids, m.ProjectID)
	}

	var projects []models.Project
	if err := db.Where("id IN ?", ids).Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}

	var counts []struct {
		ProjectID uuid.UUID
		Count     int64
	}
	if err := db.Model(&models.ProjectMember{}).
		Select("project_id, COUNT(*) AS count").
		Where("project_id IN ?", ids).
		Group("project_id").
		Scan(&counts).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	countByProject := make(map[uuid.UUID]int64, len(counts))
	for _, c := range counts {
		countByProject[c.ProjectID] = c.Count
	}

	out := make([]Summary, 0, len(projects))
	for _, p := range projects {
		out = append(out, Summary{Project: p, Role: roles[p.ID], MemberCount: countByProject[p.ID]})
	}
	return out, nil
}

// MemberCount returns the number of memberships of a project.
func (s *Service) MemberCount(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ProjectMember{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, apperr.FromDB(err, "")
}

func ensureNameFree(tx *gorm.DB, name string, except uuid.UUID) error {
	q := tx.Model(&models.Project{}).Where("name = ?", name)
	if except != uuid.Nil {
		q = q.Where("id <> ?", except)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrNameTaken
	}
	return nil
}

// lockProject loads the project row for update so concurrent membership
// changes on the same project serialize behind it.
func lockProject(tx *gorm.DB, projectID uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", projectID).
		First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}
