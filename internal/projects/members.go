package projects

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListMembers returns the project's memberships with user details, oldest
// first.
func (s *Service) ListMembers(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMember, error) {
	var members []models.ProjectMember
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, apperr.FromDB(err, "")
	}
	return members, nil
}

// AddOrUpdateMember gives the user with email the role in the project,
// inserting or updating the single (user, project) membership row. Calling
// it twice with the same arguments leaves exactly one row. created reports
// whether the row was inserted.
func (s *Service) AddOrUpdateMember(ctx context.Context, projectID uuid.UUID, email string, role models.Role) (member *models.ProjectMember, created bool, err error) {
	if !role.Valid() {
		return nil, false, ErrInvalidRole
	}

	var row models.ProjectMember
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}

		var user models.User
		if err := tx.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		current, err := findMember(tx, projectID, user.ID)
		if err != nil && !errors.Is(err, ErrMemberNotFound) {
			return err
		}
		if current != nil {
			if err := guardLastAdmin(tx, projectID, current.Role, &role); err != nil {
				return err
			}
		}
		created = current == nil

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "updated_at"}),
		}).Create(&models.ProjectMember{
			UserID:    user.ID,
			ProjectID: projectID,
			Role:      role,
		}).Error; err != nil {
			return err
		}

		return tx.Preload("User").
			Where("user_id = ? AND project_id = ?", user.ID, projectID).
			First(&row).Error
	})
	if err != nil {
		return nil, false, apperr.FromDB(err, ErrMemberNotFound.Message)
	}

	s.logger.InfoContext(ctx, "project member upserted",
		"project_id", projectID,
		"user_id", row.UserID,
		"role", role,
		"created", created,
	)
	return &row, created, nil
}

// ChangeRole updates an existing member's role.
func (s *Service) ChangeRole(ctx context.Context, projectID, userID uuid.UUID, role models.Role) (*models.ProjectMember, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var member models.ProjectMember
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}

		current, err := findMember(tx, projectID, userID)
		if err != nil {
			return err
		}
		if err := guardLastAdmin(tx, projectID, current.Role, &role); err != nil {
			return err
		}

		if err := tx.Model(&models.ProjectMember{}).
			Where("id = ?", current.ID).
			Updates(map[string]interface{}{"role": role}).Error; err != nil {
			return err
		}

		return tx.Preload("User").Where("id = ?", current.ID).First(&member).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, ErrMemberNotFound.Message)
	}
	return &member, nil
}

// RemoveMember deletes a membership. The user's authored tasks, notes and
// subtasks stay with the project.
func (s *Service) RemoveMember(ctx context.Context, projectID, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockProject(tx, projectID); err != nil {
			return err
		}

		current, err := findMember(tx, projectID, userID)
		if err != nil {
			return err
		}
		if err := guardLastAdmin(tx, projectID, current.Role, nil); err != nil {
			return err
		}

		return tx.Where("id = ?", current.ID).Delete(&models.ProjectMember{}).Error
	})
	if err != nil {
		return apperr.FromDB(err, ErrMemberNotFound.Message)
	}

	s.logger.InfoContext(ctx, "project member removed", "project_id", projectID, "user_id", userID)
	return nil
}

func findMember(tx *gorm.DB, projectID, userID uuid.UUID) (*models.ProjectMember, error) {
	var member models.ProjectMember
	err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return &member, nil
}

// guardLastAdmin rejects a change that would leave the project without an
// admin. next is the member's new role, or nil when the member is removed.
// It must run inside the transaction holding the project lock.
func guardLastAdmin(tx *gorm.DB, projectID uuid.UUID, current models.Role, next *models.Role) error {
	if current != models.RoleAdmin {
		return nil
	}
	if next != nil && *next == models.RoleAdmin {
		return nil
	}

	var admins int64
	if err := tx.Model(&models.ProjectMember{}).
		Where("project_id = ? AND role = ?", projectID, models.RoleAdmin).
		Count(&admins).Error; err != nil {
		return err
	}
	if admins <= 1 {
		return ErrLastAdmin
	}
	return nil
}
