package projects

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
)

// CascadeResult counts the rows removed by a project deletion.
type CascadeResult struct {
	Projects    int64
	Members     int64
	Tasks       int64
	Subtasks    int64
	Notes       int64
	Attachments int
}

// Delete removes the project and every membership, task, subtask and note
// that belongs to it in a single transaction, children before parents.
// Deleting a project that does not exist succeeds with a zero result.
//
// Attachment blobs are handed to the cleaner after the commit; a cleanup
// failure is logged and does not undo the deletion.
func (s *Service) Delete(ctx context.Context, projectID uuid.UUID) (CascadeResult, error) {
	var (
		result CascadeResult
		keys   []string
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tasks []models.Task
		if err := tx.Select("id", "attachments").Where("project_id = ?", projectID).Find(&tasks).Error; err != nil {
			return err
		}
		taskIDs := make([]uuid.UUID, 0, len(tasks))
		for _, t := range tasks {
			taskIDs = append(taskIDs, t.ID)
			keys = append(keys, t.Attachments.Keys()...)
		}

		if len(taskIDs) > 0 {
			res := tx.Where("task_id IN ?", taskIDs).Delete(&models.Subtask{})
			if res.Error != nil {
				return res.Error
			}
			result.Subtasks = res.RowsAffected
		}

		steps := []struct {
			model interface{}
			query string
			count *int64
		}{
			{&models.Task{}, "project_id = ?", &result.Tasks},
			{&models.Note{}, "project_id = ?", &result.Notes},
			{&models.ProjectMember{}, "project_id = ?", &result.Members},
			{&models.Project{}, "id = ?", &result.Projects},
		}
		for _, step := range steps {
			res := tx.Where(step.query, projectID).Delete(step.model)
			if res.Error != nil {
				return res.Error
			}
			*step.count = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return CascadeResult{}, apperr.FromDB(err, "")
	}

	result.Attachments = len(keys)
	s.cleanup(ctx, projectID, keys)

	if result.Projects > 0 {
		s.logger.InfoContext(ctx, "project deleted",
			"project_id", projectID,
			"members", result.Members,
			"tasks", result.Tasks,
			"subtasks", result.Subtasks,
			"notes", result.Notes,
			"attachments", result.Attachments,
		)
	}
	return result, nil
}

func (s *Service) cleanup(ctx context.Context, projectID uuid.UUID, keys []string) {
	if len(keys) == 0 || s.cleaner == nil {
		return
	}
	if err := s.cleaner.DeleteAttachments(ctx, projectID, keys); err != nil {
		s.logger.WarnContext(ctx, "failed to schedule attachment cleanup",
			"project_id", projectID,
			"keys", len(keys),
			"error", err,
		)
	}
}
