package projects

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/projectcamp/internal/apperr"
	"github.com/hugh/projectcamp/internal/database/models"
	"gorm.io/gorm"
)

// SweepResult counts orphaned rows removed by SweepOrphans.
type SweepResult struct {
	Members  int64
	Tasks    int64
	Subtasks int64
	Notes    int64
}

func (r SweepResult) Total() int64 {
	return r.Members + r.Tasks + r.Subtasks + r.Notes
}

// SweepOrphans deletes rows whose parent no longer exists: memberships, tasks
// and notes without a project, then subtasks without a task. Each step
// commits on its own, so a run interrupted halfway is finished by the next.
func (s *Service) SweepOrphans(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	db := s.db.WithContext(ctx)
	projectIDs := func() *gorm.DB { return db.Model(&models.Project{}).Select("id") }

	var orphanTasks []models.Task
	if err := db.Select("id", "project_id", "attachments").
		Where("project_id NOT IN (?)", projectIDs()).
		Find(&orphanTasks).Error; err != nil {
		return result, apperr.FromDB(err, "")
	}
	keysByProject := map[uuid.UUID][]string{}
	for _, t := range orphanTasks {
		keysByProject[t.ProjectID] = append(keysByProject[t.ProjectID], t.Attachments.Keys()...)
	}

	steps := []struct {
		model interface{}
		count *int64
	}{
		{&models.ProjectMember{}, &result.Members},
		{&models.Task{}, &result.Tasks},
		{&models.Note{}, &result.Notes},
	}
	for _, step := range steps {
		res := db.Where("project_id NOT IN (?)", projectIDs()).Delete(step.model)
		if res.Error != nil {
			return result, apperr.FromDB(res.Error, "")
		}
		*step.count = res.RowsAffected
	}

	res := db.Where("task_id NOT IN (?)", db.Model(&models.Task{}).Select("id")).Delete(&models.Subtask{})
	if res.Error != nil {
		return result, apperr.FromDB(res.Error, "")
	}
	result.Subtasks = res.RowsAffected

	for projectID, keys := range keysByProject {
		s.cleanup(ctx, projectID, keys)
	}

	if result.Total() > 0 {
		s.logger.InfoContext(ctx, "swept orphaned rows",
			"members", result.Members,
			"tasks", result.Tasks,
			"subtasks", result.Subtasks,
			"notes", result.Notes,
		)
	}
	return result, nil
}
