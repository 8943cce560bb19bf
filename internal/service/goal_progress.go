package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/habitkit/internal/db"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GoalProgress 根据目标下未归档任务的完成比例重算目标进度
type GoalProgress struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewGoalProgress 构造 GoalProgress
func NewGoalProgress(gdb *gorm.DB, log logrus.FieldLogger) *GoalProgress {
	return &GoalProgress{db: gdb, log: log}
}

// Recompute 重算单个目标的进度并写回，返回新的进度值
func (g *GoalProgress) Recompute(ctx context.Context, userID, goalID string) (float64, error) {
	var goal db.Goal
	if err := g.db.WithContext(ctx).
		Select("id").
		Where("id = ? AND user_id = ?", goalID, userID).
		First(&goal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrGoalNotFound
		}
		return 0, fmt.Errorf("load goal: %w", err)
	}

	var counts struct {
		Total int
		Done  int
	}
	if err := g.db.WithContext(ctx).Model(&db.Task{}).
		Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS done", db.TaskStatusDone).
		Where("goal_id = ? AND user_id = ? AND archived_at IS NULL", goalID, userID).
		Scan(&counts).Error; err != nil {
		return 0, fmt.Errorf("count goal tasks: %w", err)
	}

	progress := ComputeProgress(counts.Done, counts.Total)
	if err := g.db.WithContext(ctx).Model(&db.Goal{}).
		Where("id = ? AND user_id = ?", goalID, userID).
		Update("progress", progress).Error; err != nil {
		return 0, fmt.Errorf("update goal progress: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"goal_id":  goalID,
		"progress": progress,
	}).Debug("goal progress recomputed")
	return progress, nil
}

// RecomputeMany 依次重算多个目标，跳过空 ID 与重复 ID，返回第一个错误
func (g *GoalProgress) RecomputeMany(ctx context.Context, userID string, goalIDs []string) error {
	var firstErr error
	seen := make(map[string]struct{}, len(goalIDs))
	for _, id := range goalIDs {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := g.Recompute(ctx, userID, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ComputeProgress 返回保留两位小数、限制在 [0,1] 的完成比例，total 为 0 时为 0
func ComputeProgress(done, total int) float64 {
	return ratio(done, total)
}
