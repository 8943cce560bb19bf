package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// GoalService 负责目标的增删改查；Progress 只由 GoalProgress 写入
type GoalService struct {
	db  *gorm.DB
	now func() time.Time
}

// GoalFilter 描述目标列表过滤条件
type GoalFilter struct {
	IncludeArchived bool
}

// GoalInput 定义创建目标时的字段
type GoalInput struct {
	Title       string
	Description string
	TargetDate  *string
}

// GoalPatch 定义更新目标时的可选字段，TargetDate 指向空字符串表示清空
type GoalPatch struct {
	Title       *string
	Description *string
	TargetDate  *string
	SortOrder   *int
}

// GoalDetail 是目标及其关联的任务
type GoalDetail struct {
	Goal  db.Goal
	Tasks []db.Task
}

// NewGoalService 构造 GoalService
func NewGoalService(gdb *gorm.DB) *GoalService {
	return &GoalService{db: gdb, now: time.Now}
}

// List 返回用户的目标
func (s *GoalService) List(ctx context.Context, userID string, filter GoalFilter) ([]db.Goal, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}

	var goals []db.Goal
	if err := query.Order("sort_order ASC, created_at ASC").Find(&goals).Error; err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return goals, nil
}

// Get 根据 ID 获取目标
func (s *GoalService) Get(ctx context.Context, userID, id string) (*db.Goal, error) {
	var goal db.Goal
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&goal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return &goal, nil
}

// GetDetail 返回目标以及关联的未归档任务
func (s *GoalService) GetDetail(ctx context.Context, userID, id string) (*GoalDetail, error) {
	goal, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var tasks []db.Task
	if err := s.db.WithContext(ctx).
		Where("goal_id = ? AND user_id = ? AND archived_at IS NULL", id, userID).
		Order("created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list goal tasks: %w", err)
	}
	return &GoalDetail{Goal: *goal, Tasks: tasks}, nil
}

// Create 新建目标，进度从 0 开始
func (s *GoalService) Create(ctx context.Context, userID string, input GoalInput) (*db.Goal, error) {
	title, err := requireTitle("title", input.Title)
	if err != nil {
		return nil, err
	}
	description, err := limitText("description", cleanText(input.Description))
	if err != nil {
		return nil, err
	}
	target, err := parseOptionalDate("targetDate", input.TargetDate)
	if err != nil {
		return nil, err
	}

	maxOrder, err := maxSortOrder(ctx, s.db, &db.Goal{}, userID)
	if err != nil {
		return nil, fmt.Errorf("load goal order: %w", err)
	}

	goal := db.Goal{
		UserID:      userID,
		Title:       title,
		Description: description,
		TargetDate:  target,
		SortOrder:   maxOrder + 1,
	}
	if err := s.db.WithContext(ctx).Create(&goal).Error; err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return &goal, nil
}

// Update 修改目标的可编辑字段
func (s *GoalService) Update(ctx context.Context, userID, id string, patch GoalPatch) (*db.Goal, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Title != nil {
		title, err := requireTitle("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		description, err := limitText("description", cleanText(*patch.Description))
		if err != nil {
			return nil, err
		}
		updates["description"] = description
	}
	if patch.TargetDate != nil {
		target, err := parseOptionalDate("targetDate", patch.TargetDate)
		if err != nil {
			return nil, err
		}
		updates["target_date"] = target
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Goal{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update goal: %w", err)
		}
	}
	return s.Get(ctx, userID, id)
}

// Archive 归档目标
func (s *GoalService) Archive(ctx context.Context, userID, id string) (*db.Goal, error) {
	return s.setArchived(ctx, userID, id, true)
}

// Unarchive 恢复目标
func (s *GoalService) Unarchive(ctx context.Context, userID, id string) (*db.Goal, error) {
	return s.setArchived(ctx, userID, id, false)
}

func (s *GoalService) setArchived(ctx context.Context, userID, id string, archived bool) (*db.Goal, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	var value any
	if archived {
		value = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Model(&db.Goal{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", value).Error; err != nil {
		return nil, fmt.Errorf("archive goal: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Delete 删除目标，并解除任务与它的关联
func (s *GoalService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.Task{}).
			Where("goal_id = ? AND user_id = ?", id, userID).
			Update("goal_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&db.Goal{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}
