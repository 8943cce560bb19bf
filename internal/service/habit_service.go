package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// HabitService 负责 Habit 数据的增删改查
// 所有读写都按 user_id 过滤；连胜字段只由 StreakEngine 写入
type HabitService struct {
	db  *gorm.DB
	now func() time.Time
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	IncludeArchived bool
}

// HabitInput 定义创建习惯时可配置字段
type HabitInput struct {
	Title        string
	Cue          string
	Routine      string
	Reward       string
	HabitType    string
	GoalQuantity *float64
	GoalUnit     string
	Recurrence   string
}

// HabitPatch 定义更新习惯时的可选字段，nil 表示不修改
type HabitPatch struct {
	Title        *string
	Cue          *string
	Routine      *string
	Reward       *string
	HabitType    *string
	GoalQuantity *float64
	ClearGoal    bool
	GoalUnit     *string
	Recurrence   *string
	SortOrder    *int
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB) *HabitService {
	return &HabitService{db: gdb, now: time.Now}
}

// List 返回用户的习惯，默认排除已归档
func (s *HabitService) List(ctx context.Context, userID string, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}

	if err := query.Order("sort_order ASC, created_at ASC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// Get 根据 ID 获取习惯，不属于该用户时返回 ErrHabitNotFound
func (s *HabitService) Get(ctx context.Context, userID, id string) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&habit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// Create 新建习惯，排序值追加到末尾
func (s *HabitService) Create(ctx context.Context, userID string, input HabitInput) (*db.Habit, error) {
	habit := db.Habit{
		UserID:       userID,
		Title:        input.Title,
		Cue:          input.Cue,
		Routine:      input.Routine,
		Reward:       input.Reward,
		HabitType:    input.HabitType,
		GoalQuantity: input.GoalQuantity,
		GoalUnit:     input.GoalUnit,
		Recurrence:   input.Recurrence,
	}
	if err := normalizeHabit(&habit); err != nil {
		return nil, err
	}

	maxOrder, err := maxSortOrder(ctx, s.db, &db.Habit{}, userID)
	if err != nil {
		return nil, fmt.Errorf("load habit order: %w", err)
	}
	habit.SortOrder = maxOrder + 1

	if err := s.db.WithContext(ctx).Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 按字段更新习惯，Streak/BestStreak 不受影响
func (s *HabitService) Update(ctx context.Context, userID, id string, patch HabitPatch) (*db.Habit, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		existing.Title = *patch.Title
	}
	if patch.Cue != nil {
		existing.Cue = *patch.Cue
	}
	if patch.Routine != nil {
		existing.Routine = *patch.Routine
	}
	if patch.Reward != nil {
		existing.Reward = *patch.Reward
	}
	if patch.HabitType != nil {
		existing.HabitType = *patch.HabitType
	}
	if patch.ClearGoal {
		existing.GoalQuantity = nil
	} else if patch.GoalQuantity != nil {
		existing.GoalQuantity = patch.GoalQuantity
	}
	if patch.GoalUnit != nil {
		existing.GoalUnit = *patch.GoalUnit
	}
	if patch.Recurrence != nil {
		existing.Recurrence = *patch.Recurrence
	}
	if patch.SortOrder != nil {
		existing.SortOrder = *patch.SortOrder
	}

	if err := normalizeHabit(existing); err != nil {
		return nil, err
	}

	updates := map[string]any{
		"title":         existing.Title,
		"cue":           existing.Cue,
		"routine":       existing.Routine,
		"reward":        existing.Reward,
		"habit_type":    existing.HabitType,
		"goal_quantity": existing.GoalQuantity,
		"goal_unit":     existing.GoalUnit,
		"recurrence":    existing.Recurrence,
		"sort_order":    existing.SortOrder,
	}
	if err := s.db.WithContext(ctx).Model(&db.Habit{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}

	return s.Get(ctx, userID, id)
}

// Archive 软删除习惯
func (s *HabitService) Archive(ctx context.Context, userID, id string) (*db.Habit, error) {
	return s.setArchived(ctx, userID, id, true)
}

// Unarchive 恢复已归档的习惯
func (s *HabitService) Unarchive(ctx context.Context, userID, id string) (*db.Habit, error) {
	return s.setArchived(ctx, userID, id, false)
}

func (s *HabitService) setArchived(ctx context.Context, userID, id string, archived bool) (*db.Habit, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	var value any
	if archived {
		value = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Model(&db.Habit{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", value).Error; err != nil {
		return nil, fmt.Errorf("archive habit: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Delete 删除习惯及其全部打卡记录
func (s *HabitService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ? AND user_id = ?", id, userID).Delete(&db.HabitEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&db.Habit{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete habit: %w", err)
	}
	return nil
}

// Reorder 按给定顺序重写排序值，ids 必须全部属于该用户
func (s *HabitService) Reorder(ctx context.Context, userID string, ids []string) ([]db.Habit, error) {
	if len(ids) == 0 {
		return nil, invalid("ids", "must not be empty")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, invalidf("ids", "duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&db.Habit{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count habits: %w", err)
	}
	if int(count) != len(ids) {
		return nil, ErrHabitNotFound
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for index, id := range ids {
			if err := tx.Model(&db.Habit{}).
				Where("id = ? AND user_id = ?", id, userID).
				Update("sort_order", index).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reorder habits: %w", err)
	}

	return s.List(ctx, userID, HabitFilter{IncludeArchived: true})
}

func normalizeHabit(habit *db.Habit) error {
	title, err := requireTitle("title", habit.Title)
	if err != nil {
		return err
	}
	habit.Title = title
	habit.Cue = cleanText(habit.Cue)
	habit.Routine = cleanText(habit.Routine)
	habit.Reward = cleanText(habit.Reward)
	habit.GoalUnit = cleanText(habit.GoalUnit)

	habitType := strings.ToLower(strings.TrimSpace(habit.HabitType))
	if habitType == "" {
		habitType = db.HabitTypeBoolean
	}
	switch habitType {
	case db.HabitTypeBoolean:
	case db.HabitTypeQuantity:
		if habit.GoalQuantity == nil || *habit.GoalQuantity <= 0 {
			return invalid("goalQuantity", "must be positive for quantity habits")
		}
	default:
		return invalidf("habitType", "unsupported type %s", habit.HabitType)
	}
	habit.HabitType = habitType

	recurrence, err := normalizeRecurrence(habit.Recurrence)
	if err != nil {
		return err
	}
	habit.Recurrence = recurrence
	return nil
}

func normalizeRecurrence(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "daily", nil
	}

	lower := strings.ToLower(trimmed)
	switch lower {
	case "daily", "weekly", "monthly", "weekdays":
		return lower, nil
	}

	upper := strings.ToUpper(trimmed)
	rule := strings.TrimPrefix(upper, "RRULE:")
	if strings.HasPrefix(rule, "FREQ=") {
		return upper, nil
	}
	return "", invalidf("recurrence", "unsupported recurrence %s", raw)
}
