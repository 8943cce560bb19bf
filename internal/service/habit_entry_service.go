package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/events"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// HabitEntryService 负责打卡的写入；每次写入后发布 HabitEntryWritten 事件
type HabitEntryService struct {
	db     *gorm.DB
	habits *HabitService
	bus    *events.Bus
}

// HabitEntryInput 定义打卡输入。Completed 为空时：
// 布尔习惯视为完成，数量习惯按 QuantityValue 是否达到目标判断
type HabitEntryInput struct {
	HabitID       string
	Date          string
	Completed     *bool
	QuantityValue *float64
	Notes         *string
}

// HabitEntryPatch 定义更新打卡时的可选字段
type HabitEntryPatch struct {
	Date          *string
	Completed     *bool
	QuantityValue *float64
	Notes         *string
}

// HabitEntryFilter 指定查询区间，From/To 为空表示不限
type HabitEntryFilter struct {
	HabitID string
	From    string
	To      string
}

// NewHabitEntryService 构造 HabitEntryService
func NewHabitEntryService(gdb *gorm.DB, habits *HabitService, bus *events.Bus) *HabitEntryService {
	return &HabitEntryService{db: gdb, habits: habits, bus: bus}
}

// List 返回某个习惯的打卡记录，按日期倒序
func (s *HabitEntryService) List(ctx context.Context, userID string, filter HabitEntryFilter) ([]db.HabitEntry, error) {
	if _, err := s.habits.Get(ctx, userID, filter.HabitID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("habit_id = ? AND user_id = ?", filter.HabitID, userID)
	if filter.From != "" {
		from, err := parseDate("from", filter.From)
		if err != nil {
			return nil, err
		}
		query = query.Where("entry_date >= ?", from)
	}
	if filter.To != "" {
		to, err := parseDate("to", filter.To)
		if err != nil {
			return nil, err
		}
		query = query.Where("entry_date <= ?", to)
	}

	var entries []db.HabitEntry
	if err := query.Order("entry_date DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list habit entries: %w", err)
	}
	return entries, nil
}

// Get 根据 ID 获取打卡记录
func (s *HabitEntryService) Get(ctx context.Context, userID, id string) (*db.HabitEntry, error) {
	var entry db.HabitEntry
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitEntryNotFound
		}
		return nil, fmt.Errorf("get habit entry: %w", err)
	}
	return &entry, nil
}

// Create 处理幂等打卡：同一习惯同一天已有记录时更新该记录
func (s *HabitEntryService) Create(ctx context.Context, userID string, input HabitEntryInput) (*db.HabitEntry, error) {
	habit, err := s.habits.Get(ctx, userID, input.HabitID)
	if err != nil {
		return nil, err
	}

	date, err := parseDate("date", input.Date)
	if err != nil {
		return nil, err
	}
	if input.QuantityValue != nil && *input.QuantityValue < 0 {
		return nil, invalid("quantityValue", "must not be negative")
	}

	var existing db.HabitEntry
	found := true
	if err := s.db.WithContext(ctx).
		Where("habit_id = ? AND user_id = ? AND entry_date = ?", habit.ID, userID, date).
		First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find habit entry: %w", err)
		}
		found = false
	}

	entry := existing
	wasCompleted := found && existing.Completed
	if !found {
		entry = db.HabitEntry{UserID: userID, HabitID: habit.ID, EntryDate: date}
	}
	if input.QuantityValue != nil {
		entry.QuantityValue = input.QuantityValue
	}
	if input.Notes != nil {
		notes, err := limitText("notes", cleanText(*input.Notes))
		if err != nil {
			return nil, err
		}
		entry.Notes = notes
	}
	entry.Completed = resolveCompleted(*habit, input.Completed, entry.QuantityValue)

	if found {
		if err := s.db.WithContext(ctx).Model(&db.HabitEntry{}).
			Where("id = ? AND user_id = ?", entry.ID, userID).
			Updates(map[string]any{
				"completed":      entry.Completed,
				"quantity_value": entry.QuantityValue,
				"notes":          entry.Notes,
			}).Error; err != nil {
			return nil, fmt.Errorf("update habit entry: %w", err)
		}
	} else if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("create habit entry: %w", err)
	}

	s.publish(ctx, userID, habit.ID, wasCompleted, entry.Completed)
	return s.Get(ctx, userID, entry.ID)
}

// Update 修改打卡记录，修改日期时不能与同一习惯的其他记录冲突
func (s *HabitEntryService) Update(ctx context.Context, userID, id string, patch HabitEntryPatch) (*db.HabitEntry, error) {
	entry, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	habit, err := s.habits.Get(ctx, userID, entry.HabitID)
	if err != nil {
		return nil, err
	}
	wasCompleted := entry.Completed

	if patch.Date != nil {
		date, err := parseDate("date", *patch.Date)
		if err != nil {
			return nil, err
		}
		if date != entry.EntryDate {
			var clash int64
			if err := s.db.WithContext(ctx).Model(&db.HabitEntry{}).
				Where("habit_id = ? AND user_id = ? AND entry_date = ? AND id <> ?", entry.HabitID, userID, date, entry.ID).
				Count(&clash).Error; err != nil {
				return nil, fmt.Errorf("check habit entry date: %w", err)
			}
			if clash > 0 {
				return nil, invalidf("date", "an entry already exists on %s", date)
			}
		}
		entry.EntryDate = date
	}
	if patch.QuantityValue != nil {
		if *patch.QuantityValue < 0 {
			return nil, invalid("quantityValue", "must not be negative")
		}
		entry.QuantityValue = patch.QuantityValue
	}
	if patch.Notes != nil {
		notes, err := limitText("notes", cleanText(*patch.Notes))
		if err != nil {
			return nil, err
		}
		entry.Notes = notes
	}
	if patch.Completed != nil || patch.QuantityValue != nil {
		entry.Completed = resolveCompleted(*habit, patch.Completed, entry.QuantityValue)
	}

	if err := s.db.WithContext(ctx).Model(&db.HabitEntry{}).
		Where("id = ? AND user_id = ?", entry.ID, userID).
		Updates(map[string]any{
			"entry_date":     entry.EntryDate,
			"completed":      entry.Completed,
			"quantity_value": entry.QuantityValue,
			"notes":          entry.Notes,
		}).Error; err != nil {
		return nil, fmt.Errorf("update habit entry: %w", err)
	}

	s.publish(ctx, userID, entry.HabitID, wasCompleted, entry.Completed)
	return s.Get(ctx, userID, entry.ID)
}

// Delete 删除打卡记录（撤销打卡）
func (s *HabitEntryService) Delete(ctx context.Context, userID, id string) error {
	entry, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&db.HabitEntry{}).Error; err != nil {
		return fmt.Errorf("delete habit entry: %w", err)
	}

	s.publish(ctx, userID, entry.HabitID, entry.Completed, false)
	return nil
}

func (s *HabitEntryService) publish(ctx context.Context, userID, habitID string, wasCompleted, isCompleted bool) {
	s.bus.Publish(ctx, events.Event{
		Kind:             events.HabitEntryWritten,
		UserID:           userID,
		HabitID:          habitID,
		CompletionChange: completionChange(wasCompleted, isCompleted),
	})
}

func resolveCompleted(habit db.Habit, explicit *bool, quantity *float64) bool {
	if explicit != nil {
		return *explicit
	}
	if habit.HabitType == db.HabitTypeQuantity {
		return quantity != nil && habit.GoalQuantity != nil && *quantity >= *habit.GoalQuantity
	}
	return true
}

func completionChange(was, is bool) int {
	switch {
	case !was && is:
		return 1
	case was && !is:
		return -1
	default:
		return 0
	}
}
