package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// StreakEngine 根据打卡记录重算习惯的当前连胜与最佳连胜
type StreakEngine struct {
	db       *gorm.DB
	calendar *Calendar
	log      logrus.FieldLogger
}

// StreakResult 是一次重算的结果
type StreakResult struct {
	HabitID string
	Current int
	Best    int
}

// NewStreakEngine 构造 StreakEngine
func NewStreakEngine(gdb *gorm.DB, calendar *Calendar, log logrus.FieldLogger) *StreakEngine {
	return &StreakEngine{db: gdb, calendar: calendar, log: log}
}

// Recompute 重算并写回 streak/best_streak。
// 读取打卡失败时返回零值且不改写习惯；读取最佳连胜失败时以当前连胜兜底，
// 写入时 best_streak 只增不减。
func (e *StreakEngine) Recompute(ctx context.Context, userID, habitID string) (StreakResult, error) {
	result := StreakResult{HabitID: habitID}
	log := e.log.WithFields(logrus.Fields{"user_id": userID, "habit_id": habitID})

	var entries []db.HabitEntry
	if err := e.db.WithContext(ctx).
		Select("entry_date", "completed").
		Where("habit_id = ? AND user_id = ?", habitID, userID).
		Order("entry_date DESC").
		Find(&entries).Error; err != nil {
		log.WithError(err).Warn("load entries for streak failed")
		return result, fmt.Errorf("load habit entries: %w", err)
	}

	result.Current = CurrentStreak(entries, e.calendar.Today(ctx, userID))

	var habit db.Habit
	err := e.db.WithContext(ctx).
		Select("id", "best_streak").
		Where("id = ? AND user_id = ?", habitID, userID).
		First(&habit).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return result, ErrHabitNotFound
	case err != nil:
		log.WithError(err).Warn("load best streak failed, falling back to current streak")
		result.Best = max(result.Current, 0)
	default:
		result.Best = max(result.Current, habit.BestStreak)
	}

	if err := e.db.WithContext(ctx).Model(&db.Habit{}).
		Where("id = ? AND user_id = ?", habitID, userID).
		Updates(map[string]any{
			"streak":      result.Current,
			"best_streak": gorm.Expr("CASE WHEN best_streak > ? THEN best_streak ELSE ? END", result.Best, result.Best),
		}).Error; err != nil {
		return result, fmt.Errorf("persist streak: %w", err)
	}

	return result, nil
}

// RefreshAll 为所有未归档习惯重算连胜，供定时任务使用；单个失败不会中断整体
func (e *StreakEngine) RefreshAll(ctx context.Context) (refreshed int, failed int, err error) {
	var habits []db.Habit
	if err := e.db.WithContext(ctx).
		Select("id", "user_id").
		Where("archived_at IS NULL").
		Order("user_id ASC").
		Find(&habits).Error; err != nil {
		return 0, 0, fmt.Errorf("list habits for refresh: %w", err)
	}

	for _, habit := range habits {
		if ctx.Err() != nil {
			return refreshed, failed, ctx.Err()
		}
		if _, err := e.Recompute(ctx, habit.UserID, habit.ID); err != nil {
			failed++
			continue
		}
		refreshed++
	}
	return refreshed, failed, nil
}

// CurrentStreak 计算以今天或昨天结尾、逐日连续完成的天数。
// entries 需按日期倒序；今天之后的记录被忽略；遇到缺失日期或未完成记录即停止。
func CurrentStreak(entries []db.HabitEntry, today time.Time) int {
	if len(entries) == 0 {
		return 0
	}

	completed := make(map[string]bool, len(entries))
	for _, entry := range entries {
		completed[entry.EntryDate] = completed[entry.EntryDate] || entry.Completed
	}

	anchor := normalizeToDate(today)
	if !completed[formatDate(anchor)] {
		anchor = anchor.AddDate(0, 0, -1)
		if !completed[formatDate(anchor)] {
			return 0
		}
	}

	streak := 0
	for completed[formatDate(anchor)] {
		streak++
		anchor = anchor.AddDate(0, 0, -1)
	}
	return streak
}
