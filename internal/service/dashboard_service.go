package service

import (
	"context"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultDashboardHabits  = 5
	defaultDashboardGoals   = 5
	defaultDashboardTasks   = 10
	defaultDashboardEntries = 20
	maxDashboardLimit       = 50

	defaultWeeklyDays = 7
	maxWeeklyDays     = 90
)

// DashboardService 为首页组装只读数据，任一查询失败则整体失败
type DashboardService struct {
	db       *gorm.DB
	calendar *Calendar
}

// DashboardOptions 指定各类数据的条数，0 表示默认值
type DashboardOptions struct {
	HabitLimit int
	GoalLimit  int
	TaskLimit  int
	EntryLimit int
}

// DashboardHabit 是带有今日完成标记的习惯
type DashboardHabit struct {
	Habit          db.Habit
	CompletedToday bool
}

// Dashboard 是首页数据
type Dashboard struct {
	Today         string
	Points        int
	Habits        []DashboardHabit
	Goals         []db.Goal
	Tasks         []db.Task
	Values        []db.Value
	RecentEntries []db.HabitEntry
}

// DayProgress 是某一天的完成情况
type DayProgress struct {
	Date            string
	HabitsCompleted int
	HabitsActive    int
	TasksCompleted  int
}

// WeeklyProgress 是最近若干天的完成统计
type WeeklyProgress struct {
	From                string
	To                  string
	Days                []DayProgress
	HabitCompletions    int
	PossibleCompletions int
	HabitCompletionRate float64
	TasksCompleted      int
	TasksDue            int
	TaskCompletionRate  float64
}

// NewDashboardService 构造 DashboardService
func NewDashboardService(gdb *gorm.DB, calendar *Calendar) *DashboardService {
	return &DashboardService{db: gdb, calendar: calendar}
}

// Get 并发读取首页所需的各类数据
func (s *DashboardService) Get(ctx context.Context, userID string, opts DashboardOptions) (*Dashboard, error) {
	today := formatDate(s.calendar.Today(ctx, userID))
	result := &Dashboard{Today: today}

	var (
		habits       []db.Habit
		doneToday    []string
		profilePoint int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ? AND archived_at IS NULL", userID).
			Order("sort_order ASC, created_at ASC").
			Limit(clampLimit(opts.HabitLimit, defaultDashboardHabits, maxDashboardLimit)).
			Find(&habits).Error
		if err != nil {
			return fmt.Errorf("dashboard habits: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).Model(&db.HabitEntry{}).
			Where("user_id = ? AND entry_date = ? AND completed = ?", userID, today, true).
			Pluck("habit_id", &doneToday).Error
		if err != nil {
			return fmt.Errorf("dashboard today entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ? AND archived_at IS NULL", userID).
			Order("sort_order ASC, created_at ASC").
			Limit(clampLimit(opts.GoalLimit, defaultDashboardGoals, maxDashboardLimit)).
			Find(&result.Goals).Error
		if err != nil {
			return fmt.Errorf("dashboard goals: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ? AND archived_at IS NULL AND status <> ?", userID, db.TaskStatusDone).
			Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, created_at ASC").
			Limit(clampLimit(opts.TaskLimit, defaultDashboardTasks, maxDashboardLimit)).
			Find(&result.Tasks).Error
		if err != nil {
			return fmt.Errorf("dashboard tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ? AND archived_at IS NULL", userID).
			Order("sort_order ASC, created_at ASC").
			Find(&result.Values).Error
		if err != nil {
			return fmt.Errorf("dashboard values: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Where("user_id = ?", userID).
			Order("entry_date DESC, updated_at DESC").
			Limit(clampLimit(opts.EntryLimit, defaultDashboardEntries, maxDashboardLimit)).
			Find(&result.RecentEntries).Error
		if err != nil {
			return fmt.Errorf("dashboard entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var profile db.Profile
		err := s.db.WithContext(gctx).Select("points").Where("id = ?", userID).Limit(1).Find(&profile).Error
		if err != nil {
			return fmt.Errorf("dashboard points: %w", err)
		}
		profilePoint = profile.Points
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	completed := make(map[string]struct{}, len(doneToday))
	for _, id := range doneToday {
		completed[id] = struct{}{}
	}
	result.Habits = make([]DashboardHabit, 0, len(habits))
	for _, habit := range habits {
		_, ok := completed[habit.ID]
		result.Habits = append(result.Habits, DashboardHabit{Habit: habit, CompletedToday: ok})
	}
	result.Points = profilePoint
	return result, nil
}

// Weekly 统计以今天结尾的 days 天内的习惯与任务完成情况
func (s *DashboardService) Weekly(ctx context.Context, userID string, days int) (*WeeklyProgress, error) {
	if days == 0 {
		days = defaultWeeklyDays
	}
	if days < 1 || days > maxWeeklyDays {
		return nil, invalidf("days", "must be between 1 and %d", maxWeeklyDays)
	}

	loc := s.calendar.Location(ctx, userID)
	today := normalizeToDate(s.calendar.Now().In(loc))
	start := today.AddDate(0, 0, -(days - 1))
	from, to := formatDate(start), formatDate(today)

	var (
		habits  []db.Habit
		entries []db.HabitEntry
		done    []db.Task
		dueN    int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Select("id", "created_at", "archived_at").
			Where("user_id = ?", userID).
			Find(&habits).Error
		if err != nil {
			return fmt.Errorf("weekly habits: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Select("habit_id", "entry_date").
			Where("user_id = ? AND completed = ? AND entry_date BETWEEN ? AND ?", userID, true, from, to).
			Find(&entries).Error
		if err != nil {
			return fmt.Errorf("weekly entries: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).
			Select("id", "completed_at").
			Where("user_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
				userID, db.TaskStatusDone, start.UTC(), today.AddDate(0, 0, 1).UTC()).
			Find(&done).Error
		if err != nil {
			return fmt.Errorf("weekly tasks: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := s.db.WithContext(gctx).Model(&db.Task{}).
			Where("user_id = ? AND archived_at IS NULL AND due_date BETWEEN ? AND ?", userID, from, to).
			Count(&dueN).Error
		if err != nil {
			return fmt.Errorf("weekly due tasks: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return buildWeekly(start, days, loc, habits, entries, done, int(dueN)), nil
}

func buildWeekly(start time.Time, days int, loc *time.Location, habits []db.Habit, entries []db.HabitEntry, done []db.Task, due int) *WeeklyProgress {
	buckets := make([]DayProgress, days)
	index := make(map[string]int, days)
	// active[i] 是第 i 天处于活跃状态的习惯，只有这些习惯的完成才计入当天
	active := make([]map[string]struct{}, days)
	for i := range buckets {
		date := formatDate(start.AddDate(0, 0, i))
		buckets[i].Date = date
		index[date] = i
		active[i] = make(map[string]struct{}, len(habits))
		end := start.AddDate(0, 0, i+1)
		for _, habit := range habits {
			if habit.CreatedAt.In(loc).Before(end) && (habit.ArchivedAt == nil || !habit.ArchivedAt.In(loc).Before(end)) {
				active[i][habit.ID] = struct{}{}
			}
		}
		buckets[i].HabitsActive = len(active[i])
	}

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		key := entry.HabitID + "|" + entry.EntryDate
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		i, ok := index[entry.EntryDate]
		if !ok {
			continue
		}
		if _, on := active[i][entry.HabitID]; on {
			buckets[i].HabitsCompleted++
		}
	}
	tasksCompleted := 0
	for _, task := range done {
		if task.CompletedAt == nil {
			continue
		}
		if i, ok := index[formatDate(task.CompletedAt.In(loc))]; ok {
			buckets[i].TasksCompleted++
			tasksCompleted++
		}
	}

	progress := &WeeklyProgress{
		From:           buckets[0].Date,
		To:             buckets[days-1].Date,
		Days:           buckets,
		TasksCompleted: tasksCompleted,
		TasksDue:       due,
	}
	for _, day := range buckets {
		progress.HabitCompletions += day.HabitsCompleted
		progress.PossibleCompletions += day.HabitsActive
	}
	progress.HabitCompletionRate = ratio(progress.HabitCompletions, progress.PossibleCompletions)
	progress.TaskCompletionRate = ratio(tasksCompleted, due)
	return progress
}
