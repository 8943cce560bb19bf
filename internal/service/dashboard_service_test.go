package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/habitkit/internal/db"
)

func TestDashboardAggregatesAndAnnotates(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	run := env.mustHabit(t, "user-1", "Run")
	read := env.mustHabit(t, "user-1", "Read")
	env.mustHabit(t, "user-2", "Not mine")
	env.checkIn(t, "user-1", run.ID, daysAgo(0), true)
	env.checkIn(t, "user-1", read.ID, daysAgo(1), true)

	env.mustGoal(t, "user-1", "Goal")
	env.mustTask(t, "user-1", TaskInput{Title: "No date"})
	env.mustTask(t, "user-1", TaskInput{Title: "Due soon", DueDate: strPtr(daysAgo(-1))})
	env.mustTask(t, "user-1", TaskInput{Title: "Already done", Status: db.TaskStatusDone})
	if _, err := env.values.Create(ctx, "user-1", ValueInput{Title: "Focus"}); err != nil {
		t.Fatalf("create value: %v", err)
	}

	dash, err := env.dashboard.Get(ctx, "user-1", DashboardOptions{})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if dash.Today != daysAgo(0) {
		t.Fatalf("expected today %s, got %s", daysAgo(0), dash.Today)
	}
	if len(dash.Habits) != 2 {
		t.Fatalf("expected 2 habits, got %d", len(dash.Habits))
	}
	for _, item := range dash.Habits {
		want := item.Habit.ID == run.ID
		if item.CompletedToday != want {
			t.Fatalf("habit %s completedToday=%v, want %v", item.Habit.Title, item.CompletedToday, want)
		}
	}
	if len(dash.Goals) != 1 || len(dash.Values) != 1 {
		t.Fatalf("unexpected goals/values: %d/%d", len(dash.Goals), len(dash.Values))
	}
	if len(dash.Tasks) != 2 || dash.Tasks[0].Title != "Due soon" {
		t.Fatalf("expected open tasks ordered by due date, got %+v", dash.Tasks)
	}
	if len(dash.RecentEntries) != 2 || dash.RecentEntries[0].EntryDate != daysAgo(0) {
		t.Fatalf("expected newest entries first, got %+v", dash.RecentEntries)
	}
	if dash.Points != 25 {
		t.Fatalf("expected 25 points from two check-ins and one task, got %d", dash.Points)
	}
}

func TestDashboardLimits(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		env.mustHabit(t, "user-1", "Habit")
	}

	dash, err := env.dashboard.Get(ctx, "user-1", DashboardOptions{})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if len(dash.Habits) != 5 {
		t.Fatalf("expected default limit 5, got %d", len(dash.Habits))
	}

	dash, _ = env.dashboard.Get(ctx, "user-1", DashboardOptions{HabitLimit: 2})
	if len(dash.Habits) != 2 {
		t.Fatalf("expected limit 2, got %d", len(dash.Habits))
	}
}

func TestDashboardFailsWhenAnyFetchFails(t *testing.T) {
	env := setupServiceTest(t)

	if err := env.db.Migrator().DropTable(&db.Value{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if _, err := env.dashboard.Get(context.Background(), "user-1", DashboardOptions{}); err == nil {
		t.Fatal("expected dashboard to fail when a fetch fails")
	}
}

func TestWeeklyProgress(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	run := env.mustHabit(t, "user-1", "Run")
	read := env.mustHabit(t, "user-1", "Read")
	// 让两个习惯在窗口开始之前就已存在
	weekAgo := fixedNow.AddDate(0, 0, -10)
	env.db.Model(&db.Habit{}).Where("user_id = ?", "user-1").Update("created_at", weekAgo)

	env.checkIn(t, "user-1", run.ID, daysAgo(0), true)
	env.checkIn(t, "user-1", run.ID, daysAgo(1), true)
	env.checkIn(t, "user-1", read.ID, daysAgo(1), true)
	env.checkIn(t, "user-1", read.ID, daysAgo(2), false)
	env.checkIn(t, "user-1", run.ID, daysAgo(9), true)

	env.mustTask(t, "user-1", TaskInput{Title: "Due and done", DueDate: strPtr(daysAgo(2)), Status: db.TaskStatusDone})
	env.mustTask(t, "user-1", TaskInput{Title: "Due and open", DueDate: strPtr(daysAgo(1))})

	progress, err := env.dashboard.Weekly(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("Weekly returned error: %v", err)
	}
	if len(progress.Days) != 7 {
		t.Fatalf("expected 7 day buckets, got %d", len(progress.Days))
	}
	if progress.To != daysAgo(0) || progress.From != daysAgo(6) {
		t.Fatalf("unexpected window %s..%s", progress.From, progress.To)
	}

	last := progress.Days[6]
	if last.HabitsCompleted != 1 || last.HabitsActive != 2 || last.TasksCompleted != 1 {
		t.Fatalf("unexpected today bucket: %+v", last)
	}
	if progress.Days[5].HabitsCompleted != 2 {
		t.Fatalf("expected 2 completions yesterday, got %d", progress.Days[5].HabitsCompleted)
	}

	if progress.HabitCompletions != 3 || progress.PossibleCompletions != 14 {
		t.Fatalf("unexpected totals: %d/%d", progress.HabitCompletions, progress.PossibleCompletions)
	}
	if progress.HabitCompletionRate != 0.21 {
		t.Fatalf("expected habit rate 0.21, got %v", progress.HabitCompletionRate)
	}
	if progress.TasksCompleted != 1 || progress.TasksDue != 2 || progress.TaskCompletionRate != 0.5 {
		t.Fatalf("unexpected task stats: %+v", progress)
	}
}

func TestWeeklyProgressDaysRange(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	for _, days := range []int{-1, 91} {
		if _, err := env.dashboard.Weekly(ctx, "user-1", days); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected validation error for days=%d, got %v", days, err)
		}
	}

	progress, err := env.dashboard.Weekly(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("Weekly returned error: %v", err)
	}
	if len(progress.Days) != 1 || progress.HabitCompletionRate != 0 || progress.TaskCompletionRate != 0 {
		t.Fatalf("unexpected empty progress: %+v", progress)
	}
}

func TestBuildWeeklyCountsHabitsCreatedMidWindow(t *testing.T) {
	start := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	habits := []db.Habit{
		{Model: db.Model{ID: "early", CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}},
		{Model: db.Model{ID: "late", CreatedAt: time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)}},
	}

	progress := buildWeekly(start, 7, time.UTC, habits, nil, nil, 0)
	if progress.Days[0].HabitsActive != 1 {
		t.Fatalf("expected 1 active habit on day one, got %d", progress.Days[0].HabitsActive)
	}
	if progress.Days[6].HabitsActive != 2 {
		t.Fatalf("expected 2 active habits on the last day, got %d", progress.Days[6].HabitsActive)
	}
	if progress.PossibleCompletions != 10 {
		t.Fatalf("expected 10 possible completions, got %d", progress.PossibleCompletions)
	}
}

func TestBuildWeeklyIgnoresCompletionsOfInactiveHabits(t *testing.T) {
	start := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	archivedAt := time.Date(2025, 3, 6, 12, 0, 0, 0, time.UTC)
	habits := []db.Habit{
		{Model: db.Model{ID: "steady", CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}},
		{Model: db.Model{ID: "archived", CreatedAt: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}, ArchivedAt: &archivedAt},
		{Model: db.Model{ID: "new", CreatedAt: time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)}},
	}
	entries := []db.HabitEntry{
		{HabitID: "steady", EntryDate: "2025-03-05"},
		{HabitID: "archived", EntryDate: "2025-03-05"},
		// 归档之后补录
		{HabitID: "archived", EntryDate: "2025-03-09"},
		// 创建之前补录
		{HabitID: "new", EntryDate: "2025-03-05"},
		{HabitID: "new", EntryDate: "2025-03-09"},
	}

	progress := buildWeekly(start, 7, time.UTC, habits, entries, nil, 0)

	day2 := progress.Days[1]
	if day2.HabitsActive != 2 || day2.HabitsCompleted != 2 {
		t.Fatalf("unexpected 2025-03-05 bucket: %+v", day2)
	}
	day6 := progress.Days[5]
	if day6.HabitsActive != 2 || day6.HabitsCompleted != 1 {
		t.Fatalf("unexpected 2025-03-09 bucket: %+v", day6)
	}
	for _, day := range progress.Days {
		if day.HabitsCompleted > day.HabitsActive {
			t.Fatalf("completions exceed active habits on %s: %+v", day.Date, day)
		}
	}
	if progress.HabitCompletions != 3 {
		t.Fatalf("expected 3 counted completions, got %d", progress.HabitCompletions)
	}
}
