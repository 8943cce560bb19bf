package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/events"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// testEnv 把所有服务装配到同一个内存数据库和同步事件总线上
type testEnv struct {
	db        *gorm.DB
	bus       *events.Bus
	calendar  *Calendar
	habits    *HabitService
	entries   *HabitEntryService
	streaks   *StreakEngine
	goals     *GoalService
	progress  *GoalProgress
	tasks     *TaskService
	values    *ValueService
	states    *StateService
	rewards   *RewardService
	profiles  *ProfileService
	points    *Points
	dashboard *DashboardService
}

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func setupServiceTest(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Open(db.Options{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		Silent: true,
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	env := &testEnv{db: gdb}
	env.bus = events.NewBus(log, events.WithSynchronous())
	env.calendar = NewCalendar(gdb, time.UTC).WithNow(func() time.Time { return fixedNow })
	env.habits = NewHabitService(gdb)
	env.entries = NewHabitEntryService(gdb, env.habits, env.bus)
	env.streaks = NewStreakEngine(gdb, env.calendar, log)
	env.goals = NewGoalService(gdb)
	env.progress = NewGoalProgress(gdb, log)
	env.tasks = NewTaskService(gdb, env.goals, env.bus)
	env.tasks.now = func() time.Time { return fixedNow }
	env.values = NewValueService(gdb)
	env.states = NewStateService(gdb)
	env.rewards = NewRewardService(gdb)
	env.profiles = NewProfileService(gdb)
	env.points = NewPoints(gdb, 10, 5)
	env.dashboard = NewDashboardService(gdb, env.calendar)

	RegisterSubscribers(env.bus, env.streaks, env.progress, env.points)
	return env
}

func (e *testEnv) mustHabit(t *testing.T, userID, title string) *db.Habit {
	t.Helper()
	habit, err := e.habits.Create(context.Background(), userID, HabitInput{Title: title})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return habit
}

func (e *testEnv) mustGoal(t *testing.T, userID, title string) *db.Goal {
	t.Helper()
	goal, err := e.goals.Create(context.Background(), userID, GoalInput{Title: title})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return goal
}

func (e *testEnv) mustTask(t *testing.T, userID string, input TaskInput) *db.Task {
	t.Helper()
	task, err := e.tasks.Create(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

func (e *testEnv) checkIn(t *testing.T, userID, habitID, date string, completed bool) *db.HabitEntry {
	t.Helper()
	entry, err := e.entries.Create(context.Background(), userID, HabitEntryInput{
		HabitID:   habitID,
		Date:      date,
		Completed: &completed,
	})
	if err != nil {
		t.Fatalf("check in %s: %v", date, err)
	}
	return entry
}

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format(db.DateLayout)
}

func strPtr(v string) *string { return &v }
