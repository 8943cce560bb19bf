package seed

import (
	"context"
	"testing"
	"time"

	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/events"
	"github.com/habitkit/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoSeedsDerivedState(t *testing.T) {
	gdb, err := db.Open(db.Options{Driver: "sqlite", Path: "file:seed_demo?mode=memory&cache=shared", Silent: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	bus := events.NewBus(log, events.WithSynchronous())
	calendar := service.NewCalendar(gdb, time.UTC).WithNow(func() time.Time { return today.Add(9 * time.Hour) })
	habits := service.NewHabitService(gdb)
	goals := service.NewGoalService(gdb)
	svc := Services{
		Habits:  habits,
		Entries: service.NewHabitEntryService(gdb, habits, bus),
		Goals:   goals,
		Tasks:   service.NewTaskService(gdb, goals, bus),
		Values:  service.NewValueService(gdb),
		States:  service.NewStateService(gdb),
		Rewards: service.NewRewardService(gdb),
	}
	points := service.NewPoints(gdb, 10, 5)
	service.RegisterSubscribers(bus, service.NewStreakEngine(gdb, calendar, log), service.NewGoalProgress(gdb, log), points)

	ctx := context.Background()
	summary, err := Demo(ctx, svc, "demo", today)
	require.NoError(t, err)
	assert.Equal(t, Summary{Habits: 3, Entries: 16, Goals: 1, Tasks: 4, Values: 2, Rewards: 2}, summary)

	list, err := habits.List(ctx, "demo", service.HabitFilter{})
	require.NoError(t, err)
	streaks := map[string]int{}
	for _, habit := range list {
		streaks[habit.Title] = habit.Streak
	}
	assert.Equal(t, map[string]int{"晨跑": 3, "阅读": 1, "冥想": 6}, streaks)

	goalList, err := goals.List(ctx, "demo", service.GoalFilter{})
	require.NoError(t, err)
	require.Len(t, goalList, 1)
	assert.Equal(t, 0.25, goalList[0].Progress)

	balance, err := points.Balance(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, 165, balance)

	again, err := Demo(ctx, svc, "demo", today)
	require.NoError(t, err)
	assert.True(t, again.Skipped)
}
