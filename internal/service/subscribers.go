package service

import (
	"context"

	"github.com/habitkit/internal/events"
)

// Subscriber names, used as the handler label in logs and metrics.
const (
	SubscriberStreak       = "streak"
	SubscriberGoalProgress = "goal_progress"
	SubscriberCheckInPts   = "points_checkin"
	SubscriberTaskPts      = "points_task"
)

// RegisterSubscribers 把派生状态的重算挂到事件总线上
func RegisterSubscribers(bus *events.Bus, streaks *StreakEngine, progress *GoalProgress, points *Points) {
	bus.Subscribe(events.HabitEntryWritten, SubscriberStreak, func(ctx context.Context, evt events.Event) error {
		_, err := streaks.Recompute(ctx, evt.UserID, evt.HabitID)
		return err
	})
	bus.Subscribe(events.TaskChanged, SubscriberGoalProgress, func(ctx context.Context, evt events.Event) error {
		if len(evt.GoalIDs) == 0 {
			return nil
		}
		return progress.RecomputeMany(ctx, evt.UserID, evt.GoalIDs)
	})

	if points == nil {
		return
	}
	bus.Subscribe(events.HabitEntryWritten, SubscriberCheckInPts, func(ctx context.Context, evt events.Event) error {
		return points.ForCheckIn(ctx, evt.UserID, evt.CompletionChange)
	})
	bus.Subscribe(events.TaskChanged, SubscriberTaskPts, func(ctx context.Context, evt events.Event) error {
		return points.ForTask(ctx, evt.UserID, evt.CompletionChange)
	})
}
