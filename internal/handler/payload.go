package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/service"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func optionalString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func optionalFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func habitToPayload(habit db.Habit) gin.H {
	return gin.H{
		"id":           habit.ID,
		"title":        habit.Title,
		"cue":          habit.Cue,
		"routine":      habit.Routine,
		"reward":       habit.Reward,
		"habitType":    habit.HabitType,
		"goalQuantity": optionalFloat(habit.GoalQuantity),
		"goalUnit":     habit.GoalUnit,
		"recurrence":   habit.Recurrence,
		"streak":       habit.Streak,
		"bestStreak":   habit.BestStreak,
		"sortOrder":    habit.SortOrder,
		"archivedAt":   optionalTime(habit.ArchivedAt),
		"createdAt":    formatTime(habit.CreatedAt),
		"updatedAt":    formatTime(habit.UpdatedAt),
	}
}

func habitsToPayload(habits []db.Habit) []gin.H {
	items := make([]gin.H, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitToPayload(habit))
	}
	return items
}

func entryToPayload(entry db.HabitEntry) gin.H {
	return gin.H{
		"id":            entry.ID,
		"habitId":       entry.HabitID,
		"date":          entry.EntryDate,
		"completed":     entry.Completed,
		"quantityValue": optionalFloat(entry.QuantityValue),
		"notes":         entry.Notes,
		"createdAt":     formatTime(entry.CreatedAt),
		"updatedAt":     formatTime(entry.UpdatedAt),
	}
}

func entriesToPayload(entries []db.HabitEntry) []gin.H {
	items := make([]gin.H, 0, len(entries))
	for _, entry := range entries {
		items = append(items, entryToPayload(entry))
	}
	return items
}

func goalToPayload(goal db.Goal) gin.H {
	return gin.H{
		"id":          goal.ID,
		"title":       goal.Title,
		"description": goal.Description,
		"progress":    goal.Progress,
		"targetDate":  optionalString(goal.TargetDate),
		"sortOrder":   goal.SortOrder,
		"archivedAt":  optionalTime(goal.ArchivedAt),
		"createdAt":   formatTime(goal.CreatedAt),
		"updatedAt":   formatTime(goal.UpdatedAt),
	}
}

func goalsToPayload(goals []db.Goal) []gin.H {
	items := make([]gin.H, 0, len(goals))
	for _, goal := range goals {
		items = append(items, goalToPayload(goal))
	}
	return items
}

func taskToPayload(task db.Task) gin.H {
	return gin.H{
		"id":           task.ID,
		"title":        task.Title,
		"notes":        task.Notes,
		"status":       task.Status,
		"priority":     task.Priority,
		"dueDate":      optionalString(task.DueDate),
		"goalId":       optionalString(task.GoalID),
		"parentTaskId": optionalString(task.ParentTaskID),
		"completedAt":  optionalTime(task.CompletedAt),
		"archivedAt":   optionalTime(task.ArchivedAt),
		"createdAt":    formatTime(task.CreatedAt),
		"updatedAt":    formatTime(task.UpdatedAt),
	}
}

func tasksToPayload(tasks []db.Task) []gin.H {
	items := make([]gin.H, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskToPayload(task))
	}
	return items
}

// valueToPayload 同时返回 Markdown 原文与净化后的 HTML
func valueToPayload(value db.Value) gin.H {
	return gin.H{
		"id":              value.ID,
		"title":           value.Title,
		"description":     value.Description,
		"descriptionHtml": service.RenderMarkdown(value.Description),
		"sortOrder":       value.SortOrder,
		"archivedAt":      optionalTime(value.ArchivedAt),
		"createdAt":       formatTime(value.CreatedAt),
		"updatedAt":       formatTime(value.UpdatedAt),
	}
}

func valuesToPayload(values []db.Value) []gin.H {
	items := make([]gin.H, 0, len(values))
	for _, value := range values {
		items = append(items, valueToPayload(value))
	}
	return items
}

func stateDefToPayload(def db.TrackedStateDef) gin.H {
	return gin.H{
		"id":          def.ID,
		"name":        def.Name,
		"description": def.Description,
		"scaleMin":    def.ScaleMin,
		"scaleMax":    def.ScaleMax,
		"archivedAt":  optionalTime(def.ArchivedAt),
		"createdAt":   formatTime(def.CreatedAt),
	}
}

func stateEntryToPayload(entry db.StateEntry) gin.H {
	return gin.H{
		"id":         entry.ID,
		"stateDefId": entry.StateDefID,
		"value":      entry.Value,
		"date":       entry.EntryDate,
		"notes":      entry.Notes,
		"createdAt":  formatTime(entry.CreatedAt),
	}
}

func rewardToPayload(reward db.Reward) gin.H {
	return gin.H{
		"id":          reward.ID,
		"title":       reward.Title,
		"description": reward.Description,
		"pointsCost":  reward.PointsCost,
		"archivedAt":  optionalTime(reward.ArchivedAt),
		"createdAt":   formatTime(reward.CreatedAt),
	}
}

func redemptionToPayload(record db.UserReward) gin.H {
	return gin.H{
		"id":          record.ID,
		"rewardId":    record.RewardID,
		"pointsSpent": record.PointsSpent,
		"redeemedAt":  formatTime(record.RedeemedAt),
	}
}

func profileToPayload(profile db.Profile) gin.H {
	return gin.H{
		"id":          profile.ID,
		"displayName": profile.DisplayName,
		"timezone":    profile.Timezone,
		"points":      profile.Points,
		"updatedAt":   formatTime(profile.UpdatedAt),
	}
}

func dashboardToPayload(dash *service.Dashboard) gin.H {
	habits := make([]gin.H, 0, len(dash.Habits))
	for _, item := range dash.Habits {
		payload := habitToPayload(item.Habit)
		payload["completedToday"] = item.CompletedToday
		habits = append(habits, payload)
	}
	return gin.H{
		"today":         dash.Today,
		"points":        dash.Points,
		"habits":        habits,
		"goals":         goalsToPayload(dash.Goals),
		"tasks":         tasksToPayload(dash.Tasks),
		"values":        valuesToPayload(dash.Values),
		"recentEntries": entriesToPayload(dash.RecentEntries),
	}
}

func weeklyToPayload(progress *service.WeeklyProgress) gin.H {
	days := make([]gin.H, 0, len(progress.Days))
	for _, day := range progress.Days {
		days = append(days, gin.H{
			"date":            day.Date,
			"habitsCompleted": day.HabitsCompleted,
			"habitsActive":    day.HabitsActive,
			"tasksCompleted":  day.TasksCompleted,
		})
	}
	return gin.H{
		"from":                progress.From,
		"to":                  progress.To,
		"days":                days,
		"habitCompletions":    progress.HabitCompletions,
		"possibleCompletions": progress.PossibleCompletions,
		"habitCompletionRate": progress.HabitCompletionRate,
		"tasksCompleted":      progress.TasksCompleted,
		"tasksDue":            progress.TasksDue,
		"taskCompletionRate":  progress.TaskCompletionRate,
	}
}
