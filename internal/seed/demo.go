// Package seed 为本地开发生成一套演示数据。
// 所有写入都走服务层，连胜、目标进度和积分由事件订阅者派生。
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/service"
)

// Services 是生成演示数据所需的服务
type Services struct {
	Habits  *service.HabitService
	Entries *service.HabitEntryService
	Goals   *service.GoalService
	Tasks   *service.TaskService
	Values  *service.ValueService
	States  *service.StateService
	Rewards *service.RewardService
}

// Summary 记录本次生成的数量
type Summary struct {
	Skipped bool
	Habits  int
	Entries int
	Goals   int
	Tasks   int
	Values  int
	Rewards int
}

type demoHabit struct {
	title    string
	cue      string
	quantity *float64
	unit     string
	// pattern[i] 表示 i 天前是否打卡
	pattern []bool
}

type demoTask struct {
	title    string
	priority string
	done     bool
	dueIn    *int
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Demo 为 userID 生成演示数据，已有习惯时跳过
func Demo(ctx context.Context, svc Services, userID string, today time.Time) (Summary, error) {
	var summary Summary

	existing, err := svc.Habits.List(ctx, userID, service.HabitFilter{IncludeArchived: true})
	if err != nil {
		return summary, err
	}
	if len(existing) > 0 {
		summary.Skipped = true
		return summary, nil
	}

	habits := []demoHabit{
		{title: "晨跑", cue: "起床后", pattern: []bool{true, true, true, false, true, true, false}},
		{title: "阅读", cue: "睡前", quantity: floatPtr(20), unit: "页", pattern: []bool{true, false, true, true, true, false, true}},
		{title: "冥想", cue: "午饭后", pattern: []bool{false, true, true, true, true, true, true}},
	}
	for _, item := range habits {
		input := service.HabitInput{Title: item.title, Cue: item.cue, GoalUnit: item.unit}
		if item.quantity != nil {
			input.HabitType = db.HabitTypeQuantity
			input.GoalQuantity = item.quantity
		}
		habit, err := svc.Habits.Create(ctx, userID, input)
		if err != nil {
			return summary, fmt.Errorf("create habit %s: %w", item.title, err)
		}
		summary.Habits++

		// 从最早的一天开始写入，使连胜按时间顺序累积
		for daysAgo := len(item.pattern) - 1; daysAgo >= 0; daysAgo-- {
			if !item.pattern[daysAgo] {
				continue
			}
			entry := service.HabitEntryInput{
				HabitID: habit.ID,
				Date:    today.AddDate(0, 0, -daysAgo).Format(db.DateLayout),
			}
			if item.quantity != nil {
				entry.QuantityValue = item.quantity
			}
			if _, err := svc.Entries.Create(ctx, userID, entry); err != nil {
				return summary, fmt.Errorf("create entry for %s: %w", item.title, err)
			}
			summary.Entries++
		}
	}

	goal, err := svc.Goals.Create(ctx, userID, service.GoalInput{
		Title:       "发布 v1",
		Description: "完成核心功能并上线",
		TargetDate:  stringPtr(today.AddDate(0, 1, 0).Format(db.DateLayout)),
	})
	if err != nil {
		return summary, fmt.Errorf("create goal: %w", err)
	}
	summary.Goals++

	tasks := []demoTask{
		{title: "确定需求范围", priority: db.TaskPriorityHigh, done: true},
		{title: "完成接口开发", priority: db.TaskPriorityHigh, dueIn: intPtr(3)},
		{title: "编写测试", priority: db.TaskPriorityMedium, dueIn: intPtr(7)},
		{title: "准备发布说明", priority: db.TaskPriorityLow},
	}
	for _, item := range tasks {
		input := service.TaskInput{Title: item.title, Priority: item.priority, GoalID: &goal.ID}
		if item.done {
			input.Status = db.TaskStatusDone
		}
		if item.dueIn != nil {
			input.DueDate = stringPtr(today.AddDate(0, 0, *item.dueIn).Format(db.DateLayout))
		}
		if _, err := svc.Tasks.Create(ctx, userID, input); err != nil {
			return summary, fmt.Errorf("create task %s: %w", item.title, err)
		}
		summary.Tasks++
	}

	values := []service.ValueInput{
		{Title: "长期主义", Description: "日拱一卒，**功不唐捐**"},
		{Title: "专注", Description: "一次只做一件事"},
	}
	for _, input := range values {
		if _, err := svc.Values.Create(ctx, userID, input); err != nil {
			return summary, fmt.Errorf("create value %s: %w", input.Title, err)
		}
		summary.Values++
	}

	mood, err := svc.States.CreateDef(ctx, userID, service.StateDefInput{Name: "心情", Description: "1 很差，5 很好"})
	if err != nil {
		return summary, fmt.Errorf("create state def: %w", err)
	}
	for daysAgo, value := range []int{4, 3, 5} {
		if _, err := svc.States.CreateEntry(ctx, userID, service.StateEntryInput{
			StateDefID: mood.ID,
			Value:      value,
			Date:       today.AddDate(0, 0, -daysAgo).Format(db.DateLayout),
		}); err != nil {
			return summary, fmt.Errorf("create state entry: %w", err)
		}
	}

	rewards := []service.RewardInput{
		{Title: "看一场电影", PointsCost: 100},
		{Title: "周末睡懒觉", PointsCost: 50},
	}
	for _, input := range rewards {
		if _, err := svc.Rewards.Create(ctx, userID, input); err != nil {
			return summary, fmt.Errorf("create reward %s: %w", input.Title, err)
		}
		summary.Rewards++
	}

	return summary, nil
}

func stringPtr(v string) *string { return &v }
