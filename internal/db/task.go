package db

import "time"

const (
	TaskStatusTodo    = "todo"
	TaskStatusDoing   = "doing"
	TaskStatusDone    = "done"
	TaskStatusBlocked = "blocked"
	TaskStatusPending = "pending"
)

const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task 定义了任务模型
// GoalID 关联目标，ParentTaskID 支持一层子任务
// CompletedAt 在状态变为 done 时写入，其余状态清空
type Task struct {
	Model
	UserID       string `gorm:"size:36;index;not null"`
	Title        string `gorm:"not null"`
	Notes        string
	Status       string  `gorm:"size:16;index;not null;default:todo"`
	Priority     string  `gorm:"size:16;not null;default:medium"`
	DueDate      *string `gorm:"size:10;index"`
	GoalID       *string `gorm:"size:36;index"`
	ParentTaskID *string `gorm:"size:36;index"`
	CompletedAt  *time.Time
	ArchivedAt   *time.Time `gorm:"index"`
}

// IsDone 报告任务是否处于完成状态
func (t Task) IsDone() bool {
	return t.Status == TaskStatusDone
}
