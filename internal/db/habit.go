package db

import "time"

const (
	HabitTypeBoolean  = "boolean"
	HabitTypeQuantity = "quantity"
)

// Habit 定义了习惯模型
// Streak/BestStreak 只由连胜引擎写入，更新接口不会直接修改
// ArchivedAt 非空表示已归档（软删除）
type Habit struct {
	Model
	UserID       string `gorm:"size:36;index;not null"`
	Title        string `gorm:"not null"`
	Cue          string
	Routine      string
	Reward       string
	HabitType    string `gorm:"size:16;not null;default:boolean"`
	GoalQuantity *float64
	GoalUnit     string
	Recurrence   string     `gorm:"not null;default:daily"`
	Streak       int        `gorm:"not null;default:0"`
	BestStreak   int        `gorm:"not null;default:0"`
	ArchivedAt   *time.Time `gorm:"index"`
	SortOrder    int        `gorm:"not null;default:0"`
}

// HabitEntry 记录习惯打卡
// Habit + EntryDate 采用唯一索引，同一天重复打卡会更新已有记录
type HabitEntry struct {
	Model
	UserID        string `gorm:"size:36;index;not null"`
	HabitID       string `gorm:"size:36;index;index:idx_habit_entry_unique,unique;not null"`
	Habit         Habit  `gorm:"constraint:OnDelete:CASCADE"`
	EntryDate     string `gorm:"size:10;index:idx_habit_entry_unique,unique;not null"`
	Completed     bool   `gorm:"not null;default:false"`
	QuantityValue *float64
	Notes         string
}

// TableName 重写确保唯一索引作用到 habit_id + entry_date
func (HabitEntry) TableName() string {
	return "habit_entries"
}
