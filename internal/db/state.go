package db

import "time"

// TrackedStateDef 定义一个需要追踪的状态（如心情、精力），取值在 ScaleMin..ScaleMax 之间
type TrackedStateDef struct {
	Model
	UserID      string `gorm:"size:36;index;not null"`
	Name        string `gorm:"not null"`
	Description string
	ScaleMin    int        `gorm:"not null;default:1"`
	ScaleMax    int        `gorm:"not null;default:5"`
	ArchivedAt  *time.Time `gorm:"index"`
}

// StateEntry 记录某个状态在某天的取值
type StateEntry struct {
	Model
	UserID     string          `gorm:"size:36;index;not null"`
	StateDefID string          `gorm:"size:36;index;not null"`
	StateDef   TrackedStateDef `gorm:"constraint:OnDelete:CASCADE"`
	Value      int             `gorm:"not null"`
	EntryDate  string          `gorm:"size:10;index;not null"`
	Notes      string
}
