package db

import "time"

// Goal 定义了目标模型，Progress 取值范围为 [0,1]
type Goal struct {
	Model
	UserID      string `gorm:"size:36;index;not null"`
	Title       string `gorm:"not null"`
	Description string
	Progress    float64    `gorm:"not null;default:0"`
	TargetDate  *string    `gorm:"size:10"`
	ArchivedAt  *time.Time `gorm:"index"`
	SortOrder   int        `gorm:"not null;default:0"`
}
