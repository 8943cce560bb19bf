package db

import "time"

// Value 记录用户的原则/价值观，Description 使用 Markdown
type Value struct {
	Model
	UserID      string `gorm:"size:36;index;not null"`
	Title       string `gorm:"not null"`
	Description string
	SortOrder   int        `gorm:"not null;default:0"`
	ArchivedAt  *time.Time `gorm:"index"`
}
