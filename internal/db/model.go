package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DateLayout 是所有日历日期字段使用的格式
const DateLayout = "2006-01-02"

// Model 是所有业务表共享的基础字段，主键为 UUID 字符串
type Model struct {
	ID        string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate 在主键缺失时生成 UUID
func (m *Model) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
