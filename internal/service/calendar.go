package service

import (
	"context"
	"strings"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// Calendar 按用户时区计算“今天”，用户未设置时区时回退到服务默认时区
type Calendar struct {
	db       *gorm.DB
	fallback *time.Location
	now      func() time.Time
}

// NewCalendar 构造 Calendar，fallback 为空时使用 UTC
func NewCalendar(gdb *gorm.DB, fallback *time.Location) *Calendar {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Calendar{db: gdb, fallback: fallback, now: time.Now}
}

// WithNow 替换时间源，测试用
func (c *Calendar) WithNow(now func() time.Time) *Calendar {
	c.now = now
	return c
}

// Location 返回用户所在时区
func (c *Calendar) Location(ctx context.Context, userID string) *time.Location {
	var profile db.Profile
	err := c.db.WithContext(ctx).Select("timezone").Where("id = ?", userID).Limit(1).Find(&profile).Error
	if err != nil || strings.TrimSpace(profile.Timezone) == "" {
		return c.fallback
	}
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		return c.fallback
	}
	return loc
}

// Today 返回用户时区下今天的零点
func (c *Calendar) Today(ctx context.Context, userID string) time.Time {
	return normalizeToDate(c.now().In(c.Location(ctx, userID)))
}

// Now 返回当前时间
func (c *Calendar) Now() time.Time {
	return c.now()
}
