package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// ProfileService 维护认证用户在本服务中的资料
type ProfileService struct {
	db *gorm.DB
}

// ProfilePatch 定义资料可修改字段，Timezone 为空字符串表示使用服务默认时区
type ProfilePatch struct {
	DisplayName *string
	Timezone    *string
}

// NewProfileService 构造 ProfileService
func NewProfileService(gdb *gorm.DB) *ProfileService {
	return &ProfileService{db: gdb}
}

// Get 返回用户资料，首次访问时自动创建
func (s *ProfileService) Get(ctx context.Context, userID string) (*db.Profile, error) {
	profile, err := db.EnsureProfile(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}
	return profile, nil
}

// Update 修改显示名称与时区
func (s *ProfileService) Update(ctx context.Context, userID string, patch ProfilePatch) (*db.Profile, error) {
	if _, err := s.Get(ctx, userID); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.DisplayName != nil {
		name := cleanText(*patch.DisplayName)
		if len([]rune(name)) > maxTitleRunes {
			return nil, invalidf("displayName", "must be at most %d characters", maxTitleRunes)
		}
		updates["display_name"] = name
	}
	if patch.Timezone != nil {
		tz := strings.TrimSpace(*patch.Timezone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return nil, invalidf("timezone", "unknown timezone %s", tz)
			}
		}
		updates["timezone"] = tz
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Profile{}).
			Where("id = ?", userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}
	return s.Get(ctx, userID)
}
