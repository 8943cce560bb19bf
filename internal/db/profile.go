package db

import (
	"time"

	"gorm.io/gorm"
)

// Profile 保存认证用户在本服务中的资料，ID 即认证服务下发的用户 ID
type Profile struct {
	ID          string `gorm:"primaryKey;size:36"`
	DisplayName string
	Timezone    string
	Points      int `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EnsureProfile 若用户资料不存在则创建，返回最新记录
func EnsureProfile(gdb *gorm.DB, userID string) (*Profile, error) {
	profile := Profile{ID: userID}
	if err := gdb.Where(Profile{ID: userID}).FirstOrCreate(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
