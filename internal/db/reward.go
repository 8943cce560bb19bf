package db

import "time"

// Reward 是用户可用积分兑换的奖励
type Reward struct {
	Model
	UserID      string `gorm:"size:36;index;not null"`
	Title       string `gorm:"not null"`
	Description string
	PointsCost  int        `gorm:"not null"`
	ArchivedAt  *time.Time `gorm:"index"`
}

// UserReward 记录一次兑换
type UserReward struct {
	Model
	UserID      string    `gorm:"size:36;index;not null"`
	RewardID    string    `gorm:"size:36;index;not null"`
	PointsSpent int       `gorm:"not null"`
	RedeemedAt  time.Time `gorm:"index;not null"`
}
