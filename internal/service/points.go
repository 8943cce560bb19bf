package service

import (
	"context"
	"fmt"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// Points 负责积分的增减，余额不会低于 0
type Points struct {
	db       *gorm.DB
	checkIn  int
	taskDone int
}

// NewPoints 构造 Points，perCheckIn/perTask 分别为每次打卡与完成任务的积分
func NewPoints(gdb *gorm.DB, perCheckIn, perTask int) *Points {
	return &Points{db: gdb, checkIn: perCheckIn, taskDone: perTask}
}

// ForCheckIn 按完成状态变化发放或扣回打卡积分
func (p *Points) ForCheckIn(ctx context.Context, userID string, change int) error {
	return p.Adjust(ctx, userID, change*p.checkIn)
}

// ForTask 按完成状态变化发放或扣回任务积分
func (p *Points) ForTask(ctx context.Context, userID string, change int) error {
	return p.Adjust(ctx, userID, change*p.taskDone)
}

// Adjust 调整积分余额，扣减时下限为 0
func (p *Points) Adjust(ctx context.Context, userID string, delta int) error {
	if delta == 0 {
		return nil
	}
	gdb := p.db.WithContext(ctx)
	if _, err := db.EnsureProfile(gdb, userID); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}
	if err := gdb.Model(&db.Profile{}).
		Where("id = ?", userID).
		Update("points", gorm.Expr("CASE WHEN points + ? < 0 THEN 0 ELSE points + ? END", delta, delta)).Error; err != nil {
		return fmt.Errorf("adjust points: %w", err)
	}
	return nil
}

// Balance 返回当前积分
func (p *Points) Balance(ctx context.Context, userID string) (int, error) {
	profile, err := db.EnsureProfile(p.db.WithContext(ctx), userID)
	if err != nil {
		return 0, fmt.Errorf("ensure profile: %w", err)
	}
	return profile.Points, nil
}
