package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

const (
	defaultRedemptionLimit = 20
	maxRedemptionLimit     = 100
)

// RewardService 管理奖励与积分兑换
type RewardService struct {
	db  *gorm.DB
	now func() time.Time
}

// RewardInput 定义创建奖励时的字段
type RewardInput struct {
	Title       string
	Description string
	PointsCost  int
}

// RewardPatch 定义更新奖励时的可选字段
type RewardPatch struct {
	Title       *string
	Description *string
	PointsCost  *int
}

// Redemption 是一次兑换结果
type Redemption struct {
	Record          db.UserReward
	Reward          db.Reward
	RemainingPoints int
}

// NewRewardService 构造 RewardService
func NewRewardService(gdb *gorm.DB) *RewardService {
	return &RewardService{db: gdb, now: time.Now}
}

// List 返回用户未归档的奖励，按积分升序
func (s *RewardService) List(ctx context.Context, userID string, includeArchived bool) ([]db.Reward, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("archived_at IS NULL")
	}

	var rewards []db.Reward
	if err := query.Order("points_cost ASC, created_at ASC").Find(&rewards).Error; err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

// Get 根据 ID 获取奖励
func (s *RewardService) Get(ctx context.Context, userID, id string) (*db.Reward, error) {
	var reward db.Reward
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&reward).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return &reward, nil
}

// Create 新建奖励
func (s *RewardService) Create(ctx context.Context, userID string, input RewardInput) (*db.Reward, error) {
	title, err := requireTitle("title", input.Title)
	if err != nil {
		return nil, err
	}
	description, err := limitText("description", cleanText(input.Description))
	if err != nil {
		return nil, err
	}
	if input.PointsCost <= 0 {
		return nil, invalid("pointsCost", "must be positive")
	}

	reward := db.Reward{UserID: userID, Title: title, Description: description, PointsCost: input.PointsCost}
	if err := s.db.WithContext(ctx).Create(&reward).Error; err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return &reward, nil
}

// Update 修改奖励
func (s *RewardService) Update(ctx context.Context, userID, id string, patch RewardPatch) (*db.Reward, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Title != nil {
		title, err := requireTitle("title", *patch.Title)
		if err != nil {
			return nil, err
		}
		updates["title"] = title
	}
	if patch.Description != nil {
		description, err := limitText("description", cleanText(*patch.Description))
		if err != nil {
			return nil, err
		}
		updates["description"] = description
	}
	if patch.PointsCost != nil {
		if *patch.PointsCost <= 0 {
			return nil, invalid("pointsCost", "must be positive")
		}
		updates["points_cost"] = *patch.PointsCost
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Reward{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update reward: %w", err)
		}
	}
	return s.Get(ctx, userID, id)
}

// Archive 归档奖励，已归档的奖励不能再兑换
func (s *RewardService) Archive(ctx context.Context, userID, id string) (*db.Reward, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&db.Reward{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", s.now().UTC()).Error; err != nil {
		return nil, fmt.Errorf("archive reward: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Redeem 在同一事务中扣除积分并写入兑换记录，积分不足时不做任何修改
func (s *RewardService) Redeem(ctx context.Context, userID, id string) (*Redemption, error) {
	reward, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if reward.ArchivedAt != nil {
		return nil, invalid("id", "reward is archived")
	}

	var result Redemption
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := db.EnsureProfile(tx, userID); err != nil {
			return fmt.Errorf("ensure profile: %w", err)
		}

		update := tx.Model(&db.Profile{}).
			Where("id = ? AND points >= ?", userID, reward.PointsCost).
			Update("points", gorm.Expr("points - ?", reward.PointsCost))
		if update.Error != nil {
			return fmt.Errorf("deduct points: %w", update.Error)
		}
		if update.RowsAffected == 0 {
			return invalidf("points", "not enough points to redeem (cost %d)", reward.PointsCost)
		}

		record := db.UserReward{
			UserID:      userID,
			RewardID:    reward.ID,
			PointsSpent: reward.PointsCost,
			RedeemedAt:  s.now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}

		var profile db.Profile
		if err := tx.Select("points").Where("id = ?", userID).First(&profile).Error; err != nil {
			return fmt.Errorf("reload points: %w", err)
		}

		result = Redemption{Record: record, Reward: *reward, RemainingPoints: profile.Points}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Redemptions 返回最近的兑换记录
func (s *RewardService) Redemptions(ctx context.Context, userID string, limit int) ([]db.UserReward, error) {
	var records []db.UserReward
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("redeemed_at DESC").
		Limit(clampLimit(limit, defaultRedemptionLimit, maxRedemptionLimit)).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return records, nil
}
