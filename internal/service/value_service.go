package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
)

// ValueService 管理用户的原则/价值观
type ValueService struct {
	db  *gorm.DB
	now func() time.Time
}

// ValueInput 定义创建价值观时的字段，Description 为 Markdown
type ValueInput struct {
	Title       string
	Description string
}

// ValuePatch 定义更新价值观时的可选字段
type ValuePatch struct {
	Title       *string
	Description *string
	SortOrder   *int
}

// NewValueService 构造 ValueService
func NewValueService(gdb *gorm.DB) *ValueService {
	return &ValueService{db: gdb, now: time.Now}
}

// List 返回用户未归档的价值观
func (s *ValueService) List(ctx context.Context, userID string, includeArchived bool) ([]db.Value, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("archived_at IS NULL")
	}

	var values []db.Value
	if err := query.Order("sort_order ASC, created_at ASC").Find(&values).Error; err != nil {
		return nil, fmt.Errorf("list values: %w", err)
	}
	return values, nil
}

// Get 根据 ID 获取价值观
func (s *ValueService) Get(ctx context.Context, userID, id string) (*db.Value, error) {
	var value db.Value
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&value).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrValueNotFound
		}
		return nil, fmt.Errorf("get value: %w", err)
	}
	return &value, nil
}

// Create 新建价值观
func (s *ValueService) Create(ctx context.Context, userID string, input ValueInput) (*db.Value, error) {
	title, err := requireTitle("title", input.Title)
	if err != nil {
		return nil, err
	}
	description, err := cleanMarkdown("description", input.Description)
	if err != nil {
		return nil, err
	}

	maxOrder, err := maxSortOrder(ctx, s.db, &db.Value{}, userID)
	if err != nil {
		return nil, fmt.Errorf("load value order: %w", err)
	}

	value := db.Value{UserID: userID, Title: title, Description: description, SortOrder: maxOrder + 1}
	if err := s.db.WithContext(ctx).Create(&value).Error; err != nil {
		return nil, fmt.Errorf("create value: %w", err)
	}
	return &value, nil
}

// Update 修改价值观
func (s *ValueService) Update(ctx context.Context, userID, id string, patch ValuePatch) (*db.Value, error) {
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
		description, err := cleanMarkdown("description", *patch.Description)
		if err != nil {
			return nil, err
		}
		updates["description"] = description
	}
	if patch.SortOrder != nil {
		updates["sort_order"] = *patch.SortOrder
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Value{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update value: %w", err)
		}
	}
	return s.Get(ctx, userID, id)
}

// Archive 归档价值观
func (s *ValueService) Archive(ctx context.Context, userID, id string) (*db.Value, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&db.Value{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", s.now().UTC()).Error; err != nil {
		return nil, fmt.Errorf("archive value: %w", err)
	}
	return s.Get(ctx, userID, id)
}

// Delete 删除价值观
func (s *ValueService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&db.Value{}).Error; err != nil {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// cleanMarkdown 保留 Markdown 源文本，只做首尾空白与长度处理；HTML 在渲染时净化
func cleanMarkdown(field, raw string) (string, error) {
	return limitText(field, strings.TrimSpace(raw))
}
