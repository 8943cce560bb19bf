package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitkit/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultScaleMin = 1
	defaultScaleMax = 5
)

// StateService 管理需要追踪的状态定义及其每日取值
type StateService struct {
	db  *gorm.DB
	now func() time.Time
}

// StateDefInput 定义创建状态时的字段，ScaleMin/ScaleMax 为空时使用 1..5
type StateDefInput struct {
	Name        string
	Description string
	ScaleMin    *int
	ScaleMax    *int
}

// StateDefPatch 定义更新状态时的可选字段
type StateDefPatch struct {
	Name        *string
	Description *string
	ScaleMin    *int
	ScaleMax    *int
}

// StateEntryInput 定义记录状态取值时的字段
type StateEntryInput struct {
	StateDefID string
	Value      int
	Date       string
	Notes      string
}

// StateEntryFilter 指定查询区间
type StateEntryFilter struct {
	StateDefID string
	From       string
	To         string
}

// NewStateService 构造 StateService
func NewStateService(gdb *gorm.DB) *StateService {
	return &StateService{db: gdb, now: time.Now}
}

// ListDefs 返回用户未归档的状态定义
func (s *StateService) ListDefs(ctx context.Context, userID string, includeArchived bool) ([]db.TrackedStateDef, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("archived_at IS NULL")
	}

	var defs []db.TrackedStateDef
	if err := query.Order("created_at ASC").Find(&defs).Error; err != nil {
		return nil, fmt.Errorf("list state defs: %w", err)
	}
	return defs, nil
}

// GetDef 根据 ID 获取状态定义
func (s *StateService) GetDef(ctx context.Context, userID, id string) (*db.TrackedStateDef, error) {
	var def db.TrackedStateDef
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateDefNotFound
		}
		return nil, fmt.Errorf("get state def: %w", err)
	}
	return &def, nil
}

// CreateDef 新建状态定义
func (s *StateService) CreateDef(ctx context.Context, userID string, input StateDefInput) (*db.TrackedStateDef, error) {
	name, err := requireTitle("name", input.Name)
	if err != nil {
		return nil, err
	}
	description, err := limitText("description", cleanText(input.Description))
	if err != nil {
		return nil, err
	}

	def := db.TrackedStateDef{
		UserID:      userID,
		Name:        name,
		Description: description,
		ScaleMin:    defaultScaleMin,
		ScaleMax:    defaultScaleMax,
	}
	if input.ScaleMin != nil {
		def.ScaleMin = *input.ScaleMin
	}
	if input.ScaleMax != nil {
		def.ScaleMax = *input.ScaleMax
	}
	if def.ScaleMin >= def.ScaleMax {
		return nil, invalid("scaleMax", "must be greater than scaleMin")
	}

	if err := s.db.WithContext(ctx).Create(&def).Error; err != nil {
		return nil, fmt.Errorf("create state def: %w", err)
	}
	return &def, nil
}

// UpdateDef 修改状态定义，已有记录不会被重新校验
func (s *StateService) UpdateDef(ctx context.Context, userID, id string, patch StateDefPatch) (*db.TrackedStateDef, error) {
	def, err := s.GetDef(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		name, err := requireTitle("name", *patch.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if patch.Description != nil {
		description, err := limitText("description", cleanText(*patch.Description))
		if err != nil {
			return nil, err
		}
		updates["description"] = description
	}
	if patch.ScaleMin != nil || patch.ScaleMax != nil {
		minValue, maxValue := def.ScaleMin, def.ScaleMax
		if patch.ScaleMin != nil {
			minValue = *patch.ScaleMin
		}
		if patch.ScaleMax != nil {
			maxValue = *patch.ScaleMax
		}
		if minValue >= maxValue {
			return nil, invalid("scaleMax", "must be greater than scaleMin")
		}
		updates["scale_min"] = minValue
		updates["scale_max"] = maxValue
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.TrackedStateDef{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update state def: %w", err)
		}
	}
	return s.GetDef(ctx, userID, id)
}

// ArchiveDef 归档状态定义
func (s *StateService) ArchiveDef(ctx context.Context, userID, id string) (*db.TrackedStateDef, error) {
	if _, err := s.GetDef(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&db.TrackedStateDef{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", s.now().UTC()).Error; err != nil {
		return nil, fmt.Errorf("archive state def: %w", err)
	}
	return s.GetDef(ctx, userID, id)
}

// ListEntries 返回某个状态的记录，按日期倒序
func (s *StateService) ListEntries(ctx context.Context, userID string, filter StateEntryFilter) ([]db.StateEntry, error) {
	if _, err := s.GetDef(ctx, userID, filter.StateDefID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("state_def_id = ? AND user_id = ?", filter.StateDefID, userID)
	if filter.From != "" {
		from, err := parseDate("from", filter.From)
		if err != nil {
			return nil, err
		}
		query = query.Where("entry_date >= ?", from)
	}
	if filter.To != "" {
		to, err := parseDate("to", filter.To)
		if err != nil {
			return nil, err
		}
		query = query.Where("entry_date <= ?", to)
	}

	var entries []db.StateEntry
	if err := query.Order("entry_date DESC, created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list state entries: %w", err)
	}
	return entries, nil
}

// CreateEntry 记录一次状态取值，取值必须落在定义的范围内
func (s *StateService) CreateEntry(ctx context.Context, userID string, input StateEntryInput) (*db.StateEntry, error) {
	def, err := s.GetDef(ctx, userID, input.StateDefID)
	if err != nil {
		return nil, err
	}
	if input.Value < def.ScaleMin || input.Value > def.ScaleMax {
		return nil, invalidf("value", "must be between %d and %d", def.ScaleMin, def.ScaleMax)
	}
	date, err := parseDate("date", input.Date)
	if err != nil {
		return nil, err
	}
	notes, err := limitText("notes", cleanText(input.Notes))
	if err != nil {
		return nil, err
	}

	entry := db.StateEntry{
		UserID:     userID,
		StateDefID: def.ID,
		Value:      input.Value,
		EntryDate:  date,
		Notes:      notes,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("create state entry: %w", err)
	}
	return &entry, nil
}

// DeleteEntry 删除状态记录
func (s *StateService) DeleteEntry(ctx context.Context, userID, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&db.StateEntry{})
	if result.Error != nil {
		return fmt.Errorf("delete state entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStateEntryNotFound
	}
	return nil
}
