package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 表示记录不存在或不属于当前用户，两种情况对调用方不可区分
	ErrNotFound = errors.New("not found")
	// ErrValidation 表示输入在到达数据库之前被拒绝
	ErrValidation = errors.New("validation failed")

	ErrHabitNotFound      = fmt.Errorf("habit %w", ErrNotFound)
	ErrHabitEntryNotFound = fmt.Errorf("habit entry %w", ErrNotFound)
	ErrGoalNotFound       = fmt.Errorf("goal %w", ErrNotFound)
	ErrTaskNotFound       = fmt.Errorf("task %w", ErrNotFound)
	ErrValueNotFound      = fmt.Errorf("value %w", ErrNotFound)
	ErrStateDefNotFound   = fmt.Errorf("state definition %w", ErrNotFound)
	ErrStateEntryNotFound = fmt.Errorf("state entry %w", ErrNotFound)
	ErrRewardNotFound     = fmt.Errorf("reward %w", ErrNotFound)
)

// ValidationError 描述单个字段的校验失败，errors.Is(err, ErrValidation) 为真
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is 让 ValidationError 归入 ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
