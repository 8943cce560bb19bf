package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/habitkit/internal/db"
	"github.com/habitkit/internal/events"
	"gorm.io/gorm"
)

// TaskService 负责任务的增删改查。
// 影响目标进度或完成状态的写操作会发布 TaskChanged 事件
type TaskService struct {
	db    *gorm.DB
	goals *GoalService
	bus   *events.Bus
	now   func() time.Time
}

// TaskFilter 描述任务列表过滤条件
type TaskFilter struct {
	Status          string
	GoalID          string
	IncludeArchived bool
}

// TaskInput 定义创建任务时的字段
type TaskInput struct {
	Title        string
	Notes        string
	Status       string
	Priority     string
	DueDate      *string
	GoalID       *string
	ParentTaskID *string
}

// TaskPatch 定义更新任务时的可选字段。
// DueDate/GoalID/ParentTaskID 指向空字符串表示清空
type TaskPatch struct {
	Title        *string
	Notes        *string
	Status       *string
	Priority     *string
	DueDate      *string
	GoalID       *string
	ParentTaskID *string
}

// TaskDetail 是任务及其子任务
type TaskDetail struct {
	Task     db.Task
	Subtasks []db.Task
}

// NewTaskService 构造 TaskService
func NewTaskService(gdb *gorm.DB, goals *GoalService, bus *events.Bus) *TaskService {
	return &TaskService{db: gdb, goals: goals, bus: bus, now: time.Now}
}

// List 返回用户的任务，按截止日期升序（无截止日期排最后）
func (s *TaskService) List(ctx context.Context, userID string, filter TaskFilter) ([]db.Task, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if filter.Status != "" {
		status, err := normalizeTaskStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		query = query.Where("status = ?", status)
	}
	if goalID := strings.TrimSpace(filter.GoalID); goalID != "" {
		query = query.Where("goal_id = ?", goalID)
	}

	var tasks []db.Task
	if err := query.
		Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC, created_at ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get 根据 ID 获取任务
func (s *TaskService) Get(ctx context.Context, userID, id string) (*db.Task, error) {
	var task db.Task
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

// GetDetail 返回任务及其子任务
func (s *TaskService) GetDetail(ctx context.Context, userID, id string) (*TaskDetail, error) {
	task, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	var subtasks []db.Task
	if err := s.db.WithContext(ctx).
		Where("parent_task_id = ? AND user_id = ?", id, userID).
		Order("created_at ASC").
		Find(&subtasks).Error; err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	return &TaskDetail{Task: *task, Subtasks: subtasks}, nil
}

// Create 新建任务；关联目标时会触发目标进度重算
func (s *TaskService) Create(ctx context.Context, userID string, input TaskInput) (*db.Task, error) {
	title, err := requireTitle("title", input.Title)
	if err != nil {
		return nil, err
	}
	notes, err := limitText("notes", cleanText(input.Notes))
	if err != nil {
		return nil, err
	}
	status, err := normalizeTaskStatus(input.Status)
	if err != nil {
		return nil, err
	}
	priority, err := normalizeTaskPriority(input.Priority)
	if err != nil {
		return nil, err
	}
	due, err := parseOptionalDate("dueDate", input.DueDate)
	if err != nil {
		return nil, err
	}
	goalID, err := s.resolveGoal(ctx, userID, optionalID(input.GoalID))
	if err != nil {
		return nil, err
	}
	parentID, err := s.resolveParent(ctx, userID, "", optionalID(input.ParentTaskID))
	if err != nil {
		return nil, err
	}

	task := db.Task{
		UserID:       userID,
		Title:        title,
		Notes:        notes,
		Status:       status,
		Priority:     priority,
		DueDate:      due,
		GoalID:       goalID,
		ParentTaskID: parentID,
	}
	if task.IsDone() {
		completedAt := s.now().UTC()
		task.CompletedAt = &completedAt
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.publish(ctx, userID, task.ID, goalIDs(task.GoalID), completionChange(false, task.IsDone()))
	return &task, nil
}

// Update 修改任务；状态、目标关联变化时触发派生状态更新
func (s *TaskService) Update(ctx context.Context, userID, id string, patch TaskPatch) (*db.Task, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
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
	if patch.Notes != nil {
		notes, err := limitText("notes", cleanText(*patch.Notes))
		if err != nil {
			return nil, err
		}
		updates["notes"] = notes
	}
	if patch.Priority != nil {
		priority, err := normalizeTaskPriority(*patch.Priority)
		if err != nil {
			return nil, err
		}
		updates["priority"] = priority
	}
	if patch.DueDate != nil {
		due, err := parseOptionalDate("dueDate", patch.DueDate)
		if err != nil {
			return nil, err
		}
		updates["due_date"] = due
	}

	newGoal := existing.GoalID
	if patch.GoalID != nil {
		newGoal, err = s.resolveGoal(ctx, userID, optionalID(patch.GoalID))
		if err != nil {
			return nil, err
		}
		updates["goal_id"] = newGoal
	}
	if patch.ParentTaskID != nil {
		parentID, err := s.resolveParent(ctx, userID, id, optionalID(patch.ParentTaskID))
		if err != nil {
			return nil, err
		}
		updates["parent_task_id"] = parentID
	}

	newStatus := existing.Status
	if patch.Status != nil {
		newStatus, err = normalizeTaskStatus(*patch.Status)
		if err != nil {
			return nil, err
		}
		s.applyStatus(updates, existing, newStatus)
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&db.Task{}).
			Where("id = ? AND user_id = ?", id, userID).
			Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
	}

	change := completionChange(existing.IsDone(), newStatus == db.TaskStatusDone)
	var affected []string
	if !sameOptional(existing.GoalID, newGoal) {
		affected = append(goalIDs(existing.GoalID), goalIDs(newGoal)...)
	} else if change != 0 {
		affected = goalIDs(newGoal)
	}
	s.publish(ctx, userID, id, affected, change)

	return s.Get(ctx, userID, id)
}

// Toggle 在 done 与 todo 之间切换
func (s *TaskService) Toggle(ctx context.Context, userID, id string) (*db.Task, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	next := db.TaskStatusDone
	if existing.IsDone() {
		next = db.TaskStatusTodo
	}
	return s.SetStatus(ctx, userID, id, next)
}

// SetStatus 直接设置任务状态
func (s *TaskService) SetStatus(ctx context.Context, userID, id, status string) (*db.Task, error) {
	return s.Update(ctx, userID, id, TaskPatch{Status: &status})
}

// Archive 归档任务，关联目标的进度不再计入该任务
func (s *TaskService) Archive(ctx context.Context, userID, id string) (*db.Task, error) {
	return s.setArchived(ctx, userID, id, true)
}

// Unarchive 恢复任务
func (s *TaskService) Unarchive(ctx context.Context, userID, id string) (*db.Task, error) {
	return s.setArchived(ctx, userID, id, false)
}

func (s *TaskService) setArchived(ctx context.Context, userID, id string, archived bool) (*db.Task, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if (existing.ArchivedAt != nil) == archived {
		return existing, nil
	}

	var value any
	if archived {
		value = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Model(&db.Task{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("archived_at", value).Error; err != nil {
		return nil, fmt.Errorf("archive task: %w", err)
	}

	s.publish(ctx, userID, id, goalIDs(existing.GoalID), 0)
	return s.Get(ctx, userID, id)
}

// Delete 删除任务及其子任务
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	var subtasks []db.Task
	if err := s.db.WithContext(ctx).
		Select("id", "goal_id").
		Where("parent_task_id = ? AND user_id = ?", id, userID).
		Find(&subtasks).Error; err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_task_id = ? AND user_id = ?", id, userID).Delete(&db.Task{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&db.Task{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	affected := goalIDs(existing.GoalID)
	for _, sub := range subtasks {
		affected = append(affected, goalIDs(sub.GoalID)...)
	}
	s.publish(ctx, userID, id, affected, 0)
	return nil
}

func (s *TaskService) applyStatus(updates map[string]any, existing *db.Task, status string) {
	updates["status"] = status
	switch {
	case status == db.TaskStatusDone && !existing.IsDone():
		updates["completed_at"] = s.now().UTC()
	case status != db.TaskStatusDone:
		updates["completed_at"] = nil
	}
}

func (s *TaskService) resolveGoal(ctx context.Context, userID string, goalID *string) (*string, error) {
	if goalID == nil {
		return nil, nil
	}
	if _, err := s.goals.Get(ctx, userID, *goalID); err != nil {
		return nil, err
	}
	return goalID, nil
}

// resolveParent 校验父任务归属当前用户且本身是顶层任务
func (s *TaskService) resolveParent(ctx context.Context, userID, selfID string, parentID *string) (*string, error) {
	if parentID == nil {
		return nil, nil
	}
	if *parentID == selfID {
		return nil, invalid("parentTaskId", "a task cannot be its own parent")
	}
	parent, err := s.Get(ctx, userID, *parentID)
	if err != nil {
		return nil, err
	}
	if parent.ParentTaskID != nil {
		return nil, invalid("parentTaskId", "subtasks cannot have subtasks")
	}
	if selfID != "" {
		var children int64
		if err := s.db.WithContext(ctx).Model(&db.Task{}).
			Where("parent_task_id = ? AND user_id = ?", selfID, userID).
			Count(&children).Error; err != nil {
			return nil, fmt.Errorf("count subtasks: %w", err)
		}
		if children > 0 {
			return nil, invalid("parentTaskId", "a task with subtasks cannot become a subtask")
		}
	}
	return parentID, nil
}

func (s *TaskService) publish(ctx context.Context, userID, taskID string, goals []string, change int) {
	if len(goals) == 0 && change == 0 {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Kind:             events.TaskChanged,
		UserID:           userID,
		TaskID:           taskID,
		GoalIDs:          goals,
		CompletionChange: change,
	})
}

func goalIDs(goalID *string) []string {
	if goalID == nil || *goalID == "" {
		return nil
	}
	return []string{*goalID}
}

func normalizeTaskStatus(raw string) (string, error) {
	status := strings.ToLower(strings.TrimSpace(raw))
	if status == "" {
		return db.TaskStatusTodo, nil
	}
	switch status {
	case db.TaskStatusTodo, db.TaskStatusDoing, db.TaskStatusDone, db.TaskStatusBlocked, db.TaskStatusPending:
		return status, nil
	}
	return "", invalidf("status", "unsupported status %s", raw)
}

func normalizeTaskPriority(raw string) (string, error) {
	priority := strings.ToLower(strings.TrimSpace(raw))
	if priority == "" {
		return db.TaskPriorityMedium, nil
	}
	switch priority {
	case db.TaskPriorityLow, db.TaskPriorityMedium, db.TaskPriorityHigh:
		return priority, nil
	}
	return "", invalidf("priority", "unsupported priority %s", raw)
}
