package handler

import (
	"github.com/habitkit/internal/service"
)

type getTasksInput struct {
	Status          string `json:"status"`
	GoalID          string `json:"goalId"`
	IncludeArchived bool   `json:"includeArchived"`
}

type createTaskInput struct {
	Title        string  `json:"title" binding:"required"`
	Notes        string  `json:"notes"`
	Status       string  `json:"status"`
	Priority     string  `json:"priority"`
	DueDate      *string `json:"dueDate"`
	GoalID       *string `json:"goalId"`
	ParentTaskID *string `json:"parentTaskId"`
}

type updateTaskInput struct {
	ID           string         `json:"id" binding:"required"`
	Title        *string        `json:"title"`
	Notes        *string        `json:"notes"`
	Status       *string        `json:"status"`
	Priority     *string        `json:"priority"`
	DueDate      nullableString `json:"dueDate"`
	GoalID       nullableString `json:"goalId"`
	ParentTaskID nullableString `json:"parentTaskId"`
}

type setTaskStatusInput struct {
	ID     string `json:"id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

func (a *API) registerTaskProcedures() {
	tasks := a.svc.Tasks

	query(a, "task.getTasks", func(rc *RequestContext, in getTasksInput) (any, error) {
		list, err := tasks.List(rc.Ctx, rc.UserID, service.TaskFilter{
			Status:          in.Status,
			GoalID:          in.GoalID,
			IncludeArchived: in.IncludeArchived,
		})
		if err != nil {
			return nil, err
		}
		return tasksToPayload(list), nil
	})

	query(a, "task.getTaskById", func(rc *RequestContext, in idInput) (any, error) {
		detail, err := tasks.GetDetail(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		payload := taskToPayload(detail.Task)
		payload["subtasks"] = tasksToPayload(detail.Subtasks)
		return payload, nil
	})

	mutation(a, "task.createTask", func(rc *RequestContext, in createTaskInput) (any, error) {
		task, err := tasks.Create(rc.Ctx, rc.UserID, service.TaskInput{
			Title:        in.Title,
			Notes:        in.Notes,
			Status:       in.Status,
			Priority:     in.Priority,
			DueDate:      in.DueDate,
			GoalID:       in.GoalID,
			ParentTaskID: in.ParentTaskID,
		})
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.updateTask", func(rc *RequestContext, in updateTaskInput) (any, error) {
		task, err := tasks.Update(rc.Ctx, rc.UserID, in.ID, service.TaskPatch{
			Title:        in.Title,
			Notes:        in.Notes,
			Status:       in.Status,
			Priority:     in.Priority,
			DueDate:      in.DueDate.patch(),
			GoalID:       in.GoalID.patch(),
			ParentTaskID: in.ParentTaskID.patch(),
		})
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.toggleTask", func(rc *RequestContext, in idInput) (any, error) {
		task, err := tasks.Toggle(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.setTaskStatus", func(rc *RequestContext, in setTaskStatusInput) (any, error) {
		task, err := tasks.SetStatus(rc.Ctx, rc.UserID, in.ID, in.Status)
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.archiveTask", func(rc *RequestContext, in idInput) (any, error) {
		task, err := tasks.Archive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.unarchiveTask", func(rc *RequestContext, in idInput) (any, error) {
		task, err := tasks.Unarchive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return taskToPayload(*task), nil
	})

	mutation(a, "task.deleteTask", func(rc *RequestContext, in idInput) (any, error) {
		if err := tasks.Delete(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})
}
