package handler

import (
	"github.com/habitkit/internal/service"
)

type createGoalInput struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	TargetDate  *string `json:"targetDate"`
}

type updateGoalInput struct {
	ID          string         `json:"id" binding:"required"`
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	TargetDate  nullableString `json:"targetDate"`
	SortOrder   *int           `json:"sortOrder"`
}

func (a *API) registerGoalProcedures() {
	goals := a.svc.Goals

	query(a, "goal.getGoals", func(rc *RequestContext, in listInput) (any, error) {
		list, err := goals.List(rc.Ctx, rc.UserID, service.GoalFilter{IncludeArchived: in.IncludeArchived})
		if err != nil {
			return nil, err
		}
		return goalsToPayload(list), nil
	})

	query(a, "goal.getGoalById", func(rc *RequestContext, in idInput) (any, error) {
		detail, err := goals.GetDetail(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		payload := goalToPayload(detail.Goal)
		payload["tasks"] = tasksToPayload(detail.Tasks)
		return payload, nil
	})

	mutation(a, "goal.createGoal", func(rc *RequestContext, in createGoalInput) (any, error) {
		goal, err := goals.Create(rc.Ctx, rc.UserID, service.GoalInput{
			Title:       in.Title,
			Description: in.Description,
			TargetDate:  in.TargetDate,
		})
		if err != nil {
			return nil, err
		}
		return goalToPayload(*goal), nil
	})

	mutation(a, "goal.updateGoal", func(rc *RequestContext, in updateGoalInput) (any, error) {
		goal, err := goals.Update(rc.Ctx, rc.UserID, in.ID, service.GoalPatch{
			Title:       in.Title,
			Description: in.Description,
			TargetDate:  in.TargetDate.patch(),
			SortOrder:   in.SortOrder,
		})
		if err != nil {
			return nil, err
		}
		return goalToPayload(*goal), nil
	})

	mutation(a, "goal.archiveGoal", func(rc *RequestContext, in idInput) (any, error) {
		goal, err := goals.Archive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return goalToPayload(*goal), nil
	})

	mutation(a, "goal.unarchiveGoal", func(rc *RequestContext, in idInput) (any, error) {
		goal, err := goals.Unarchive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return goalToPayload(*goal), nil
	})

	mutation(a, "goal.deleteGoal", func(rc *RequestContext, in idInput) (any, error) {
		if err := goals.Delete(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})
}
