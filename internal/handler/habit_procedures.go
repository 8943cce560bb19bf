package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/service"
)

type idInput struct {
	ID string `json:"id" binding:"required"`
}

type listInput struct {
	IncludeArchived bool `json:"includeArchived"`
}

type createHabitInput struct {
	Title        string   `json:"title" binding:"required"`
	Cue          string   `json:"cue"`
	Routine      string   `json:"routine"`
	Reward       string   `json:"reward"`
	HabitType    string   `json:"habitType"`
	GoalQuantity *float64 `json:"goalQuantity"`
	GoalUnit     string   `json:"goalUnit"`
	Recurrence   string   `json:"recurrence"`
}

type updateHabitInput struct {
	ID           string        `json:"id" binding:"required"`
	Title        *string       `json:"title"`
	Cue          *string       `json:"cue"`
	Routine      *string       `json:"routine"`
	Reward       *string       `json:"reward"`
	HabitType    *string       `json:"habitType"`
	GoalQuantity nullableFloat `json:"goalQuantity"`
	GoalUnit     *string       `json:"goalUnit"`
	Recurrence   *string       `json:"recurrence"`
	SortOrder    *int          `json:"sortOrder"`
}

type reorderHabitsInput struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type getEntriesInput struct {
	HabitID string `json:"habitId" binding:"required"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type createEntryInput struct {
	HabitID       string   `json:"habitId" binding:"required"`
	Date          string   `json:"date" binding:"required"`
	Completed     *bool    `json:"completed"`
	QuantityValue *float64 `json:"quantityValue"`
	Notes         *string  `json:"notes"`
}

type updateEntryInput struct {
	ID            string   `json:"id" binding:"required"`
	Date          *string  `json:"date"`
	Completed     *bool    `json:"completed"`
	QuantityValue *float64 `json:"quantityValue"`
	Notes         *string  `json:"notes"`
}

func (a *API) registerHabitProcedures() {
	habits, entries, streaks := a.svc.Habits, a.svc.Entries, a.svc.Streaks

	query(a, "habit.getHabits", func(rc *RequestContext, in listInput) (any, error) {
		list, err := habits.List(rc.Ctx, rc.UserID, service.HabitFilter{IncludeArchived: in.IncludeArchived})
		if err != nil {
			return nil, err
		}
		return habitsToPayload(list), nil
	})

	query(a, "habit.getHabitById", func(rc *RequestContext, in idInput) (any, error) {
		habit, err := habits.Get(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return habitToPayload(*habit), nil
	})

	mutation(a, "habit.createHabit", func(rc *RequestContext, in createHabitInput) (any, error) {
		habit, err := habits.Create(rc.Ctx, rc.UserID, service.HabitInput{
			Title:        in.Title,
			Cue:          in.Cue,
			Routine:      in.Routine,
			Reward:       in.Reward,
			HabitType:    in.HabitType,
			GoalQuantity: in.GoalQuantity,
			GoalUnit:     in.GoalUnit,
			Recurrence:   in.Recurrence,
		})
		if err != nil {
			return nil, err
		}
		return habitToPayload(*habit), nil
	})

	mutation(a, "habit.updateHabit", func(rc *RequestContext, in updateHabitInput) (any, error) {
		habit, err := habits.Update(rc.Ctx, rc.UserID, in.ID, service.HabitPatch{
			Title:        in.Title,
			Cue:          in.Cue,
			Routine:      in.Routine,
			Reward:       in.Reward,
			HabitType:    in.HabitType,
			GoalQuantity: in.GoalQuantity.Value,
			ClearGoal:    in.GoalQuantity.cleared(),
			GoalUnit:     in.GoalUnit,
			Recurrence:   in.Recurrence,
			SortOrder:    in.SortOrder,
		})
		if err != nil {
			return nil, err
		}
		return habitToPayload(*habit), nil
	})

	mutation(a, "habit.archiveHabit", func(rc *RequestContext, in idInput) (any, error) {
		habit, err := habits.Archive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return habitToPayload(*habit), nil
	})

	mutation(a, "habit.unarchiveHabit", func(rc *RequestContext, in idInput) (any, error) {
		habit, err := habits.Unarchive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return habitToPayload(*habit), nil
	})

	mutation(a, "habit.deleteHabit", func(rc *RequestContext, in idInput) (any, error) {
		if err := habits.Delete(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})

	mutation(a, "habit.reorderHabits", func(rc *RequestContext, in reorderHabitsInput) (any, error) {
		list, err := habits.Reorder(rc.Ctx, rc.UserID, in.IDs)
		if err != nil {
			return nil, err
		}
		return habitsToPayload(list), nil
	})

	query(a, "habit.getEntries", func(rc *RequestContext, in getEntriesInput) (any, error) {
		list, err := entries.List(rc.Ctx, rc.UserID, service.HabitEntryFilter{HabitID: in.HabitID, From: in.From, To: in.To})
		if err != nil {
			return nil, err
		}
		return entriesToPayload(list), nil
	})

	mutation(a, "habit.createEntry", func(rc *RequestContext, in createEntryInput) (any, error) {
		entry, err := entries.Create(rc.Ctx, rc.UserID, service.HabitEntryInput{
			HabitID:       in.HabitID,
			Date:          in.Date,
			Completed:     in.Completed,
			QuantityValue: in.QuantityValue,
			Notes:         in.Notes,
		})
		if err != nil {
			return nil, err
		}
		return entryToPayload(*entry), nil
	})

	mutation(a, "habit.updateEntry", func(rc *RequestContext, in updateEntryInput) (any, error) {
		entry, err := entries.Update(rc.Ctx, rc.UserID, in.ID, service.HabitEntryPatch{
			Date:          in.Date,
			Completed:     in.Completed,
			QuantityValue: in.QuantityValue,
			Notes:         in.Notes,
		})
		if err != nil {
			return nil, err
		}
		return entryToPayload(*entry), nil
	})

	mutation(a, "habit.deleteEntry", func(rc *RequestContext, in idInput) (any, error) {
		if err := entries.Delete(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})

	// 手动重算，正常情况下由打卡事件触发
	mutation(a, "habit.recomputeStreak", func(rc *RequestContext, in idInput) (any, error) {
		result, err := streaks.Recompute(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return gin.H{"habitId": result.HabitID, "streak": result.Current, "bestStreak": result.Best}, nil
	})
}
