package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/habitkit/internal/service"
)

type createValueInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type updateValueInput struct {
	ID          string  `json:"id" binding:"required"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	SortOrder   *int    `json:"sortOrder"`
}

type createStateDefInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	ScaleMin    *int   `json:"scaleMin"`
	ScaleMax    *int   `json:"scaleMax"`
}

type updateStateDefInput struct {
	ID          string  `json:"id" binding:"required"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ScaleMin    *int    `json:"scaleMin"`
	ScaleMax    *int    `json:"scaleMax"`
}

type getStateEntriesInput struct {
	DefID string `json:"defId" binding:"required"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type createStateEntryInput struct {
	DefID string `json:"defId" binding:"required"`
	Value int    `json:"value"`
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

type createRewardInput struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	PointsCost  int    `json:"pointsCost" binding:"required"`
}

type updateRewardInput struct {
	ID          string  `json:"id" binding:"required"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PointsCost  *int    `json:"pointsCost"`
}

type redemptionsInput struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=100"`
}

func (a *API) registerValueProcedures() {
	values := a.svc.Values

	query(a, "value.getValues", func(rc *RequestContext, in listInput) (any, error) {
		list, err := values.List(rc.Ctx, rc.UserID, in.IncludeArchived)
		if err != nil {
			return nil, err
		}
		return valuesToPayload(list), nil
	})

	mutation(a, "value.createValue", func(rc *RequestContext, in createValueInput) (any, error) {
		value, err := values.Create(rc.Ctx, rc.UserID, service.ValueInput{Title: in.Title, Description: in.Description})
		if err != nil {
			return nil, err
		}
		return valueToPayload(*value), nil
	})

	mutation(a, "value.updateValue", func(rc *RequestContext, in updateValueInput) (any, error) {
		value, err := values.Update(rc.Ctx, rc.UserID, in.ID, service.ValuePatch{
			Title:       in.Title,
			Description: in.Description,
			SortOrder:   in.SortOrder,
		})
		if err != nil {
			return nil, err
		}
		return valueToPayload(*value), nil
	})

	mutation(a, "value.archiveValue", func(rc *RequestContext, in idInput) (any, error) {
		value, err := values.Archive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return valueToPayload(*value), nil
	})

	mutation(a, "value.deleteValue", func(rc *RequestContext, in idInput) (any, error) {
		if err := values.Delete(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})
}

func (a *API) registerStateProcedures() {
	states := a.svc.States

	query(a, "state.getDefs", func(rc *RequestContext, in listInput) (any, error) {
		defs, err := states.ListDefs(rc.Ctx, rc.UserID, in.IncludeArchived)
		if err != nil {
			return nil, err
		}
		items := make([]gin.H, 0, len(defs))
		for _, def := range defs {
			items = append(items, stateDefToPayload(def))
		}
		return items, nil
	})

	mutation(a, "state.createDef", func(rc *RequestContext, in createStateDefInput) (any, error) {
		def, err := states.CreateDef(rc.Ctx, rc.UserID, service.StateDefInput{
			Name:        in.Name,
			Description: in.Description,
			ScaleMin:    in.ScaleMin,
			ScaleMax:    in.ScaleMax,
		})
		if err != nil {
			return nil, err
		}
		return stateDefToPayload(*def), nil
	})

	mutation(a, "state.updateDef", func(rc *RequestContext, in updateStateDefInput) (any, error) {
		def, err := states.UpdateDef(rc.Ctx, rc.UserID, in.ID, service.StateDefPatch{
			Name:        in.Name,
			Description: in.Description,
			ScaleMin:    in.ScaleMin,
			ScaleMax:    in.ScaleMax,
		})
		if err != nil {
			return nil, err
		}
		return stateDefToPayload(*def), nil
	})

	mutation(a, "state.archiveDef", func(rc *RequestContext, in idInput) (any, error) {
		def, err := states.ArchiveDef(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return stateDefToPayload(*def), nil
	})

	query(a, "state.getEntries", func(rc *RequestContext, in getStateEntriesInput) (any, error) {
		entries, err := states.ListEntries(rc.Ctx, rc.UserID, service.StateEntryFilter{
			StateDefID: in.DefID,
			From:       in.From,
			To:         in.To,
		})
		if err != nil {
			return nil, err
		}
		items := make([]gin.H, 0, len(entries))
		for _, entry := range entries {
			items = append(items, stateEntryToPayload(entry))
		}
		return items, nil
	})

	mutation(a, "state.createEntry", func(rc *RequestContext, in createStateEntryInput) (any, error) {
		entry, err := states.CreateEntry(rc.Ctx, rc.UserID, service.StateEntryInput{
			StateDefID: in.DefID,
			Value:      in.Value,
			Date:       in.Date,
			Notes:      in.Notes,
		})
		if err != nil {
			return nil, err
		}
		return stateEntryToPayload(*entry), nil
	})

	mutation(a, "state.deleteEntry", func(rc *RequestContext, in idInput) (any, error) {
		if err := states.DeleteEntry(rc.Ctx, rc.UserID, in.ID); err != nil {
			return nil, err
		}
		return deleted(in.ID), nil
	})
}

func (a *API) registerRewardProcedures() {
	rewards := a.svc.Rewards

	query(a, "rewards.getRewards", func(rc *RequestContext, in listInput) (any, error) {
		list, err := rewards.List(rc.Ctx, rc.UserID, in.IncludeArchived)
		if err != nil {
			return nil, err
		}
		items := make([]gin.H, 0, len(list))
		for _, reward := range list {
			items = append(items, rewardToPayload(reward))
		}
		return items, nil
	})

	mutation(a, "rewards.createReward", func(rc *RequestContext, in createRewardInput) (any, error) {
		reward, err := rewards.Create(rc.Ctx, rc.UserID, service.RewardInput{
			Title:       in.Title,
			Description: in.Description,
			PointsCost:  in.PointsCost,
		})
		if err != nil {
			return nil, err
		}
		return rewardToPayload(*reward), nil
	})

	mutation(a, "rewards.updateReward", func(rc *RequestContext, in updateRewardInput) (any, error) {
		reward, err := rewards.Update(rc.Ctx, rc.UserID, in.ID, service.RewardPatch{
			Title:       in.Title,
			Description: in.Description,
			PointsCost:  in.PointsCost,
		})
		if err != nil {
			return nil, err
		}
		return rewardToPayload(*reward), nil
	})

	mutation(a, "rewards.archiveReward", func(rc *RequestContext, in idInput) (any, error) {
		reward, err := rewards.Archive(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return rewardToPayload(*reward), nil
	})

	mutation(a, "rewards.redeemReward", func(rc *RequestContext, in idInput) (any, error) {
		redemption, err := rewards.Redeem(rc.Ctx, rc.UserID, in.ID)
		if err != nil {
			return nil, err
		}
		return gin.H{
			"redemption":      redemptionToPayload(redemption.Record),
			"reward":          rewardToPayload(redemption.Reward),
			"remainingPoints": redemption.RemainingPoints,
		}, nil
	})

	query(a, "rewards.getRedemptions", func(rc *RequestContext, in redemptionsInput) (any, error) {
		records, err := rewards.Redemptions(rc.Ctx, rc.UserID, in.Limit)
		if err != nil {
			return nil, err
		}
		items := make([]gin.H, 0, len(records))
		for _, record := range records {
			items = append(items, redemptionToPayload(record))
		}
		return items, nil
	})
}
