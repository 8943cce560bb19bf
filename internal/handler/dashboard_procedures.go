package handler

import (
	"github.com/habitkit/internal/service"
)

type updateProfileInput struct {
	DisplayName *string `json:"displayName"`
	Timezone    *string `json:"timezone"`
}

type getDashboardInput struct {
	HabitLimit int `json:"habitLimit" binding:"omitempty,min=1,max=50"`
	GoalLimit  int `json:"goalLimit" binding:"omitempty,min=1,max=50"`
	TaskLimit  int `json:"taskLimit" binding:"omitempty,min=1,max=50"`
	EntryLimit int `json:"entryLimit" binding:"omitempty,min=1,max=50"`
}

type weeklyProgressInput struct {
	Days int `json:"days"`
}

func (a *API) registerUserProcedures() {
	profiles := a.svc.Profiles

	query(a, "user.getProfile", func(rc *RequestContext, _ struct{}) (any, error) {
		profile, err := profiles.Get(rc.Ctx, rc.UserID)
		if err != nil {
			return nil, err
		}
		return profileToPayload(*profile), nil
	})

	mutation(a, "user.updateProfile", func(rc *RequestContext, in updateProfileInput) (any, error) {
		profile, err := profiles.Update(rc.Ctx, rc.UserID, service.ProfilePatch{
			DisplayName: in.DisplayName,
			Timezone:    in.Timezone,
		})
		if err != nil {
			return nil, err
		}
		return profileToPayload(*profile), nil
	})
}

func (a *API) registerDashboardProcedures() {
	dashboard := a.svc.Dashboard

	query(a, "dashboard.getDashboard", func(rc *RequestContext, in getDashboardInput) (any, error) {
		dash, err := dashboard.Get(rc.Ctx, rc.UserID, service.DashboardOptions{
			HabitLimit: in.HabitLimit,
			GoalLimit:  in.GoalLimit,
			TaskLimit:  in.TaskLimit,
			EntryLimit: in.EntryLimit,
		})
		if err != nil {
			return nil, err
		}
		return dashboardToPayload(dash), nil
	})

	// 天数范围由服务层校验
	query(a, "dashboard.getWeeklyProgress", func(rc *RequestContext, in weeklyProgressInput) (any, error) {
		progress, err := dashboard.Weekly(rc.Ctx, rc.UserID, in.Days)
		if err != nil {
			return nil, err
		}
		return weeklyToPayload(progress), nil
	})
}
