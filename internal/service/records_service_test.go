package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/habitkit/internal/db"
)

func TestValueServiceCRUD(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	value, err := env.values.Create(ctx, "user-1", ValueInput{Title: "Honesty", Description: "Say **what** you mean"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if html := RenderMarkdown(value.Description); !strings.Contains(html, "<strong>what</strong>") {
		t.Fatalf("expected rendered markdown, got %q", html)
	}

	title := "Candor"
	updated, err := env.values.Update(ctx, "user-1", value.ID, ValuePatch{Title: &title})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("expected title %q, got %q", title, updated.Title)
	}

	if _, err := env.values.Archive(ctx, "user-1", value.ID); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	values, _ := env.values.List(ctx, "user-1", false)
	if len(values) != 0 {
		t.Fatalf("expected archived value to be hidden, got %d", len(values))
	}

	if err := env.values.Delete(ctx, "user-1", value.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := env.values.Get(ctx, "user-1", value.ID); !errors.Is(err, ErrValueNotFound) {
		t.Fatalf("expected ErrValueNotFound, got %v", err)
	}
}

func TestRenderMarkdownStripsScripts(t *testing.T) {
	html := RenderMarkdown("hello <script>alert(1)</script>")
	if strings.Contains(html, "<script>") {
		t.Fatalf("expected script to be removed, got %q", html)
	}
	if RenderMarkdown("   ") != "" {
		t.Fatal("expected empty output for blank markdown")
	}
}

func TestStateServiceScaleValidation(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	def, err := env.states.CreateDef(ctx, "user-1", StateDefInput{Name: "Mood"})
	if err != nil {
		t.Fatalf("CreateDef returned error: %v", err)
	}
	if def.ScaleMin != 1 || def.ScaleMax != 5 {
		t.Fatalf("expected default scale 1..5, got %d..%d", def.ScaleMin, def.ScaleMax)
	}

	minValue, maxValue := 5, 5
	if _, err := env.states.CreateDef(ctx, "user-1", StateDefInput{Name: "Broken", ScaleMin: &minValue, ScaleMax: &maxValue}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty scale, got %v", err)
	}

	if _, err := env.states.CreateEntry(ctx, "user-1", StateEntryInput{StateDefID: def.ID, Value: 6, Date: daysAgo(0)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for out-of-range value, got %v", err)
	}

	entry, err := env.states.CreateEntry(ctx, "user-1", StateEntryInput{StateDefID: def.ID, Value: 4, Date: daysAgo(0), Notes: "good day"})
	if err != nil {
		t.Fatalf("CreateEntry returned error: %v", err)
	}
	env.states.CreateEntry(ctx, "user-1", StateEntryInput{StateDefID: def.ID, Value: 2, Date: daysAgo(5)})

	recent, err := env.states.ListEntries(ctx, "user-1", StateEntryFilter{StateDefID: def.ID, From: daysAgo(2)})
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != entry.ID {
		t.Fatalf("expected only the recent entry, got %+v", recent)
	}

	if err := env.states.DeleteEntry(ctx, "user-2", entry.ID); !errors.Is(err, ErrStateEntryNotFound) {
		t.Fatalf("expected not found deleting foreign entry, got %v", err)
	}
	if err := env.states.DeleteEntry(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("DeleteEntry returned error: %v", err)
	}

	narrow := 3
	updated, err := env.states.UpdateDef(ctx, "user-1", def.ID, StateDefPatch{ScaleMax: &narrow})
	if err != nil {
		t.Fatalf("UpdateDef returned error: %v", err)
	}
	if updated.ScaleMax != 3 {
		t.Fatalf("expected scale max 3, got %d", updated.ScaleMax)
	}
	if _, err := env.states.ArchiveDef(ctx, "user-1", def.ID); err != nil {
		t.Fatalf("ArchiveDef returned error: %v", err)
	}
	defs, _ := env.states.ListDefs(ctx, "user-1", false)
	if len(defs) != 0 {
		t.Fatalf("expected archived def to be hidden, got %d", len(defs))
	}
}

func TestPointsAwardedForCheckInsAndTasks(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	habit := env.mustHabit(t, "user-1", "Run")
	entry := env.checkIn(t, "user-1", habit.ID, daysAgo(0), true)
	// 重复打卡不重复计分
	env.checkIn(t, "user-1", habit.ID, daysAgo(0), true)

	task := env.mustTask(t, "user-1", TaskInput{Title: "Ship"})
	if _, err := env.tasks.Toggle(ctx, "user-1", task.ID); err != nil {
		t.Fatalf("Toggle returned error: %v", err)
	}

	balance, err := env.points.Balance(ctx, "user-1")
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if balance != 15 {
		t.Fatalf("expected 15 points, got %d", balance)
	}

	if err := env.entries.Delete(ctx, "user-1", entry.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	balance, _ = env.points.Balance(ctx, "user-1")
	if balance != 5 {
		t.Fatalf("expected undo to take back check-in points, got %d", balance)
	}

	if err := env.points.Adjust(ctx, "user-1", -100); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	balance, _ = env.points.Balance(ctx, "user-1")
	if balance != 0 {
		t.Fatalf("expected points to floor at 0, got %d", balance)
	}
}

func TestRewardRedemption(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	reward, err := env.rewards.Create(ctx, "user-1", RewardInput{Title: "Movie night", PointsCost: 30})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := env.rewards.Create(ctx, "user-1", RewardInput{Title: "Free", PointsCost: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for non-positive cost, got %v", err)
	}

	if err := env.points.Adjust(ctx, "user-1", 20); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	if _, err := env.rewards.Redeem(ctx, "user-1", reward.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for insufficient points, got %v", err)
	}
	balance, _ := env.points.Balance(ctx, "user-1")
	if balance != 20 {
		t.Fatalf("expected points unchanged after failed redemption, got %d", balance)
	}
	var count int64
	env.db.Model(&db.UserReward{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no redemption record, got %d", count)
	}

	if err := env.points.Adjust(ctx, "user-1", 15); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	redemption, err := env.rewards.Redeem(ctx, "user-1", reward.ID)
	if err != nil {
		t.Fatalf("Redeem returned error: %v", err)
	}
	if redemption.RemainingPoints != 5 || redemption.Record.PointsSpent != 30 {
		t.Fatalf("unexpected redemption: %+v", redemption)
	}

	history, err := env.rewards.Redemptions(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("Redemptions returned error: %v", err)
	}
	if len(history) != 1 || history[0].RewardID != reward.ID {
		t.Fatalf("expected one redemption, got %+v", history)
	}

	if _, err := env.rewards.Redeem(ctx, "user-2", reward.ID); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected not found redeeming foreign reward, got %v", err)
	}

	if _, err := env.rewards.Archive(ctx, "user-1", reward.ID); err != nil {
		t.Fatalf("Archive returned error: %v", err)
	}
	if _, err := env.rewards.Redeem(ctx, "user-1", reward.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected archived reward to be rejected, got %v", err)
	}
}

func TestProfileServiceTimezone(t *testing.T) {
	env := setupServiceTest(t)
	ctx := context.Background()

	profile, err := env.profiles.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if profile.ID != "user-1" || profile.Points != 0 {
		t.Fatalf("unexpected new profile: %+v", profile)
	}

	bad := "Mars/Olympus"
	if _, err := env.profiles.Update(ctx, "user-1", ProfilePatch{Timezone: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown timezone, got %v", err)
	}

	tz, name := "Asia/Shanghai", "  Lin  "
	updated, err := env.profiles.Update(ctx, "user-1", ProfilePatch{Timezone: &tz, DisplayName: &name})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Timezone != tz || updated.DisplayName != "Lin" {
		t.Fatalf("unexpected profile: %+v", updated)
	}
	if loc := env.calendar.Location(ctx, "user-1"); loc.String() != tz {
		t.Fatalf("expected calendar to use profile timezone, got %s", loc)
	}
}
