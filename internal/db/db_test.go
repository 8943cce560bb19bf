package db

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOpenCreatesSchemaAndAssignsIDs(t *testing.T) {
	gdb, err := Open(Options{Driver: "sqlite", Path: "file:db-open?mode=memory&cache=shared", Silent: true})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer Close(gdb)

	habit := Habit{UserID: "user-1", Title: "Run"}
	if err := gdb.Create(&habit).Error; err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	if len(habit.ID) != 36 {
		t.Fatalf("expected uuid primary key, got %q", habit.ID)
	}
	if habit.HabitType != HabitTypeBoolean {
		t.Fatalf("expected default habit type, got %q", habit.HabitType)
	}

	entry := HabitEntry{UserID: "user-1", HabitID: habit.ID, EntryDate: "2025-01-01", Completed: true}
	if err := gdb.Create(&entry).Error; err != nil {
		t.Fatalf("failed to create entry: %v", err)
	}

	duplicate := HabitEntry{UserID: "user-1", HabitID: habit.ID, EntryDate: "2025-01-01"}
	if err := gdb.Create(&duplicate).Error; err == nil {
		t.Fatal("expected unique index violation for duplicate habit/date")
	}
}

func TestEnsureProfileIsIdempotent(t *testing.T) {
	gdb, err := Open(Options{Driver: "sqlite", Path: "file:db-profile?mode=memory&cache=shared", Silent: true})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer Close(gdb)

	first, err := EnsureProfile(gdb, "user-1")
	if err != nil {
		t.Fatalf("EnsureProfile returned error: %v", err)
	}
	if err := gdb.Model(first).Update("points", 30).Error; err != nil {
		t.Fatalf("failed to update points: %v", err)
	}

	second, err := EnsureProfile(gdb, "user-1")
	if err != nil {
		t.Fatalf("EnsureProfile returned error: %v", err)
	}
	if second.Points != 30 {
		t.Fatalf("expected existing profile to be returned, got points=%d", second.Points)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestPing(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer sqlDB.Close()

	mock.ExpectPing()
	if err := Ping(context.Background(), sqlDB); err != nil {
		t.Fatalf("expected ping to succeed, got %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	if err := Ping(context.Background(), sqlDB); err == nil {
		t.Fatal("expected ping failure to be reported")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}

	if err := Ping(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
}
