package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynchronousBusRunsSubscribersInOrder(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(logger, WithSynchronous())

	var calls []string
	bus.Subscribe(HabitEntryWritten, "first", func(ctx context.Context, evt Event) error {
		calls = append(calls, "first:"+evt.HabitID)
		return nil
	})
	bus.Subscribe(HabitEntryWritten, "second", func(ctx context.Context, evt Event) error {
		calls = append(calls, "second:"+evt.HabitID)
		return nil
	})
	bus.Subscribe(TaskChanged, "other", func(ctx context.Context, evt Event) error {
		calls = append(calls, "other")
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: HabitEntryWritten, HabitID: "h1"})

	assert.Equal(t, []string{"first:h1", "second:h1"}, calls)
}

func TestFailingSubscriberIsLoggedNotPropagated(t *testing.T) {
	logger, hook := test.NewNullLogger()

	var observed []error
	bus := NewBus(logger, WithSynchronous(), WithObserver(func(kind Kind, handler string, err error) {
		observed = append(observed, err)
	}))

	ranAfterFailure := false
	bus.Subscribe(TaskChanged, "broken", func(ctx context.Context, evt Event) error {
		return errors.New("database unavailable")
	})
	bus.Subscribe(TaskChanged, "panicky", func(ctx context.Context, evt Event) error {
		panic("boom")
	})
	bus.Subscribe(TaskChanged, "healthy", func(ctx context.Context, evt Event) error {
		ranAfterFailure = true
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: TaskChanged, UserID: "u1", TaskID: "t1"})

	assert.True(t, ranAfterFailure)
	require.Len(t, observed, 3)
	assert.Error(t, observed[0])
	assert.Error(t, observed[1])
	assert.NoError(t, observed[2])

	require.Len(t, hook.AllEntries(), 2)
	entry := hook.AllEntries()[0]
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "broken", entry.Data["handler"])
	assert.Equal(t, "u1", entry.Data["user_id"])
}

func TestAsyncBusSurvivesCancelledRequestContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(logger)

	var mu sync.Mutex
	var seenErr error
	done := false
	bus.Subscribe(HabitEntryWritten, "recorder", func(ctx context.Context, evt Event) error {
		mu.Lock()
		defer mu.Unlock()
		seenErr = ctx.Err()
		done = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Publish(ctx, Event{Kind: HabitEntryWritten})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, done)
	assert.NoError(t, seenErr)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), Event{Kind: TaskChanged})
	bus.Wait()
}

func TestAsyncBusKeepsPublishOrderPerUser(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(logger)

	var mu sync.Mutex
	var order []string
	bus.Subscribe(HabitEntryWritten, "recorder", func(ctx context.Context, evt Event) error {
		if evt.HabitID == "first" {
			time.Sleep(100 * time.Millisecond)
		}
		mu.Lock()
		defer mu.Unlock()
		order = append(order, evt.HabitID)
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: HabitEntryWritten, UserID: "u1", HabitID: "first"})
	bus.Publish(context.Background(), Event{Kind: HabitEntryWritten, UserID: "u1", HabitID: "second"})
	bus.Publish(context.Background(), Event{Kind: HabitEntryWritten, UserID: "u1", HabitID: "third"})
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestAsyncBusRunsDifferentUsersConcurrently(t *testing.T) {
	logger, _ := test.NewNullLogger()
	bus := NewBus(logger)

	release := make(chan struct{})
	otherDone := make(chan struct{})
	bus.Subscribe(TaskChanged, "recorder", func(ctx context.Context, evt Event) error {
		if evt.UserID == "slow" {
			<-release
			return nil
		}
		close(otherDone)
		return nil
	})

	bus.Publish(context.Background(), Event{Kind: TaskChanged, UserID: "slow"})
	bus.Publish(context.Background(), Event{Kind: TaskChanged, UserID: "fast"})

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("event for another user was blocked behind a slow user")
	}
	close(release)
	bus.Wait()
}
