package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRefresher struct {
	calls     int
	refreshed int
	failed    int
	err       error
}

func (s *stubRefresher) RefreshAll(ctx context.Context) (int, int, error) {
	s.calls++
	if _, ok := ctx.Deadline(); !ok {
		return 0, 0, errors.New("expected a deadline")
	}
	return s.refreshed, s.failed, s.err
}

type stubPruner struct{}

func (stubPruner) Prune(time.Duration) int { return 0 }

func TestRunStreakRefreshLogsOutcome(t *testing.T) {
	log, hook := test.NewNullLogger()
	s := NewScheduler(log, time.UTC)

	s.RunStreakRefresh(context.Background(), &stubRefresher{refreshed: 3})
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, 3, hook.LastEntry().Data["refreshed"])

	s.RunStreakRefresh(context.Background(), &stubRefresher{refreshed: 2, failed: 1})
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	s.RunStreakRefresh(context.Background(), &stubRefresher{err: errors.New("db down")})
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestSchedulerRegistersJobs(t *testing.T) {
	log, _ := test.NewNullLogger()
	s := NewScheduler(log, nil)

	require.NoError(t, s.AddStreakRefresh("5 0 * * *", &stubRefresher{}))
	require.NoError(t, s.AddLimiterPrune("@every 10m", stubPruner{}, time.Hour))
	assert.Equal(t, 2, s.Len())

	assert.Error(t, s.AddStreakRefresh("not a cron", &stubRefresher{}))

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
