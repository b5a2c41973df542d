package work

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LexiconIndonesia/career-crawler-service/common/redis"
)

func newTracker(t *testing.T) (*SessionTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	tracker := NewSessionTracker(client, "company_jobs:")
	tracker.now = func() time.Time { return time.Unix(1700000000, 0) }
	return tracker, mr
}

func TestSessionLifecycle(t *testing.T) {
	tracker, mr := newTracker(t)
	ctx := context.Background()

	s, err := tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.False(t, s.Exists)
	assert.Equal(t, StatusNew, s.Status)
	assert.Equal(t, "company_jobs:42", s.Key)

	require.NoError(t, tracker.Start(ctx, 42))
	assert.Equal(t, "in_progress", mr.HGet("company_jobs:42", "status"))
	assert.Equal(t, "0", mr.HGet("company_jobs:42", "retries"))
	assert.Equal(t, "false", mr.HGet("company_jobs:42", "job_listings_step_done"))

	require.NoError(t, tracker.MarkJobListingsDone(ctx, 42))
	retries, err := tracker.Fail(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1, retries)

	require.NoError(t, tracker.Start(ctx, 42))
	retries, err = tracker.Fail(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 2, retries, "restarting keeps the retry count")

	s, err = tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.True(t, s.Exists)
	assert.Equal(t, StatusFailed, s.Status)
	assert.Equal(t, 2, s.Retries)
	assert.True(t, s.JobListingsStepDone)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), s.UpdatedAt)

	require.NoError(t, tracker.Done(ctx, 42))
	s, err = tracker.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, s.Status)
	assert.False(t, s.JobListingsStepDone)
	assert.Equal(t, 2, s.Retries)

	require.NoError(t, tracker.Delete(ctx, 42))
	assert.False(t, mr.Exists("company_jobs:42"))
}

func TestSessionGetFailsWhenRedisIsDown(t *testing.T) {
	tracker, mr := newTracker(t)
	mr.Close()

	_, err := tracker.Get(context.Background(), 1)
	assert.Error(t, err)
}
