package usage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentgate/subscription-engine/internal/domain/plans"
)

func testEnts() plans.Entitlements {
	return plans.Entitlements{
		JobPostsLimit:     10,
		FeaturedJobs:      2,
		CVDownloads:       plans.Unbounded,
		CandidateSearches: 0,
	}
}

func TestTryConsumeDecrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))

	remaining, err := s.TryConsume(ctx, "sub-1", KindJobPosting, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9), remaining)

	c, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.JobPostingsUsed)
}

func TestTryConsumeAtLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))

	for i := 0; i < 2; i++ {
		_, err := s.TryConsume(ctx, "sub-1", KindFeaturedJob, 1)
		require.NoError(t, err)
	}

	_, err := s.TryConsume(ctx, "sub-1", KindFeaturedJob, 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	c, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.FeaturedJobsUsed, "denied attempt must not consume")
}

func TestTryConsumeZeroLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))

	_, err := s.TryConsume(ctx, "sub-1", KindCandidateSearch, 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestTryConsumeUnbounded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))

	for i := 0; i < 1000; i++ {
		remaining, err := s.TryConsume(ctx, "sub-1", KindCVDownload, 1)
		require.NoError(t, err)
		assert.Equal(t, plans.Unbounded, remaining)
	}
}

func TestTryConsumeMissingCounter(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.TryConsume(context.Background(), "nope", KindJobPosting, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// With k remaining and far more than k concurrent attempts, exactly k may
// succeed and the counter must end exactly at the limit.
func TestTryConsumeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ents := testEnts()
	ents.JobPostsLimit = 7
	require.NoError(t, s.Init(ctx, "sub-1", ents))

	const attempts = 100
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TryConsume(ctx, "sub-1", KindJobPosting, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for err := range results {
		if err == nil {
			granted++
		} else if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 7, granted)

	c, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), c.JobPostingsUsed)
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))

	_, err := s.TryConsume(ctx, "sub-1", KindJobPosting, 3)
	require.NoError(t, err)

	// A second Init must not zero existing consumption.
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))
	c, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.JobPostingsUsed)
}

func TestResetReplacesLimits(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Init(ctx, "sub-1", testEnts()))
	_, err := s.TryConsume(ctx, "sub-1", KindJobPosting, 5)
	require.NoError(t, err)

	next := plans.Entitlements{JobPostsLimit: 3, FeaturedJobs: 1, CVDownloads: 1, CandidateSearches: 1}
	require.NoError(t, s.Reset(ctx, "sub-1", next))

	c, err := s.Get(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.JobPostingsUsed)
	assert.Equal(t, int64(3), c.Limits.JobPostsLimit)
	assert.Equal(t, int64(3), c.Remaining(KindJobPosting))
}

func TestRemainingClampsAtZero(t *testing.T) {
	c := &Counter{Limits: plans.Entitlements{JobPostsLimit: 2}, JobPostingsUsed: 2}
	assert.Equal(t, int64(0), c.Remaining(KindJobPosting))
}
