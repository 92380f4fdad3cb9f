package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ghostwriter/internal/models"
	"ghostwriter/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyticsService(analytics *analyticsRepoStub, posts *postRepoStub, clients *clientRepoStub) *AnalyticsService {
	svc := NewAnalyticsService(analytics, posts, clients, &userRepoStub{})
	svc.now = clockAt(fixedNow)
	return svc
}

func TestAnalyticsService_Overview(t *testing.T) {
	t.Parallel()

	var gotQuery repository.PublishedQuery
	var gotLimit int
	analytics := &analyticsRepoStub{
		countClientsFn: func(context.Context, repository.Scope) (int64, error) { return 3, nil },
		countPostsByStatusFn: func(context.Context, repository.Scope) ([]repository.StatusCount, error) {
			return []repository.StatusCount{{Status: models.PostStatusPublished, Count: 4}, {Status: models.PostStatusDraft, Count: 2}}, nil
		},
		publishedTotalsFn: func(_ context.Context, q repository.PublishedQuery) (*repository.MetricTotals, error) {
			gotQuery = q
			return &repository.MetricTotals{Posts: 4, Likes: 40, Impressions: 1000, AvgEngagementRate: 4.256, AvgClickThroughRate: 1.111}, nil
		},
		topPostsFn: func(_ context.Context, _ repository.PublishedQuery, limit int) ([]models.Post, error) {
			gotLimit = limit
			return nil, nil
		},
	}
	svc := newTestAnalyticsService(analytics, &postRepoStub{}, &clientRepoStub{})

	out, err := svc.Overview(context.Background(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultAnalyticsDays, out.Days)
	assert.Equal(t, int64(3), out.Clients)
	assert.Equal(t, map[string]int64{
		models.PostStatusDraft:     2,
		models.PostStatusScheduled: 0,
		models.PostStatusPublished: 4,
		models.PostStatusFailed:    0,
	}, out.PostsByStatus)
	assert.Equal(t, 4.26, out.AvgEngagementRate)
	assert.Equal(t, 1.11, out.AvgClickThroughRate)
	assert.NotNil(t, out.TopPosts)
	assert.Empty(t, out.TopPosts)
	assert.Equal(t, 5, gotLimit)
	require.NotNil(t, gotQuery.Scope)
	assert.Equal(t, uint(1), gotQuery.Scope.UserID)
	assert.Equal(t, fixedNow.AddDate(0, 0, -30), gotQuery.From)

	out, err = svc.Overview(context.Background(), 1, 9999)
	require.NoError(t, err)
	assert.Equal(t, MaxAnalyticsDays, out.Days)
}

func TestAnalyticsService_PostHistory(t *testing.T) {
	t.Parallel()

	posts := &postRepoStub{
		getVisibleFn: func(_ context.Context, id uint, _ repository.Scope) (*models.Post, error) {
			if id != 7 {
				return nil, models.NewNotFoundError("Post", id)
			}
			return &models.Post{ID: 7}, nil
		},
	}
	analytics := &analyticsRepoStub{
		listSnapshotsFn: func(_ context.Context, postID uint) ([]models.PostAnalytics, error) {
			return []models.PostAnalytics{{PostID: postID, Likes: 1}, {PostID: postID, Likes: 3}}, nil
		},
	}
	svc := newTestAnalyticsService(analytics, posts, &clientRepoStub{})

	hist, err := svc.PostHistory(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), hist.Post.ID)
	assert.Len(t, hist.Snapshots, 2)

	_, err = svc.PostHistory(context.Background(), 1, 8)
	assertAppError(t, err, models.CodeNotFound)
}

func TestAnalyticsService_ClientHistory(t *testing.T) {
	t.Parallel()

	clients := &clientRepoStub{
		getVisibleFn: func(_ context.Context, id uint, _ repository.Scope) (*models.Client, error) {
			return &models.Client{ID: id}, nil
		},
	}
	var since time.Time
	analytics := &analyticsRepoStub{
		listRollupsFn: func(_ context.Context, _ uint, s time.Time) ([]models.ClientAnalytics, error) {
			since = s
			return []models.ClientAnalytics{{ClientID: 2}}, nil
		},
	}
	svc := newTestAnalyticsService(analytics, &postRepoStub{}, clients)

	hist, err := svc.ClientHistory(context.Background(), 1, 2, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, hist.Days)
	assert.Len(t, hist.Rollups, 1)
	assert.Equal(t, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), since)
}

func TestAnalyticsService_Rollup(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clients := &clientRepoStub{
		listAllFn: func(context.Context) ([]models.Client, error) {
			return []models.Client{{ID: 1}, {ID: 2}, {ID: 3}}, nil
		},
	}
	var rollups []models.ClientAnalytics
	analytics := &analyticsRepoStub{
		publishedTotalsFn: func(_ context.Context, q repository.PublishedQuery) (*repository.MetricTotals, error) {
			assert.Nil(t, q.Scope)
			assert.Equal(t, day, q.From)
			assert.Equal(t, day.AddDate(0, 0, 1), q.To)
			if q.ClientID == 2 {
				return nil, errors.New("query failed")
			}
			return &repository.MetricTotals{Posts: 1, Likes: 5, Impressions: 100}, nil
		},
		clientTotalsFn: func(context.Context, uint) (*repository.MetricTotals, error) {
			return &repository.MetricTotals{Posts: 10, Impressions: 2000, AvgEngagementRate: 3.333}, nil
		},
		upsertRollupFn: func(_ context.Context, r *models.ClientAnalytics) error {
			rollups = append(rollups, *r)
			return nil
		},
	}
	svc := newTestAnalyticsService(analytics, &postRepoStub{}, clients)

	assert.Equal(t, day, svc.Yesterday())

	report, err := svc.Rollup(context.Background(), day.Add(15*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &RollupReport{Clients: 2, Failed: 1, Date: "2026-03-01"}, report)
	require.Len(t, rollups, 2)
	assert.Equal(t, models.ClientAnalytics{
		ClientID:          1,
		Date:              day,
		PostsPublished:    1,
		Likes:             5,
		Impressions:       100,
		TotalPosts:        10,
		TotalImpressions:  2000,
		AvgEngagementRate: 3.33,
	}, rollups[0])
}
