package rss

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/logging"
	"github.com/rescale-labs/taskorc/internal/models"
)

type fakeStore struct {
	feeds []models.RssFeed
}

func (f *fakeStore) AllRssFeeds() ([]models.RssFeed, error) { return f.feeds, nil }

func (f *fakeStore) PutRssFeed(feed models.RssFeed) error {
	for i, existing := range f.feeds {
		if existing.OwnerID == feed.OwnerID && existing.Title == feed.Title {
			f.feeds[i] = feed
			return nil
		}
	}
	f.feeds = append(f.feeds, feed)
	return nil
}

type fakeFetcher struct {
	entries []Entry
}

func (f fakeFetcher) Fetch(ctx context.Context, feedURL string, headers map[string]string) ([]Entry, error) {
	return f.entries, nil
}

func TestPollOnceDispatchesOnlyNewEntries(t *testing.T) {
	store := &fakeStore{feeds: []models.RssFeed{{
		OwnerID:      1,
		Title:        "feed",
		FeedURL:      "https://x.test/rss",
		LastSeenLink: "https://x.test/2",
	}}}
	fetcher := fakeFetcher{entries: []Entry{
		{Link: "https://x.test/4", Title: "ep4"},
		{Link: "https://x.test/3", Title: "ep3"},
		{Link: "https://x.test/2", Title: "ep2"},
	}}

	var dispatched []string
	dispatch := func(owner int64, link, title, tag string) error {
		dispatched = append(dispatched, link)
		return nil
	}

	p := New(store, fetcher, dispatch, 0, logging.NewDefaultWorkerLogger())
	p.pollOnce(context.Background())

	assert.Equal(t, []string{"https://x.test/4", "https://x.test/3"}, dispatched)
	assert.Equal(t, "https://x.test/4", store.feeds[0].LastSeenLink)
}

func TestPollOnceAppliesIncludeExcludeFilter(t *testing.T) {
	store := &fakeStore{feeds: []models.RssFeed{{
		OwnerID: 1,
		Title:   "feed",
		Filter:  models.RssFilter{Include: "1080p", Exclude: "CAM"},
	}}}
	fetcher := fakeFetcher{entries: []Entry{
		{Link: "a", Title: "Show.1080p.CAM"},
		{Link: "b", Title: "Show.1080p.WEB"},
		{Link: "c", Title: "Show.720p.WEB"},
	}}

	var dispatched []string
	dispatch := func(owner int64, link, title, tag string) error {
		dispatched = append(dispatched, link)
		return nil
	}

	p := New(store, fetcher, dispatch, 0, logging.NewDefaultWorkerLogger())
	p.pollOnce(context.Background())

	assert.Equal(t, []string{"b"}, dispatched)
}

func TestPollOnceSkipsPausedFeed(t *testing.T) {
	store := &fakeStore{feeds: []models.RssFeed{{OwnerID: 1, Title: "feed", Paused: true}}}
	fetcher := fakeFetcher{entries: []Entry{{Link: "a", Title: "x"}}}

	called := false
	dispatch := func(owner int64, link, title, tag string) error {
		called = true
		return nil
	}

	p := New(store, fetcher, dispatch, 0, logging.NewDefaultWorkerLogger())
	p.pollOnce(context.Background())

	require.False(t, called)
}
