package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rescale-labs/taskorc/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskJournalRoundTrip(t *testing.T) {
	s := newTestStore(t)
	cfg := models.TaskConfig{ID: "t1", ChatID: 5, OwnerID: 9, Link: "https://x", Tag: "@bob", CreatedAt: time.Now()}

	require.NoError(t, s.RecordTask(cfg))

	rows, err := s.IncompleteTasks()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].TaskID)
	assert.Equal(t, int64(5), rows[0].ChatID)

	require.NoError(t, s.ForgetTask("t1"))
	rows, err = s.IncompleteTasks()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUserSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.UserSettings(42)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutUserSettings(models.UserSettings{OwnerID: 42, Prefix: "x-"}))

	got, found, err := s.UserSettings(42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "x-", got.Prefix)
}

func TestRssFeedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutRssFeed(models.RssFeed{OwnerID: 1, Title: "feed-a", FeedURL: "https://a.test/rss"}))
	require.NoError(t, s.PutRssFeed(models.RssFeed{OwnerID: 2, Title: "feed-b", FeedURL: "https://b.test/rss"}))

	feeds, err := s.AllRssFeeds()
	require.NoError(t, err)
	assert.Len(t, feeds, 2)

	require.NoError(t, s.DeleteRssFeed(1, "feed-a"))
	feeds, err = s.AllRssFeeds()
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	assert.Equal(t, "feed-b", feeds[0].Title)
}

func TestFileBlobRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, found, err := s.File("tok", "rclone.conf")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.PutFile("tok", "rclone.conf", []byte("secret")))
	data, found, err := s.File("tok", "rclone.conf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("secret"), data)
}
