// Package persistence implements the Persistence Adapter (spec §6): a
// document store with collections `config`, `users`, `rss`, `tasks`
// (incomplete-task journal), and `files` (opaque per-(bot token, path)
// credential blobs). Grounded on `go.etcd.io/bbolt`, the embedded
// key-value store used by several retrieval-pack repos (rclone, tdl,
// the magnet-link downloader) for exactly this "one bucket per
// collection, JSON-encoded values" shape.
package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/rescale-labs/taskorc/internal/models"
)

var collections = []string{"config", "users", "rss", "tasks", "files"}

// Store is a process-lifetime singleton wrapping one bbolt database file.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the database at path and ensures every
// collection bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("persistence: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) put(bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persistence: marshal %s/%s: %w", bucket, key, err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket, key string, v any) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *Store) delete(bucket, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Delete([]byte(key))
	})
}

func (s *Store) forEach(bucket string, each func(key string, data []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			return each(string(k), v)
		})
	})
}

// RecordTask appends an incomplete-task journal row (spec §6 Journal
// format: {chat_id, link, tag}), keyed by task id. Implements
// lifecycle.Journal.
func (s *Store) RecordTask(cfg models.TaskConfig) error {
	return s.put("tasks", cfg.ID, journalRow{
		TaskID:    cfg.ID,
		ChatID:    cfg.ChatID,
		OwnerID:   cfg.OwnerID,
		Link:      cfg.Link,
		Tag:       cfg.Tag,
		CreatedAt: cfg.CreatedAt,
	})
}

// ForgetTask removes a journal row on any terminal transition. Implements
// lifecycle.Journal.
func (s *Store) ForgetTask(taskID string) error {
	return s.delete("tasks", taskID)
}

// journalRow is the on-disk shape of one tasks-bucket entry.
type journalRow struct {
	TaskID    string
	ChatID    int64
	OwnerID   int64
	Link      string
	Tag       string
	CreatedAt time.Time
}

// IncompleteTasks lists every journaled row, for restart replay (spec §6:
// "restart reads them and re-notifies the originating chat").
func (s *Store) IncompleteTasks() ([]journalRow, error) {
	var rows []journalRow
	err := s.forEach("tasks", func(_ string, data []byte) error {
		var row journalRow
		if err := json.Unmarshal(data, &row); err != nil {
			return err
		}
		rows = append(rows, row)
		return nil
	})
	return rows, err
}

// PutUserSettings writes through a UserSettings change (spec §3
// UserSettings, settings-user command).
func (s *Store) PutUserSettings(settings models.UserSettings) error {
	return s.put("users", userKey(settings.OwnerID), settings)
}

// UserSettings reads back a user's settings, if any have been written.
func (s *Store) UserSettings(ownerID int64) (models.UserSettings, bool, error) {
	var settings models.UserSettings
	found, err := s.get("users", userKey(ownerID), &settings)
	return settings, found, err
}

func userKey(ownerID int64) string { return fmt.Sprintf("%d", ownerID) }

// PutConfigValue writes a single runtime config override (settings-bot
// command), distinct from the boot-time env file internal/config loads.
func (s *Store) PutConfigValue(key, value string) error {
	return s.put("config", key, value)
}

// ConfigValue reads back a runtime config override.
func (s *Store) ConfigValue(key string) (string, bool, error) {
	var value string
	found, err := s.get("config", key, &value)
	return value, found, err
}

// PutFile stores an opaque user-uploaded credential blob keyed by
// (bot token, path) (spec §6 files collection).
func (s *Store) PutFile(botToken, path string, data []byte) error {
	return s.put("files", fileKey(botToken, path), data)
}

// File reads back a previously stored credential blob.
func (s *Store) File(botToken, path string) ([]byte, bool, error) {
	var data []byte
	found, err := s.get("files", fileKey(botToken, path), &data)
	return data, found, err
}

func fileKey(botToken, path string) string { return botToken + "\x00" + path }

// PutRssFeed writes through a feed subscription, keyed by (owner, title)
// (spec §3 RssFeed; SPEC_FULL SUPPLEMENT 5).
func (s *Store) PutRssFeed(feed models.RssFeed) error {
	return s.put("rss", rssKey(feed.OwnerID, feed.Title), feed)
}

// DeleteRssFeed removes a subscription.
func (s *Store) DeleteRssFeed(ownerID int64, title string) error {
	return s.delete("rss", rssKey(ownerID, title))
}

// AllRssFeeds lists every subscription across every owner, for the poll
// loop's tick (internal/rss partitions these by owner at poll time).
func (s *Store) AllRssFeeds() ([]models.RssFeed, error) {
	var feeds []models.RssFeed
	err := s.forEach("rss", func(_ string, data []byte) error {
		var feed models.RssFeed
		if err := json.Unmarshal(data, &feed); err != nil {
			return err
		}
		feeds = append(feeds, feed)
		return nil
	})
	return feeds, err
}

func rssKey(ownerID int64, title string) string { return fmt.Sprintf("%d\x00%s", ownerID, title) }
