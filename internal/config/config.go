// Package config loads the orchestrator's environment file (spec §6): a
// flat file of uppercase KEY = value pairs, no section headers required.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// Config is the unified runtime configuration for the orchestrator process.
//
// Config file format — a bodiless-default-section INI file:
//
//	DATABASE_URL = bolt:///var/lib/taskorc/state.db
//	DEFAULT_UPLOAD = gd
//	AUTH_CHATS = -100123,456
//	SUDO_USERS = 111,222
//	OWNER_ID = 111
//	LEECH_SPLIT_SIZE = 2097152000
//	QUEUE_ALL = false
//	DOWNLOAD_LIMIT = 4
//	UPLOAD_LIMIT = 4
//	RSS_DELAY = 600
//	RSS_SIZE_LIMIT = 0
//	TORRENT_TIMEOUT = 0
//	STATUS_LIMIT = 4
//	EXCLUDED_EXTENSIONS =
//	INCLUDED_EXTENSIONS =
//	INDEX_URL =
//	GDRIVE_ID =
//	INCOMPLETE_TASK_NOTIFIER = true
type Config struct {
	// DatabaseURL locates the bbolt file backing the persistence adapter.
	// Default: "bolt:///var/lib/taskorc/state.db"
	DatabaseURL string `ini:"DATABASE_URL"`

	// DefaultUpload is the fallback -up destination when a task omits it.
	DefaultUpload string `ini:"DEFAULT_UPLOAD"`

	// AuthChats is a comma-separated allowlist of chat ids permitted to
	// issue commands.
	AuthChats string `ini:"AUTH_CHATS"`

	// SudoUsers is a comma-separated list of user ids with elevated
	// command access (settings-bot, restart, exec-adjacent verbs).
	SudoUsers string `ini:"SUDO_USERS"`

	// OwnerID is the single user id treated as the process owner.
	OwnerID int64 `ini:"OWNER_ID"`

	// LeechSplitSize is the default split_size (bytes) for chat-sink
	// uploads exceeding the transport's single-file limit.
	// Default: 2000 * 1024 * 1024
	LeechSplitSize int64 `ini:"LEECH_SPLIT_SIZE"`

	// QueueAll forces the download and upload gates to share one logical
	// capacity counter (spec §4.3).
	QueueAll bool `ini:"QUEUE_ALL"`

	// DownloadLimit is the download gate's capacity (0 = unbounded).
	DownloadLimit int `ini:"DOWNLOAD_LIMIT"`

	// UploadLimit is the upload gate's capacity (0 = unbounded).
	UploadLimit int `ini:"UPLOAD_LIMIT"`

	// RssDelaySeconds is the default delay between RSS feed polls.
	RssDelaySeconds int `ini:"RSS_DELAY"`

	// RssSizeLimit rejects RSS-triggered tasks above this many bytes
	// (0 = no limit).
	RssSizeLimit int64 `ini:"RSS_SIZE_LIMIT"`

	// TorrentTimeoutSeconds stops a stalled torrent download after this
	// many seconds of no progress (0 = no timeout).
	TorrentTimeoutSeconds int `ini:"TORRENT_TIMEOUT"`

	// StatusLimit caps how many task rows the aggregator renders per
	// status message before paginating.
	StatusLimit int `ini:"STATUS_LIMIT"`

	// ExcludedExtensions is the default exclusion set for pipeline stage
	// 11 (extension filtering), comma-separated, without leading dots.
	ExcludedExtensions string `ini:"EXCLUDED_EXTENSIONS"`

	// IncludedExtensions, if non-empty, makes stage 11 an allowlist
	// instead of a denylist.
	IncludedExtensions string `ini:"INCLUDED_EXTENSIONS"`

	// IndexURL is prefixed to drive-sink completion links when serving an
	// index page in front of the drive.
	IndexURL string `ini:"INDEX_URL"`

	// GdriveID is the default drive-sink folder id when -up omits one.
	GdriveID string `ini:"GDRIVE_ID"`

	// IncompleteTaskNotifier enables the incomplete-task journal replay
	// on restart (spec §6 Journal format).
	IncompleteTaskNotifier bool `ini:"INCOMPLETE_TASK_NOTIFIER"`
}

// Default returns a Config populated with the documented defaults, before
// any file or environment override is applied.
func Default() *Config {
	return &Config{
		DatabaseURL:            "bolt:///var/lib/taskorc/state.db",
		LeechSplitSize:         2000 * 1024 * 1024,
		DownloadLimit:          4,
		UploadLimit:            4,
		RssDelaySeconds:        600,
		StatusLimit:            4,
		IncompleteTaskNotifier: true,
	}
}

// Load reads path as a bodiless-default-section INI file and overlays it
// on Default(), then overlays secrets from the environment (see
// applyEnvOverrides). A missing file leaves the defaults in place; the
// environment overlay still applies.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				applyEnvOverrides(cfg)
				return cfg, nil
			}
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}

		iniFile, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}

		if err := iniFile.Section("").MapTo(cfg); err != nil {
			return nil, fmt.Errorf("config: map %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides overlays DATABASE_URL, AUTH_CHATS and SUDO_USERS from
// the process environment, letting an operator keep them out of a file on
// disk. The other recognized keys are read from the file only.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		cfg.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("AUTH_CHATS"); ok {
		cfg.AuthChats = v
	}
	if v, ok := os.LookupEnv("SUDO_USERS"); ok {
		cfg.SudoUsers = v
	}
}

// AuthChatList splits AuthChats into a slice of trimmed, non-empty chat id
// strings.
func (c *Config) AuthChatList() []string {
	return splitNonEmpty(c.AuthChats)
}

// SudoUserList splits SudoUsers into a slice of trimmed, non-empty user id
// strings.
func (c *Config) SudoUserList() []string {
	return splitNonEmpty(c.SudoUsers)
}

// ExcludedExtensionList returns the excluded-extension set as a slice.
func (c *Config) ExcludedExtensionList() []string {
	return splitNonEmpty(c.ExcludedExtensions)
}

// IncludedExtensionList returns the included-extension set as a slice.
func (c *Config) IncludedExtensionList() []string {
	return splitNonEmpty(c.IncludedExtensions)
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
