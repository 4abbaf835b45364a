package models

// UserSettings is the closed set of per-user keys recognized by
// settings-user (spec §3). Every field is written-through to persistence
// on change; zero values mean "unset, fall back to the global default".
type UserSettings struct {
	OwnerID int64

	ThumbnailPath   string
	SplitSize       int64
	Prefix          string
	Suffix          string
	Caption         string
	RcloneConfigPath string
	TokenPath       string
	GdriveID        string
	GofileToken     string
	AutoRenameTemplate string
	AutoRenameEnabled  bool
	FFmpegCmdPresets   []string
}

// RecognizedSettingsKeys enumerates the closed set of settings-user keys
// (spec §3 UserSettings), used by the dispatcher to validate a
// "settings-user <key> <value>" command before writing through.
var RecognizedSettingsKeys = []string{
	"thumbnail_path",
	"split_size",
	"prefix",
	"suffix",
	"caption",
	"rclone_config_path",
	"token_path",
	"gdrive_id",
	"gofile_token",
	"auto_rename_template",
	"auto_rename_enabled",
	"ffmpeg_cmd_presets",
}
