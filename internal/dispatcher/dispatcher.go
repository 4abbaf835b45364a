// Package dispatcher parses one command-surface line into a
// models.TaskConfig (spec §4.7). It is a hand-rolled tokenizer rather than
// a flag-package/cobra parser because the recognized grammar
// (boolean flags, flags with values, and `-b[:a:b]`-shaped optional
// suffixes) does not map onto POSIX/GNU flag conventions — the same
// reason the teacher's own chat command surface is hand-parsed
// (original_source bot_utils.py's arg_parser) rather than built on a flag
// library.
package dispatcher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rescale-labs/taskorc/internal/models"
)

// Verb identifies which command table entry a line invokes (spec §6
// "recognized verbs").
type Verb string

const (
	VerbMirror      Verb = "mirror"
	VerbLeech       Verb = "leech"
	VerbClone       Verb = "clone"
	VerbMerge       Verb = "merge"
	VerbMergeCommit Verb = "merge-commit"
	VerbMergeCancel Verb = "merge-cancel"
	VerbCancel      Verb = "cancel"
	VerbCancelAll   Verb = "cancel-all"
	VerbCancelMulti Verb = "cancel-multi"
	VerbForceStart  Verb = "force-start"
	VerbSelect      Verb = "select"
	VerbStatus      Verb = "status"
	VerbRss         Verb = "rss"
	VerbStats       Verb = "stats"
	VerbPing        Verb = "ping"
	VerbLog         Verb = "log"
	VerbRestart     Verb = "restart"
	VerbSettingsBot Verb = "settings-bot"
	VerbSettingsUsr Verb = "settings-user"
	VerbSpeedtest   Verb = "speedtest"
	VerbMediainfo   Verb = "mediainfo"
)

// verbsByName maps a bare "/verb" token (without the leading slash) to its
// Verb constant.
var verbsByName = map[string]Verb{
	"mirror": VerbMirror, "m": VerbMirror,
	"leech": VerbLeech, "l": VerbLeech,
	"clone":         VerbClone,
	"merge":         VerbMerge,
	"mdone":         VerbMergeCommit,
	"merge-commit":  VerbMergeCommit,
	"mcancel":       VerbMergeCancel,
	"merge-cancel":  VerbMergeCancel,
	"cancel":        VerbCancel,
	"cancel-all":    VerbCancelAll,
	"cancelall":     VerbCancelAll,
	"cancel-multi":  VerbCancelMulti,
	"force-start":   VerbForceStart,
	"fs":            VerbForceStart,
	"select":        VerbSelect,
	"status":        VerbStatus,
	"s":             VerbStatus,
	"rss":           VerbRss,
	"stats":         VerbStats,
	"ping":          VerbPing,
	"log":           VerbLog,
	"restart":       VerbRestart,
	"settings-bot":  VerbSettingsBot,
	"settings-user": VerbSettingsUsr,
	"speedtest":     VerbSpeedtest,
	"mediainfo":     VerbMediainfo,
}

// boolFlags is the recognized flag set that takes no value, matching
// original_source bot_utils.py's arg_parser bool_arg_set extended with the
// spec §4.7 flags that are pure toggles.
var boolFlags = map[string]bool{
	"-s": true, "-z": true, "-e": true,
	"-sv": true, "-ss": true,
	"-hl": true, "-ut": true, "-bt": true,
	"-doc": true, "-med": true,
}

// ParseError is a ConfigError-class failure (spec §7): a bad flag or
// value, reported to the user with no side effects.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return e.Msg }

// Command is the parsed command-surface line before it's resolved into a
// TaskConfig: the verb plus every flag and the positional link/reply.
type Command struct {
	Verb  Verb
	Link  string
	Flags map[string]string // bool flags map to "true"
}

// Tokenize splits line on whitespace, preserving nothing fancier than the
// original's naive split — quoting is not part of this command surface.
func Tokenize(line string) []string {
	return strings.Fields(line)
}

// ParseCommand extracts the verb and flag/value pairs from one
// command-surface line (spec §4.7: "the first non-flag token is the
// link"). It does not know about reply-to-media fallback; callers supply
// that as replyLink when the message carries no positional link.
func ParseCommand(line string, replyLink string) (*Command, error) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return nil, &ParseError{Msg: "empty command"}
	}

	verbToken := strings.TrimPrefix(tokens[0], "/")
	verb, ok := verbsByName[verbToken]
	if !ok {
		return nil, &ParseError{Msg: fmt.Sprintf("unrecognized verb %q", tokens[0])}
	}

	cmd := &Command{Verb: verb, Flags: make(map[string]string)}
	rest := tokens[1:]

	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		if !strings.HasPrefix(tok, "-") {
			if cmd.Link == "" {
				cmd.Link = tok
			}
			continue
		}
		if boolFlags[tok] {
			cmd.Flags[tok] = "true"
			continue
		}
		// -b is a toggle that optionally carries a ":a:b" slice suffix
		// attached to the same token rather than a following one (spec
		// §4.7 "-b[:a:b]"), so it's handled before the generic
		// value-flag case.
		if tok == "-b" || strings.HasPrefix(tok, "-b:") {
			cmd.Flags["-b"] = strings.TrimPrefix(tok, "-b")
			continue
		}
		if tok == "-d" || strings.HasPrefix(tok, "-d:") {
			cmd.Flags["-d"] = strings.TrimPrefix(tok, "-d")
			continue
		}
		if i+1 >= len(rest) {
			return nil, &ParseError{Msg: fmt.Sprintf("flag %s requires a value", tok)}
		}
		cmd.Flags[tok] = rest[i+1]
		i++
	}

	if cmd.Link == "" {
		cmd.Link = replyLink
	}
	return cmd, nil
}

var headerPairPattern = regexp.MustCompile(`^([^:]+):(.*)$`)

// ToTaskConfig resolves a parsed Command into a TaskConfig (spec §4.7 flag
// table). resolveDriver assigns TaskConfig.DriverName from the link's
// scheme/shape (spec §9: "lift to explicit process-wide registries");
// it is supplied by the caller since only the caller knows which drivers
// are registered in this process.
func ToTaskConfig(cmd *Command, ownerID, chatID, replyID int64, resolveDriver func(link string) (string, error)) (*models.TaskConfig, error) {
	if cmd.Link == "" {
		return nil, &ParseError{Msg: "no link given and message is not a reply to media"}
	}

	driverName, err := resolveDriver(cmd.Link)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}

	cfg := &models.TaskConfig{
		OwnerID:    ownerID,
		ChatID:     chatID,
		ReplyID:    replyID,
		Link:       cmd.Link,
		DriverName: driverName,
	}

	switch cmd.Verb {
	case VerbMirror:
		cfg.Kind, cfg.Mirror = models.KindMirror, true
	case VerbLeech:
		cfg.Kind, cfg.Leech = models.KindLeech, true
	case VerbClone:
		cfg.Kind = models.KindClone
	default:
		return nil, &ParseError{Msg: fmt.Sprintf("verb %q does not resolve to a task", cmd.Verb)}
	}

	for flag, val := range cmd.Flags {
		if err := applyFlag(cfg, flag, val); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func applyFlag(cfg *models.TaskConfig, flag, val string) error {
	switch flag {
	case "-n":
		cfg.NameHint = val
	case "-up":
		cfg.UpDestination = val
	case "-rcf":
		cfg.RcloneFlags = val
	case "-i":
		if _, err := strconv.Atoi(val); err != nil {
			return &ParseError{Msg: fmt.Sprintf("-i: %v", err)}
		}
	case "-b":
		// bulk mode; optional ":a:b" slice is consumed by the bulk-expand
		// step upstream of TaskConfig construction, not recorded here.
	case "-m":
		cfg.FolderName = val
	case "-d":
		cfg.Seed = true
	case "-s":
		cfg.Select = true
	case "-z":
		cfg.Pipeline.Compress = true
	case "-e":
		cfg.Pipeline.ExtractArchive = true
	case "-sv":
		cfg.Pipeline.SampleVideo = true
	case "-ss":
		cfg.Pipeline.Screenshots = true
	case "-ca":
		cfg.Pipeline.ConvertAudioExt = val
	case "-cv":
		cfg.Pipeline.ConvertVideoExt = val
	case "-md":
		cfg.Pipeline.MetadataTitle = val
	case "-hl":
		cfg.HybridLeech = true
	case "-ut":
		cfg.ForceUser = true
	case "-bt":
		cfg.ForceBot = true
	case "-doc":
		cfg.AsDocument = true
	case "-med":
		cfg.AsMedia = true
	case "-tl":
		cfg.Pipeline.ThumbnailGrid = val
	case "-sp":
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return &ParseError{Msg: fmt.Sprintf("-sp: %v", err)}
		}
		cfg.Pipeline.SplitSizeOverride = n
	case "-t":
		cfg.Pipeline.ThumbnailRef = val
	case "-ns":
		cfg.Pipeline.NameSubstitution = val
	case "-au":
		cfg.HTTPAuthUser = val
	case "-ap":
		cfg.HTTPAuthPass = val
	case "-h":
		if cfg.HTTPHeaders == nil {
			cfg.HTTPHeaders = make(map[string]string)
		}
		m := headerPairPattern.FindStringSubmatch(val)
		if m == nil {
			return &ParseError{Msg: fmt.Sprintf("-h: malformed header %q, want name:value", val)}
		}
		cfg.HTTPHeaders[strings.TrimSpace(m[1])] = strings.TrimSpace(m[2])
	default:
		return &ParseError{Msg: fmt.Sprintf("unrecognized flag %q", flag)}
	}
	return nil
}
